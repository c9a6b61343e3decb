package engine

import "errors"

var (
	ErrNotStarted = errors.New("task engine not started")
	ErrStopped    = errors.New("task engine stopped")
	ErrQueueFull  = errors.New("task engine queue full")
	ErrNilRun     = errors.New("task Run is nil")
	// ErrPanic wraps a recovered task panic; the panic value follows in the message.
	ErrPanic = errors.New("task panicked")
)
