package engine

import (
	"context"
	"time"
)

// Config controls the task execution engine (the worker set).
type Config struct {
	// Workers bounds how many tasks run at once.
	Workers int
	// QueueSize is the buffer between the dispatcher and the workers.
	// A full buffer blocks Submit (backpressure).
	QueueSize int

	// DefaultTimeout is used when Task.Timeout is 0. 0 disables it.
	DefaultTimeout time.Duration

	HistorySize int

	// RatePerSec caps task starts per second. 0 disables rate limiting.
	RatePerSec float64
	RateBurst  int
}

const (
	defaultWorkers     = 4
	defaultQueueSize   = 64
	defaultHistorySize = 200
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	if c.DefaultTimeout < 0 {
		c.DefaultTimeout = 0
	}
	if c.RatePerSec > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}

// Task is a unit of work executed by the engine.
type Task struct {
	ID      string
	Name    string
	DueAt   time.Time
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Result is the captured outcome of one task execution.
type Result struct {
	ID       string
	Name     string
	DueAt    time.Time
	Started  time.Time
	Lateness time.Duration // Started - DueAt, never negative
	Duration time.Duration
	Err      error
	Panicked bool
}

func (r Result) OK() bool { return r.Err == nil }

type HistoryItem struct {
	ID       string
	Name     string
	DueAt    time.Time
	Started  time.Time
	Lateness time.Duration
	Duration time.Duration
	Error    string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	DueAt    time.Time     `json:"due_at"`
	Started  time.Time     `json:"started"`
	Lateness time.Duration `json:"lateness"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Submitted uint64
	Completed uint64
	Failed    uint64
	Panicked  uint64

	DefaultTimeout time.Duration
	RatePerSec     float64

	History []HistoryItem
}
