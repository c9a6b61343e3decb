package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Retain keeps at most this many outcomes; older ones are pruned
	// periodically. 0 keeps everything.
	Retain int
}

// Outcome records one finished task run.
// Keep it compact and schema-stable.
type Outcome struct {
	At         time.Time `json:"at"`
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DueAt      time.Time `json:"due_at"`
	Started    time.Time `json:"started"`
	LatenessMS int64     `json:"lateness_ms"`
	DurationMS int64     `json:"duration_ms"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
}
