package scheduler

import (
	"errors"
	"time"

	"dueq/internal/task/engine"
)

var (
	// ErrStopped is returned by Add once Stop has begun.
	ErrStopped  = errors.New("scheduler stopped")
	ErrNilJob   = errors.New("scheduler job is nil")
	ErrZeroTime = errors.New("scheduler due time is zero")
)

// Config controls the scheduler facade. Execution settings live in engine.Config.
type Config struct {
	// Timezone is the IANA zone used for cron and wall-clock schedules.
	// Empty means time.Local.
	Timezone string
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	State      State
	Stopping   bool
	Pending    int
	NextDue    time.Time
	Scheduled  uint64
	Dispatched uint64
	Rejected   uint64
	Timezone   string
	Engine     engine.Snapshot
}
