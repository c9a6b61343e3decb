// Package scheduler runs work at an absolute point in time.
//
// Callers register a job with its due time (Add and friends). A single
// dispatcher goroutine keeps the pending entries in a due-time queue, sleeps
// until the earliest one is due, and hands it to the task engine, which runs
// it on a bounded worker pool.
//
// Stop closes the queue to new work and then drains it: every entry that was
// accepted runs, including ones whose due time is still in the future, before
// Stop returns.
package scheduler
