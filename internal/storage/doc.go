// Package storage keeps a journal of task outcomes.
//
// Pending work is never persisted; only what happened to tasks that ran.
// Two drivers exist: "file" (JSON Lines) and "sqlite" (modernc.org/sqlite,
// pure Go).
package storage
