// Package queue holds pending work ordered by due time.
//
// DueQueue is a min-heap keyed by (DueAt, Seq). Seq is assigned on Push, so
// entries sharing a due time come out in insertion order. Every operation runs
// under one mutex which also guards the closed flag; once closed, Push is
// rejected but the remaining entries can still be drained.
package queue
