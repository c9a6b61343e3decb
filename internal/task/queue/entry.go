package queue

import (
	"time"

	"dueq/internal/task/engine"
)

// Entry pairs a task with the absolute time it becomes due.
type Entry struct {
	DueAt time.Time
	Seq   uint64
	Task  engine.Task
}

// Due reports whether the entry may run at now.
func (e Entry) Due(now time.Time) bool { return !e.DueAt.After(now) }

func (e Entry) less(o Entry) bool {
	if e.DueAt.Equal(o.DueAt) {
		return e.Seq < o.Seq
	}
	return e.DueAt.Before(o.DueAt)
}

// entryHeap satisfies container/heap.Interface.
type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = Entry{} // allow GC of the task closure
	*h = old[:n-1]
	return e
}
