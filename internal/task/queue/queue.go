package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("due queue closed")

type DueQueue struct {
	mu     sync.Mutex
	h      entryHeap
	seq    uint64
	closed bool

	wake chan struct{}
}

func New() *DueQueue {
	return &DueQueue{wake: make(chan struct{}, 1)}
}

// Wake delivers one signal per Push/Close. Signals coalesce while unread, so a
// reader that drains it and then re-examines the queue never misses an update.
func (q *DueQueue) Wake() <-chan struct{} { return q.wake }

func (q *DueQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Push inserts e and returns it with its assigned sequence number.
func (q *DueQueue) Push(e Entry) (Entry, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Entry{}, ErrClosed
	}
	q.seq++
	e.Seq = q.seq
	heap.Push(&q.h, e)
	q.mu.Unlock()

	q.signal()
	return e, nil
}

// Peek returns the earliest entry without removing it.
func (q *DueQueue) Peek() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return Entry{}, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest entry.
func (q *DueQueue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return Entry{}, false
	}
	return heap.Pop(&q.h).(Entry), true
}

// PopDue pops the earliest entry only if it is due at now.
func (q *DueQueue) PopDue(now time.Time) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 || !q.h[0].Due(now) {
		return Entry{}, false
	}
	return heap.Pop(&q.h).(Entry), true
}

// NextDue returns the due time of the earliest entry.
func (q *DueQueue) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].DueAt, true
}

func (q *DueQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

func (q *DueQueue) Empty() bool { return q.Len() == 0 }

// Close rejects further pushes. Entries already queued stay poppable.
func (q *DueQueue) Close() {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()
	if !already {
		q.signal()
	}
}

func (q *DueQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// View is a consistent snapshot of the queue taken under one lock.
type View struct {
	Closed  bool
	Len     int
	NextDue time.Time
}

func (q *DueQueue) View() View {
	q.mu.Lock()
	defer q.mu.Unlock()
	v := View{Closed: q.closed, Len: len(q.h)}
	if len(q.h) > 0 {
		v.NextDue = q.h[0].DueAt
	}
	return v
}
