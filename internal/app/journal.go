package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dueq/internal/storage"
	"dueq/internal/task/engine"
	logx "dueq/pkg/logx"
)

const (
	journalBuffer       = 256
	journalWriteTimeout = 2 * time.Second
)

// journal moves task results from worker goroutines to the store without
// making workers wait on disk.
type journal struct {
	store storage.Store
	log   logx.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan storage.Outcome

	written atomic.Uint64
	dropped atomic.Uint64
}

func newJournal(store storage.Store, log logx.Logger) *journal {
	return &journal{store: store, log: log, ch: make(chan storage.Outcome, journalBuffer)}
}

// record is an engine OnComplete callback.
func (j *journal) record(r engine.Result) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.ch <- outcomeOf(r):
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warn("journal buffer full; dropping outcomes", logx.Int("buffer", cap(j.ch)))
		}
	}
}

// run writes outcomes until close is called and the buffer is empty.
func (j *journal) run(context.Context) error {
	for o := range j.ch {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		err := j.store.AppendOutcome(ctx, o)
		cancel()
		if err != nil {
			j.log.Warn("journal write failed", logx.String("task", o.Name), logx.Err(err))
			continue
		}
		j.written.Add(1)
	}
	j.log.Debug("journal writer stopped", logx.Uint64("written", j.written.Load()), logx.Uint64("dropped", j.dropped.Load()))
	return nil
}

func (j *journal) close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		j.closed = true
		close(j.ch)
	}
}
