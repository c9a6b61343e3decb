package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"dueq/internal/eventbus"
	logx "dueq/pkg/logx"
)

// worker runs tasks until q is closed and empty. It never leaves work behind:
// context cancellation is passed to the tasks, not used as an exit signal.
func (s *Service) worker(ctx context.Context, q <-chan queuedTask) {
	for qt := range q {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.log.Debug("task rate wait aborted", logx.String("task", qt.task.Name), logx.Err(err))
			}
		}
		s.inFlight.Add(1)
		s.execOne(ctx, qt)
		s.inFlight.Add(-1)
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	t := qt.task
	start := time.Now()
	lateness := time.Duration(0)
	if !t.DueAt.IsZero() {
		lateness = start.Sub(t.DueAt)
		if lateness < 0 {
			lateness = 0
		}
	}

	s.log.Debug("task.started", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("lateness", lateness))
	s.publish(eventbus.TypeTaskStarted, start, TaskEvent{ID: t.ID, Name: t.Name, DueAt: t.DueAt, Started: start, Lateness: lateness})

	runCtx := ctx
	cancel := func() {}
	if qt.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
	}
	var (
		err      error
		panicked bool
	)
	// A panicking task must not take the worker down with it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err = fmt.Errorf("%w: %v", ErrPanic, r)
				s.log.Error("task.panic", logx.String("task", t.Name), logx.String("id", t.ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		err = t.Run(runCtx)
	}()
	cancel()

	dur := time.Since(start)
	res := Result{
		ID:       t.ID,
		Name:     t.Name,
		DueAt:    t.DueAt,
		Started:  start,
		Lateness: lateness,
		Duration: dur,
		Err:      err,
		Panicked: panicked,
	}

	s.completed.Add(1)
	ev := TaskEvent{ID: t.ID, Name: t.Name, DueAt: t.DueAt, Started: start, Lateness: lateness, Duration: dur}
	if err != nil {
		s.failed.Add(1)
		if panicked {
			s.panicked.Add(1)
		}
		ev.Error = err.Error()
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("took", dur), logx.Err(err))
		s.publish(eventbus.TypeTaskFailed, time.Now(), ev)
	} else {
		s.log.Debug("task.finished", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("took", dur))
		s.publish(eventbus.TypeTaskFinished, time.Now(), ev)
	}

	s.record(res)
	s.notify(res)
}

func (s *Service) notify(res Result) {
	s.cbMu.RLock()
	cbs := s.callbacks
	s.cbMu.RUnlock()
	for _, fn := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("task callback panic", logx.String("task", res.Name), logx.Any("panic", r))
				}
			}()
			fn(res)
		}()
	}
}
