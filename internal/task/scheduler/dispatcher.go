package scheduler

import (
	"context"
	"time"

	"dueq/internal/eventbus"
	"dueq/internal/task/engine"
	"dueq/internal/task/queue"
	logx "dueq/pkg/logx"
)

// dispatch is the dispatcher loop. It returns only once Stop has been
// requested and the queue is empty.
func (s *Service) dispatch(ctx context.Context) error {
	// Cancelling the parent context must not strand accepted entries;
	// only Stop ends the loop.
	submitCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	wake := s.queue.Wake()
	stopping := false
	for {
		if !stopping {
			select {
			case <-s.stopCh:
				stopping = true
			default:
			}
		}

		now := time.Now()
		v := s.queue.View()
		empty := v.Len == 0
		st := nextState(stopping, empty, !empty && !v.NextDue.After(now))
		s.setState(st)

		// A nil channel never fires, so a closed stopCh is only observed once.
		stop := s.stopCh
		if stopping {
			stop = nil
		}

		switch st {
		case StateTerminated:
			return nil

		case StateDispatching:
			e, ok := s.queue.PopDue(now)
			if !ok {
				continue
			}
			s.submit(submitCtx, e)

		case StateIdle:
			select {
			case <-wake:
			case <-stop:
				stopping = true
			}

		case StatePolling, StateDraining:
			timer.Reset(v.NextDue.Sub(now))
			select {
			case <-timer.C:
			case <-wake:
				// The earliest entry may have changed; re-evaluate.
				stopTimer(timer)
			case <-stop:
				stopping = true
				stopTimer(timer)
			}
		}
	}
}

func (s *Service) setState(st State) {
	if prev := State(s.state.Swap(int32(st))); prev != st {
		s.log.Trace("dispatcher state", logx.String("from", prev.String()), logx.String("to", st.String()))
	}
}

func (s *Service) submit(ctx context.Context, e queue.Entry) {
	t := e.Task
	s.log.Debug("task due", logx.String("task", t.Name), logx.String("id", t.ID), logx.Time("due_at", e.DueAt), logx.Uint64("seq", e.Seq))
	if err := s.engine.Submit(ctx, t); err != nil {
		s.rejected.Add(1)
		s.reportEnqueueError(t.Name, err)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskRejected, Time: time.Now(), Data: engine.TaskEvent{
				ID: t.ID, Name: t.Name, DueAt: t.DueAt, Error: err.Error(),
			}})
		}
		return
	}
	s.dispatched.Add(1)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
