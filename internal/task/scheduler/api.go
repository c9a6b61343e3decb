package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dueq/internal/eventbus"
	"dueq/internal/task/engine"
	"dueq/internal/task/queue"
	logx "dueq/pkg/logx"
)

// Add schedules job to run at at. A time in the past runs as soon as the
// dispatcher gets to it. Add returns ErrStopped once Stop has begun.
func (s *Service) Add(job func(ctx context.Context) error, at time.Time) error {
	_, err := s.AddTask(engine.Task{Run: job}, at)
	return err
}

// AddFunc is Add for a job that takes no context and cannot fail.
func (s *Service) AddFunc(fn func(), at time.Time) error {
	if fn == nil {
		return ErrNilJob
	}
	return s.Add(func(context.Context) error {
		fn()
		return nil
	}, at)
}

// AddAfter schedules job to run d from now.
func (s *Service) AddAfter(d time.Duration, job func(ctx context.Context) error) error {
	return s.Add(job, time.Now().Add(d))
}

// AddTask schedules t at at and returns its id. t.DueAt is overwritten;
// an empty t.ID or t.Name is filled in.
func (s *Service) AddTask(t engine.Task, at time.Time) (string, error) {
	if t.Run == nil {
		return "", ErrNilJob
	}
	if at.IsZero() {
		return "", ErrZeroTime
	}
	now := time.Now()
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = "task"
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = s.engine.NewTaskID(now)
	}
	t.DueAt = at

	e, err := s.queue.Push(queue.Entry{DueAt: at, Task: t})
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return "", ErrStopped
		}
		return "", err
	}
	s.scheduled.Add(1)

	s.log.Debug("task scheduled", logx.String("task", t.Name), logx.String("id", t.ID), logx.Time("due_at", at), logx.Duration("in", at.Sub(now)), logx.Uint64("seq", e.Seq))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskScheduled, Time: now, Data: engine.TaskEvent{ID: t.ID, Name: t.Name, DueAt: at}})
	}
	return t.ID, nil
}

// AddCron schedules job once, at the next occurrence of the cron expression
// spec after now. Seconds are optional; descriptors like "@hourly" and
// "@every 5m" are accepted.
func (s *Service) AddCron(spec string, job func(ctx context.Context) error) (time.Time, error) {
	at, err := nextCron(spec, time.Now(), s.loc)
	if err != nil {
		return time.Time{}, err
	}
	_, err = s.AddTask(engine.Task{Name: strings.TrimSpace(spec), Run: job}, at)
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// AddSchedule parses raw with ParseWhen and schedules job under name.
// It returns the resolved due time.
func (s *Service) AddSchedule(name, raw string, job func(ctx context.Context) error) (time.Time, error) {
	at, err := ParseWhen(raw, time.Now(), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %q: %w", name, err)
	}
	if _, err := s.AddTask(engine.Task{Name: name, Run: job}, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}
