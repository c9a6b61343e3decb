package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"dueq/internal/config"
	"dueq/internal/task/engine"
	logx "dueq/pkg/logx"
)

// DemoTask is a labeled task resolved to its due time.
type DemoTask struct {
	Label string
	DueAt time.Time
}

// builtinDemo mirrors the classic staggered example plus one task that is
// already overdue when scheduled.
func builtinDemo(now time.Time) []config.DemoTask {
	return []config.DemoTask{
		{Label: "T1", When: "in:1s"},
		{Label: "T2", When: "in:5s"},
		{Label: "T3", When: "in:3s"},
		{Label: "T0-overdue", When: "at:" + now.Add(-10*time.Second).Format(time.RFC3339Nano)},
	}
}

// ScheduleDemo schedules the configured demo tasks (or the built-in set).
// Each task writes its label as one line to out when it runs.
func (a *App) ScheduleDemo(out io.Writer) ([]DemoTask, error) {
	if a.sched == nil {
		return nil, fmt.Errorf("app not started")
	}
	specs := a.cfg.Demo.Tasks
	if len(specs) == 0 {
		specs = builtinDemo(time.Now())
	}

	var mu sync.Mutex
	scheduled := make([]DemoTask, 0, len(specs))
	for _, spec := range specs {
		label := spec.Label
		job := func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			_, err := fmt.Fprintln(out, label)
			return err
		}
		at, err := a.sched.AddSchedule(label, spec.When, job)
		if err != nil {
			return scheduled, fmt.Errorf("demo task %q: %w", label, err)
		}
		a.log.Info("demo task scheduled", logx.String("label", label), logx.Time("due_at", at), logx.Duration("in", time.Until(at).Round(time.Millisecond)))
		scheduled = append(scheduled, DemoTask{Label: label, DueAt: at})
	}
	return scheduled, nil
}

// Results returns the engine's recent task history.
func (a *App) Results() []engine.HistoryItem {
	return a.engine.Snapshot().History
}
