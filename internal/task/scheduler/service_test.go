package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"dueq/internal/eventbus"
	"dueq/internal/task/engine"
	logx "dueq/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestScheduler(t *testing.T, ecfg engine.Config, bus eventbus.Bus) *Service {
	t.Helper()
	eng := engine.New(ecfg, logx.Nop(), bus)
	return New(context.Background(), Config{Timezone: "UTC"}, eng, logx.Nop(), bus)
}

func stopWithin(t *testing.T, s *Service, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

// recorder collects task labels in execution order.
type recorder struct {
	mu     sync.Mutex
	labels []string
	times  map[string]time.Time
}

func newRecorder() *recorder { return &recorder{times: map[string]time.Time{}} }

func (r *recorder) job(label string) func(context.Context) error {
	return func(context.Context) error {
		r.mu.Lock()
		r.labels = append(r.labels, label)
		r.times[label] = time.Now()
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) snapshot() ([]string, map[string]time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	times := make(map[string]time.Time, len(r.times))
	for k, v := range r.times {
		times[k] = v
	}
	return append([]string(nil), r.labels...), times
}

func TestStaggeredTasksRunInDueOrder(t *testing.T) {
	s := newTestScheduler(t, engine.Config{Workers: 1}, nil)
	rec := newRecorder()
	now := time.Now()

	require.NoError(t, s.Add(rec.job("T1"), now.Add(100*time.Millisecond)))
	require.NoError(t, s.Add(rec.job("T2"), now.Add(500*time.Millisecond)))
	require.NoError(t, s.Add(rec.job("T3"), now.Add(300*time.Millisecond)))

	stopWithin(t, s, 5*time.Second)

	labels, times := rec.snapshot()
	assert.Equal(t, []string{"T1", "T3", "T2"}, labels)
	assert.False(t, times["T1"].Before(now.Add(100*time.Millisecond)))
	assert.False(t, times["T3"].Before(now.Add(300*time.Millisecond)))
	assert.False(t, times["T2"].Before(now.Add(500*time.Millisecond)))
}

func TestOrderingIgnoresInsertionOrder(t *testing.T) {
	s := newTestScheduler(t, engine.Config{Workers: 1}, nil)
	rec := newRecorder()
	base := time.Now().Add(50 * time.Millisecond)

	offsets := []int{7, 2, 9, 0, 5, 1, 8, 3, 6, 4}
	for _, o := range offsets {
		label := string(rune('a' + o))
		require.NoError(t, s.Add(rec.job(label), base.Add(time.Duration(o)*5*time.Millisecond)))
	}
	stopWithin(t, s, 5*time.Second)

	labels, _ := rec.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, labels)
}

func TestEqualDueTimesRunInAddOrder(t *testing.T) {
	s := newTestScheduler(t, engine.Config{Workers: 1}, nil)
	rec := newRecorder()
	at := time.Now().Add(50 * time.Millisecond)
	for _, l := range []string{"first", "second", "third"} {
		require.NoError(t, s.Add(rec.job(l), at))
	}
	stopWithin(t, s, 5*time.Second)

	labels, _ := rec.snapshot()
	assert.Equal(t, []string{"first", "second", "third"}, labels)
}

func TestPastDueRunsPromptly(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	defer stopWithin(t, s, 5*time.Second)

	ran := make(chan time.Time, 1)
	added := time.Now()
	require.NoError(t, s.Add(func(context.Context) error {
		ran <- time.Now()
		return nil
	}, added.Add(-10*time.Second)))

	select {
	case at := <-ran:
		assert.Less(t, at.Sub(added), 500*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("past-due task did not run")
	}
}

func TestEarlierAddPreemptsWait(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)

	var late atomic.Bool
	require.NoError(t, s.Add(func(context.Context) error { late.Store(true); return nil }, time.Now().Add(400*time.Millisecond)))

	// Give the dispatcher time to start sleeping on the far entry.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StatePolling, s.Snapshot().State)

	ran := make(chan struct{})
	require.NoError(t, s.AddFunc(func() { close(ran) }, time.Now().Add(20*time.Millisecond)))
	select {
	case <-ran:
		assert.False(t, late.Load())
	case <-time.After(300 * time.Millisecond):
		t.Fatal("earlier task waited behind the later one")
	}
	stopWithin(t, s, 5*time.Second)
	assert.True(t, late.Load())
}

func TestStopDrainsFutureEntries(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)

	var ran atomic.Bool
	due := time.Now().Add(300 * time.Millisecond)
	require.NoError(t, s.Add(func(context.Context) error { ran.Store(true); return nil }, due))

	start := time.Now()
	require.NoError(t, s.Close())

	assert.True(t, ran.Load())
	assert.False(t, time.Now().Before(due))
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, StateTerminated, s.Snapshot().State)
}

func TestStopWaitsForRunningTasks(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	var finished atomic.Bool
	require.NoError(t, s.Add(func(context.Context) error {
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil
	}, time.Now()))

	time.Sleep(20 * time.Millisecond)
	stopWithin(t, s, 5*time.Second)
	assert.True(t, finished.Load())
}

func TestStopWithNothingQueuedIsPrompt(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateIdle, s.Snapshot().State)

	start := time.Now()
	stopWithin(t, s, time.Second)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, StateTerminated, s.Snapshot().State)
}

func TestStopHonorsContextAndFinishesInBackground(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	var ran atomic.Bool
	require.NoError(t, s.Add(func(context.Context) error { ran.Store(true); return nil }, time.Now().Add(200*time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateDraining, s.Snapshot().State)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("teardown did not finish")
	}
	assert.True(t, ran.Load())
	// Later callers see the finished teardown.
	require.NoError(t, s.Close())
}

func TestOverlappingTasksRunConcurrently(t *testing.T) {
	s := newTestScheduler(t, engine.Config{Workers: 2}, nil)

	firstStarted := make(chan struct{})
	secondRan := make(chan struct{})
	var overlapped atomic.Bool
	now := time.Now()

	require.NoError(t, s.Add(func(context.Context) error {
		close(firstStarted)
		select {
		case <-secondRan:
			overlapped.Store(true)
		case <-time.After(time.Second):
		}
		return nil
	}, now.Add(10*time.Millisecond)))
	require.NoError(t, s.Add(func(context.Context) error {
		<-firstStarted
		close(secondRan)
		return nil
	}, now.Add(50*time.Millisecond)))

	stopWithin(t, s, 5*time.Second)
	assert.True(t, overlapped.Load())
}

func TestConcurrentAddsAllRunOnce(t *testing.T) {
	const producers, perProducer = 8, 50
	s := newTestScheduler(t, engine.Config{Workers: 4, QueueSize: 16}, nil)

	var mu sync.Mutex
	counts := map[int]int{}
	var g errgroup.Group
	base := time.Now()
	for p := 0; p < producers; p++ {
		p := p
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				key := p*perProducer + i
				at := base.Add(time.Duration(key%20) * time.Millisecond)
				err := s.Add(func(context.Context) error {
					mu.Lock()
					counts[key]++
					mu.Unlock()
					return nil
				}, at)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	stopWithin(t, s, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, counts, producers*perProducer)
	for k, n := range counts {
		require.Equal(t, 1, n, "task %d", k)
	}
	snap := s.Snapshot()
	assert.EqualValues(t, producers*perProducer, snap.Scheduled)
	assert.EqualValues(t, producers*perProducer, snap.Dispatched)
	assert.EqualValues(t, producers*perProducer, snap.Engine.Completed)
}

func TestAddAfterStopIsRejected(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	stopWithin(t, s, time.Second)

	assert.ErrorIs(t, s.Add(func(context.Context) error { return nil }, time.Now()), ErrStopped)
	assert.ErrorIs(t, s.AddFunc(func() {}, time.Now()), ErrStopped)
	_, err := s.AddCron("@every 1s", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestAddValidation(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	defer stopWithin(t, s, time.Second)

	assert.ErrorIs(t, s.Add(nil, time.Now()), ErrNilJob)
	assert.ErrorIs(t, s.AddFunc(nil, time.Now()), ErrNilJob)
	assert.ErrorIs(t, s.Add(func(context.Context) error { return nil }, time.Time{}), ErrZeroTime)

	_, err := s.AddSchedule("bad", "nonsense", func(context.Context) error { return nil })
	assert.Error(t, err)
	_, err = s.AddCron("not cron", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestAddTaskAssignsID(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)

	var mu sync.Mutex
	var got []engine.Result
	s.OnComplete(func(r engine.Result) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	due := time.Now().Add(20 * time.Millisecond)
	id, err := s.AddTask(engine.Task{Name: "report", Run: func(context.Context) error { return errors.New("nope") }}, due)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	custom, err := s.AddTask(engine.Task{ID: "mine", Run: func(context.Context) error { return nil }}, due)
	require.NoError(t, err)
	assert.Equal(t, "mine", custom)

	stopWithin(t, s, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	byID := map[string]engine.Result{got[0].ID: got[0], got[1].ID: got[1]}

	r := byID[id]
	assert.Equal(t, "report", r.Name)
	assert.True(t, r.DueAt.Equal(due))
	assert.EqualError(t, r.Err, "nope")
	assert.True(t, byID["mine"].OK())
	assert.Equal(t, "task", byID["mine"].Name)
}

func TestAddScheduleResolvesDueTime(t *testing.T) {
	s := newTestScheduler(t, engine.Config{}, nil)
	rec := newRecorder()

	before := time.Now()
	at, err := s.AddSchedule("soon", "in:50ms", rec.job("soon"))
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(50*time.Millisecond), at, 20*time.Millisecond)

	stopWithin(t, s, 5*time.Second)
	labels, times := rec.snapshot()
	assert.Equal(t, []string{"soon"}, labels)
	assert.False(t, times["soon"].Before(at))
}

func TestPublishesScheduledEvent(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, eventbus.TypeTaskScheduled)
	defer unsub()

	s := newTestScheduler(t, engine.Config{}, bus)
	id, err := s.AddTask(engine.Task{Name: "evt", Run: func(context.Context) error { return nil }}, time.Now())
	require.NoError(t, err)
	stopWithin(t, s, time.Second)

	select {
	case ev := <-ch:
		te, ok := ev.Data.(engine.TaskEvent)
		require.True(t, ok)
		assert.Equal(t, id, te.ID)
		assert.Equal(t, "evt", te.Name)
	case <-time.After(time.Second):
		t.Fatal("no task.scheduled event")
	}
}

func TestTaskPanicDoesNotStopDispatcher(t *testing.T) {
	s := newTestScheduler(t, engine.Config{Workers: 1}, nil)
	rec := newRecorder()
	now := time.Now()
	require.NoError(t, s.Add(func(context.Context) error { panic("bad task") }, now))
	require.NoError(t, s.Add(rec.job("after"), now.Add(20*time.Millisecond)))
	stopWithin(t, s, 5*time.Second)

	labels, _ := rec.snapshot()
	assert.Equal(t, []string{"after"}, labels)
	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.Engine.Panicked)
}
