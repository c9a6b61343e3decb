package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"dueq/internal/eventbus"
	rtsup "dueq/internal/runtime/supervisor"
	logx "dueq/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	// sendMu serializes closing q against in-flight sends.
	sendMu  sync.RWMutex
	q       chan queuedTask
	closing atomic.Bool
	sup     *rtsup.Supervisor
	limiter *rate.Limiter

	cbMu      sync.RWMutex
	callbacks []func(Result)

	hmu     sync.Mutex
	history []HistoryItem

	idSeq     atomic.Uint64
	inFlight  atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
}

type queuedTask struct {
	task    Task
	timeout time.Duration
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg.withDefaults(),
		log: log,
		bus: bus,
	}
}

// OnComplete registers fn to receive every Result. Callbacks run on the
// worker goroutine that executed the task and must not block for long.
func (s *Service) OnComplete(fn func(Result)) {
	if fn == nil {
		return
	}
	s.cbMu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.cbMu.Unlock()
}

// Start launches the workers. It is a no-op if already started.
// Tasks receive contexts derived from ctx.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || s.closing.Load() {
		return
	}
	cfg := s.cfg

	s.q = make(chan queuedTask, cfg.QueueSize)
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst)
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "engine"))))

	queue := s.q
	for i := 0; i < cfg.Workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		// The loop only returns nil once the queue is closed and drained.
		s.sup.GoRestart(name, func(c context.Context) error {
			s.worker(c, queue)
			return nil
		})
	}

	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize), logx.Any("rate", cfg.RatePerSec))
}

// Submit hands t to a worker, blocking while the queue is full.
func (s *Service) Submit(ctx context.Context, t Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.enqueue(ctx, t, true)
}

// TrySubmit is Submit without blocking; it returns ErrQueueFull instead.
func (s *Service) TrySubmit(t Task) error {
	return s.enqueue(context.Background(), t, false)
}

func (s *Service) enqueue(ctx context.Context, t Task, block bool) error {
	if t.Run == nil {
		return ErrNilRun
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = "task"
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = s.NewTaskID(time.Now())
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closing.Load() {
		return ErrStopped
	}
	s.mu.Lock()
	q := s.q
	timeout := s.cfg.DefaultTimeout
	s.mu.Unlock()
	if q == nil {
		return ErrNotStarted
	}
	if t.Timeout > 0 {
		timeout = t.Timeout
	}
	qt := queuedTask{task: t, timeout: timeout}

	if !block {
		select {
		case q <- qt:
			s.submitted.Add(1)
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case q <- qt:
		s.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, lets the workers finish everything already
// queued, and waits for them. If ctx ends first, Close returns ctx.Err() and
// the workers keep draining in the background.
func (s *Service) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.closing.Swap(true) {
		s.sendMu.Lock()
		s.mu.Lock()
		if s.q != nil {
			close(s.q)
		}
		s.mu.Unlock()
		s.sendMu.Unlock()
	}

	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	start := time.Now()
	if err := sup.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			s.log.Warn("task engine close timed out", logx.Err(err), logx.Int("pending", s.pending()))
			return err
		}
		s.log.Warn("task engine worker failure", logx.Err(err))
	}
	s.log.Info("task engine stopped", logx.Duration("took", time.Since(start)), logx.Uint64("completed", s.completed.Load()))
	return nil
}

// Done is closed after Close once every worker has exited.
// It is nil before Start.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return nil
	}
	return s.sup.Done()
}

func (s *Service) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q == nil {
		return 0
	}
	return len(s.q)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	running := s.sup != nil && !s.closing.Load()
	s.mu.Unlock()

	snap := Snapshot{
		Running:        running,
		Workers:        cfg.Workers,
		InFlight:       int(s.inFlight.Load()),
		Submitted:      s.submitted.Load(),
		Completed:      s.completed.Load(),
		Failed:         s.failed.Load(),
		Panicked:       s.panicked.Load(),
		DefaultTimeout: cfg.DefaultTimeout,
		RatePerSec:     cfg.RatePerSec,
	}
	if q != nil {
		snap.QueueLen = len(q)
		snap.QueueCap = cap(q)
	}

	s.hmu.Lock()
	snap.History = make([]HistoryItem, len(s.history))
	copy(snap.History, s.history)
	s.hmu.Unlock()
	return snap
}

// NewTaskID returns a short id that is unique within this process.
func (s *Service) NewTaskID(now time.Time) string {
	seq := s.idSeq.Add(1)
	return fmt.Sprintf("tsk-%x-%x", now.UnixNano(), seq)
}

func (s *Service) publish(typ string, at time.Time, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
}

func (s *Service) record(r Result) {
	item := HistoryItem{
		ID:       r.ID,
		Name:     r.Name,
		DueAt:    r.DueAt,
		Started:  r.Started,
		Lateness: r.Lateness,
		Duration: r.Duration,
	}
	if r.Err != nil {
		item.Error = r.Err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}
