package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dueq/internal/eventbus"
	rtsup "dueq/internal/runtime/supervisor"
	"dueq/internal/task/engine"
	"dueq/internal/task/queue"
	logx "dueq/pkg/logx"
)

type Service struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	engine *engine.Service
	loc    *time.Location

	queue  *queue.DueQueue
	sup    *rtsup.Supervisor
	stopCh chan struct{}

	state atomic.Int32

	scheduled  atomic.Uint64
	dispatched atomic.Uint64
	rejected   atomic.Uint64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	stopOnce sync.Once
	done     chan struct{}
	stopErr  error
}

// New starts eng (if it is not running yet) and the dispatcher. The returned
// Service accepts work until Stop is called; Stop must be called to release
// its goroutines.
func New(ctx context.Context, cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if ctx == nil {
		ctx = context.Background()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if eng == nil {
		eng = engine.New(engine.Config{}, log.With(logx.String("comp", "engine")), bus)
	}
	s := &Service{
		cfg:         cfg,
		log:         log,
		bus:         bus,
		engine:      eng,
		queue:       queue.New(),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		lastEnqWarn: map[string]time.Time{},
	}
	s.loc = s.loadLocation()
	s.state.Store(int32(StateIdle))

	eng.Start(ctx)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(log))
	s.sup.GoRestart("dispatcher", s.dispatch)

	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
	return s
}

// Engine exposes the task engine, e.g. for OnComplete registration.
func (s *Service) Engine() *engine.Service { return s.engine }

// OnComplete registers fn for the result of every task run by this scheduler.
func (s *Service) OnComplete(fn func(engine.Result)) { s.engine.OnComplete(fn) }

// Location is the zone used for cron and wall-clock schedules.
func (s *Service) Location() *time.Location { return s.loc }

// Stop rejects further Adds, runs every accepted entry once it is due, then
// waits for the engine to finish. It is safe to call more than once and from
// several goroutines; all callers wait on the same teardown. If ctx ends
// first, Stop returns ctx.Err() and teardown continues in the background.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.stopOnce.Do(func() {
		s.log.Info("stop requested", logx.Int("pending", s.queue.Len()))
		// Close the queue before signalling stop so that a stopping
		// dispatcher never misses a late Push.
		s.queue.Close()
		close(s.stopCh)
		go s.teardown()
	})
	select {
	case <-s.done:
		return s.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Stop without a deadline.
func (s *Service) Close() error { return s.Stop(context.Background()) }

// Done is closed when teardown has finished.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) teardown() {
	defer close(s.done)
	start := time.Now()

	var errs []error
	if err := s.sup.Wait(context.Background()); err != nil {
		errs = append(errs, err)
	}
	s.sup.Cancel()
	if err := s.engine.Close(context.Background()); err != nil {
		errs = append(errs, err)
	}
	s.stopErr = errors.Join(errs...)

	s.log.Info("scheduler stopped",
		logx.Duration("took", time.Since(start)),
		logx.Uint64("dispatched", s.dispatched.Load()),
		logx.Uint64("rejected", s.rejected.Load()),
	)
}

func (s *Service) Snapshot() Snapshot {
	v := s.queue.View()
	return Snapshot{
		State:      State(s.state.Load()),
		Stopping:   v.Closed,
		Pending:    v.Len,
		NextDue:    v.NextDue,
		Scheduled:  s.scheduled.Load(),
		Dispatched: s.dispatched.Load(),
		Rejected:   s.rejected.Load(),
		Timezone:   s.loc.String(),
		Engine:     s.engine.Snapshot(),
	}
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
