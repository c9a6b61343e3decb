package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dueq/internal/config"
	"dueq/internal/eventbus"
	"dueq/internal/observability/debughttp"
	rtsup "dueq/internal/runtime/supervisor"
	"dueq/internal/storage"
	"dueq/internal/task/engine"
	"dueq/internal/task/scheduler"
	logx "dueq/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	journal *journal

	engine      *engine.Service
	sched       *scheduler.Service
	schedCfg    scheduler.Config
	stopTimeout time.Duration

	debug *debughttp.Server

	stopOnce sync.Once
	stopErr  error
}

// NewApp loads the config at cfgPath (empty means built-in defaults) and
// builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return fail(err)
	}
	schedCfg, stopTimeout, err := mapSchedulerConfig(cfg)
	if err != nil {
		return fail(err)
	}

	bus := eventbus.New()

	a := &App{
		cfgm:        cfgm,
		cfg:         cfg,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		engine:      engine.New(engCfg, logSvc.Logger().With(logx.String("comp", "engine")), bus),
		schedCfg:    schedCfg,
		stopTimeout: stopTimeout,
	}
	a.debug = debughttp.New(mapDebugConfig(cfg), logSvc.Logger().With(logx.String("comp", "debughttp")), a.status)

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return fail(err)
	} else if enabled {
		st, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return fail(err)
		}
		a.store = st
		a.journal = newJournal(st, logSvc.Logger().With(logx.String("comp", "journal")))
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	return a, nil
}

func (a *App) Config() *config.Config { return a.cfg }

// Scheduler is nil before Start.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Store is nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))

	if a.journal != nil {
		a.engine.OnComplete(a.journal.record)
		a.sup.Go("journal.writer", a.journal.run)
	}

	// Tasks still draining after a signal must not see a canceled context;
	// the scheduler is ended by Stop, never by ctx.
	schedCtx := context.WithoutCancel(a.sup.Context())
	a.sched = scheduler.New(schedCtx, a.schedCfg, a.engine, a.logs.Logger().With(logx.String("comp", "scheduler")), a.bus)

	a.debug.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = latest(sub, newCfg)
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Bool("journal", a.journal != nil))
	return nil
}

// latest drains sub and returns the newest config seen.
func latest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

// Status is the document served at /debug/status.
type Status struct {
	Scheduler     scheduler.Snapshot `json:"scheduler"`
	Supervisor    rtsup.Snapshot     `json:"supervisor"`
	EventsDropped uint64             `json:"events_dropped"`
}

func (a *App) status() any {
	st := Status{EventsDropped: a.bus.Dropped()}
	if a.sched != nil {
		st.Scheduler = a.sched.Snapshot()
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Snapshot()
	}
	return st
}

// applyConfig applies what can change live (logging, debug) and reports the rest.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.logs.Apply(mapLoggingConfig(newCfg))
	a.debug.Reconfigure(a.sup.Context(), mapDebugConfig(newCfg))

	var restart []string
	for _, s := range sections {
		if s != "logging" && s != "debug" {
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop drains the scheduler, flushes the journal and stops every background
// goroutine. Repeated calls return the first result.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.stopOnce.Do(func() { a.stopErr = a.stop(ctx, reason) })
	return a.stopErr
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	var errs []error

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		err := fn(stepCtx)
		took := time.Since(start)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			return
		}
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	// The scheduler drains first: every accepted task runs before anything below it stops.
	step("scheduler", a.stopTimeout, func(c context.Context) error { return a.sched.Stop(c) })

	if a.journal != nil {
		a.journal.close()
	}
	a.sup.Cancel()
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	// The reload goroutine has exited, so nothing can restart the server after this.
	step("debughttp", 2*time.Second, a.debug.Stop)

	step("storage", 0, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	snap := a.sched.Snapshot()
	a.log.Info("stopped",
		logx.Uint64("scheduled", snap.Scheduled),
		logx.Uint64("completed", snap.Engine.Completed),
		logx.Uint64("failed", snap.Engine.Failed),
		logx.Int("pending", snap.Pending),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
