package app

import (
	"fmt"
	"strings"
	"time"

	"dueq/internal/config"
	"dueq/internal/observability/debughttp"
	"dueq/internal/storage"
	"dueq/internal/task/engine"
	"dueq/internal/task/scheduler"
	logx "dueq/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		DebugRatePerSec: cfg.Logging.DebugRatePerSec,
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	e := cfg.Engine
	timeout, err := config.ParseDurationField("engine.default_timeout", e.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	// Zero values are filled in by the engine.
	return engine.Config{
		Workers:        e.Workers,
		QueueSize:      e.QueueSize,
		DefaultTimeout: timeout,
		HistorySize:    e.HistorySize,
		RatePerSec:     e.RatePerSec,
		RateBurst:      e.RateBurst,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, time.Duration, error) {
	stopTimeout, err := config.ParseDurationField("scheduler.stop_timeout", cfg.Scheduler.StopTimeout)
	if err != nil {
		return scheduler.Config{}, 0, err
	}
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}, stopTimeout, nil
}

func mapDebugConfig(cfg *config.Config) debughttp.Config {
	d := cfg.Debug
	// Durations were checked by config.Validate.
	read, _ := config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 10*time.Second)
	write, _ := config.ParseDurationOrDefault("debug.write_timeout", d.WriteTimeout, 60*time.Second)
	return debughttp.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./dueq"
		}
		return storage.Config{Driver: "file", Path: path, Retain: sc.Retain}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy, Retain: sc.Retain}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func outcomeOf(r engine.Result) storage.Outcome {
	o := storage.Outcome{
		At:         r.Started.Add(r.Duration),
		ID:         r.ID,
		Name:       r.Name,
		DueAt:      r.DueAt,
		Started:    r.Started,
		LatenessMS: r.Lateness.Milliseconds(),
		DurationMS: r.Duration.Milliseconds(),
		OK:         r.OK(),
	}
	if r.Err != nil {
		o.Error = r.Err.Error()
	}
	return o
}
