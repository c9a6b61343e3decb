package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate checks values the strict decoder cannot: durations, ranges and
// enums. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.DebugRatePerSec < 0 {
		errs = append(errs, errors.New("logging.debug_rate_per_sec: must be >= 0"))
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if _, err := ParseDurationField("scheduler.stop_timeout", cfg.Scheduler.StopTimeout); err != nil {
		errs = append(errs, err)
	}

	e := cfg.Engine
	if e.Workers < 0 {
		errs = append(errs, errors.New("engine.workers: must be >= 0"))
	}
	if e.QueueSize < 0 {
		errs = append(errs, errors.New("engine.queue_size: must be >= 0"))
	}
	if e.HistorySize < 0 {
		errs = append(errs, errors.New("engine.history_size: must be >= 0"))
	}
	if e.RatePerSec < 0 || e.RateBurst < 0 {
		errs = append(errs, errors.New("engine.rate_per_sec/rate_burst: must be >= 0"))
	}
	if _, err := ParseDurationField("engine.default_timeout", e.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path: required when storage.driver=sqlite"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if s.Retain < 0 {
			errs = append(errs, errors.New("storage.retain: must be >= 0"))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if d := cfg.Debug; d.Enabled {
		if addr := strings.TrimSpace(d.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				errs = append(errs, fmt.Errorf("debug.addr: %w", err))
			}
		}
	}
	if _, err := ParseDurationField("debug.read_timeout", cfg.Debug.ReadTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("debug.write_timeout", cfg.Debug.WriteTimeout); err != nil {
		errs = append(errs, err)
	}

	for i, t := range cfg.Demo.Tasks {
		if strings.TrimSpace(t.Label) == "" {
			errs = append(errs, fmt.Errorf("demo.tasks[%d].label: required", i))
		}
		if strings.TrimSpace(t.When) == "" {
			errs = append(errs, fmt.Errorf("demo.tasks[%d].when: required", i))
		}
	}

	return errors.Join(errs...)
}
