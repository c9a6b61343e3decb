package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dueq/pkg/logx"
)

// SummarizeConfigChange returns the names of the sections that differ and
// structured fields describing their new values, for logging a reload.
// Only logging and debug changes take effect live; the rest apply on restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Int("logging.debug_rate_per_sec", newCfg.Logging.DebugRatePerSec),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.StopTimeout) != strings.TrimSpace(newCfg.Scheduler.StopTimeout) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.stop_timeout", strings.TrimSpace(newCfg.Scheduler.StopTimeout)),
		)
	}

	if oldCfg.Engine != newCfg.Engine {
		e := newCfg.Engine
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.workers", e.Workers),
			logx.Int("engine.queue_size", e.QueueSize),
			logx.String("engine.default_timeout", strings.TrimSpace(e.DefaultTimeout)),
			logx.Int("engine.history_size", e.HistorySize),
			logx.Any("engine.rate_per_sec", e.RatePerSec),
		)
	}

	// Nil storage means disabled. Only whether a path is set is logged.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	var oRetain, nRetain int
	if s := oldCfg.Storage; s != nil {
		oDriver, oBusy, oPathSet, oRetain = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path) != "", s.Retain
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nBusy, nPathSet, nRetain = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path) != "", s.Retain
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet || oRetain != nRetain {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
			logx.Int("storage.retain", nRetain),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		d := newCfg.Debug
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", d.Enabled),
			logx.String("debug.addr", strings.TrimSpace(d.Addr)),
			logx.Bool("debug.token_set", d.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Demo, newCfg.Demo) {
		changed = append(changed, "demo")
		attrs = append(attrs, logx.Int("demo.tasks", len(newCfg.Demo.Tasks)))
	}

	sort.Strings(changed)
	return changed, attrs
}
