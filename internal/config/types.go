package config

// Config is the on-disk configuration (JSON, or YAML by file extension).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Engine    EngineConfig    `json:"engine"`

	// Storage is optional; nil or driver "none" disables the outcome journal.
	Storage *StorageConfig `json:"storage,omitempty"`

	Debug DebugConfig `json:"debug"`

	Demo DemoConfig `json:"demo"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`

	// DebugRatePerSec caps debug/trace lines per second. 0 disables sampling.
	DebugRatePerSec int `json:"debug_rate_per_sec,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	// Timezone for cron and wall-clock schedules (IANA, e.g. "Asia/Jakarta").
	Timezone string `json:"timezone,omitempty"`

	// StopTimeout bounds how long shutdown waits for the queue to drain.
	// "0s" or empty waits until every accepted task has run.
	StopTimeout string `json:"stop_timeout,omitempty"`
}

// EngineConfig controls the worker pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//   - rate_per_sec: 0 (unlimited)
type EngineConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int     `json:"history_size,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	RateBurst   int     `json:"rate_burst,omitempty"`
}

// StorageConfig controls the outcome journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dueq.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only

	// Retain caps the number of journaled outcomes. 0 keeps everything.
	Retain int `json:"retain,omitempty"`
}

// DebugConfig controls the diagnostics HTTP server (status JSON + pprof).
// It is the only section besides logging that reloads live.
//
// Example:
//
//	"debug": { "enabled": true, "addr": "127.0.0.1:6060" }
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// DemoConfig lists the tasks the reference program schedules.
// When empty, a built-in set is used.
type DemoConfig struct {
	Tasks []DemoTask `json:"tasks,omitempty"`
}

type DemoTask struct {
	Label string `json:"label"`
	// When accepts anything scheduler.ParseWhen does ("in:3s", "at:...", cron).
	When string `json:"when"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
