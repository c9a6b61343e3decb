package storage

import (
	"context"
	"fmt"
	"strings"

	logx "dueq/pkg/logx"
)

// Store is the outcome journal.
type Store interface {
	AppendOutcome(ctx context.Context, o Outcome) error
	// Recent returns up to n outcomes, oldest first.
	Recent(ctx context.Context, n int) ([]Outcome, error)
	Close() error
}

// Open initializes the configured store.
// It returns ErrDisabled if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Retain < 0 {
		cfg.Retain = 0
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
