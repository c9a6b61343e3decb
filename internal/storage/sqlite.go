package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "dueq/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outcomes (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	at          TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	due_at      TEXT    NOT NULL,
	started     TEXT    NOT NULL,
	lateness_ms INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	err         TEXT
);
CREATE INDEX IF NOT EXISTS outcomes_name ON outcomes(name);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retain     int
	opCount    atomic.Uint64
	pruneEvery uint64
	closed     atomic.Bool
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, retain: cfg.Retain, pruneEvery: 100}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite journal opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendOutcome(ctx context.Context, o Outcome) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	ok := 0
	if o.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes(at, id, name, due_at, started, lateness_ms, duration_ms, ok, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		o.At.Format(time.RFC3339Nano), o.ID, o.Name, o.DueAt.Format(time.RFC3339Nano), o.Started.Format(time.RFC3339Nano),
		o.LatenessMS, o.DurationMS, ok, nullStr(o.Error),
	)
	if err == nil && s.retain > 0 && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("sqlite prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, n int) ([]Outcome, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, id, name, due_at, started, lateness_ms, duration_ms, ok, err
		 FROM outcomes ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o                Outcome
			at, due, started string
			ok               int
			errStr           sql.NullString
		)
		if err := rows.Scan(&at, &o.ID, &o.Name, &due, &started, &o.LatenessMS, &o.DurationMS, &ok, &errStr); err != nil {
			return nil, err
		}
		o.At, _ = time.Parse(time.RFC3339Nano, at)
		o.DueAt, _ = time.Parse(time.RFC3339Nano, due)
		o.Started, _ = time.Parse(time.RFC3339Nano, started)
		o.OK = ok != 0
		o.Error = errStr.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest first from the query; callers get oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM outcomes WHERE seq <= (SELECT MAX(seq) FROM outcomes) - ?`, s.retain)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
