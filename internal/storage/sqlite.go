package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "shopwatch/pkg/logx"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
  id          INTEGER PRIMARY KEY,
  run_id      TEXT NOT NULL,
  started_at  TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  state       TEXT NOT NULL CHECK (state IN ('done','failed')),
  stage       TEXT,
  items       INTEGER NOT NULL DEFAULT 0,
  added       INTEGER NOT NULL DEFAULT 0,
  updated     INTEGER NOT NULL DEFAULT 0,
  removed     INTEGER NOT NULL DEFAULT 0,
  messages    INTEGER NOT NULL DEFAULT 0,
  escalated   INTEGER NOT NULL CHECK (escalated IN (0,1)),
  err         TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(runsSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, rec RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	esc := 0
	if rec.Escalated {
		esc = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, started_at, finished_at, state, stage, items, added, updated, removed, messages, escalated, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.RunID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.State, nullStr(rec.Stage),
		rec.Items, rec.Added, rec.Updated, rec.Removed, rec.Messages,
		esc, nullStr(rec.Error),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = defaultKeepRuns
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, state, stage, items, added, updated, removed, messages, escalated, err
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished string
		var stage, errText sql.NullString
		var esc int
		if err := rows.Scan(&rec.RunID, &started, &finished, &rec.State, &stage,
			&rec.Items, &rec.Added, &rec.Updated, &rec.Removed, &rec.Messages, &esc, &errText); err != nil {
			return nil, err
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		rec.Stage = stage.String
		rec.Error = errText.String
		rec.Escalated = esc == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
