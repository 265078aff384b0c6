// Package storage opens the SQLite database that backs the run ledger.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the ledger database at path and
// ensures the md_runs and param_jobs tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := requireLocal(path, fsType); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Engine exit callbacks write from their own goroutines.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates ledger tables and indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS md_runs (
  id          TEXT PRIMARY KEY,
  package     TEXT NOT NULL,
  exe         TEXT NOT NULL,
  name        TEXT NOT NULL,
  protocol    TEXT NOT NULL,
  work_dir    TEXT NOT NULL,
  command     TEXT NOT NULL,
  status      TEXT NOT NULL,
  exit_code   INTEGER,
  created_at  TEXT NOT NULL,
  started_at  TEXT,
  finished_at TEXT,
  last_error  TEXT
);`,
		`CREATE TABLE IF NOT EXISTS param_jobs (
  id          TEXT PRIMARY KEY,
  hash        TEXT NOT NULL,
  protocol    TEXT NOT NULL,
  molecule    TEXT NOT NULL,
  work_dir    TEXT NOT NULL,
  status      TEXT NOT NULL,
  archive     TEXT,
  created_at  TEXT NOT NULL,
  finished_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS md_runs_status_created_at_idx ON md_runs(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS param_jobs_hash_idx ON param_jobs(hash);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
