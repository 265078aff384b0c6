// Package ledger records MD runs and parameterisation jobs in SQLite so they
// can be listed after the fact by the CLI and the status API.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 50

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordRun inserts a run in the created state and returns its id.
func (l *Ledger) RecordRun(ctx context.Context, req RunRequest) (string, error) {
	if req.Package == "" {
		return "", fmt.Errorf("package is empty")
	}
	if req.WorkDir == "" {
		return "", fmt.Errorf("work_dir is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := l.db.ExecContext(ctx, `
INSERT INTO md_runs(id, package, exe, name, protocol, work_dir, command, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.Package, req.Exe, req.Name, req.Protocol, req.WorkDir, req.Command, StatusCreated, now)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// StartRun marks a created run as running.
func (l *Ledger) StartRun(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
UPDATE md_runs SET status = ?, started_at = ? WHERE id = ? AND status = ?;
`, StatusRunning, now, id, StatusCreated)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return expectOne(res, id)
}

// CompleteRun stores the engine's exit status. A nil runErr marks success.
func (l *Ledger) CompleteRun(ctx context.Context, id string, exitCode int, runErr error) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	status := StatusSucceeded
	var lastError any
	if runErr != nil {
		status = StatusFailed
		lastError = runErr.Error()
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE md_runs SET status = ?, exit_code = ?, finished_at = ?, last_error = ? WHERE id = ?;
`, status, exitCode, now, lastError, id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return expectOne(res, id)
}

func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, package, exe, name, protocol, work_dir, command, status, exit_code,
       created_at, started_at, finished_at, last_error
FROM md_runs WHERE id = ?;
`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, package, exe, name, protocol, work_dir, command, status, exit_code,
       created_at, started_at, finished_at, last_error
FROM md_runs ORDER BY created_at DESC, rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// RecordJob inserts a parameterisation job in the running state.
func (l *Ledger) RecordJob(ctx context.Context, req JobRequest) (string, error) {
	if req.Hash == "" {
		return "", fmt.Errorf("hash is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := l.db.ExecContext(ctx, `
INSERT INTO param_jobs(id, hash, protocol, molecule, work_dir, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, req.Hash, req.Protocol, req.Molecule, req.WorkDir, StatusRunning, now)
	if err != nil {
		return "", fmt.Errorf("record job: %w", err)
	}
	return id, nil
}

// CompleteJob stores the outcome of a job; archive is empty on success.
func (l *Ledger) CompleteJob(ctx context.Context, id string, status Status, archive string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var arch any
	if archive != "" {
		arch = archive
	}
	res, err := l.db.ExecContext(ctx, `
UPDATE param_jobs SET status = ?, archive = ?, finished_at = ? WHERE id = ?;
`, status, arch, now, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOne(res, id)
}

// ListJobs returns the most recent jobs first.
func (l *Ledger) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, hash, protocol, molecule, work_dir, status, archive, created_at, finished_at
FROM param_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		var (
			j           Job
			archive     sql.NullString
			createdAtS  string
			finishedAtS sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.Hash, &j.Protocol, &j.Molecule, &j.WorkDir, &j.Status, &archive, &createdAtS, &finishedAtS); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if archive.Valid {
			j.Archive = &archive.String
		}
		if j.CreatedAt, err = parseTime(createdAtS); err != nil {
			return nil, err
		}
		if j.FinishedAt, err = parseNullTime(finishedAtS); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r           Run
		exitCode    sql.NullInt64
		createdAtS  string
		startedAtS  sql.NullString
		finishedAtS sql.NullString
		lastError   sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Package, &r.Exe, &r.Name, &r.Protocol, &r.WorkDir, &r.Command, &r.Status, &exitCode,
		&createdAtS, &startedAtS, &finishedAtS, &lastError,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	if lastError.Valid {
		r.LastError = &lastError.String
	}
	if r.CreatedAt, err = parseTime(createdAtS); err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseNullTime(startedAtS); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseNullTime(finishedAtS); err != nil {
		return nil, err
	}
	return &r, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}
