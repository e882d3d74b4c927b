// Package history keeps a SQLite record of validation runs so that later
// invocations can rerun only what failed and show per-script trends.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/examplerun/internal/history/migrations"
	"github.com/ppiankov/examplerun/internal/task"
)

// DBFile is the database name inside the report directory.
const DBFile = "history.db"

// ErrNoRuns is returned when the store holds no run yet.
var ErrNoRuns = errors.New("no recorded runs")

// RunRecord summarizes one stored run.
type RunRecord struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Workers   int
	Timeout   time.Duration
	Roots     []string
	Total     int
	Passed    int
	Failed    int
}

// SuccessRate returns the passed percentage, 0 for an empty run.
func (r RunRecord) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total) * 100
}

// TaskRecord is one script outcome within a stored run.
type TaskRecord struct {
	RunID             string
	StartedAt         time.Time
	Path              string
	Success           bool
	Reason            task.Reason
	Error             string
	ExitCode          int
	Duration          time.Duration
	ConnectivityError string
}

// Store is the SQLite history store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}
	version, _, err := migrator.Version()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not read schema version: %w", err)
	}

	slog.Debug("history store opened", "path", path, "schema_version", version)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// RecordRun stores report and all of its results in one transaction.
func (s *Store) RecordRun(ctx context.Context, report *task.RunReport) error {
	if report.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, workers, timeout_ms, roots, total, passed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Timestamp.UnixMilli(),
		report.TotalDuration.Milliseconds(),
		report.Workers,
		report.Timeout.Milliseconds(),
		strings.Join(report.Roots, "\n"),
		report.TotalTasks,
		report.Passed,
		report.Failed,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("run %s already recorded", report.RunID)
		}
		return fmt.Errorf("could not insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (id, run_id, idx, path, success, reason, error, exit_code, duration_ms, connectivity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("could not prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range report.Results {
		if r == nil {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			ulid.Make().String(),
			report.RunID,
			r.Index,
			r.Path,
			r.Success,
			string(r.Reason),
			r.Error,
			r.ExitCode,
			r.Duration.Milliseconds(),
			r.ConnectivityError,
		)
		if err != nil {
			return fmt.Errorf("could not insert result %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit run: %w", err)
	}
	slog.Debug("run recorded", "run", report.RunID, "results", len(report.Results))
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, started_at, duration_ms, workers, timeout_ms, roots, total, passed, failed
		FROM runs
		ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                              RunRecord
			startedMS, durationMS, timeout int64
			roots                          string
		)
		if err := rows.Scan(&r.ID, &startedMS, &durationMS, &r.Workers, &timeout, &roots, &r.Total, &r.Passed, &r.Failed); err != nil {
			return nil, fmt.Errorf("could not scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Timeout = time.Duration(timeout) * time.Millisecond
		if roots != "" {
			r.Roots = strings.Split(roots, "\n")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LastFailed returns the paths that failed in the most recent run, in
// discovery order. It returns ErrNoRuns when nothing has been recorded.
func (s *Store) LastFailed(ctx context.Context) ([]string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("could not query last run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM results WHERE run_id = ? AND success = 0 ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("could not query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("could not scan failure: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// TaskHistory returns the recorded outcomes of one script, newest first.
// limit <= 0 means all.
func (s *Store) TaskHistory(ctx context.Context, path string, limit int) ([]TaskRecord, error) {
	query := `
		SELECT r.run_id, runs.started_at, r.path, r.success, r.reason, r.error, r.exit_code, r.duration_ms, r.connectivity
		FROM results r
		JOIN runs ON runs.id = r.run_id
		WHERE r.path = ?
		ORDER BY runs.started_at DESC, runs.id DESC`
	args := []any{path}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query task history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TaskRecord
	for rows.Next() {
		var (
			rec                   TaskRecord
			startedMS, durationMS int64
			reason                string
		)
		if err := rows.Scan(&rec.RunID, &startedMS, &rec.Path, &rec.Success, &reason, &rec.Error, &rec.ExitCode, &durationMS, &rec.ConnectivityError); err != nil {
			return nil, fmt.Errorf("could not scan task history: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedMS).UTC()
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Reason = task.Reason(reason)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task history: %w", err)
	}
	return out, nil
}

// NewRunID returns a sortable, unique run identifier.
func NewRunID() string {
	return ulid.Make().String()
}
