// Package history keeps a SQLite record of pipeline runs: per-artifact
// outcomes and the retry-ledger statistics at the end of each run. Model
// responses are never stored.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jorge-barreto/coursegen/internal/retry"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	course       TEXT NOT NULL,
	stage        TEXT NOT NULL,
	model        TEXT NOT NULL DEFAULT '',
	outline_path TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	sessions_ok     INTEGER NOT NULL DEFAULT 0,
	sessions_failed INTEGER NOT NULL DEFAULT 0,
	sessions_skipped INTEGER NOT NULL DEFAULT 0,
	avg_score    REAL NOT NULL DEFAULT 0.0,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS artifacts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	session_number INTEGER NOT NULL,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL,
	score          INTEGER NOT NULL DEFAULT 0,
	attempts       INTEGER NOT NULL DEFAULT 0,
	warnings       INTEGER NOT NULL DEFAULT 0,
	elapsed_ms     INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id, session_number);

CREATE TABLE IF NOT EXISTS retry_stats (
	run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	error_class  TEXT NOT NULL,
	content_type TEXT NOT NULL,
	attempts     INTEGER NOT NULL,
	successes    INTEGER NOT NULL,
	PRIMARY KEY (run_id, error_class, content_type)
);
`

type Run struct {
	ID              string
	Course          string
	Stage           string
	Model           string
	OutlinePath     string
	Status          string
	SessionsOK      int
	SessionsFailed  int
	SessionsSkipped int
	AvgScore        float64
	StartedAt       time.Time
	FinishedAt      time.Time
}

type Artifact struct {
	SessionNumber int
	Kind          string
	Status        string
	Score         int
	Attempts      int
	Warnings      int
	Elapsed       time.Duration
	Error         string
}

// Summary is the final tally written by FinishRun.
type Summary struct {
	Status          string
	SessionsOK      int
	SessionsFailed  int
	SessionsSkipped int
	AvgScore        float64
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StartRun inserts a run in the running state.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, course, stage, model, outline_path, status, started_at) VALUES (?,?,?,?,?,?,?)`,
		r.ID, r.Course, r.Stage, r.Model, r.OutlinePath, "running", r.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordArtifact appends one artifact outcome.
func (s *Store) RecordArtifact(ctx context.Context, runID string, a Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, session_number, kind, status, score, attempts, warnings, elapsed_ms, error, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		runID, a.SessionNumber, a.Kind, a.Status, a.Score, a.Attempts, a.Warnings, a.Elapsed.Milliseconds(), a.Error, s.now().Unix())
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// FinishRun stores the summary and the retry-ledger statistics in one
// transaction.
func (s *Store) FinishRun(ctx context.Context, runID string, sum Summary, stats []retry.ClassStats) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status=?, sessions_ok=?, sessions_failed=?, sessions_skipped=?, avg_score=?, finished_at=? WHERE run_id=?`,
		sum.Status, sum.SessionsOK, sum.SessionsFailed, sum.SessionsSkipped, sum.AvgScore, s.now().Unix(), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	for _, st := range stats {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO retry_stats (run_id, error_class, content_type, attempts, successes) VALUES (?,?,?,?,?)`,
			runID, string(st.Class), st.ContentType, st.Attempts, st.Successes); err != nil {
			return fmt.Errorf("insert retry stats: %w", err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, course, stage, model, outline_path, status, sessions_ok, sessions_failed, sessions_skipped, avg_score, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Course, &r.Stage, &r.Model, &r.OutlinePath, &r.Status,
			&r.SessionsOK, &r.SessionsFailed, &r.SessionsSkipped, &r.AvgScore, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		if finished > 0 {
			r.FinishedAt = time.Unix(finished, 0)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Artifacts lists a run's artifact outcomes in insertion order.
func (s *Store) Artifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_number, kind, status, score, attempts, warnings, elapsed_ms, error FROM artifacts WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()
	var out []Artifact
	for rows.Next() {
		var a Artifact
		var ms int64
		if err := rows.Scan(&a.SessionNumber, &a.Kind, &a.Status, &a.Score, &a.Attempts, &a.Warnings, &ms, &a.Error); err != nil {
			return nil, err
		}
		a.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// RetryStats returns the ledger statistics stored for a run.
func (s *Store) RetryStats(ctx context.Context, runID string) ([]retry.ClassStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT error_class, content_type, attempts, successes FROM retry_stats WHERE run_id=? ORDER BY error_class, content_type`, runID)
	if err != nil {
		return nil, fmt.Errorf("query retry stats: %w", err)
	}
	defer rows.Close()
	var out []retry.ClassStats
	for rows.Next() {
		var st retry.ClassStats
		var class string
		if err := rows.Scan(&class, &st.ContentType, &st.Attempts, &st.Successes); err != nil {
			return nil, err
		}
		st.Class = retry.Class(class)
		if st.Attempts > 0 {
			st.SuccessRate = float64(st.Successes) / float64(st.Attempts)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ErrDisabled is returned by OpenOptional when history is switched off.
var ErrDisabled = errors.New("run history disabled")

// OpenOptional opens path, or returns ErrDisabled when path is empty.
func OpenOptional(path string) (*Store, error) {
	if path == "" {
		return nil, ErrDisabled
	}
	return Open(path)
}
