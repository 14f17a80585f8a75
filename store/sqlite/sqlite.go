/*
Package sqlite provides a SQLite-backed implementation of recon.RunStore.

PURPOSE:
  Keeps the history of report runs and the generated workbooks so that a
  report can be downloaded or previewed after the run that produced it.

KEY TABLES:
  report_runs:      one row per run (status, inputs, warnings, sheet sizes)
  report_artifacts: the serialized workbook of a completed run

  Warnings, sheet sizes and input summaries are stored as JSON text; they
  are only ever read back whole.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/authz.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := service.NewRunner(store, pipeline, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - recon/store.go: RunStore interface
  - recon/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/authz-report/recon"
)

// Store implements recon.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Report runs
	CREATE TABLE IF NOT EXISTS report_runs (
		id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source_desc TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		warnings TEXT NOT NULL DEFAULT '[]',
		sheets TEXT NOT NULL DEFAULT '[]',
		inputs TEXT NOT NULL DEFAULT '{}',
		report_name TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_report_runs_status
		ON report_runs(status);
	CREATE INDEX IF NOT EXISTS idx_report_runs_started
		ON report_runs(started_at);

	-- Generated workbooks
	CREATE TABLE IF NOT EXISTS report_artifacts (
		run_id TEXT PRIMARY KEY REFERENCES report_runs(id),
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun inserts a run or updates the run with the same id.
func (s *Store) SaveRun(ctx context.Context, r recon.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	warnings, err := json.Marshal(nonNil(r.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	sheets, err := json.Marshal(nonNil(r.Sheets))
	if err != nil {
		return fmt.Errorf("encode sheets: %w", err)
	}
	inputs, err := json.Marshal(r.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}

	query := `
		INSERT INTO report_runs (id, source_kind, source_desc, status, error,
			warnings, sheets, inputs, report_name, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			warnings = excluded.warnings,
			sheets = excluded.sheets,
			inputs = excluded.inputs,
			report_name = excluded.report_name,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		s := r.CompletedAt.UTC().Format(time.RFC3339Nano)
		completedAt = &s
	}

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.SourceKind, r.SourceDesc, string(r.Status), nullString(r.Error),
		string(warnings), string(sheets), string(inputs), nullString(r.ReportName),
		r.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
	)
	return err
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*recon.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := runColumns + ` FROM report_runs WHERE id = ?`
	runs, err := s.queryRuns(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, recon.ErrRunNotFound
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, status recon.RunStatus, limit int) ([]recon.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var query string
	var args []any

	if status != "" {
		query = runColumns + ` FROM report_runs WHERE status = ? ORDER BY started_at DESC, id DESC`
		args = []any{string(status)}
	} else {
		query = runColumns + ` FROM report_runs ORDER BY started_at DESC, id DESC`
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRuns(ctx, query, args...)
}

const runColumns = `
	SELECT id, source_kind, source_desc, status, error, warnings, sheets,
		inputs, report_name, started_at, completed_at`

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]recon.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []recon.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (recon.Run, error) {
	var r recon.Run
	var status, warnings, sheets, inputs, startedAt string
	var runErr, reportName, completedAt sql.NullString

	if err := rows.Scan(
		&r.ID, &r.SourceKind, &r.SourceDesc, &status, &runErr, &warnings, &sheets,
		&inputs, &reportName, &startedAt, &completedAt,
	); err != nil {
		return r, err
	}

	r.Status = recon.RunStatus(status)
	r.Error = runErr.String
	r.ReportName = reportName.String
	if err := json.Unmarshal([]byte(warnings), &r.Warnings); err != nil {
		return r, fmt.Errorf("decode warnings of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sheets), &r.Sheets); err != nil {
		return r, fmt.Errorf("decode sheets of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
		return r, fmt.Errorf("decode inputs of run %s: %w", r.ID, err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		r.CompletedAt = &t
	}
	return r, nil
}

// =============================================================================
// ARTIFACTS
// =============================================================================

// SaveArtifact stores the workbook of a run.
func (s *Store) SaveArtifact(ctx context.Context, a recon.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO report_artifacts (run_id, name, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			name = excluded.name,
			data = excluded.data,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query, a.RunID, a.Name, a.Data, a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if isForeignKeyError(err) {
		return recon.ErrRunNotFound
	}
	return err
}

// GetArtifact returns the workbook of a run.
func (s *Store) GetArtifact(ctx context.Context, runID string) (*recon.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT run_id, name, data, created_at FROM report_artifacts WHERE run_id = ?`

	var a recon.Artifact
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&a.RunID, &a.Name, &a.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recon.ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
