/*
store.go - Run history persistence interface

PURPOSE:
  Every report run is recorded: its inputs, outcome, warnings and the
  generated workbook. The history backs the HTTP API (list, detail,
  download, preview) and is the audit trail of who produced which report
  from which extracts.

KEY TYPES:
  Run:      one execution of the pipeline, running / completed / failed
  Artifact: the serialized report of a completed run
  RunStore: persistence for both

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - recon/store/memory.go:  in-memory (tests, dev)

SEE ALSO:
  - service/runner.go: writes runs
  - api/handlers.go: reads runs
*/
package recon

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one pipeline execution.
type Run struct {
	ID          string
	SourceKind  string // "archive" or "folder"
	SourceDesc  string
	Status      RunStatus
	Error       string
	Warnings    []WarningRecord
	Sheets      []SheetSummary
	Inputs      InputSummary
	ReportName  string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// WarningRecord is the stored form of a Warning.
type WarningRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SheetSummary is the row count of one report sheet.
type SheetSummary struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// Artifact is a generated report file.
type Artifact struct {
	RunID     string
	Name      string
	Data      []byte
	CreatedAt time.Time
}

// RunStore persists runs and their artifacts.
type RunStore interface {
	// SaveRun inserts or replaces the run with the same ID.
	SaveRun(ctx context.Context, run Run) error

	// GetRun returns ErrRunNotFound for an unknown id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first. An empty status lists all;
	// limit <= 0 means no limit.
	ListRuns(ctx context.Context, status RunStatus, limit int) ([]Run, error)

	// SaveArtifact stores the report of a run, replacing any previous one.
	SaveArtifact(ctx context.Context, a Artifact) error

	// GetArtifact returns ErrArtifactNotFound when the run has no report.
	GetArtifact(ctx context.Context, runID string) (*Artifact, error)
}

// WarningRecords converts warnings to their stored form.
func WarningRecords(warnings []Warning) []WarningRecord {
	out := make([]WarningRecord, len(warnings))
	for i, w := range warnings {
		out[i] = WarningRecord{Code: w.Code(), Message: w.Error()}
	}
	return out
}

// SheetSummaries lists the sheets of a report with their row counts.
func (r *Report) SheetSummaries() []SheetSummary {
	out := make([]SheetSummary, len(r.Sheets))
	for i, s := range r.Sheets {
		out[i] = SheetSummary{Name: s.Name, Rows: s.Table.Len()}
	}
	return out
}
