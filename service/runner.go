/*
Package service runs report jobs end to end.

FLOW:
  source.Source -> Bundle -> recon.Pipeline -> export.Bytes -> RunStore

  A run is recorded as "running" before any file is read and finished as
  "completed" (with its workbook) or "failed" (with the error message).
  Failed runs stay in the history; nothing is written for them except the
  run record.

SEE ALSO:
  - recon/pipeline.go: the engine
  - recon/store.go: RunStore
  - api/handlers.go, cmd/server/main.go: callers
*/
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/authz-report/export"
	"github.com/warp/authz-report/recon"
	"github.com/warp/authz-report/source"
	"go.uber.org/zap"
)

// Source kinds recorded on runs.
const (
	KindArchive = "archive"
	KindFolder  = "folder"
)

// Runner executes report runs and records them.
type Runner struct {
	Store      recon.RunStore
	Pipeline   *recon.Pipeline
	ReportName string
	Logger     *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewRunner returns a runner writing reports under the default name.
func NewRunner(store recon.RunStore, pipeline *recon.Pipeline, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Store:      store,
		Pipeline:   pipeline,
		ReportName: export.DefaultFileName,
		Logger:     logger,
		now:        time.Now,
	}
}

// Execute runs the pipeline over src. The returned run is non-nil whenever
// it was recorded, including failed runs; err is the cause of a failure.
func (r *Runner) Execute(ctx context.Context, kind string, src source.Source) (*recon.Run, error) {
	run := recon.Run{
		ID:         uuid.NewString(),
		SourceKind: kind,
		SourceDesc: src.Describe(),
		Status:     recon.RunRunning,
		StartedAt:  r.clock().UTC(),
	}
	log := r.Logger.With(zap.String("run_id", run.ID), zap.String("source", run.SourceDesc))

	if err := r.Store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	log.Info("run started")

	bundle, err := src.Bundle(ctx)
	if err != nil {
		return r.fail(ctx, log, run, err)
	}
	res, err := r.Pipeline.Run(ctx, bundle)
	if err != nil {
		return r.fail(ctx, log, run, err)
	}
	data, err := export.Bytes(res.Report)
	if err != nil {
		return r.fail(ctx, log, run, err)
	}

	if err := r.Store.SaveArtifact(ctx, recon.Artifact{
		RunID:     run.ID,
		Name:      r.reportName(),
		Data:      data,
		CreatedAt: r.clock().UTC(),
	}); err != nil {
		return r.fail(ctx, log, run, err)
	}

	completed := r.clock().UTC()
	run.Status = recon.RunCompleted
	run.Warnings = recon.WarningRecords(res.Warnings)
	run.Sheets = res.Report.SheetSummaries()
	run.Inputs = res.Inputs
	run.ReportName = r.reportName()
	run.CompletedAt = &completed
	if err := r.Store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	log.Info("run completed",
		zap.Int("warnings", len(run.Warnings)),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", completed.Sub(run.StartedAt)))
	return &run, nil
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, run recon.Run, cause error) (*recon.Run, error) {
	completed := r.clock().UTC()
	run.Status = recon.RunFailed
	run.Error = cause.Error()
	run.CompletedAt = &completed

	if recon.IsInputError(cause) {
		log.Warn("run rejected", zap.Error(cause))
	} else {
		log.Error("run failed", zap.Error(cause))
	}

	// Record the failure even when the request was canceled.
	if err := r.Store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record failed run", zap.Error(err))
		return nil, cause
	}
	return &run, cause
}

func (r *Runner) reportName() string {
	if r.ReportName == "" {
		return export.DefaultFileName
	}
	return r.ReportName
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}
