/*
scheduler.go - Unattended folder runs

PURPOSE:
  Periodically looks at the default fixed-term and common folders and
  starts a folder run when their contents changed since the last run it
  started. Operations drop the day's extracts into the folders and the
  report appears in the run history without anyone pressing a button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - With Watch set, fsnotify events on supported files also trigger a
    check once the folders have been quiet for Settle (copies of large
    extracts arrive as many writes)
  - Fingerprints both folders (name, size, modification time of each
    supported file); an unchanged fingerprint skips the tick
  - A failed run still updates the fingerprint, so a broken drop is
    reported once and retried only after the files change again

CONFIGURATION:
  - CheckInterval: How often to check (schedule.interval, default 1h)
  - Enabled: Whether the scheduler is active (schedule.enabled)
  - Watch, Settle: event-driven checks (schedule.watch, schedule.settle)

USAGE:
  scheduler := NewScheduler(runner, fixedTermDir, commonDir, patterns, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - runner.go: Execute
  - source/folder: the folder source used for each run
*/
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/warp/authz-report/recon"
	"github.com/warp/authz-report/source"
	"github.com/warp/authz-report/source/folder"
	"go.uber.org/zap"
)

// Scheduler starts folder runs when the folders change.
type Scheduler struct {
	Runner        *Runner
	FixedTermDir  string
	CommonDir     string
	Patterns      source.Patterns
	CheckInterval time.Duration
	Enabled       bool
	Watch         bool
	Settle        time.Duration
	Logger        *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu sync.Mutex
	last  string
}

// NewScheduler creates an enabled scheduler checking every hour.
func NewScheduler(runner *Runner, fixedTermDir, commonDir string, patterns source.Patterns, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Runner:        runner,
		FixedTermDir:  fixedTermDir,
		CommonDir:     commonDir,
		Patterns:      patterns,
		CheckInterval: time.Hour,
		Enabled:       true,
		Settle:        30 * time.Second,
		Logger:        logger.Named("scheduler"),
	}
}

// Start begins the scheduler. The first check happens immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("started",
		zap.Duration("interval", s.CheckInterval),
		zap.String("fixed_term_dir", s.FixedTermDir),
		zap.String("common_dir", s.CommonDir))
}

// Stop stops the scheduler and waits for a run in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher := s.watcher(); watcher != nil {
		defer watcher.Close()
		events, errs = watcher.Events, watcher.Errors
	}
	settle := time.NewTimer(s.Settle)
	settle.Stop()
	defer settle.Stop()

	s.tick()
	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 && source.IsSupported(ev.Name) {
				s.Logger.Debug("folder change", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
				settle.Reset(s.Settle)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.Logger.Warn("watch error", zap.Error(err))
		case <-settle.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

// watcher returns a watcher on both folders, or nil when watching is off
// or unavailable. Polling still runs either way.
func (s *Scheduler) watcher() *fsnotify.Watcher {
	if !s.Watch {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.Logger.Warn("file watching unavailable, polling only", zap.Error(err))
		return nil
	}
	for _, dir := range []string{s.FixedTermDir, s.CommonDir} {
		if err := w.Add(dir); err != nil {
			s.Logger.Warn("cannot watch folder", zap.String("dir", dir), zap.Error(err))
		}
	}
	return w
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunNow(ctx); err != nil && !recon.IsInputError(err) {
		s.Logger.Error("scheduled run failed", zap.Error(err))
	}
}

// RunNow checks the folders once. It returns the run it started, or nil
// when the folders are unchanged since the previous check.
func (s *Scheduler) RunNow(ctx context.Context) (*recon.Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	fp, err := s.fingerprint()
	if err != nil {
		return nil, err
	}
	if fp == s.last {
		s.Logger.Debug("folders unchanged, skipping")
		return nil, nil
	}

	run, err := s.Runner.Execute(ctx, KindFolder, folder.New(s.FixedTermDir, s.CommonDir, s.Patterns))
	if run != nil {
		s.last = fp
	}
	return run, err
}

// fingerprint describes the supported files of both folders.
func (s *Scheduler) fingerprint() (string, error) {
	var lines []string
	for _, dir := range []string{s.FixedTermDir, s.CommonDir} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			lines = append(lines, dir+" missing")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !source.IsSupported(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return "", fmt.Errorf("scan %s: %w", dir, err)
			}
			lines = append(lines, fmt.Sprintf("%s|%d|%d",
				filepath.Join(dir, e.Name()), info.Size(), info.ModTime().UnixNano()))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}
