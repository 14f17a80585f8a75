/*
main.go - Application entry point

PURPOSE:
  CLI for the authorization report service. Builds the DVKH_2241 workbook
  from the core-banking extracts, either as a long-running HTTP service or
  as a one-shot command.

COMMANDS:
  serve   HTTP API + optional folder scheduler (see cmd_serve.go)
  run     One report from a zip or two folders, written to a file (see cmd_run.go)

GLOBAL FLAGS:
  --config   YAML config file (default: authz-report.yaml, optional)

EXAMPLES:
  # Serve on the configured port with a file database
  ./authz-report serve --db ./data/authz.db

  # One-shot report from an archive
  ./authz-report run --archive extracts.zip --out DVKH_2241.xlsx

  # One-shot report from folders, no run history
  ./authz-report run --fixed-term-dir ./ckh --common-dir ./common --ephemeral

ENVIRONMENT:
  AUTHZ_PORT, AUTHZ_DB, AUTHZ_FOLDER_ROOT, LOG_LEVEL, LOG_DEV (see config/config.go)

SEE ALSO:
  - api/server.go: Router configuration
  - service/runner.go: Run execution
  - store/sqlite/sqlite.go: Run history
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/warp/authz-report/config"
	"github.com/warp/authz-report/logging"
	"github.com/warp/authz-report/recon"
	"github.com/warp/authz-report/service"
	"github.com/warp/authz-report/store/sqlite"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "authz-report",
	Short:         "Authorization compliance report (DVKH_2241)",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "authz-report.yaml", "YAML config file")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// WIRING
// =============================================================================

// app is what both commands share once the config is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) openStore() (*sqlite.Store, error) {
	path := a.cfg.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (a *app) runner(store recon.RunStore) *service.Runner {
	pipeline := recon.NewPipeline(a.logger)
	pipeline.Patterns = a.cfg.Sources
	pipeline.ImputeBy = a.cfg.Report.ImputeBy

	runner := service.NewRunner(store, pipeline, a.logger)
	runner.ReportName = a.cfg.Report.FileName
	return runner
}
