package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/authz-report/api"
	"github.com/warp/authz-report/service"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long in-flight runs may finish on SIGTERM.
const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	port int
	db   string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP server port (overrides config)")
	cmd.Flags().StringVar(&opts.db, "db", "", "SQLite database path, \":memory:\" for in-memory (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port = opts.port
	}
	if opts.db != "" {
		a.cfg.Database.Path = opts.db
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runner := a.runner(store)
	handler := api.NewHandler(runner, store, a.cfg, a.logger)
	router := api.NewRouter(handler, a.cfg.Server.AllowedOrigins)

	var scheduler *service.Scheduler
	if a.cfg.Schedule.Enabled {
		fixedTerm, common := a.cfg.Folders.Dirs()
		scheduler = service.NewScheduler(runner, fixedTerm, common, a.cfg.Sources, a.logger)
		scheduler.CheckInterval = a.cfg.Schedule.Interval
		scheduler.Watch = a.cfg.Schedule.Watch
		scheduler.Settle = a.cfg.Schedule.Settle
		scheduler.Start()
	}

	// Runs are synchronous, so the write timeout must cover a full report.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
			zap.String("db", a.cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	a.logger.Info("shutting down server")
	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}
