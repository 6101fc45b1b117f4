// Package main is the entry point for the Remedian API server.
//
// It loads configuration, connects the Postgres pool and the CRM session,
// assembles the resource adapter from the mapping table, wires the patch
// pipeline and batch executor behind the job backend, and serves the
// versioned HTTP API with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remedian/internal/adapter"
	"remedian/internal/api/handlers"
	"remedian/internal/batch"
	"remedian/internal/config"
	"remedian/internal/core"
	"remedian/internal/db"
	"remedian/internal/mapping"
	"remedian/internal/pipeline"
	"remedian/internal/remote"
	"remedian/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("remedian API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	table, err := mapping.Load(cfg.Remediation.MappingFile)
	if err != nil {
		return fmt.Errorf("loading resource mappings: %w", err)
	}

	// One resilient client shared by the token exchange and the data calls,
	// so the breaker sees the CRM as a single upstream.
	retryPolicy := remote.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.Remote.MaxRetries
	crmClient := remote.NewClient(
		&http.Client{Timeout: cfg.Remote.Timeout},
		"crm",
		retryPolicy,
		cfg.Remote.UserAgent,
	)
	session := remote.NewSession(crmClient, remote.SessionConfig{
		TokenURL:     cfg.Remote.TokenURL,
		ClientID:     cfg.Remote.ClientID,
		ClientSecret: cfg.Remote.ClientSecret,
		Logger:       logger,
	})
	connector := remote.NewConnector(crmClient, session, cfg.Remote.BaseURL, logger)

	resourceStore := db.NewResourceStore(pool)
	scheduleRepo := db.NewScheduleRepo(pool)
	jobRepo := db.NewJobRepo(pool)
	problemRepo := db.NewProblemRepo(pool)

	// CRM-mirrored kinds route to the remote or local backend per deployment
	// config; everything else in the mapping table is served locally.
	ad := adapter.New()
	remoteKinds := cfg.Remote.RemoteKindSet()
	for _, kind := range table.Kinds() {
		m, _ := table.Get(kind)
		if remoteKinds[kind] {
			ad.Register(kind, adapter.NewRemoteBackend(connector, m))
		} else {
			ad.Register(kind, adapter.NewLocalBackend(resourceStore, m))
		}
	}

	policies := pipeline.DefaultPolicies(cfg.Remediation.MigrationActor)
	backups, err := pipeline.NewFSBackupStore(cfg.Remediation.BackupDir)
	if err != nil {
		return fmt.Errorf("preparing backup store: %w", err)
	}

	pipe := pipeline.New(pipeline.Config{
		API:           ad,
		Policies:      policies,
		Backups:       backups,
		Resyncer:      pipeline.NewCRMResyncer(connector),
		Problems:      problemRepo,
		Logger:        logger,
		ResyncEnabled: cfg.Feature.EnableResync,
	})

	enumerator := batch.NewEnumerator(ad, policies)
	executor := batch.NewExecutor(jobRepo, enumerator, pipe, logger,
		cfg.Scheduler.WorkerConcurrency, cfg.Scheduler.ItemTimeout)

	// Engine-owned kinds ride the same adapter surface as CRM kinds. The job
	// backend hands freshly created run-now jobs to the executor.
	ad.Register(types.KindSchedule, adapter.NewScheduleBackend(scheduleRepo))
	ad.Register(types.KindJob, adapter.NewJobBackend(jobRepo, executor))
	ad.Register(types.KindProblem, adapter.NewProblemBackend(problemRepo))

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	resourceHandler := handlers.NewResourceHandler(ad, logger)
	jobHandler := handlers.NewJobHandler(ad, jobRepo, logger)
	scheduleHandler := handlers.NewScheduleHandler(scheduleRepo, logger)

	srv.MountRoutes(
		resourceHandler.Routes,
		jobHandler.Routes,
		scheduleHandler.Routes,
	)

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
