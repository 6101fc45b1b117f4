// Package main is the entry point for the Remedian scheduler daemon.
//
// The daemon polls active batch schedules on a fixed tick, spawns one job
// per due schedule, and executes each job inline through the batch executor
// and the patch pipeline. It shares the API server's configuration and
// storage but runs no HTTP surface; pausing and resuming schedules happens
// through the API process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"remedian/internal/adapter"
	"remedian/internal/batch"
	"remedian/internal/config"
	"remedian/internal/db"
	"remedian/internal/mapping"
	"remedian/internal/pipeline"
	"remedian/internal/remote"
	"remedian/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("remedian scheduler starting",
		"environment", cfg.Environment,
		"tick_interval", cfg.Scheduler.TickInterval,
		"worker_concurrency", cfg.Scheduler.WorkerConcurrency,
	)

	// Cancelled on SIGINT/SIGTERM; the control loop drains the current tick
	// before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	table, err := mapping.Load(cfg.Remediation.MappingFile)
	if err != nil {
		return fmt.Errorf("loading resource mappings: %w", err)
	}

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

	loop := scheduler.NewControlLoop(scheduleRepo, jobRepo, executor, logger, cfg.Scheduler.TickInterval)
	loop.Run(ctx)

	logger.Info("scheduler stopped cleanly")
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
