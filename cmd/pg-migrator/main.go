package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thirdcoast.systems/edits/internal/application"
	"thirdcoast.systems/edits/internal/config"
	"thirdcoast.systems/edits/internal/db"
)

// migrateTimeout bounds connecting plus applying every pending migration.
const migrateTimeout = 2 * time.Minute

func main() {
	slog.Info("Starting database migrator")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, migrateTimeout)
	defer cancel()

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := dbc.Migrate(ctx); err != nil {
		slog.Error("failed to migrate edits schema", "error", err)
		os.Exit(1)
	}
	slog.Info("Edits schema migrated", "took", time.Since(start).Round(time.Millisecond))
}
