// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/onnwee/refmarket/internal/config"
	"github.com/onnwee/refmarket/internal/db"
	"github.com/onnwee/refmarket/internal/middleware"
	"github.com/onnwee/refmarket/migrations"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", os.Getenv("REFMARKET_CONFIG_FILE"), "path to a YAML config file")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	rollback := flag.Int("rollback", 0, "roll back the last N migrations and exit")
	flag.Parse()

	if *help {
		fmt.Println("Refmarket API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	env := config.DefaultEnv
	if cfg != nil && cfg.Env != "" {
		env = cfg.Env
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	summary := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		summary = append(summary, k, v)
	}
	logger.Info("configuration loaded", summary...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateOnly || *rollback > 0 {
		if err := migrate(ctx, cfg.DatabaseURL, *rollback, logger); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// migrate applies pending migrations, or rolls back the last rollback
// migrations when rollback is positive.
func migrate(ctx context.Context, databaseURL string, rollback int, logger *slog.Logger) error {
	conn, err := db.Open(ctx, databaseURL, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	var status db.MigrationStatus
	if rollback > 0 {
		status, err = db.Rollback(ctx, conn, migrations.FS, rollback)
	} else {
		status, err = db.Migrate(ctx, conn, migrations.FS)
	}
	if err != nil {
		return err
	}
	logger.Info("migrations complete",
		"version", status.Version,
		"dirty", status.Dirty,
		"changed", status.Changed)
	return nil
}
