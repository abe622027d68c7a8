package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrInvalidSteps is returned by Rollback when steps is not positive.
var ErrInvalidSteps = errors.New("rollback steps must be positive")

// MigrationStatus describes the schema after a migration run.
type MigrationStatus struct {
	Version uint // 0 when no migration is applied
	Dirty   bool
	Changed bool // false when the schema was already at the target
}

// Migrate applies every pending up migration in fsys.
// Migrations are serialised across instances by a Postgres advisory lock.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS) (MigrationStatus, error) {
	return runMigration(ctx, db, fsys, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// Rollback runs the down migrations of the last steps applied versions.
func Rollback(ctx context.Context, db *sql.DB, fsys fs.FS, steps int) (MigrationStatus, error) {
	if steps <= 0 {
		return MigrationStatus{}, ErrInvalidSteps
	}
	return runMigration(ctx, db, fsys, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

func runMigration(ctx context.Context, db *sql.DB, fsys fs.FS, apply func(*migrate.Migrate) error) (status MigrationStatus, err error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return status, fmt.Errorf("failed to read migration source: %w", err)
	}

	// A dedicated connection keeps the driver from closing the shared pool.
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return status, fmt.Errorf("failed to acquire migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = src.Close()
		_ = conn.Close()
		return status, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return status, fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()
	m.Log = migrateLogger{logger: slog.Default()}

	stop := stopOnCancel(ctx, m)
	defer stop()

	switch applyErr := apply(m); {
	case errors.Is(applyErr, migrate.ErrNoChange):
	case applyErr != nil:
		return status, fmt.Errorf("migration failed: %w", applyErr)
	default:
		status.Changed = true
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("failed to read schema version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty

	slog.InfoContext(ctx, "schema migrated",
		"version", version,
		"dirty", dirty,
		"changed", status.Changed)
	return status, nil
}

// stopOnCancel asks m to stop after the current migration once ctx is done.
func stopOnCancel(ctx context.Context, m *migrate.Migrate) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()
	return func() { close(done) }
}

// migrateLogger routes migrate's progress lines to slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return false
}
