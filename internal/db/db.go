// Package db opens the PostgreSQL connection pool and applies schema migrations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrMissingURL is returned by Open when no database URL is configured.
var ErrMissingURL = errors.New("database URL is required")

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// PingTimeout bounds the connectivity check in Open.
	PingTimeout time.Duration
}

// DefaultPoolConfig suits a single API instance. The ranking request runs up
// to five signal queries concurrently, so the pool allows several requests
// in flight at once.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Open connects to PostgreSQL, applies the pool settings and pings.
// The pool is closed again when the ping fails.
func Open(ctx context.Context, url string, cfg PoolConfig) (*sql.DB, error) {
	if url == "" {
		return nil, ErrMissingURL
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	Configure(db, cfg)

	if err := Ping(ctx, db, cfg.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies cfg to db. Zero values leave the driver defaults.
func Configure(db *sql.DB, cfg PoolConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// Ping checks connectivity within timeout.
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
