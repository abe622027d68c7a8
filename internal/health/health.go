// Package health provides readiness checks for the API's PostgreSQL and Redis
// dependencies.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// DefaultCheckTimeout bounds a single check when the caller's context has no deadline.
const DefaultCheckTimeout = 2 * time.Second

// Checker is implemented by every dependency check.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// RequiredTables are the tables the ranking queries read. The database is
// not ready until migrations have created all of them.
var RequiredTables = []string{
	"requirements",
	"responses",
	"candidates",
	"candidate_subscriptions",
	"interests",
	"circles",
	"audit_logs",
}

const missingTablesQuery = `
	SELECT t FROM unnest($1::text[]) AS t
	WHERE to_regclass('public.' || t) IS NULL
`

// DBChecker pings PostgreSQL and verifies the schema is migrated.
type DBChecker struct {
	db     *sql.DB
	tables []string
}

// NewDBChecker creates a database checker for RequiredTables.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db, tables: RequiredTables}
}

// HealthCheck pings the database, then reports any required table that is missing.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if len(d.tables) == 0 {
		return nil
	}

	rows, err := d.db.QueryContext(ctx, missingTablesQuery, pq.Array(d.tables))
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("schema check failed: %w", err)
		}
		missing = append(missing, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables %v, run migrations", missing)
	}
	return nil
}

// RedisChecker pings Redis.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a Redis checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultCheckTimeout)
}
