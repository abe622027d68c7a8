package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/refmarket/internal/tracing"
)

// Repository stores and queries audit logs.
type Repository interface {
	Record(ctx context.Context, entry Entry) (*Log, error)

	// QueryByEntity returns logs for one entity, newest first.
	// A limit of 0 returns everything.
	QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Log, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs []*Log
	now  func() time.Time
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{now: time.Now}
}

// Record validates and appends entry.
func (r *InMemoryRepository) Record(_ context.Context, entry Entry) (*Log, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	l := newLog(entry, r.now().UTC())

	r.mu.Lock()
	r.logs = append(r.logs, l)
	r.mu.Unlock()

	cp := *l
	return &cp, nil
}

// QueryByEntity implements Repository.
func (r *InMemoryRepository) QueryByEntity(_ context.Context, entityType, entityID string, limit int) ([]*Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Log
	for i := len(r.logs) - 1; i >= 0; i-- {
		l := r.logs[i]
		if l.EntityType != entityType || l.EntityID != entityID {
			continue
		}
		cp := *l
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func newLog(entry Entry, now time.Time) *Log {
	return &Log{
		ID:         uuid.New().String(),
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		RequestID:  entry.RequestID,
		CreatedAt:  now,
	}
}

// PostgresRepository stores audit logs in the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record implements Repository.
func (p *PostgresRepository) Record(ctx context.Context, entry Entry) (l *Log, err error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	l = newLog(entry, time.Now().UTC())
	query := `
		INSERT INTO audit_logs (id, actor_id, entity_type, entity_id, action, from_status, to_status, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = p.db.QueryRowContext(ctx, query,
		l.ID, l.ActorID, l.EntityType, l.EntityID, l.Action, l.FromStatus, l.ToStatus, l.RequestID,
	).Scan(&l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record audit log: %w", err)
	}
	return l, nil
}

// QueryByEntity implements Repository.
func (p *PostgresRepository) QueryByEntity(ctx context.Context, entityType, entityID string, limit int) (out []*Log, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, actor_id, entity_type, entity_id, action, from_status, to_status, request_id, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
	`
	args := []any{entityType, entityID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		l := &Log{}
		if err := rows.Scan(&l.ID, &l.ActorID, &l.EntityType, &l.EntityID, &l.Action,
			&l.FromStatus, &l.ToStatus, &l.RequestID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return out, nil
}
