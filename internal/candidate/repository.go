package candidate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/onnwee/refmarket/internal/tracing"
)

// InMemoryRepository is an in-memory candidate store.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu         sync.RWMutex
	candidates map[string]*Candidate
}

// NewInMemoryRepository creates a new in-memory candidate repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		candidates: make(map[string]*Candidate),
	}
}

// Add stores a copy of the candidate, replacing any previous entry.
func (r *InMemoryRepository) Add(c *Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.candidates[c.ID] = &cp
}

// Snapshots returns snapshots for the known IDs.
func (r *InMemoryRepository) Snapshots(_ context.Context, ids []string) (map[string]Snapshot, error) {
	result := make(map[string]Snapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if c, ok := r.candidates[id]; ok {
			result[id] = c.Snapshot()
		}
	}
	return result, nil
}

// PostgresRepository reads candidate snapshots from PostgreSQL.
// A candidate is premium while it has an active or purchased subscription
// that has not expired.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const snapshotsQuery = `
	SELECT c.id, c.last_login_at,
	       EXISTS (
	           SELECT 1 FROM candidate_subscriptions s
	           WHERE s.candidate_id = c.id
	             AND s.status IN ('active', 'purchased')
	             AND (s.expires_at IS NULL OR s.expires_at > NOW())
	       ) AS is_premium
	FROM candidates c
	WHERE c.id = ANY($1)
`

// Snapshots loads snapshots for all IDs in one query.
func (r *PostgresRepository) Snapshots(ctx context.Context, ids []string) (result map[string]Snapshot, err error) {
	result = make(map[string]Snapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, snapshotsQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s         Snapshot
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&s.ID, &lastLogin, &s.IsPremium); err != nil {
			return nil, fmt.Errorf("failed to scan candidate snapshot: %w", err)
		}
		if lastLogin.Valid {
			t := lastLogin.Time
			s.LastLoginAt = &t
		}
		result[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate snapshots: %w", err)
	}

	return result, nil
}
