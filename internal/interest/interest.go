// Package interest provides the referrer-to-candidate interest records and the
// bulk lookup of recently accepted pairs used as a ranking signal.
package interest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/refmarket/internal/tracing"
)

// Status of an interest offer.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Interest is an offer from a referrer to a candidate, independent of any requirement.
type Interest struct {
	ID          string    `json:"id"`
	ReferrerID  string    `json:"referrer_id"`
	CandidateID string    `json:"candidate_id"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// PairKey is the set key for a (referrer, candidate) pair.
func PairKey(referrerID, candidateID string) string {
	return referrerID + "::" + candidateID
}

// Source looks up accepted interest pairs.
type Source interface {
	// AcceptedPairs returns PairKey entries for accepted interests created at
	// or after since whose referrer and candidate are both in the given sets.
	// Either set being empty returns an empty result without querying.
	AcceptedPairs(ctx context.Context, referrerIDs, candidateIDs []string, since time.Time) (map[string]struct{}, error)
}

// InMemoryRepository is an in-memory interest store.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	interests map[string]*Interest
}

// NewInMemoryRepository creates a new in-memory interest repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		interests: make(map[string]*Interest),
	}
}

// Add stores a copy of i, assigning an ID when unset.
func (r *InMemoryRepository) Add(i *Interest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	cp := *i
	r.interests[i.ID] = &cp
}

// AcceptedPairs implements Source.
func (r *InMemoryRepository) AcceptedPairs(_ context.Context, referrerIDs, candidateIDs []string, since time.Time) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if len(referrerIDs) == 0 || len(candidateIDs) == 0 {
		return result, nil
	}

	referrers := toSet(referrerIDs)
	candidates := toSet(candidateIDs)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.interests {
		if i.Status != StatusAccepted || i.CreatedAt.Before(since) {
			continue
		}
		if _, ok := referrers[i.ReferrerID]; !ok {
			continue
		}
		if _, ok := candidates[i.CandidateID]; !ok {
			continue
		}
		result[PairKey(i.ReferrerID, i.CandidateID)] = struct{}{}
	}
	return result, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// PostgresRepository reads interests from PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const acceptedPairsQuery = `
	SELECT DISTINCT referrer_id, candidate_id
	FROM interests
	WHERE status = 'accepted'
	  AND created_at >= $1
	  AND referrer_id = ANY($2)
	  AND candidate_id = ANY($3)
`

// AcceptedPairs implements Source with a single query over both ID sets.
func (r *PostgresRepository) AcceptedPairs(ctx context.Context, referrerIDs, candidateIDs []string, since time.Time) (result map[string]struct{}, err error) {
	result = make(map[string]struct{})
	if len(referrerIDs) == 0 || len(candidateIDs) == 0 {
		return result, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "interests", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, acceptedPairsQuery, since, pq.Array(referrerIDs), pq.Array(candidateIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query accepted interests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var referrerID, candidateID string
		if err := rows.Scan(&referrerID, &candidateID); err != nil {
			return nil, fmt.Errorf("failed to scan interest pair: %w", err)
		}
		result[PairKey(referrerID, candidateID)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interest pairs: %w", err)
	}
	return result, nil
}
