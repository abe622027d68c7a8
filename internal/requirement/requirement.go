// Package requirement provides the job requirement model and its storage.
// A requirement is owned by one referrer; only the owner may review the
// responses other referrers submit against it.
package requirement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/refmarket/internal/tracing"
)

// ErrRequirementNotFound is returned when a requirement does not exist.
var ErrRequirementNotFound = errors.New("requirement not found")

// Requirement is a job posting open to responses from other referrers.
type Requirement struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsOwner reports whether referrerID owns the requirement.
func (r *Requirement) IsOwner(referrerID string) bool {
	return referrerID != "" && r.OwnerID == referrerID
}

// Repository reads requirements.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Requirement, error)
}

// InMemoryRepository is an in-memory requirement store.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu           sync.RWMutex
	requirements map[string]*Requirement
}

// NewInMemoryRepository creates a new in-memory requirement repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		requirements: make(map[string]*Requirement),
	}
}

// Insert stores a copy of req, assigning an ID and creation time when unset.
func (r *InMemoryRepository) Insert(req *Requirement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	cp := *req
	r.requirements[req.ID] = &cp
}

// GetByID returns a copy of the requirement.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requirements[id]
	if !ok {
		return nil, ErrRequirementNotFound
	}
	cp := *req
	return &cp, nil
}

// PostgresRepository reads requirements from PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID loads a requirement by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (req *Requirement, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "requirements", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, owner_id, title, description, status, created_at
		FROM requirements
		WHERE id = $1
	`

	req = &Requirement{}
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.OwnerID,
		&req.Title,
		&req.Description,
		&req.Status,
		&req.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequirementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get requirement: %w", err)
	}
	return req, nil
}
