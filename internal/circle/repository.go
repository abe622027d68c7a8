// Package circle provides the referrer circle graph: mutually accepted
// relations between referrers, queried as direct and two-hop trust signals.
package circle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors for circle operations.
var (
	ErrRelationNotFound = errors.New("circle relation not found")
	ErrSelfRelation     = errors.New("a referrer cannot join their own circle")
)

// Status of a circle invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Relation is an invitation between two referrers. Once accepted it is
// treated as undirected.
type Relation struct {
	ID         string    `json:"id"`
	InviterID  string    `json:"inviter_id"`
	AccepterID string    `json:"accepter_id"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Other returns the member on the opposite side of the relation from id.
func (r *Relation) Other(id string) (string, bool) {
	switch id {
	case r.InviterID:
		return r.AccepterID, true
	case r.AccepterID:
		return r.InviterID, true
	}
	return "", false
}

// Source answers the viewer-centric circle queries used for ranking.
// Every method returns an empty set without querying when an input set is empty.
type Source interface {
	// DirectMembers returns the referrers with an accepted relation to viewerID.
	DirectMembers(ctx context.Context, viewerID string, referrerIDs []string) (map[string]struct{}, error)

	// Neighbors returns everyone with an accepted relation to viewerID, excluding the viewer.
	Neighbors(ctx context.Context, viewerID string) (map[string]struct{}, error)

	// IndirectMembers returns the referrers with an accepted relation to any neighbor.
	IndirectMembers(ctx context.Context, neighborIDs, referrerIDs []string) (map[string]struct{}, error)
}

// InMemoryRepository is an in-memory implementation of Source.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	relations map[string]*Relation
}

// NewInMemoryRepository creates a new in-memory circle repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		relations: make(map[string]*Relation),
	}
}

// Insert stores a new relation.
func (r *InMemoryRepository) Insert(rel *Relation) error {
	if rel.InviterID == rel.AccepterID {
		return ErrSelfRelation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	if rel.Status == "" {
		rel.Status = StatusPending
	}
	now := time.Now()
	rel.CreatedAt = now
	rel.UpdatedAt = now

	cp := *rel
	r.relations[rel.ID] = &cp
	return nil
}

// SetStatus updates the status of an existing relation.
func (r *InMemoryRepository) SetStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, ok := r.relations[id]
	if !ok {
		return ErrRelationNotFound
	}
	rel.Status = status
	rel.UpdatedAt = time.Now()
	return nil
}

// acceptedNeighbors returns every accepted neighbor of id. Caller holds the lock.
func (r *InMemoryRepository) acceptedNeighbors(id string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, rel := range r.relations {
		if rel.Status != StatusAccepted {
			continue
		}
		if other, ok := rel.Other(id); ok && other != id {
			out[other] = struct{}{}
		}
	}
	return out
}

// DirectMembers implements Source.
func (r *InMemoryRepository) DirectMembers(_ context.Context, viewerID string, referrerIDs []string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if viewerID == "" || len(referrerIDs) == 0 {
		return result, nil
	}

	r.mu.RLock()
	neighbors := r.acceptedNeighbors(viewerID)
	r.mu.RUnlock()

	for _, id := range referrerIDs {
		if _, ok := neighbors[id]; ok {
			result[id] = struct{}{}
		}
	}
	return result, nil
}

// Neighbors implements Source.
func (r *InMemoryRepository) Neighbors(_ context.Context, viewerID string) (map[string]struct{}, error) {
	if viewerID == "" {
		return make(map[string]struct{}), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.acceptedNeighbors(viewerID), nil
}

// IndirectMembers implements Source.
func (r *InMemoryRepository) IndirectMembers(_ context.Context, neighborIDs, referrerIDs []string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if len(neighborIDs) == 0 || len(referrerIDs) == 0 {
		return result, nil
	}

	neighbors := toSet(neighborIDs)
	referrers := toSet(referrerIDs)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rel := range r.relations {
		if rel.Status != StatusAccepted {
			continue
		}
		collectIndirect(rel.InviterID, rel.AccepterID, neighbors, referrers, result)
	}
	return result, nil
}

// collectIndirect adds whichever side of an accepted edge is a batch referrer
// reached from a neighbor on the other side. The viewer is not excluded: a
// viewer who appears in their own batch is indirect through any neighbor.
func collectIndirect(a, b string, neighbors, referrers, result map[string]struct{}) {
	if _, ok := neighbors[a]; ok {
		if _, ok := referrers[b]; ok {
			result[b] = struct{}{}
		}
	}
	if _, ok := neighbors[b]; ok {
		if _, ok := referrers[a]; ok {
			result[a] = struct{}{}
		}
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
