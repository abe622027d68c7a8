package response

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for response data operations.
type Repository interface {
	// ListByRequirement returns all responses for a requirement in the given
	// status, newest first, with Candidate and Referrer joined.
	ListByRequirement(ctx context.Context, requirementID string, status Status) ([]Response, error)

	// ReferrerOutcomes counts approved and acted-on responses per referrer
	// across all requirements. Referrers without history are absent.
	ReferrerOutcomes(ctx context.Context, referrerIDs []string) (map[string]Outcome, error)

	// GetByID returns a response without joined entities.
	GetByID(ctx context.Context, id string) (*Response, error)

	// Insert stores a new pending response. Returns ErrDuplicateResponse when
	// the (requirement, candidate, referrer) triple already exists.
	Insert(ctx context.Context, r *Response) error

	// UpdateStatus moves a response to next if the state machine allows it.
	UpdateStatus(ctx context.Context, id string, next Status) (*Response, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	responses map[string]*Response
	triples   map[string]string // requirement\x00candidate\x00referrer -> ID
}

// NewInMemoryRepository creates a new in-memory response repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		responses: make(map[string]*Response),
		triples:   make(map[string]string),
	}
}

func tripleKey(requirementID, candidateID, referrerID string) string {
	return requirementID + "\x00" + candidateID + "\x00" + referrerID
}

// Insert stores a copy of r. ID, status and creation time are filled in when unset.
func (m *InMemoryRepository) Insert(_ context.Context, r *Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tripleKey(r.RequirementID, r.CandidateID, r.ReferrerID)
	if _, exists := m.triples[key]; exists {
		return ErrDuplicateResponse
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	cp := *r
	m.responses[r.ID] = &cp
	m.triples[key] = r.ID
	return nil
}

// ListByRequirement returns copies of the matching responses, newest first.
func (m *InMemoryRepository) ListByRequirement(_ context.Context, requirementID string, status Status) ([]Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Response
	for _, r := range m.responses {
		if r.RequirementID == requirementID && r.Status == status {
			out = append(out, copyJoined(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ReferrerOutcomes tallies resolved responses for the given referrers.
func (m *InMemoryRepository) ReferrerOutcomes(_ context.Context, referrerIDs []string) (map[string]Outcome, error) {
	result := make(map[string]Outcome, len(referrerIDs))
	if len(referrerIDs) == 0 {
		return result, nil
	}

	wanted := make(map[string]struct{}, len(referrerIDs))
	for _, id := range referrerIDs {
		wanted[id] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.responses {
		if _, ok := wanted[r.ReferrerID]; !ok || !r.Status.Acted() {
			continue
		}
		o := result[r.ReferrerID]
		o.Acted++
		if r.Status == StatusApproved {
			o.Approved++
		}
		result[r.ReferrerID] = o
	}
	return result, nil
}

// GetByID returns a copy of the response.
func (m *InMemoryRepository) GetByID(_ context.Context, id string) (*Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.responses[id]
	if !ok {
		return nil, ErrResponseNotFound
	}
	cp := *r
	cp.Candidate, cp.Referrer = nil, nil
	return &cp, nil
}

// UpdateStatus validates and applies a status transition.
func (m *InMemoryRepository) UpdateStatus(_ context.Context, id string, next Status) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.responses[id]
	if !ok {
		return nil, ErrResponseNotFound
	}
	if !r.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next

	cp := *r
	cp.Candidate, cp.Referrer = nil, nil
	return &cp, nil
}

// copyJoined copies r along with its joined entities so callers cannot
// mutate stored state.
func copyJoined(r *Response) Response {
	cp := *r
	if r.Candidate != nil {
		c := *r.Candidate
		cp.Candidate = &c
	}
	if r.Referrer != nil {
		ref := *r.Referrer
		cp.Referrer = &ref
	}
	return cp
}
