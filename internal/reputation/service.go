package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// View is what the API returns for a referrer. Stale is set when a status
// change has not been folded into the stored snapshot yet.
type View struct {
	Reputation
	Stale bool `json:"stale"`
}

// Service reads published reputations and records status changes.
type Service struct {
	store    Store
	outcomes OutcomeSource
	tracker  *DirtyTracker
	now      func() time.Time
}

// NewService creates a reputation service.
func NewService(store Store, outcomes OutcomeSource, tracker *DirtyTracker) *Service {
	return &Service{
		store:    store,
		outcomes: outcomes,
		tracker:  tracker,
		now:      time.Now,
	}
}

// MarkDirty schedules the referrer for recomputation.
func (s *Service) MarkDirty(referrerID string) {
	s.tracker.MarkDirty(referrerID)
}

// Get returns the stored reputation, computing and storing it on the fly when
// none has been published yet.
func (s *Service) Get(ctx context.Context, referrerID string) (*View, error) {
	rep, err := s.store.Get(ctx, referrerID)
	if err == nil {
		return &View{Reputation: *rep, Stale: s.tracker.IsDirty(referrerID)}, nil
	}
	if !errors.Is(err, ErrReputationNotFound) {
		return nil, err
	}

	outcomes, err := s.outcomes.ReferrerOutcomes(ctx, []string{referrerID})
	if err != nil {
		return nil, fmt.Errorf("failed to compute reputation: %w", err)
	}
	fresh := Compute(referrerID, outcomes[referrerID], s.now())
	if err := s.store.Save(ctx, fresh); err != nil {
		return nil, err
	}
	return &View{Reputation: fresh}, nil
}
