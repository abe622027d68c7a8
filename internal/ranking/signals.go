package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/refmarket/internal/candidate"
	"github.com/onnwee/refmarket/internal/interest"
	"github.com/onnwee/refmarket/internal/response"
)

// Signal names, used in errors and metric labels.
const (
	SignalSuccessRate = "success_rate"
	SignalSnapshots   = "candidate_snapshot"
	SignalInterest    = "recent_interest"
	SignalCircle      = "circle"
)

// OutcomeSource provides historical response outcomes per referrer.
type OutcomeSource interface {
	ReferrerOutcomes(ctx context.Context, referrerIDs []string) (map[string]response.Outcome, error)
}

// SnapshotSource provides candidate activity and premium snapshots.
type SnapshotSource interface {
	Snapshots(ctx context.Context, ids []string) (map[string]candidate.Snapshot, error)
}

// InterestSource provides recently accepted referrer/candidate pairs.
type InterestSource interface {
	AcceptedPairs(ctx context.Context, referrerIDs, candidateIDs []string, since time.Time) (map[string]struct{}, error)
}

// CircleSource provides the viewer's circle graph.
type CircleSource interface {
	DirectMembers(ctx context.Context, viewerID string, referrerIDs []string) (map[string]struct{}, error)
	Neighbors(ctx context.Context, viewerID string) (map[string]struct{}, error)
	IndirectMembers(ctx context.Context, neighborIDs, referrerIDs []string) (map[string]struct{}, error)
}

// SignalError reports which signal collector failed.
type SignalError struct {
	Signal string
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("collect %s signal: %v", e.Signal, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// Signals holds every precomputed signal for one batch of responses.
type Signals struct {
	Outcomes       map[string]response.Outcome   // referrer ID -> outcome
	Snapshots      map[string]candidate.Snapshot // candidate ID -> snapshot
	RecentInterest map[string]struct{}           // interest.PairKey
	DirectCircle   map[string]struct{}           // referrer IDs
	IndirectCircle map[string]struct{}           // referrer IDs
}

// NewSignals returns an empty, non-nil signal set.
func NewSignals() *Signals {
	return &Signals{
		Outcomes:       map[string]response.Outcome{},
		Snapshots:      map[string]candidate.Snapshot{},
		RecentInterest: map[string]struct{}{},
		DirectCircle:   map[string]struct{}{},
		IndirectCircle: map[string]struct{}{},
	}
}

// SuccessRate returns the referrer's success rate, 0 without history.
func (s *Signals) SuccessRate(referrerID string) float64 {
	return s.Outcomes[referrerID].SuccessRate()
}

// HasRecentInterest reports whether the pair has a recent accepted interest.
func (s *Signals) HasRecentInterest(referrerID, candidateID string) bool {
	_, ok := s.RecentInterest[interest.PairKey(referrerID, candidateID)]
	return ok
}

// Circle classifies the referrer relative to the viewer. Direct wins.
func (s *Signals) Circle(referrerID string) CircleRelation {
	if _, ok := s.DirectCircle[referrerID]; ok {
		return CircleDirect
	}
	if _, ok := s.IndirectCircle[referrerID]; ok {
		return CircleIndirect
	}
	return CircleNone
}

// Collector gathers all ranking signals for a batch with bulk queries.
type Collector struct {
	outcomes  OutcomeSource
	snapshots SnapshotSource
	interests InterestSource
	circles   CircleSource
}

// NewCollector creates a Collector over the given sources.
func NewCollector(outcomes OutcomeSource, snapshots SnapshotSource, interests InterestSource, circles CircleSource) *Collector {
	return &Collector{
		outcomes:  outcomes,
		snapshots: snapshots,
		interests: interests,
		circles:   circles,
	}
}

// Collect runs the four signal collectors concurrently and waits for all of
// them. The first failure cancels the others and is returned as a
// *SignalError. An empty batch returns empty signals without querying.
func (c *Collector) Collect(ctx context.Context, viewerID string, responses []response.Response, now time.Time) (*Signals, error) {
	signals := NewSignals()
	if len(responses) == 0 {
		return signals, nil
	}

	referrerIDs, candidateIDs := distinctIDs(responses)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		outcomes, err := c.outcomes.ReferrerOutcomes(gctx, referrerIDs)
		if err != nil {
			return &SignalError{Signal: SignalSuccessRate, Err: err}
		}
		signals.Outcomes = outcomes
		return nil
	})

	g.Go(func() error {
		snapshots, err := c.snapshots.Snapshots(gctx, candidateIDs)
		if err != nil {
			return &SignalError{Signal: SignalSnapshots, Err: err}
		}
		signals.Snapshots = snapshots
		return nil
	})

	g.Go(func() error {
		pairs, err := c.interests.AcceptedPairs(gctx, referrerIDs, candidateIDs, now.Add(-InterestWindow))
		if err != nil {
			return &SignalError{Signal: SignalInterest, Err: err}
		}
		signals.RecentInterest = pairs
		return nil
	})

	g.Go(func() error {
		direct, indirect, err := c.collectCircle(gctx, viewerID, referrerIDs)
		if err != nil {
			return &SignalError{Signal: SignalCircle, Err: err}
		}
		signals.DirectCircle = direct
		signals.IndirectCircle = indirect
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return signals, nil
}

// collectCircle loads the direct set and the viewer's neighbors concurrently,
// then the two-hop set from those neighbors.
func (c *Collector) collectCircle(ctx context.Context, viewerID string, referrerIDs []string) (direct, indirect map[string]struct{}, err error) {
	var neighbors map[string]struct{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		direct, err = c.circles.DirectMembers(gctx, viewerID, referrerIDs)
		return err
	})
	g.Go(func() error {
		var err error
		neighbors, err = c.circles.Neighbors(gctx, viewerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	delete(neighbors, viewerID)
	if len(neighbors) == 0 {
		return direct, map[string]struct{}{}, nil
	}

	indirect, err = c.circles.IndirectMembers(ctx, sortedKeys(neighbors), referrerIDs)
	if err != nil {
		return nil, nil, err
	}
	return direct, indirect, nil
}

// distinctIDs returns the sorted distinct referrer and candidate IDs of the batch.
func distinctIDs(responses []response.Response) (referrerIDs, candidateIDs []string) {
	referrers := make(map[string]struct{}, len(responses))
	candidates := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		referrers[r.ReferrerID] = struct{}{}
		candidates[r.CandidateID] = struct{}{}
	}
	return sortedKeys(referrers), sortedKeys(candidates)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// signalName extracts the failing signal from err, or "" if none.
func signalName(err error) string {
	var se *SignalError
	if errors.As(err, &se) {
		return se.Signal
	}
	return ""
}
