package ranking

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/refmarket/internal/account"
	"github.com/onnwee/refmarket/internal/candidate"
	"github.com/onnwee/refmarket/internal/circle"
	"github.com/onnwee/refmarket/internal/interest"
	"github.com/onnwee/refmarket/internal/requirement"
	"github.com/onnwee/refmarket/internal/response"
)

type world struct {
	requirements *requirement.InMemoryRepository
	responses    *response.InMemoryRepository
	candidates   *candidate.InMemoryRepository
	interests    *interest.InMemoryRepository
	circles      *circle.InMemoryRepository
}

func newWorld() *world {
	return &world{
		requirements: requirement.NewInMemoryRepository(),
		responses:    response.NewInMemoryRepository(),
		candidates:   candidate.NewInMemoryRepository(),
		interests:    interest.NewInMemoryRepository(),
		circles:      circle.NewInMemoryRepository(),
	}
}

func (w *world) engine(metrics *Metrics) *Engine {
	return NewEngine(EngineConfig{
		Requirements: w.requirements,
		Responses:    w.responses,
		Outcomes:     w.responses,
		Snapshots:    w.candidates,
		Interests:    w.interests,
		Circles:      w.circles,
		Metrics:      metrics,
	}, WithClock(func() time.Time { return testNow }))
}

func (w *world) respond(t *testing.T, r response.Response) {
	t.Helper()
	if err := w.responses.Insert(context.Background(), &r); err != nil {
		t.Fatalf("insert response: %v", err)
	}
}

func (w *world) accept(t *testing.T, inviter, accepter string) {
	t.Helper()
	if err := w.circles.Insert(&circle.Relation{InviterID: inviter, AccepterID: accepter, Status: circle.StatusAccepted}); err != nil {
		t.Fatalf("insert relation: %v", err)
	}
}

// exampleWorld: viewer V owns req-1. R has two approved and one rejected
// response elsewhere and has proposed candidate C, who logged in two days ago.
// R->C interest was accepted five days ago; R and V share a circle.
func exampleWorld(t *testing.T) *world {
	w := newWorld()
	w.requirements.Insert(&requirement.Requirement{ID: "req-1", OwnerID: "V", Title: "Platform engineer"})

	w.candidates.Add(&candidate.Candidate{ID: "C", FirstName: "Cleo", LastName: "Park", Email: "cleo@example.com",
		LastLoginAt: timePtr(testNow.Add(-48 * time.Hour))})

	w.respond(t, response.Response{RequirementID: "old-1", CandidateID: "X1", ReferrerID: "R", Status: response.StatusApproved})
	w.respond(t, response.Response{RequirementID: "old-2", CandidateID: "X2", ReferrerID: "R", Status: response.StatusApproved})
	w.respond(t, response.Response{RequirementID: "old-3", CandidateID: "X3", ReferrerID: "R", Status: response.StatusRejected})

	w.respond(t, response.Response{
		ID: "resp-R", RequirementID: "req-1", CandidateID: "C", ReferrerID: "R",
		CreatedAt: testNow.Add(-time.Hour),
		Candidate: &candidate.Candidate{ID: "C", FirstName: "Cleo", LastName: "Park", Email: "cleo@example.com"},
		Referrer:  &account.Referrer{ID: "R", FirstName: "Rui", LastName: "Sato", Email: "rui@example.com", Balance: 900},
	})

	w.interests.Add(&interest.Interest{ReferrerID: "R", CandidateID: "C", Status: interest.StatusAccepted,
		CreatedAt: testNow.Add(-5 * 24 * time.Hour)})
	w.accept(t, "R", "V")
	return w
}

func TestEngine_Rank_ExampleScenario(t *testing.T) {
	w := exampleWorld(t)

	result, err := w.engine(nil).Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if result.Total != 1 || len(result.Items) != 1 {
		t.Fatalf("expected one item, got total=%d items=%d", result.Total, len(result.Items))
	}

	item := result.Items[0]
	if item.ScoreDetails.SuccessRate != 0.6667 {
		t.Errorf("success rate = %v", item.ScoreDetails.SuccessRate)
	}
	if item.ScoreDetails.Total != 45.0 || item.ScoreDetails.CappedTotal != 45.0 {
		t.Errorf("total/capped = %v/%v, want 45/45", item.ScoreDetails.Total, item.ScoreDetails.CappedTotal)
	}
	if item.Referrer != (account.Identity{ID: "R", FirstName: "Rui", LastName: "Sato"}) {
		t.Errorf("referrer not redacted: %+v", item.Referrer)
	}
}

func TestEngine_Rank_Ordering(t *testing.T) {
	w := exampleWorld(t)
	// S has no signals at all; T only gets the indirect circle bonus.
	w.respond(t, response.Response{ID: "resp-old", RequirementID: "req-1", CandidateID: "D", ReferrerID: "S", CreatedAt: testNow.Add(-3 * time.Hour)})
	w.respond(t, response.Response{ID: "resp-new", RequirementID: "req-1", CandidateID: "E", ReferrerID: "T", CreatedAt: testNow.Add(-2 * time.Hour)})
	// T is two hops away from V through N.
	w.accept(t, "V", "N")
	w.accept(t, "T", "N")

	result, err := w.engine(nil).Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	var ids []string
	for _, it := range result.Items {
		ids = append(ids, it.ID)
	}
	want := []string{"resp-R", "resp-new", "resp-old"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
	if result.Items[1].ScoreDetails.CircleRelation != CircleIndirect {
		t.Errorf("expected T to be indirect, got %s", result.Items[1].ScoreDetails.CircleRelation)
	}
}

func TestEngine_Rank_Deterministic(t *testing.T) {
	w := exampleWorld(t)
	for i := 0; i < 12; i++ {
		w.respond(t, response.Response{
			RequirementID: "req-1",
			CandidateID:   fmt.Sprintf("cand-%d", i),
			ReferrerID:    fmt.Sprintf("ref-%d", i%3),
			CreatedAt:     testNow.Add(-time.Duration(i%4) * time.Hour),
		})
	}
	e := w.engine(nil)
	req := RankRequest{RequirementID: "req-1", ViewerID: "V", Limit: 100}

	first, err := e.Rank(context.Background(), req)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	second, err := e.Rank(context.Background(), req)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different rankings")
	}
}

func TestEngine_Rank_Pagination(t *testing.T) {
	w := newWorld()
	w.requirements.Insert(&requirement.Requirement{ID: "req-1", OwnerID: "V"})
	for i := 0; i < 25; i++ {
		w.respond(t, response.Response{
			RequirementID: "req-1",
			CandidateID:   fmt.Sprintf("c%02d", i),
			ReferrerID:    "R",
			CreatedAt:     testNow.Add(-time.Duration(i) * time.Minute),
		})
	}
	e := w.engine(nil)

	all, err := e.Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V", Limit: 100})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	page2, err := e.Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V", Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	if page2.Total != 25 || len(page2.Items) != 10 {
		t.Fatalf("expected 10 of 25, got %d of %d", len(page2.Items), page2.Total)
	}
	if !reflect.DeepEqual(page2.Items, all.Items[10:20]) {
		t.Error("page 2 does not match indices [10,20) of the full ranking")
	}
}

func TestEngine_Rank_NotFoundOrNotOwned(t *testing.T) {
	src := &fakeSources{}
	w := exampleWorld(t)
	e := NewEngine(EngineConfig{
		Requirements: w.requirements,
		Responses:    w.responses,
		Outcomes:     src,
		Snapshots:    src,
		Interests:    src,
		Circles:      src,
	})

	_, err := e.Rank(context.Background(), RankRequest{RequirementID: "missing", ViewerID: "V"})
	if !errors.Is(err, requirement.ErrRequirementNotFound) {
		t.Errorf("missing requirement: expected ErrRequirementNotFound, got %v", err)
	}

	_, err = e.Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "R"})
	if !errors.Is(err, requirement.ErrRequirementNotFound) {
		t.Errorf("foreign requirement: expected ErrRequirementNotFound, got %v", err)
	}

	if n := src.totalCalls(); n != 0 {
		t.Errorf("scoring must not run for unowned requirements, got %d signal queries", n)
	}
}

func TestEngine_Rank_EmptyBatchShortCircuits(t *testing.T) {
	src := &fakeSources{}
	w := newWorld()
	w.requirements.Insert(&requirement.Requirement{ID: "req-1", OwnerID: "V"})
	metrics := NewMetrics()

	e := NewEngine(EngineConfig{
		Requirements: w.requirements,
		Responses:    w.responses,
		Outcomes:     src,
		Snapshots:    src,
		Interests:    src,
		Circles:      src,
		Metrics:      metrics,
	})

	result, err := e.Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if result.Items == nil || len(result.Items) != 0 {
		t.Errorf("expected empty non-nil items, got %v", result.Items)
	}
	if n := src.totalCalls(); n != 0 {
		t.Errorf("expected no signal queries, got %d", n)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeEmpty)); got != 1 {
		t.Errorf("expected one empty outcome, got %v", got)
	}
}

func TestEngine_Rank_SignalFailureFailsRequest(t *testing.T) {
	dbErr := errors.New("too many connections")
	src := &fakeSources{interestErr: dbErr}
	w := exampleWorld(t)
	metrics := NewMetrics()

	e := NewEngine(EngineConfig{
		Requirements: w.requirements,
		Responses:    w.responses,
		Outcomes:     src,
		Snapshots:    src,
		Interests:    src,
		Circles:      src,
		Metrics:      metrics,
	})

	result, err := e.Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V"})
	if result != nil {
		t.Error("expected no partial result")
	}
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected dbErr, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.signalErrors.WithLabelValues(SignalInterest)); got != 1 {
		t.Errorf("expected signal error metric, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeError)); got != 1 {
		t.Errorf("expected error outcome, got %v", got)
	}
}

func TestEngine_Rank_InvalidStatus(t *testing.T) {
	w := exampleWorld(t)
	_, err := w.engine(nil).Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V", Status: "bogus"})
	if !errors.Is(err, response.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestEngine_Rank_StatusFilter(t *testing.T) {
	w := exampleWorld(t)
	w.respond(t, response.Response{ID: "resp-done", RequirementID: "req-1", CandidateID: "Z", ReferrerID: "Q", Status: response.StatusApproved})

	result, err := w.engine(nil).Rank(context.Background(), RankRequest{RequirementID: "req-1", ViewerID: "V", Status: "approved"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].ID != "resp-done" {
		t.Errorf("expected only the approved response, got %+v", result.Items)
	}
}
