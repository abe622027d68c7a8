package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/refmarket/internal/requirement"
	"github.com/onnwee/refmarket/internal/response"
	"github.com/onnwee/refmarket/internal/tracing"
)

// RequirementSource loads requirements for the ownership check.
type RequirementSource interface {
	GetByID(ctx context.Context, id string) (*requirement.Requirement, error)
}

// ResponseSource lists the responses submitted against a requirement.
type ResponseSource interface {
	ListByRequirement(ctx context.Context, requirementID string, status response.Status) ([]response.Response, error)
}

// EngineConfig holds the collaborators of an Engine.
type EngineConfig struct {
	Requirements RequirementSource
	Responses    ResponseSource
	Outcomes     OutcomeSource
	Snapshots    SnapshotSource
	Interests    InterestSource
	Circles      CircleSource

	Weights *Weights     // Optional, defaults to DefaultWeights()
	Metrics *Metrics     // Optional
	Logger  *slog.Logger // Optional, defaults to slog.Default()
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for activity and interest windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine ranks the responses to a requirement for its owner.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	requirements RequirementSource
	responses    ResponseSource
	collector    *Collector
	weights      *Weights
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// RankResult is one page of ranked responses.
type RankResult struct {
	Items []ScoredResponse `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// NewEngine creates a ranking engine.
func NewEngine(cfg EngineConfig, opts ...Option) *Engine {
	weights := cfg.Weights
	if weights == nil {
		weights = DefaultWeights()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		requirements: cfg.Requirements,
		responses:    cfg.Responses,
		collector:    NewCollector(cfg.Outcomes, cfg.Snapshots, cfg.Interests, cfg.Circles),
		weights:      weights,
		metrics:      cfg.Metrics,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank scores every response to the requirement in the requested status,
// sorts them and returns one page.
//
// Returns requirement.ErrRequirementNotFound when the requirement does not
// exist or the viewer does not own it; scoring never runs in that case.
// Any data-access failure fails the whole request.
func (e *Engine) Rank(ctx context.Context, req RankRequest) (result *RankResult, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "ranking.Rank")
	defer func() {
		endSpan(err)
		e.record(err, result, time.Since(start))
	}()

	req, status, err := req.normalized()
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx,
		attribute.String("ranking.requirement_id", req.RequirementID),
		attribute.String("ranking.status", string(status)),
		attribute.Int("ranking.page", req.Page),
		attribute.Int("ranking.limit", req.Limit),
	)

	reqm, err := e.requirements.GetByID(ctx, req.RequirementID)
	if err != nil {
		if errors.Is(err, requirement.ErrRequirementNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load requirement: %w", err)
	}
	if !reqm.IsOwner(req.ViewerID) {
		return nil, requirement.ErrRequirementNotFound
	}

	responses, err := e.responses.ListByRequirement(ctx, req.RequirementID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	tracing.SetAttributes(ctx, attribute.Int("ranking.batch_size", len(responses)))

	if len(responses) == 0 {
		return &RankResult{Items: []ScoredResponse{}, Page: req.Page, Limit: req.Limit}, nil
	}

	now := e.now()
	signals, err := e.collector.Collect(ctx, req.ViewerID, responses, now)
	if err != nil {
		return nil, err
	}
	tracing.AddEvent(ctx, "signals_collected",
		attribute.Int("ranking.referrers", len(signals.Outcomes)),
		attribute.Int("ranking.candidates", len(signals.Snapshots)))

	scored := make([]ScoredResponse, len(responses))
	for i, r := range responses {
		scored[i] = Compose(r, signals, now, e.weights)
	}
	SortScored(scored)

	result = &RankResult{
		Items: Paginate(scored, req.Page, req.Limit),
		Total: len(scored),
		Page:  req.Page,
		Limit: req.Limit,
	}

	e.logger.DebugContext(ctx, "ranked responses",
		"requirement_id", req.RequirementID,
		"responses", len(scored),
		"page", req.Page,
		"limit", req.Limit,
		"duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// record updates metrics for one Rank call.
func (e *Engine) record(err error, result *RankResult, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveDuration(elapsed.Seconds())

	switch {
	case err == nil && result != nil && result.Total == 0:
		e.metrics.IncRequests(OutcomeEmpty)
		e.metrics.ObserveBatchSize(0)
	case err == nil && result != nil:
		e.metrics.IncRequests(OutcomeSuccess)
		e.metrics.ObserveBatchSize(result.Total)
	case errors.Is(err, requirement.ErrRequirementNotFound):
		e.metrics.IncRequests(OutcomeNotFound)
	case errors.Is(err, response.ErrInvalidStatus), errors.Is(err, ErrMissingViewer):
		e.metrics.IncRequests(OutcomeInvalid)
	default:
		e.metrics.IncRequests(OutcomeError)
		if signal := signalName(err); signal != "" {
			e.metrics.IncSignalErrors(signal)
		}
	}
}
