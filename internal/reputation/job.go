package reputation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/refmarket/internal/jobs"
	"github.com/onnwee/refmarket/internal/response"
	"github.com/onnwee/refmarket/internal/tracing"
)

// OutcomeSource provides response outcomes per referrer.
type OutcomeSource interface {
	ReferrerOutcomes(ctx context.Context, referrerIDs []string) (map[string]response.Outcome, error)
}

// RecomputeJobConfig configures the reputation recompute job.
type RecomputeJobConfig struct {
	// Interval is the duration between recompute cycles.
	Interval time.Duration
	// Timeout for each recompute cycle.
	Timeout time.Duration
	// BatchSize caps how many referrers are loaded per outcome query.
	BatchSize int
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for recompute tracking.
	Metrics *Metrics
	// JobMetrics for the shared background job metrics.
	JobMetrics jobs.Reporter
}

const (
	DefaultRecomputeInterval = 30 * time.Second
	DefaultRecomputeTimeout  = 30 * time.Second
	DefaultBatchSize         = 500
)

// RecomputeJob periodically recomputes reputations for dirty referrers.
type RecomputeJob struct {
	config   RecomputeJobConfig
	tracker  *DirtyTracker
	outcomes OutcomeSource
	store    Store
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecomputeJob creates a new reputation recompute job.
func NewRecomputeJob(config RecomputeJobConfig, tracker *DirtyTracker, outcomes OutcomeSource, store Store) *RecomputeJob {
	if config.Interval <= 0 {
		config.Interval = DefaultRecomputeInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRecomputeTimeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RecomputeJob{
		config:   config,
		tracker:  tracker,
		outcomes: outcomes,
		store:    store,
		now:      time.Now,
	}
}

// Start begins the periodic recompute job.
// Returns immediately; the job runs in a background goroutine.
func (j *RecomputeJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for the current cycle to finish.
func (j *RecomputeJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RecomputeJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RecomputeJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("reputation recompute job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("reputation recompute job stopping due to stop signal")
			return
		case <-ticker.C:
			j.recomputeDirty(ctx)
		}
	}
}

// RecomputeNow immediately recomputes all dirty referrers.
func (j *RecomputeJob) RecomputeNow(ctx context.Context) {
	j.recomputeDirty(ctx)
}

// recomputeDirty loads outcomes for dirty referrers in batches and stores
// fresh reputations. A failed batch leaves its referrers dirty for the next cycle.
func (j *RecomputeJob) recomputeDirty(parentCtx context.Context) {
	dirty := j.tracker.DirtyReferrers()
	if len(dirty) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()
	ctx, endSpan := tracing.StartSpan(ctx, "reputation.recompute")
	defer endSpan(nil)
	tracing.SetAttributes(ctx, attribute.Int("reputation.dirty_count", len(dirty)))

	start := time.Now()
	var saved, failed int

	j.config.Logger.Info("recomputing referrer reputations", "dirty_count", len(dirty))

	for lo := 0; lo < len(dirty); lo += j.config.BatchSize {
		if ctx.Err() != nil {
			j.config.Logger.Error("reputation recompute timeout exceeded",
				"processed", saved+failed,
				"total", len(dirty),
				"timeout", j.config.Timeout)
			j.recordError("timeout")
			failed += len(dirty) - (saved + failed)
			break
		}

		hi := lo + j.config.BatchSize
		if hi > len(dirty) {
			hi = len(dirty)
		}
		batch := dirty[lo:hi]

		outcomes, err := j.outcomes.ReferrerOutcomes(ctx, batch)
		if err != nil {
			j.config.Logger.Error("failed to load referrer outcomes",
				"batch_size", len(batch),
				"error", err)
			j.recordError("outcome_query")
			failed += len(batch)
			continue
		}

		for _, id := range batch {
			rep := Compute(id, outcomes[id], j.now())
			if err := j.store.Save(ctx, rep); err != nil {
				j.config.Logger.Error("failed to save reputation",
					"referrer_id", id,
					"error", err)
				j.recordError("store_error")
				failed++
				continue
			}
			j.tracker.ClearDirty(id, start)
			saved++
		}
	}

	duration := time.Since(start).Seconds()
	status := jobs.StatusSuccess
	if failed > 0 {
		status = jobs.StatusFailure
	}

	if j.config.Metrics != nil {
		j.config.Metrics.IncRecomputeTotal()
		j.config.Metrics.ObserveRecomputeDuration(duration)
		j.config.Metrics.SetLastRecomputeTimestamp(float64(time.Now().Unix()))
		j.config.Metrics.SetLastRecomputeReferrerCount(float64(saved))
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(jobs.JobTypeReputationRecompute, status)
		j.config.JobMetrics.ObserveJobDuration(jobs.JobTypeReputationRecompute, duration)
	}

	tracing.SetAttributes(ctx,
		attribute.Int("reputation.saved", saved),
		attribute.Int("reputation.failed", failed))
	j.config.Logger.Info("reputation recompute completed",
		"duration_seconds", duration,
		"referrers_saved", saved,
		"referrers_failed", failed)
}

func (j *RecomputeJob) recordError(kind string) {
	if j.config.Metrics != nil {
		j.config.Metrics.IncRecomputeErrors()
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobErrors(jobs.JobTypeReputationRecompute, kind)
	}
}
