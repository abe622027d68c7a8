package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingRequests     = "ranking_requests_total"
	MetricRankingDuration     = "ranking_duration_seconds"
	MetricRankingBatchSize    = "ranking_batch_size"
	MetricRankingSignalErrors = "ranking_signal_errors_total"
)

// Outcome label values for ranking_requests_total.
const (
	OutcomeSuccess  = "success"
	OutcomeEmpty    = "empty"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics contains Prometheus metrics for response ranking.
// All operations are thread-safe.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     prometheus.Histogram
	batchSize    prometheus.Histogram
	signalErrors *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRankingRequests,
			Help: "Total number of ranking requests by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingDuration,
			Help:    "Histogram of ranking request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingBatchSize,
			Help:    "Number of responses scored per ranking request",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		signalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRankingSignalErrors,
			Help: "Total number of failed signal collections by signal",
		}, []string{"signal"}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRequests increments the request counter for outcome.
func (m *Metrics) IncRequests(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a ranking duration sample.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.duration.Observe(seconds)
}

// ObserveBatchSize records how many responses were scored.
func (m *Metrics) ObserveBatchSize(n int) {
	m.batchSize.Observe(float64(n))
}

// IncSignalErrors increments the failure counter for signal.
func (m *Metrics) IncSignalErrors(signal string) {
	m.signalErrors.WithLabelValues(signal).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests,
		m.duration,
		m.batchSize,
		m.signalErrors,
	}
}
