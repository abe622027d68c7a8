package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRecomputeTotal             = "reputation_recompute_total"
	MetricRecomputeErrors            = "reputation_recompute_errors_total"
	MetricRecomputeDuration          = "reputation_recompute_duration_seconds"
	MetricLastRecomputeTimestamp     = "reputation_last_recompute_timestamp"
	MetricLastRecomputeReferrerCount = "reputation_last_recompute_referrer_count"
)

// Metrics contains Prometheus metrics for reputation recomputation.
type Metrics struct {
	recomputeTotal             prometheus.Counter
	recomputeErrors            prometheus.Counter
	recomputeDuration          prometheus.Histogram
	lastRecomputeTimestamp     prometheus.Gauge
	lastRecomputeReferrerCount prometheus.Gauge
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		recomputeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeTotal,
			Help: "Total number of reputation recompute cycles",
		}),
		recomputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeErrors,
			Help: "Total number of reputation recompute errors",
		}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRecomputeDuration,
			Help:    "Histogram of reputation recompute cycle duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}),
		lastRecomputeTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeTimestamp,
			Help: "Unix timestamp of the last reputation recompute cycle",
		}),
		lastRecomputeReferrerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeReferrerCount,
			Help: "Number of referrers saved in the last recompute cycle",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRecomputeTotal increments the recompute cycle counter.
func (m *Metrics) IncRecomputeTotal() {
	m.recomputeTotal.Inc()
}

// IncRecomputeErrors increments the recompute error counter.
func (m *Metrics) IncRecomputeErrors() {
	m.recomputeErrors.Inc()
}

// ObserveRecomputeDuration records a cycle duration sample.
func (m *Metrics) ObserveRecomputeDuration(seconds float64) {
	m.recomputeDuration.Observe(seconds)
}

// SetLastRecomputeTimestamp sets the last cycle timestamp gauge.
func (m *Metrics) SetLastRecomputeTimestamp(ts float64) {
	m.lastRecomputeTimestamp.Set(ts)
}

// SetLastRecomputeReferrerCount sets the number of referrers saved in the last cycle.
func (m *Metrics) SetLastRecomputeReferrerCount(n float64) {
	m.lastRecomputeReferrerCount.Set(n)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recomputeTotal,
		m.recomputeErrors,
		m.recomputeDuration,
		m.lastRecomputeTimestamp,
		m.lastRecomputeReferrerCount,
	}
}
