package ranking

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	if len(m.Collectors()) != 4 {
		t.Errorf("expected 4 collectors, got %d", len(m.Collectors()))
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			t.Fatalf("Register() returned error: %v", err)
		}

		m.IncRequests(OutcomeSuccess)
		m.IncSignalErrors(SignalCircle)
		m.ObserveDuration(0.02)
		m.ObserveBatchSize(12)

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather() returned error: %v", err)
		}

		expected := map[string]bool{
			MetricRankingRequests:     false,
			MetricRankingDuration:     false,
			MetricRankingBatchSize:    false,
			MetricRankingSignalErrors: false,
		}
		for _, family := range families {
			if _, ok := expected[family.GetName()]; ok {
				expected[family.GetName()] = true
			}
		}
		for name, found := range expected {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		if err := NewMetrics().Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}
		if err := NewMetrics().Register(reg); err == nil {
			t.Error("expected error on duplicate registration")
		}
	})
}

func TestMetrics_BatchSizeHistogram(t *testing.T) {
	m := NewMetrics()
	m.ObserveBatchSize(3)
	m.ObserveBatchSize(40)

	var metric dto.Metric
	if err := m.batchSize.Write(&metric); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("expected 2 samples, got %d", got)
	}
	if got := metric.GetHistogram().GetSampleSum(); got != 43 {
		t.Errorf("expected sum 43, got %v", got)
	}
}
