package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker is implemented by dependencies the readiness probe checks.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// readyTimeout bounds all readiness checks together.
const readyTimeout = 5 * time.Second

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	checkers map[string]HealthChecker
}

// HealthHandlersConfig configures the health check handlers.
// A nil checker is reported as "not_configured" and does not fail readiness.
type HealthHandlersConfig struct {
	DBChecker    HealthChecker
	RedisChecker HealthChecker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		checkers: map[string]HealthChecker{
			"database": config.DBChecker,
			"redis":    config.RedisChecker,
		},
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness). It succeeds whenever the process can serve.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness). Returns 503 when a configured
// dependency fails its check.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for name, checker := range h.checkers {
		if checker == nil {
			checks[name] = "not_configured"
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			checks[name] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, r.Context(), code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
