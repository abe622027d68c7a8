package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(context.Context) error {
	return m.err
}

func decodeHealth(t *testing.T, rr *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{DBChecker: &mockHealthChecker{err: errors.New("down")}})

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("liveness must not depend on dependencies, got %d", rr.Code)
	}
	resp := decodeHealth(t, rr)
	if resp.Status != "healthy" || resp.Checks["runtime"] != "ok" || resp.Timestamp == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		config     HealthHandlersConfig
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "nothing configured",
			config:     HealthHandlersConfig{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "not_configured", "redis": "not_configured"},
		},
		{
			name:       "all healthy",
			config:     HealthHandlersConfig{DBChecker: &mockHealthChecker{}, RedisChecker: &mockHealthChecker{}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			config:     HealthHandlersConfig{DBChecker: &mockHealthChecker{}, RedisChecker: &mockHealthChecker{err: errors.New("refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "redis": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandlers(tt.config).Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			resp := decodeHealth(t, rr)
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}
