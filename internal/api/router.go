package api

import (
	"net/http"
)

// RouterConfig wires handlers and per-route middleware into the API mux.
type RouterConfig struct {
	Responses  *ResponseHandlers
	Reputation *ReputationHandlers
	Health     *HealthHandlers

	// Authenticate guards every route except health and metrics.
	Authenticate func(http.Handler) http.Handler
	// RankingLimiter is applied to the ranked listing after authentication. Optional.
	RankingLimiter func(http.Handler) http.Handler
	// Metrics serves /metrics. Optional.
	Metrics http.Handler
}

// NewRouter returns the API routes. Unknown paths get the JSON 404 envelope.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	authed := func(h http.Handler) http.Handler {
		if cfg.Authenticate == nil {
			return h
		}
		return cfg.Authenticate(h)
	}

	ranked := http.Handler(http.HandlerFunc(cfg.Responses.ListRanked))
	if cfg.RankingLimiter != nil {
		ranked = cfg.RankingLimiter(ranked)
	}
	mux.Handle("GET /requirements/{id}/responses", authed(ranked))
	mux.Handle("PATCH /responses/{id}", authed(http.HandlerFunc(cfg.Responses.UpdateStatus)))
	mux.Handle("GET /referrers/{id}/reputation", authed(http.HandlerFunc(cfg.Reputation.GetReputation)))

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	return mux
}
