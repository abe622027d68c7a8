package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/onnwee/refmarket/internal/reputation"
)

// ReputationReader returns a referrer's published reputation.
type ReputationReader interface {
	Get(ctx context.Context, referrerID string) (*reputation.View, error)
}

// ReputationHandlers serves referrer reputations.
type ReputationHandlers struct {
	reader ReputationReader
}

// NewReputationHandlers creates a new ReputationHandlers instance.
func NewReputationHandlers(reader ReputationReader) *ReputationHandlers {
	return &ReputationHandlers{reader: reader}
}

// GetReputation handles GET /referrers/{id}/reputation.
// The view is stale while a status change awaits the next recompute.
func (h *ReputationHandlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	referrerID := r.PathValue("id")
	if referrerID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Referrer ID is required")
		return
	}

	view, err := h.reader.Get(ctx, referrerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load reputation", "error", err, "referrer_id", referrerID)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load reputation")
		return
	}

	writeJSON(w, ctx, http.StatusOK, view)
}
