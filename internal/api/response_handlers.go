package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/refmarket/internal/middleware"
	"github.com/onnwee/refmarket/internal/ranking"
	"github.com/onnwee/refmarket/internal/requirement"
	"github.com/onnwee/refmarket/internal/response"
)

// Ranker produces ranked pages of responses.
type Ranker interface {
	Rank(ctx context.Context, req ranking.RankRequest) (*ranking.RankResult, error)
}

// ResponseStore reads and updates single responses.
type ResponseStore interface {
	GetByID(ctx context.Context, id string) (*response.Response, error)
	UpdateStatus(ctx context.Context, id string, next response.Status) (*response.Response, error)
}

// OutcomeRecorder is told when a referrer's response history changes.
type OutcomeRecorder interface {
	MarkDirty(referrerID string)
}

// StatusAuditor records approved and rejected responses.
type StatusAuditor interface {
	ResponseStatusChanged(ctx context.Context, responseID, from, to string)
}

// ResponseHandlers serves the ranked listing and status changes.
type ResponseHandlers struct {
	ranker       Ranker
	responses    ResponseStore
	requirements requirement.Repository
	outcomes     OutcomeRecorder
	auditor      StatusAuditor
}

// NewResponseHandlers creates a new ResponseHandlers instance.
func NewResponseHandlers(ranker Ranker, responses ResponseStore, requirements requirement.Repository, outcomes OutcomeRecorder) *ResponseHandlers {
	return &ResponseHandlers{
		ranker:       ranker,
		responses:    responses,
		requirements: requirements,
		outcomes:     outcomes,
	}
}

// WithAuditor makes status changes be recorded by a.
func (h *ResponseHandlers) WithAuditor(a StatusAuditor) *ResponseHandlers {
	h.auditor = a
	return h
}

// StatusUpdateRequest is the body of PATCH /responses/{id}.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// ListRanked handles GET /requirements/{id}/responses?page=&limit=&status=.
func (h *ResponseHandlers) ListRanked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.GetViewerID(ctx)
	if viewerID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	query := r.URL.Query()
	page, err := optionalPositiveInt(query.Get("page"))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "page must be a positive integer")
		return
	}
	limit, err := optionalPositiveInt(query.Get("limit"))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
		return
	}

	requirementID := r.PathValue("id")
	result, err := h.ranker.Rank(ctx, ranking.RankRequest{
		RequirementID: requirementID,
		ViewerID:      viewerID,
		Page:          page,
		Limit:         limit,
		Status:        query.Get("status"),
	})
	if err != nil {
		switch {
		case errors.Is(err, requirement.ErrRequirementNotFound):
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Requirement not found")
		case errors.Is(err, response.ErrInvalidStatus):
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidStatus, "Unknown response status")
		case errors.Is(err, ranking.ErrMissingViewer):
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		default:
			slog.ErrorContext(ctx, "failed to rank responses", "error", err, "requirement_id", requirementID)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to rank responses")
		}
		return
	}

	writeJSON(w, ctx, http.StatusOK, result)
}

// UpdateStatus handles PATCH /responses/{id}. Only the owner of the
// requirement may approve or reject a response; other viewers get 404.
func (h *ResponseHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.GetViewerID(ctx)
	if viewerID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var body StatusUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	next, err := response.ParseStatus(body.Status)
	if err != nil || body.Status == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidStatus, "Unknown response status")
		return
	}
	if !next.Acted() {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidStatus, "Status must be approved or rejected")
		return
	}

	responseID := r.PathValue("id")
	current, err := h.responses.GetByID(ctx, responseID)
	if err != nil {
		h.writeLookupError(w, ctx, err, responseID)
		return
	}
	req, err := h.requirements.GetByID(ctx, current.RequirementID)
	if err != nil {
		h.writeLookupError(w, ctx, err, responseID)
		return
	}
	if !req.IsOwner(viewerID) {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Response not found")
		return
	}

	updated, err := h.responses.UpdateStatus(ctx, responseID, next)
	if err != nil {
		if errors.Is(err, response.ErrInvalidTransition) {
			WriteError(w, ctx, http.StatusConflict, ErrCodeInvalidTransition,
				"Cannot change status from "+current.Status.String()+" to "+next.String())
			return
		}
		h.writeLookupError(w, ctx, err, responseID)
		return
	}

	h.outcomes.MarkDirty(updated.ReferrerID)
	if h.auditor != nil {
		h.auditor.ResponseStatusChanged(ctx, updated.ID, current.Status.String(), updated.Status.String())
	}
	slog.InfoContext(ctx, "response status changed",
		"response_id", updated.ID,
		"referrer_id", updated.ReferrerID,
		"status", updated.Status)

	writeJSON(w, ctx, http.StatusOK, updated)
}

func (h *ResponseHandlers) writeLookupError(w http.ResponseWriter, ctx context.Context, err error, responseID string) {
	if errors.Is(err, response.ErrResponseNotFound) || errors.Is(err, requirement.ErrRequirementNotFound) {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Response not found")
		return
	}
	slog.ErrorContext(ctx, "failed to update response status", "error", err, "response_id", responseID)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update response")
}

// errNotPositive rejects page and limit values below 1.
var errNotPositive = errors.New("must be at least 1")

// optionalPositiveInt parses s, treating the empty string as 0 so the engine
// default applies.
func optionalPositiveInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errNotPositive
	}
	return n, nil
}
