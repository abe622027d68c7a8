package audit

import (
	"context"
	"log/slog"

	"github.com/onnwee/refmarket/internal/middleware"
)

// Recorder writes status change entries for the API. Failures are logged and
// do not undo the change that was already committed.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default().
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// ResponseStatusChanged records a requirement owner approving or rejecting a
// response. The actor and request ID come from ctx.
func (r *Recorder) ResponseStatusChanged(ctx context.Context, responseID, from, to string) {
	entry := Entry{
		ActorID:    middleware.GetViewerID(ctx),
		EntityType: EntityResponse,
		EntityID:   responseID,
		Action:     "response." + to,
		FromStatus: from,
		ToStatus:   to,
		RequestID:  middleware.GetRequestID(ctx),
	}
	if _, err := r.repo.Record(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "failed to record audit log",
			"error", err,
			"response_id", responseID,
			"action", entry.Action)
	}
}
