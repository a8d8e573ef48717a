package api

import (
	"context"
	"net/http"

	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/domain/model"
)

// HeaderAPIKey carries the update credential.
const HeaderAPIKey = "X-API-Key"

// UpdateDependencies defines the write path.
type UpdateDependencies interface {
	SubmitUpdate(ctx context.Context, raw, credential string, force bool) (service.UpdateResult, error)
}

// updateRequest mirrors the OpenAPI schema for POST /api/update.
type updateRequest struct {
	Message string `json:"message"`
	Force   bool   `json:"force"`
}

type updateResponse struct {
	Success              bool        `json:"success"`
	Date                 *model.Date `json:"date"`
	Message              string      `json:"message"`
	Created              bool        `json:"created,omitempty"`
	RequiresConfirmation bool        `json:"requires_confirmation,omitempty"`
}

// UpdateHandler handles daily update submissions.
type UpdateHandler struct {
	deps UpdateDependencies
}

// NewUpdateHandler creates a new update handler.
func NewUpdateHandler(deps UpdateDependencies) *UpdateHandler {
	return &UpdateHandler{deps: deps}
}

// HandleUpdate handles POST /api/update requests.
func (h *UpdateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_update"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeKind(w, WrapKind(op, ErrBadRequest, err), "bad_request", "request body must be JSON with a message field")
		return
	}

	res, err := h.deps.SubmitUpdate(r.Context(), req.Message, r.Header.Get(HeaderAPIKey), req.Force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
		return
	}

	switch res.Outcome {
	case service.OutcomeAccepted:
		writeJSON(w, http.StatusOK, updateResponse{
			Success: true,
			Date:    res.Date,
			Message: res.Message,
			Created: res.Created,
		})
	case service.OutcomeRequiresConfirmation:
		writeJSON(w, http.StatusOK, updateResponse{
			Date:                 res.Date,
			Message:              res.Message,
			RequiresConfirmation: true,
		})
	default:
		writeRejection(w, op, res)
	}
}

func writeRejection(w http.ResponseWriter, op string, res service.UpdateResult) {
	switch res.Reason {
	case service.ReasonUnauthorized:
		writeKind(w, NewKind(op, ErrUnauthorized), string(res.Reason), res.Message)
	case service.ReasonInvalidEntry:
		writeKind(w, NewKind(op, ErrBadRequest), string(res.Reason), res.Message, res.Violations...)
	default:
		writeKind(w, NewKind(op, ErrBadRequest), string(res.Reason), res.Message)
	}
}
