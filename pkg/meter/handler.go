package meter

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
	"github.com/botfleet/creditcore/internal/telemetry"
)

// Handler exposes a narrow emit endpoint for internal collaborators (the
// gateway, the adapter socket) that run out-of-process from this service.
type Handler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewHandler creates a meter Handler.
func NewHandler(pipeline *Pipeline, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// Routes returns a chi.Router with the emit route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/events", h.handleEmit)
	return r
}

type emitRequest struct {
	Capability string   `json:"capability" validate:"required"`
	Provider   string   `json:"provider" validate:"required"`
	Cost       float64  `json:"cost" validate:"gte=0"`
	Charge     float64  `json:"charge" validate:"gte=0"`
	SessionID  *string  `json:"session_id,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
}

func (h *Handler) handleEmit(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID.String() == "" {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	var req emitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	event := NewEvent(id.TenantID.String(), req.Capability, req.Provider, req.Cost, req.Charge, req.SessionID, req.Duration)
	if err := h.pipeline.Emit(event); err != nil {
		h.logger.Error("emitting meter event", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to record usage event")
		return
	}
	telemetry.MeterEventsEmittedTotal.Inc()

	httpserver.Respond(w, http.StatusAccepted, map[string]string{"id": event.ID})
}
