package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes pre-check and post-debit as internal endpoints for the
// request-routing layer that fronts tenant bot sessions.
type Handler struct {
	gate   *Gate
	logger *slog.Logger
}

// NewHandler creates a gateway Handler.
func NewHandler(gate *Gate, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

// Routes returns a chi.Router with the gate routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/pre-check", h.handlePreCheck)
	r.Post("/post-debit", h.handlePostDebit)
	return r
}

type preCheckRequest struct {
	EstimatedCostCents int64 `json:"estimated_cost_cents" validate:"gte=0"`
	GraceBufferCents   int64 `json:"grace_buffer_cents,omitempty"`
}

func (h *Handler) handlePreCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	var req preCheckRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	decision, err := h.gate.PreCheck(r.Context(), id.TenantID, req.EstimatedCostCents)
	if err != nil {
		h.logger.Error("pre-check", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to evaluate pre-check")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"decision": decision})
}

type postDebitRequest struct {
	CostUSD    float64 `json:"cost_usd" validate:"gte=0"`
	Capability string  `json:"capability" validate:"required"`
	Provider   string  `json:"provider" validate:"required"`
	Model      string  `json:"model,omitempty"`
}

func (h *Handler) handlePostDebit(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	var req postDebitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	margin := h.gate.ResolveMargin(req.Provider, req.Model)
	newBalance, err := h.gate.PostDebit(r.Context(), id.TenantID, req.CostUSD, margin, req.Capability, req.Provider)
	if err != nil {
		h.logger.Error("post-debit", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to post debit")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"balance_cents": newBalance, "margin": margin})
}
