package fleet

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes fleet control operations over HTTP, restricted to
// admin identities.
type Handler struct {
	registry     *Registry
	orchestrator *Orchestrator
	drain        *DrainController
	logger       *slog.Logger
}

// NewHandler creates a fleet Handler.
func NewHandler(registry *Registry, orchestrator *Orchestrator, drain *DrainController, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, orchestrator: orchestrator, drain: drain, logger: logger}
}

// Routes returns a chi.Router with fleet routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/nodes", h.handleListNodes)
	r.Get("/nodes/{nodeId}", h.handleGetNode)
	r.Post("/nodes/{nodeId}/heartbeat", h.handleHeartbeat)
	r.Post("/nodes/{nodeId}/drain", h.handleDrain)
	r.Post("/nodes/{nodeId}/cancel-drain", h.handleCancelDrain)
	r.Post("/recovery-events/{eventId}/retry-waiting", h.handleRetryWaiting)
	r.Post("/migrate", h.handleMigrateTenant)
	return r
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "fleet control requires admin role")
		return false
	}
	return true
}

func (h *Handler) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	nodes, err := h.registry.ListNodes(r.Context())
	if err != nil {
		h.logger.Error("listing nodes", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list nodes")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": nodes})
}

func (h *Handler) handleGetNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	node, err := h.registry.GetNode(r.Context(), chi.URLParam(r, "nodeId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "node not found")
			return
		}
		h.logger.Error("reading node", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read node")
		return
	}
	httpserver.Respond(w, http.StatusOK, node)
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	if _, err := h.registry.RegisterNode(r.Context(), nodeID); err != nil {
		h.logger.Error("registering node on heartbeat", "error", err, "node_id", nodeID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to record heartbeat")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	nodeID := chi.URLParam(r, "nodeId")
	if err := h.drain.DrainNode(r.Context(), nodeID); err != nil {
		h.logger.Error("draining node", "error", err, "node_id", nodeID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to drain node")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "drained"})
}

func (h *Handler) handleCancelDrain(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	nodeID := chi.URLParam(r, "nodeId")
	if err := h.drain.CancelDrain(r.Context(), nodeID); err != nil {
		h.logger.Error("cancelling drain", "error", err, "node_id", nodeID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to cancel drain")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *Handler) handleRetryWaiting(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	eventID := chi.URLParam(r, "eventId")
	event, err := h.orchestrator.RetryWaiting(r.Context(), eventID)
	if err != nil {
		h.logger.Error("retrying waiting recovery items", "error", err, "event_id", eventID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to retry waiting items")
		return
	}
	httpserver.Respond(w, http.StatusOK, event)
}

type migrateTenantRequest struct {
	BotID        string `json:"bot_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

func (h *Handler) handleMigrateTenant(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req migrateTenantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.drain.MigrateTenant(r.Context(), req.BotID, req.TargetNodeID); err != nil {
		switch {
		case errors.Is(err, ErrSameNode), errors.Is(err, ErrNoNodeAssigned):
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, ErrNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "bot instance not found")
		default:
			h.logger.Error("migrating tenant", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to migrate tenant")
		}
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "migrated"})
}
