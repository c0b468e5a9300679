package snapshot

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes snapshot operations over HTTP.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a snapshot Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// Routes returns a chi.Router with snapshot routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Post("/{snapshotId}/restore", h.handleRestore)
	r.Delete("/{snapshotId}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	snaps, err := h.manager.ListByTenant(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("listing snapshots", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list snapshots")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"items": snaps})
}

type createRequest struct {
	InstanceID string   `json:"instance_id" validate:"required"`
	Name       *string  `json:"name,omitempty"`
	Type       string   `json:"type" validate:"required,oneof=nightly on-demand pre-restore"`
	Trigger    string   `json:"trigger" validate:"required,oneof=manual scheduled pre_update"`
	SourcePath string   `json:"source_path" validate:"required"`
	Plugins    []string `json:"plugins,omitempty"`
	ConfigHash *string  `json:"config_hash,omitempty"`
	Tier       string   `json:"tier" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	snap, err := h.manager.Create(r.Context(), CreateParams{
		TenantID:   id.TenantID,
		InstanceID: req.InstanceID,
		Name:       req.Name,
		Type:       req.Type,
		Trigger:    req.Trigger,
		SourcePath: req.SourcePath,
		Plugins:    req.Plugins,
		ConfigHash: req.ConfigHash,
		Tier:       req.Tier,
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			httpserver.RespondError(w, http.StatusConflict, "quota_exceeded", "on-demand snapshot quota exceeded")
			return
		}
		h.logger.Error("creating snapshot", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create snapshot")
		return
	}

	httpserver.Respond(w, http.StatusCreated, snap)
}

type restoreRequest struct {
	CurrentStatePath string `json:"current_state_path" validate:"required"`
	Tier             string `json:"tier" validate:"required"`
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	snapID, err := uuid.Parse(chi.URLParam(r, "snapshotId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid snapshot id")
		return
	}

	var req restoreRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.manager.Restore(r.Context(), snapID, req.CurrentStatePath, req.Tier); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "snapshot not found")
			return
		}
		h.logger.Error("restoring snapshot", "error", err, "snapshot_id", snapID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to restore snapshot")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	snapID, err := uuid.Parse(chi.URLParam(r, "snapshotId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid snapshot id")
		return
	}

	if err := h.manager.Delete(r.Context(), snapID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "snapshot not found")
			return
		}
		h.logger.Error("deleting snapshot", "error", err, "snapshot_id", snapID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete snapshot")
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
