package vault

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes vault operations over HTTP. Every route requires admin
// identity: credentials are platform-level provider secrets, not
// tenant-scoped resources (spec.md §4.I).
type Handler struct {
	vault  *Vault
	logger *slog.Logger
}

// NewHandler creates a vault Handler.
func NewHandler(vault *Vault, logger *slog.Logger) *Handler {
	return &Handler{vault: vault, logger: logger}
}

// Routes returns a chi.Router with vault routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleStore)
	r.Get("/{credentialId}", h.handleGet)
	r.Post("/{credentialId}/rotate", h.handleRotate)
	r.Post("/{credentialId}/activate", h.handleSetActive(true))
	r.Post("/{credentialId}/deactivate", h.handleSetActive(false))
	r.Delete("/{credentialId}", h.handleDelete)
	return r
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "vault access requires admin role")
		return identity.Identity{}, false
	}
	return id, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	provider := r.URL.Query().Get("provider")
	var (
		summaries []Summary
		err       error
	)
	if provider != "" {
		summaries, err = h.vault.ListByProvider(r.Context(), provider)
	} else {
		summaries, err = h.vault.List(r.Context())
	}
	if err != nil {
		h.logger.Error("listing credentials", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list credentials")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"items": summaries})
}

type storeRequest struct {
	Provider   string  `json:"provider" validate:"required"`
	KeyName    string  `json:"key_name" validate:"required"`
	Value      string  `json:"value" validate:"required"`
	AuthType   string  `json:"auth_type" validate:"required,oneof=header bearer basic"`
	AuthHeader *string `json:"auth_header,omitempty"`
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req storeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	summary, err := h.vault.Store(r.Context(), StoreParams{
		Provider:   req.Provider,
		KeyName:    req.KeyName,
		Plaintext:  req.Value,
		AuthType:   req.AuthType,
		AuthHeader: req.AuthHeader,
		CreatedBy:  id.Subject,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidAuthType) {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		h.logger.Error("storing credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to store credential")
		return
	}

	httpserver.Respond(w, http.StatusCreated, summary)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	credID, err := uuid.Parse(chi.URLParam(r, "credentialId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}

	summary, err := h.vault.Get(r.Context(), credID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "credential not found")
			return
		}
		h.logger.Error("reading credential", "error", err, "credential_id", credID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read credential")
		return
	}

	httpserver.Respond(w, http.StatusOK, summary)
}

type rotateRequest struct {
	Value string `json:"value" validate:"required"`
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	credID, err := uuid.Parse(chi.URLParam(r, "credentialId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}

	var req rotateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	summary, err := h.vault.Rotate(r.Context(), credID, req.Value, id.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "credential not found")
			return
		}
		h.logger.Error("rotating credential", "error", err, "credential_id", credID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to rotate credential")
		return
	}

	httpserver.Respond(w, http.StatusOK, summary)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.requireAdmin(w, r)
		if !ok {
			return
		}

		credID, err := uuid.Parse(chi.URLParam(r, "credentialId"))
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
			return
		}

		if err := h.vault.SetActive(r.Context(), credID, active, id.Subject); err != nil {
			if errors.Is(err, ErrNotFound) {
				httpserver.RespondError(w, http.StatusNotFound, "not_found", "credential not found")
				return
			}
			h.logger.Error("updating credential active flag", "error", err, "credential_id", credID)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update credential")
			return
		}

		httpserver.Respond(w, http.StatusOK, map[string]bool{"isActive": active})
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	credID, err := uuid.Parse(chi.URLParam(r, "credentialId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}

	if err := h.vault.Delete(r.Context(), credID, id.Subject); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "credential not found")
			return
		}
		h.logger.Error("deleting credential", "error", err, "credential_id", credID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete credential")
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
