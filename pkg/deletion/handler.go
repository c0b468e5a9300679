package deletion

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes the deletion executor as an admin-only endpoint.
type Handler struct {
	executor *Executor
	logger   *slog.Logger
}

// NewHandler creates a deletion Handler.
func NewHandler(executor *Executor, logger *slog.Logger) *Handler {
	return &Handler{executor: executor, logger: logger}
}

// Routes returns a chi.Router with the deletion route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{tenantId}", h.handleExecute)
	return r
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "deletion requires admin role")
		return
	}

	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}

	processorCustomerID := r.URL.Query().Get("processor_customer_id")
	report := h.executor.Execute(r.Context(), tenantID, processorCustomerID)

	httpserver.Respond(w, http.StatusOK, report)
}
