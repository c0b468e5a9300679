package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/audit"
	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes the ledger's read operations and the admin correction
// operation over HTTP. Credit/debit themselves are invoked by internal
// collaborators (payment, gateway, meter) rather than directly over HTTP.
type Handler struct {
	store  *Store
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a ledger Handler.
func NewHandler(store *Store, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{store: store, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with ledger routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/balance", h.handleBalance)
	r.Get("/history", h.handleHistory)
	r.Get("/member-usage", h.handleMemberUsage)
	r.Post("/{transactionId}/correct", h.handleCorrect)
	return r
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	bal, err := h.store.Balance(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("reading balance", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read balance")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"tenant_id":    bal.TenantID,
		"amount_cents": bal.Amount.ToCents(),
		"last_updated": bal.LastUpdated,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var typeFilter *string
	if t := r.URL.Query().Get("type"); t != "" {
		typeFilter = &t
	}

	txns, err := h.store.History(r.Context(), id.TenantID, HistoryFilter{
		Limit:  params.PageSize,
		Offset: params.Offset,
		Type:   typeFilter,
	})
	if err != nil {
		h.logger.Error("listing history", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list history")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"items": txns})
}

func (h *Handler) handleMemberUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	usage, err := h.store.MemberUsage(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("aggregating member usage", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to aggregate member usage")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"items": usage})
}

type correctRequest struct {
	Description string  `json:"description" validate:"required"`
	ReferenceID *string `json:"reference_id,omitempty"`
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "correction requires admin role")
		return
	}

	txnID, err := uuid.Parse(chi.URLParam(r, "transactionId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid transaction id")
		return
	}

	var req correctRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	reversal, err := h.store.Correct(r.Context(), txnID, req.Description, req.ReferenceID)
	if err != nil {
		h.logger.Error("correcting transaction", "error", err, "transaction_id", txnID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to correct transaction")
		return
	}

	detail, _ := json.Marshal(map[string]any{"original_transaction_id": txnID, "description": req.Description})
	h.audit.LogFromRequest(r, "correct", "credit_transaction", reversal.ID, detail)

	httpserver.Respond(w, http.StatusOK, reversal)
}
