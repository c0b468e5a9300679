package payment

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Handler exposes the webhook intake and the checkout/portal session
// bootstrap endpoints over HTTP.
type Handler struct {
	reconciler *Reconciler
	processor  Processor
	logger     *slog.Logger
}

// NewHandler creates a payment Handler.
func NewHandler(reconciler *Reconciler, processor Processor, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, processor: processor, logger: logger}
}

// Routes returns a chi.Router with payment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/webhook", h.handleWebhook)
	r.Post("/checkout-session", h.handleCheckoutSession)
	r.Post("/portal-session", h.handlePortalSession)
	return r
}

// handleWebhook is mounted outside tenant identity middleware; the
// processor signature is the only authentication (spec.md §4.D step 1).
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	result, err := h.reconciler.HandleWebhook(r.Context(), body, r.Header.Get("X-Processor-Signature"))
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			httpserver.RespondError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
			return
		}
		h.logger.Error("handling webhook", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to process webhook")
		return
	}

	httpserver.Respond(w, http.StatusOK, result)
}

type checkoutSessionRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

func (h *Handler) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	var req checkoutSessionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	url, err := h.processor.CreateCheckoutSession(r.Context(), id.TenantID.String(), req.AmountCents)
	if err != nil {
		h.logger.Error("creating checkout session", "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "processor_error", "failed to create checkout session")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) handlePortalSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.TenantID == uuid.Nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant identity")
		return
	}

	var req struct {
		ProcessorCustomerID string `json:"processor_customer_id" validate:"required"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	url, err := h.processor.CreatePortalSession(r.Context(), req.ProcessorCustomerID)
	if err != nil {
		h.logger.Error("creating portal session", "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "processor_error", "failed to create portal session")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"url": url})
}
