package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/telemetry"
	"github.com/botfleet/creditcore/pkg/ledger"
	"github.com/botfleet/creditcore/pkg/money"
)

// Result summarizes the outcome of processing one webhook.
type Result struct {
	Handled      bool
	CreditedCents int64
	Tenant       string
	EventType    string
}

// Reconciler projects processor webhooks onto the credit ledger
// (spec.md §4.D). It holds no HTTP concerns; Handler wraps it for transport.
type Reconciler struct {
	processor Processor
	ledger    *ledger.Store
	store     *Store
	logger    *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(processor Processor, ledgerStore *ledger.Store, store *Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{processor: processor, ledger: ledgerStore, store: store, logger: logger}
}

// HandleWebhook verifies the webhook signature, projects it onto a
// CanonicalEvent, and applies it idempotently to the ledger
// (spec.md §4.D steps 1-5).
func (r *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (Result, error) {
	event, err := r.processor.HandleWebhook(ctx, rawBody, signatureHeader)
	if err != nil {
		telemetry.PaymentWebhooksTotal.WithLabelValues("invalid_signature").Inc()
		return Result{}, fmt.Errorf("verifying webhook: %w", ErrInvalidSignature)
	}

	result := Result{EventType: event.Type, Tenant: event.TenantID}

	// Idempotency: a reference id already recorded means this webhook was
	// already applied (processor retries, duplicate delivery). Report
	// success without reapplying (spec.md §4.D step 3).
	if event.ReferenceID != "" {
		seen, err := r.ledger.HasReferenceID(ctx, event.ReferenceID)
		if err != nil {
			return Result{}, fmt.Errorf("checking idempotency: %w", err)
		}
		if seen {
			telemetry.PaymentWebhooksTotal.WithLabelValues("duplicate").Inc()
			result.Handled = true
			return result, nil
		}
	}

	switch {
	case event.Type == EventCustomerDeleted:
		// No ledger effect; nothing further to do beyond acknowledging.
		result.Handled = true

	case IsCreditAdding(event.Type):
		if err := r.applyCredit(ctx, event); err != nil {
			return Result{}, err
		}
		result.Handled = true
		result.CreditedCents = event.AmountCents

	case event.Type == EventSubscriptionUpdated:
		if event.ProcessorCustomerID != "" && event.TenantID != "" {
			tenantID, err := uuid.Parse(event.TenantID)
			if err == nil {
				if err := r.store.UpsertCustomerMapping(ctx, tenantID, event.ProcessorCustomerID); err != nil {
					r.logger.Error("upserting customer mapping", "error", err, "tenant", event.TenantID)
				}
			}
		}
		result.Handled = true

	default:
		r.logger.Warn("unhandled canonical event type", "type", event.Type)
		result.Handled = false
	}

	telemetry.PaymentWebhooksTotal.WithLabelValues("handled").Inc()
	return result, nil
}

func (r *Reconciler) applyCredit(ctx context.Context, event CanonicalEvent) error {
	tenantID, err := uuid.Parse(event.TenantID)
	if err != nil {
		return fmt.Errorf("parsing tenant id %q: %w", event.TenantID, err)
	}

	var referenceID *string
	if event.ReferenceID != "" {
		ref := event.ReferenceID
		referenceID = &ref
	}

	_, err = r.ledger.Credit(ctx, ledger.CreditParams{
		TenantID:    tenantID,
		Amount:      money.FromCents(event.AmountCents),
		Type:        ledger.TypePurchase,
		Description: fmt.Sprintf("payment processor event %s", event.Type),
		ReferenceID: referenceID,
	})
	if err != nil {
		return fmt.Errorf("crediting ledger: %w", err)
	}

	if event.ProcessorCustomerID != "" {
		if err := r.store.UpsertCustomerMapping(ctx, tenantID, event.ProcessorCustomerID); err != nil {
			r.logger.Error("upserting customer mapping", "error", err, "tenant", event.TenantID)
		}
	}

	return nil
}
