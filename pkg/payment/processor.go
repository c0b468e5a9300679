// Package payment reconciles external payment-processor events against the
// credit ledger. The processor itself (Stripe, PayRam, ...) is an external
// collaborator reached only through the narrow Processor interface below
// (spec.md §6); this package never imports a vendor SDK.
package payment

import (
	"context"
	"errors"
)

// CanonicalEvent is the processor-agnostic projection of a webhook payload
// (spec.md §4.D step 2).
type CanonicalEvent struct {
	Type                string
	TenantID            string
	ProcessorCustomerID string
	AmountCents         int64
	ReferenceID         string
	Metadata            map[string]string
}

// Known canonical event types.
const (
	EventCheckoutCompleted      = "checkout.completed"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventSubscriptionUpdated    = "subscription.updated"
	EventCustomerDeleted        = "customer.deleted"
)

// creditAddingEventTypes are the canonical event types that result in a
// ledger credit (spec.md §4.D step 4).
var creditAddingEventTypes = map[string]bool{
	EventCheckoutCompleted:      true,
	EventPaymentIntentSucceeded: true,
}

// IsCreditAdding reports whether eventType results in a ledger credit.
func IsCreditAdding(eventType string) bool {
	return creditAddingEventTypes[eventType]
}

// Processor is the external payment-processor interface the core consumes
// (spec.md §6). Implementations live outside this module.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, tenantID string, amountCents int64) (sessionURL string, err error)
	CreatePortalSession(ctx context.Context, processorCustomerID string) (portalURL string, err error)
	SetupPaymentMethod(ctx context.Context, tenantID string) (setupURL string, err error)
	ListPaymentMethods(ctx context.Context, processorCustomerID string) ([]PaymentMethod, error)
	Charge(ctx context.Context, processorCustomerID string, amountCents int64, reason string) (referenceID string, err error)
	HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (CanonicalEvent, error)
}

// PaymentMethod is a minimal representation of a stored payment method.
type PaymentMethod struct {
	ID        string
	Brand     string
	Last4     string
	IsDefault bool
}

// ErrProcessorNotConfigured is returned by every DisabledProcessor method.
// It is not a vendor SDK call site; it exists so the reconciler, topup
// runner, and webhook handler can always be wired against a non-nil
// Processor even when no concrete payment-processor integration has been
// deployed, instead of nil-checking the collaborator at every call site.
var ErrProcessorNotConfigured = errors.New("payment: processor not configured")

// DisabledProcessor satisfies Processor by rejecting every operation. It is
// the default used when no external processor integration is wired.
type DisabledProcessor struct{}

func (DisabledProcessor) CreateCheckoutSession(ctx context.Context, tenantID string, amountCents int64) (string, error) {
	return "", ErrProcessorNotConfigured
}

func (DisabledProcessor) CreatePortalSession(ctx context.Context, processorCustomerID string) (string, error) {
	return "", ErrProcessorNotConfigured
}

func (DisabledProcessor) SetupPaymentMethod(ctx context.Context, tenantID string) (string, error) {
	return "", ErrProcessorNotConfigured
}

func (DisabledProcessor) ListPaymentMethods(ctx context.Context, processorCustomerID string) ([]PaymentMethod, error) {
	return nil, ErrProcessorNotConfigured
}

func (DisabledProcessor) Charge(ctx context.Context, processorCustomerID string, amountCents int64, reason string) (string, error) {
	return "", ErrProcessorNotConfigured
}

func (DisabledProcessor) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (CanonicalEvent, error) {
	return CanonicalEvent{}, ErrProcessorNotConfigured
}

var _ Processor = DisabledProcessor{}
