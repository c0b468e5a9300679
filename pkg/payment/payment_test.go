package payment

import (
	"context"
	"testing"
)

type fakeProcessor struct {
	event   CanonicalEvent
	sigErr  error
	chargeRef string
	chargeErr error
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, tenantID string, amountCents int64) (string, error) {
	return "https://example.test/checkout", nil
}

func (f *fakeProcessor) CreatePortalSession(ctx context.Context, processorCustomerID string) (string, error) {
	return "https://example.test/portal", nil
}

func (f *fakeProcessor) SetupPaymentMethod(ctx context.Context, tenantID string) (string, error) {
	return "https://example.test/setup", nil
}

func (f *fakeProcessor) ListPaymentMethods(ctx context.Context, processorCustomerID string) ([]PaymentMethod, error) {
	return nil, nil
}

func (f *fakeProcessor) Charge(ctx context.Context, processorCustomerID string, amountCents int64, reason string) (string, error) {
	return f.chargeRef, f.chargeErr
}

func (f *fakeProcessor) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (CanonicalEvent, error) {
	if f.sigErr != nil {
		return CanonicalEvent{}, f.sigErr
	}
	return f.event, nil
}

func TestIsCreditAdding(t *testing.T) {
	cases := map[string]bool{
		EventCheckoutCompleted:      true,
		EventPaymentIntentSucceeded: true,
		EventSubscriptionUpdated:    false,
		EventCustomerDeleted:        false,
		"unknown.event":             false,
	}
	for eventType, want := range cases {
		if got := IsCreditAdding(eventType); got != want {
			t.Errorf("IsCreditAdding(%q) = %v, want %v", eventType, got, want)
		}
	}
}
