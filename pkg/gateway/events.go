package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// BalanceExhaustedHandler is invoked exactly once per debit that crosses
// the balance from positive to non-positive (spec.md §4.E, §9's prescribed
// fix for callback-style cross-module coupling: express as a one-shot
// event through a small in-process publisher rather than a direct call
// back into the caller).
type BalanceExhaustedHandler func(ctx context.Context, tenantID uuid.UUID, newBalanceCents int64)

// BalanceExhaustedPublisher fans a single event out to all subscribers
// registered at init time.
type BalanceExhaustedPublisher struct {
	mu       sync.RWMutex
	handlers []BalanceExhaustedHandler
}

// NewBalanceExhaustedPublisher creates an empty publisher.
func NewBalanceExhaustedPublisher() *BalanceExhaustedPublisher {
	return &BalanceExhaustedPublisher{}
}

// Subscribe registers a handler. Safe to call concurrently with Publish.
func (p *BalanceExhaustedPublisher) Subscribe(h BalanceExhaustedHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Publish invokes every subscribed handler synchronously.
func (p *BalanceExhaustedPublisher) Publish(ctx context.Context, tenantID uuid.UUID, newBalanceCents int64) {
	p.mu.RLock()
	handlers := append([]BalanceExhaustedHandler(nil), p.handlers...)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, tenantID, newBalanceCents)
	}
}
