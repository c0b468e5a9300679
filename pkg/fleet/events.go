package fleet

import (
	"context"
	"sync"
)

// NodeLostHandler is invoked when the heartbeat watchdog declares a node
// lost. The recovery orchestrator subscribes to this event rather than
// being called directly by the watchdog, breaking the cyclic reference
// that would otherwise exist between node-connection management and
// recovery orchestration (spec.md §9).
type NodeLostHandler func(ctx context.Context, nodeID string)

// NodeLostPublisher fans a NodeLost event out to every subscriber.
type NodeLostPublisher struct {
	mu       sync.RWMutex
	handlers []NodeLostHandler
}

// NewNodeLostPublisher creates an empty publisher.
func NewNodeLostPublisher() *NodeLostPublisher {
	return &NodeLostPublisher{}
}

// Subscribe registers a handler. Safe to call concurrently with Publish.
func (p *NodeLostPublisher) Subscribe(h NodeLostHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Publish invokes every subscribed handler synchronously.
func (p *NodeLostPublisher) Publish(ctx context.Context, nodeID string) {
	p.mu.RLock()
	handlers := append([]NodeLostHandler(nil), p.handlers...)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, nodeID)
	}
}
