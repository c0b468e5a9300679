package fleet

import (
	"context"
	"testing"
)

func TestNodeLostPublisherFansOutToAllSubscribers(t *testing.T) {
	pub := NewNodeLostPublisher()

	var calls []string
	pub.Subscribe(func(ctx context.Context, nodeID string) {
		calls = append(calls, "first:"+nodeID)
	})
	pub.Subscribe(func(ctx context.Context, nodeID string) {
		calls = append(calls, "second:"+nodeID)
	})

	pub.Publish(context.Background(), "node-1")

	if len(calls) != 2 {
		t.Fatalf("expected 2 handler calls, got %d: %v", len(calls), calls)
	}
	if calls[0] != "first:node-1" || calls[1] != "second:node-1" {
		t.Errorf("unexpected call order: %v", calls)
	}
}

func TestNodeLostPublisherNoSubscribersIsNoOp(t *testing.T) {
	pub := NewNodeLostPublisher()
	pub.Publish(context.Background(), "node-1") // must not panic
}
