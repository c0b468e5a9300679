package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestSlackSinkDisabledIsNoop(t *testing.T) {
	sink := NewSlackSink("", "#billing", slog.Default())
	if sink.IsEnabled() {
		t.Fatal("sink with no bot token should be disabled")
	}
	if err := sink.PostBillingAlert(context.Background(), BillingAlert{TenantID: "t1", Title: "auto top-up failed"}); err != nil {
		t.Fatalf("disabled sink should never error, got %v", err)
	}
	if err := sink.PostNodeLost(context.Background(), NodeLostAlert{NodeID: "n1", LastHeartbeatAt: time.Now()}); err != nil {
		t.Fatalf("disabled sink should never error, got %v", err)
	}
}

func TestSlackSinkDisabledWithoutChannel(t *testing.T) {
	sink := NewSlackSink("xoxb-fake", "", slog.Default())
	if sink.IsEnabled() {
		t.Fatal("sink with no channel should be disabled")
	}
}

func TestNoopSinkNeverErrors(t *testing.T) {
	var sink Sink = NoopSink{}
	if err := sink.PostBillingAlert(context.Background(), BillingAlert{}); err != nil {
		t.Fatalf("NoopSink should never error, got %v", err)
	}
	if err := sink.PostNodeLost(context.Background(), NodeLostAlert{}); err != nil {
		t.Fatalf("NoopSink should never error, got %v", err)
	}
}
