// Package notify delivers one-way platform alerts (auto-topup failures,
// balance-exhausted crossings, lost fleet nodes) to an external channel. It
// has no inbound surface: no slash commands, no interactivity, no per-tenant
// channel routing. That keeps it a thin adapter over whichever
// NotificationSink the operator configures, rather than a second messaging
// subsystem (spec.md §6, SPEC_FULL.md DOMAIN STACK: "pkg/notify wires a
// NotificationSink implementation over Slack").
package notify

import (
	"context"
	"time"
)

// BillingAlert is a billing-related event worth a human's attention: an
// auto-topup charge failure, a schedule disabled after exceeding its
// failure cap, or a tenant balance crossing into the grace band.
type BillingAlert struct {
	TenantID string
	Title    string
	Detail   string
}

// NodeLostAlert reports a fleet node whose heartbeat has timed out
// (spec.md §4.G).
type NodeLostAlert struct {
	NodeID          string
	LastHeartbeatAt time.Time
}

// Sink is the narrow interface the rest of creditcore depends on. It never
// returns partial failure information because alert delivery is always
// best-effort: a Sink error is logged by the caller, never propagated into
// the billing or fleet control path it originated from.
type Sink interface {
	PostBillingAlert(ctx context.Context, alert BillingAlert) error
	PostNodeLost(ctx context.Context, alert NodeLostAlert) error
}

// NoopSink discards every alert. It is the default when no sink is
// configured, mirroring the teacher's own "disabled notifier just logs and
// returns" pattern without requiring every call site to nil-check a Sink.
type NoopSink struct{}

func (NoopSink) PostBillingAlert(ctx context.Context, alert BillingAlert) error { return nil }
func (NoopSink) PostNodeLost(ctx context.Context, alert NodeLostAlert) error    { return nil }
