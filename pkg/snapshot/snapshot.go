package snapshot

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot types.
const (
	TypeNightly    = "nightly"
	TypeOnDemand   = "on-demand"
	TypePreRestore = "pre-restore"
)

// Snapshot triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerPreUpdate = "pre_update"
)

// Snapshot is a point-in-time capture of a bot instance's state
// (spec.md §3, Snapshot entity).
type Snapshot struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	InstanceID  string
	UserID      *uuid.UUID
	Name        *string
	Type        string
	SizeBytes   int64
	NodeID      *string
	Trigger     string
	Plugins     []string
	ConfigHash  *string
	StoragePath string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	DeletedAt   *time.Time
}

// Tier bounds retention and on-demand quota for a pricing tier
// (spec.md §4.F).
type Tier struct {
	Name              string
	MaxCount          int
	RetentionDays     int
	OnDemandMaxActive int
}

// tiers is the fixed set of pricing tiers known to the snapshot manager.
// Kept as an in-memory table rather than a config file: tiers are a
// product decision that changes rarely and is exercised by the billing
// plan, not an operator-tunable knob.
var tiers = map[string]Tier{
	"free":       {Name: "free", MaxCount: 3, RetentionDays: 7, OnDemandMaxActive: 1},
	"pro":        {Name: "pro", MaxCount: 10, RetentionDays: 30, OnDemandMaxActive: 5},
	"enterprise": {Name: "enterprise", MaxCount: 30, RetentionDays: 90, OnDemandMaxActive: 20},
}

// TierByName returns the named tier, or the free tier if unknown.
func TierByName(name string) Tier {
	if t, ok := tiers[name]; ok {
		return t
	}
	return tiers["free"]
}
