package fleet

import "time"

// Node lifecycle states. No backward transitions from decommissioned
// (spec.md §4.G).
const (
	NodeStatusActive         = "active"
	NodeStatusDraining       = "draining"
	NodeStatusDrained        = "drained"
	NodeStatusDecommissioned = "decommissioned"
)

// Node is a fleet-managed host running zero or more bot instances
// (spec.md §3).
type Node struct {
	ID                string
	Status            string
	DrainStatus       *string
	DrainMigrated     int
	DrainTotal        int
	LastHeartbeatAt   time.Time
	UpdatedAt         time.Time
}

// BotInstance billing states (spec.md §3).
const (
	BillingStateActive    = "active"
	BillingStateSuspended = "suspended"
	BillingStateDestroyed = "destroyed"
)

// BotInstance is a tenant-owned workload assigned to a node (spec.md §3).
type BotInstance struct {
	ID            string
	TenantID      string
	NodeID        *string
	BillingState  string
	SuspendedAt   *time.Time
	DestroyAfter  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
