// Package nodeagent models the narrow request/response channel fleet
// control uses to ask a node to stop/start/export/import a tenant's
// container (spec.md §6, NodeAgent RPC). This file holds the Go interface
// shape and the command payloads it carries; grpcclient.go implements the
// interface over a gRPC connection. The node agent server is external.
package nodeagent

import "context"

// Command names carried by the RPC (spec.md §6).
const (
	CommandStatsGet    = "stats.get"
	CommandRestoreBegin = "restore.begin"
	CommandDrainStep   = "drain.step"
)

// StatsRequest asks a node for its current load, used by the recovery
// orchestrator's candidate selection (spec.md §4.G, "lowest-load among
// active nodes").
type StatsRequest struct {
	NodeID string
}

// StatsResponse reports a node's current load.
type StatsResponse struct {
	NodeID        string
	ActiveTenants int
	CPUPercent    float64
	MemoryPercent float64
}

// RestoreBeginRequest asks a node to begin restoring a tenant's container
// from a backup key.
type RestoreBeginRequest struct {
	TenantID  string
	BackupKey string
}

// RestoreBeginResponse reports whether the restore was accepted.
type RestoreBeginResponse struct {
	Accepted bool
	Reason   string
}

// DrainStepRequest asks a node to stop and export one tenant's container
// as part of a drain.
type DrainStepRequest struct {
	TenantID string
}

// DrainStepResponse reports the outcome of one drain step.
type DrainStepResponse struct {
	ExportedBackupKey string
	Success           bool
	Reason            string
}

// Client is the narrow interface fleet control consumes. Implementations
// live outside this module (spec.md §6).
type Client interface {
	Stats(ctx context.Context, nodeID string, req StatsRequest) (StatsResponse, error)
	RestoreBegin(ctx context.Context, nodeID string, req RestoreBeginRequest) (RestoreBeginResponse, error)
	DrainStep(ctx context.Context, nodeID string, req DrainStepRequest) (DrainStepResponse, error)
}
