package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/botfleet/creditcore/pkg/fleet/nodeagent"
)

// ErrSameNode is returned by MigrateTenant when source and target are the
// same node.
var ErrSameNode = errors.New("fleet: source and target node are the same")

// ErrNoNodeAssigned is returned by MigrateTenant when the bot instance has
// no current node assignment.
var ErrNoNodeAssigned = errors.New("fleet: bot instance has no node assignment")

// DrainController implements drain/migrate operations (spec.md §4.G piece 4).
type DrainController struct {
	store      *Store
	nodeClient nodeagent.Client
	logger     *slog.Logger
}

// NewDrainController constructs a DrainController.
func NewDrainController(store *Store, nodeClient nodeagent.Client, logger *slog.Logger) *DrainController {
	return &DrainController{store: store, nodeClient: nodeClient, logger: logger}
}

// DrainNode migrates every tenant off nodeID to another eligible node.
// Per-tenant failures are recorded but do not abort the drain (spec.md
// §4.G, "per-tenant failures are recorded but do not abort the drain").
func (d *DrainController) DrainNode(ctx context.Context, nodeID string) error {
	if err := d.store.SetNodeStatus(ctx, nodeID, NodeStatusDraining); err != nil {
		return fmt.Errorf("setting node draining: %w", err)
	}

	tenants, err := d.store.GetNodeTenants(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("listing node tenants: %w", err)
	}

	migrated := 0
	if err := d.store.SetDrainProgress(ctx, nodeID, "in_progress", migrated, len(tenants)); err != nil {
		d.logger.Error("setting initial drain progress", "error", err, "node_id", nodeID)
	}

	for _, tenant := range tenants {
		target, ok, err := selectTargetNode(ctx, d.store, nodeID)
		if err != nil || !ok {
			d.logger.Error("selecting drain target", "error", err, "tenant_id", tenant.TenantID)
			continue
		}

		if err := d.migrate(ctx, tenant.ID, nodeID, target); err != nil {
			d.logger.Error("migrating tenant during drain", "error", err, "tenant_id", tenant.TenantID, "node_id", nodeID)
			continue
		}

		migrated++
		if err := d.store.SetDrainProgress(ctx, nodeID, "in_progress", migrated, len(tenants)); err != nil {
			d.logger.Error("updating drain progress", "error", err, "node_id", nodeID)
		}
	}

	finalStatus := "complete"
	if migrated < len(tenants) {
		finalStatus = "partial"
	}
	if err := d.store.SetDrainProgress(ctx, nodeID, finalStatus, migrated, len(tenants)); err != nil {
		d.logger.Error("finalizing drain progress", "error", err, "node_id", nodeID)
	}
	return d.store.SetNodeStatus(ctx, nodeID, NodeStatusDrained)
}

// CancelDrain flips a draining node back to active and clears progress
// fields (spec.md §4.G).
func (d *DrainController) CancelDrain(ctx context.Context, nodeID string) error {
	return d.store.ClearDrainProgress(ctx, nodeID)
}

// MigrateTenant is the admin single-step variant of migration (spec.md
// §4.G): it fails if source==target, if the bot has no node assignment,
// or if the bot does not exist.
func (d *DrainController) MigrateTenant(ctx context.Context, botID, targetNodeID string) error {
	bot, err := d.store.GetBotInstance(ctx, botID)
	if err != nil {
		return err
	}
	if bot.NodeID == nil {
		return ErrNoNodeAssigned
	}
	if *bot.NodeID == targetNodeID {
		return ErrSameNode
	}
	return d.migrate(ctx, botID, *bot.NodeID, targetNodeID)
}

// migrate asks sourceNode to export the tenant, then targetNode to import
// it, finally reassigning the bot instance's node_id.
func (d *DrainController) migrate(ctx context.Context, botID, sourceNode, targetNode string) error {
	step, err := d.nodeClient.DrainStep(ctx, sourceNode, nodeagent.DrainStepRequest{TenantID: botID})
	if err != nil {
		return fmt.Errorf("requesting drain step: %w", err)
	}
	if !step.Success {
		return fmt.Errorf("drain step failed: %s", step.Reason)
	}

	restore, err := d.nodeClient.RestoreBegin(ctx, targetNode, nodeagent.RestoreBeginRequest{
		TenantID:  botID,
		BackupKey: step.ExportedBackupKey,
	})
	if err != nil {
		return fmt.Errorf("requesting restore: %w", err)
	}
	if !restore.Accepted {
		return fmt.Errorf("restore rejected: %s", restore.Reason)
	}

	return d.store.AssignBotInstanceNode(ctx, botID, targetNode)
}
