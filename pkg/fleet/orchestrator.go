package fleet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/botfleet/creditcore/pkg/fleet/nodeagent"
)

// Orchestrator runs the per-tenant recovery workflow for a lost node
// (spec.md §4.G piece 3). It subscribes to NodeLostPublisher rather than
// being invoked directly, matching spec.md §9's prescribed fix for the
// node-connection/recovery cyclic reference.
type Orchestrator struct {
	store      *Store
	nodeClient nodeagent.Client
	logger     *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(store *Store, nodeClient nodeagent.Client, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: store, nodeClient: nodeClient, logger: logger}
}

// OnNodeLost is the NodeLostHandler to subscribe on a NodeLostPublisher.
func (o *Orchestrator) OnNodeLost(ctx context.Context, nodeID string) {
	if _, err := o.RecoverNode(ctx, nodeID, RecoveryTriggerHeartbeatTimeout); err != nil {
		o.logger.Error("recovering node", "error", err, "node_id", nodeID)
	}
}

// RecoverNode creates a RecoveryEvent for nodeID and attempts to restore
// each affected tenant onto a candidate target node (spec.md §4.G piece 3).
func (o *Orchestrator) RecoverNode(ctx context.Context, nodeID, trigger string) (RecoveryEvent, error) {
	tenants, err := o.store.GetNodeTenants(ctx, nodeID)
	if err != nil {
		return RecoveryEvent{}, fmt.Errorf("listing node tenants: %w", err)
	}

	event, err := o.store.CreateRecoveryEvent(ctx, nodeID, trigger, len(tenants))
	if err != nil {
		return RecoveryEvent{}, fmt.Errorf("creating recovery event: %w", err)
	}

	for _, tenant := range tenants {
		item := RecoveryItem{
			ID:         uuid.New().String(),
			EventID:    event.ID,
			TenantID:   tenant.TenantID,
			SourceNode: nodeID,
			Status:     ItemStatusWaiting,
		}
		if err := o.store.InsertRecoveryItem(ctx, item); err != nil {
			o.logger.Error("inserting recovery item", "error", err, "tenant_id", tenant.TenantID)
			continue
		}
		o.attemptItem(ctx, item)
	}

	return o.finalize(ctx, event.ID)
}

// attemptItem finds a candidate target node and asks it to restore the
// tenant, updating the item to its terminal (or waiting) outcome.
func (o *Orchestrator) attemptItem(ctx context.Context, item RecoveryItem) {
	target, ok, err := selectTargetNode(ctx, o.store, item.SourceNode)
	if err != nil {
		o.fail(ctx, item, fmt.Sprintf("selecting target node: %v", err))
		return
	}
	if !ok {
		o.logger.Warn("no target node available for recovery item", "tenant_id", item.TenantID)
		return // leaves the item in ItemStatusWaiting
	}

	backupKey, ok, err := o.store.LatestBackupKey(ctx, item.TenantID)
	if err != nil {
		o.fail(ctx, item, fmt.Sprintf("reading backup key: %v", err))
		return
	}
	if !ok {
		o.fail(ctx, item, "no usable backup available")
		return
	}

	resp, err := o.nodeClient.RestoreBegin(ctx, target, nodeagent.RestoreBeginRequest{
		TenantID:  item.TenantID,
		BackupKey: backupKey,
	})
	if err != nil {
		o.fail(ctx, item, fmt.Sprintf("restore request failed: %v", err))
		return
	}
	if !resp.Accepted {
		o.fail(ctx, item, resp.Reason)
		return
	}

	if err := o.store.AssignBotInstanceNode(ctx, item.TenantID, target); err != nil {
		o.logger.Error("assigning bot instance node", "error", err, "tenant_id", item.TenantID)
	}
	if err := o.store.UpdateRecoveryItem(ctx, item.ID, ItemStatusRecovered, &target, nil); err != nil {
		o.logger.Error("updating recovery item", "error", err, "item_id", item.ID)
	}
}

func (o *Orchestrator) fail(ctx context.Context, item RecoveryItem, reason string) {
	if err := o.store.UpdateRecoveryItem(ctx, item.ID, ItemStatusFailed, nil, &reason); err != nil {
		o.logger.Error("updating failed recovery item", "error", err, "item_id", item.ID)
	}
}

// finalize recomputes the event's terminal counters and, when every item
// is terminal, transitions the event status (spec.md §4.G, "when all
// items are terminal, the event transitions to completed or partial").
func (o *Orchestrator) finalize(ctx context.Context, eventID string) (RecoveryEvent, error) {
	items, err := o.store.ListRecoveryItems(ctx, eventID)
	if err != nil {
		return RecoveryEvent{}, fmt.Errorf("listing recovery items: %w", err)
	}

	var recovered, failed, waiting int
	for _, it := range items {
		switch it.Status {
		case ItemStatusRecovered:
			recovered++
		case ItemStatusFailed, ItemStatusSkipped:
			failed++
		case ItemStatusWaiting:
			waiting++
		}
	}

	done := waiting == 0
	if err := o.store.UpdateRecoveryEventCounts(ctx, eventID, recovered, failed, waiting, done); err != nil {
		return RecoveryEvent{}, fmt.Errorf("updating recovery event counts: %w", err)
	}

	return RecoveryEvent{ID: eventID, TenantsRecovered: recovered, TenantsFailed: failed, TenantsWaiting: waiting}, nil
}

// RetryWaiting re-attempts just the waiting items of an event (spec.md
// §4.G, "retryWaiting(eventId) re-attempts just the waiting items").
func (o *Orchestrator) RetryWaiting(ctx context.Context, eventID string) (RecoveryEvent, error) {
	waiting, err := o.store.ListWaitingItems(ctx, eventID)
	if err != nil {
		return RecoveryEvent{}, fmt.Errorf("listing waiting items: %w", err)
	}

	for _, item := range waiting {
		o.attemptItem(ctx, item)
	}

	return o.finalize(ctx, eventID)
}
