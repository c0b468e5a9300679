package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/botfleet/creditcore/internal/telemetry"
)

// Registry is the read/upsert surface over the node table (spec.md §4.G
// piece 1), in the same store-backed shape as apikey.Store.
type Registry struct {
	store  *Store
	logger *slog.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(store *Store, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// ListNodes returns every node.
func (r *Registry) ListNodes(ctx context.Context) ([]Node, error) {
	return r.store.ListNodes(ctx)
}

// GetNode returns one node.
func (r *Registry) GetNode(ctx context.Context, id string) (Node, error) {
	return r.store.GetNode(ctx, id)
}

// GetNodeTenants returns the bot instances currently assigned to nodeID.
func (r *Registry) GetNodeTenants(ctx context.Context, nodeID string) ([]BotInstance, error) {
	return r.store.GetNodeTenants(ctx, nodeID)
}

// RegisterNode upserts a node row with initial status active.
func (r *Registry) RegisterNode(ctx context.Context, id string) (Node, error) {
	node, err := r.store.RegisterNode(ctx, id)
	if err != nil {
		return Node{}, err
	}
	r.refreshStateGauge(ctx)
	return node, nil
}

// Heartbeat records a node's heartbeat timestamp.
func (r *Registry) Heartbeat(ctx context.Context, id string, at time.Time) error {
	return r.store.RecordHeartbeat(ctx, id, at)
}

// refreshStateGauge recomputes the fleet_nodes_by_state gauge. Best-effort;
// errors are logged, not returned, since this is observability only.
func (r *Registry) refreshStateGauge(ctx context.Context) {
	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		r.logger.Error("refreshing node state gauge", "error", err)
		return
	}
	counts := map[string]int{
		NodeStatusActive:         0,
		NodeStatusDraining:       0,
		NodeStatusDrained:        0,
		NodeStatusDecommissioned: 0,
	}
	for _, n := range nodes {
		counts[n.Status]++
	}
	for state, count := range counts {
		telemetry.FleetNodesByState.WithLabelValues(state).Set(float64(count))
	}
}

// selectTargetNode picks the active node with the fewest assigned tenants,
// excluding excludeNodeID (the failed source node). Grounded on
// cuemby-warren's scheduler.selectNode load-balancing idiom.
func selectTargetNode(ctx context.Context, store *Store, excludeNodeID string) (string, bool, error) {
	nodes, err := store.ListNodes(ctx)
	if err != nil {
		return "", false, fmt.Errorf("listing nodes: %w", err)
	}

	var best string
	bestLoad := -1
	for _, n := range nodes {
		if n.ID == excludeNodeID || n.Status != NodeStatusActive {
			continue
		}
		tenants, err := store.GetNodeTenants(ctx, n.ID)
		if err != nil {
			return "", false, fmt.Errorf("listing tenants for node %s: %w", n.ID, err)
		}
		if bestLoad == -1 || len(tenants) < bestLoad {
			bestLoad = len(tenants)
			best = n.ID
		}
	}
	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}
