package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a node or bot instance does not exist.
var ErrNotFound = errors.New("fleet: not found")

// Store provides relational persistence for the node registry, bot
// instance assignments, and recovery bookkeeping.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a fleet Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var nodeColumns = `id, status, drain_status, drain_migrated, drain_total, last_heartbeat_at, updated_at`

func scanNode(row pgx.Row) (Node, error) {
	var n Node
	err := row.Scan(&n.ID, &n.Status, &n.DrainStatus, &n.DrainMigrated, &n.DrainTotal, &n.LastHeartbeatAt, &n.UpdatedAt)
	return n, err
}

// ListNodes returns every node row.
func (s *Store) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+nodeColumns+` FROM fleet_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetNode reads a single node by id.
func (s *Store) GetNode(ctx context.Context, id string) (Node, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM fleet_nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, ErrNotFound
	}
	if err != nil {
		return Node{}, fmt.Errorf("reading node: %w", err)
	}
	return n, nil
}

// GetNodeTenants returns the non-destroyed bot instances currently
// assigned to nodeID.
func (s *Store) GetNodeTenants(ctx context.Context, nodeID string) ([]BotInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, node_id, billing_state, suspended_at, destroy_after, created_at, updated_at
		 FROM bot_instances WHERE node_id = $1 AND billing_state != $2`,
		nodeID, BillingStateDestroyed,
	)
	if err != nil {
		return nil, fmt.Errorf("listing node tenants: %w", err)
	}
	defer rows.Close()

	var out []BotInstance
	for rows.Next() {
		var b BotInstance
		if err := rows.Scan(&b.ID, &b.TenantID, &b.NodeID, &b.BillingState, &b.SuspendedAt, &b.DestroyAfter, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning bot instance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RegisterNode upserts a node row with initial status active
// (spec.md §4.G, "registerNode upserts with initial status active").
func (s *Store) RegisterNode(ctx context.Context, id string) (Node, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fleet_nodes (id, status, drain_migrated, drain_total, last_heartbeat_at, updated_at)
		 VALUES ($1, $2, 0, 0, $3, $3)
		 ON CONFLICT (id) DO UPDATE SET last_heartbeat_at = $3, updated_at = $3`,
		id, NodeStatusActive, now,
	)
	if err != nil {
		return Node{}, fmt.Errorf("registering node: %w", err)
	}
	return s.GetNode(ctx, id)
}

// RecordHeartbeat updates a node's lastHeartbeatAt.
func (s *Store) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE fleet_nodes SET last_heartbeat_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	return nil
}

// SetNodeStatus transitions a node to a new status.
func (s *Store) SetNodeStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE fleet_nodes SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting node status: %w", err)
	}
	return nil
}

// SetDrainProgress records drain status and counters.
func (s *Store) SetDrainProgress(ctx context.Context, id string, drainStatus string, migrated, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE fleet_nodes SET drain_status = $2, drain_migrated = $3, drain_total = $4, updated_at = $5 WHERE id = $1`,
		id, drainStatus, migrated, total, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting drain progress: %w", err)
	}
	return nil
}

// ClearDrainProgress resets drain fields (cancel-drain).
func (s *Store) ClearDrainProgress(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE fleet_nodes SET status = $2, drain_status = '', drain_migrated = 0, drain_total = 0, updated_at = $3 WHERE id = $1`,
		id, NodeStatusActive, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("clearing drain progress: %w", err)
	}
	return nil
}

// GetBotInstance reads a single bot instance by id.
func (s *Store) GetBotInstance(ctx context.Context, id string) (BotInstance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, node_id, billing_state, suspended_at, destroy_after, created_at, updated_at
		 FROM bot_instances WHERE id = $1`, id,
	)
	var b BotInstance
	err := row.Scan(&b.ID, &b.TenantID, &b.NodeID, &b.BillingState, &b.SuspendedAt, &b.DestroyAfter, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BotInstance{}, ErrNotFound
	}
	if err != nil {
		return BotInstance{}, fmt.Errorf("reading bot instance: %w", err)
	}
	return b, nil
}

// AssignBotInstanceNode moves a bot instance to a new node.
func (s *Store) AssignBotInstanceNode(ctx context.Context, id, nodeID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE bot_instances SET node_id = $2, updated_at = $3 WHERE id = $1`, id, nodeID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assigning bot instance node: %w", err)
	}
	return nil
}

// CreateRecoveryEvent inserts a new recovery event in_progress.
func (s *Store) CreateRecoveryEvent(ctx context.Context, nodeID, trigger string, tenantsTotal int) (RecoveryEvent, error) {
	ev := RecoveryEvent{
		ID:           uuid.New().String(),
		NodeID:       nodeID,
		Trigger:      trigger,
		Status:       RecoveryStatusInProgress,
		TenantsTotal: tenantsTotal,
		StartedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recovery_events (id, node_id, trigger, status, tenants_total, tenants_recovered, tenants_failed, tenants_waiting, started_at, completed_at, report_json)
		 VALUES ($1,$2,$3,$4,$5,0,0,0,$6,NULL,NULL)`,
		ev.ID, ev.NodeID, ev.Trigger, ev.Status, ev.TenantsTotal, ev.StartedAt,
	)
	if err != nil {
		return RecoveryEvent{}, fmt.Errorf("creating recovery event: %w", err)
	}
	return ev, nil
}

// UpdateRecoveryEventCounts updates the terminal counters and, if every
// item is terminal, transitions status to completed or partial.
func (s *Store) UpdateRecoveryEventCounts(ctx context.Context, eventID string, recovered, failed, waiting int, done bool) error {
	status := RecoveryStatusInProgress
	var completedAt *time.Time
	if done {
		if failed == 0 && waiting == 0 {
			status = RecoveryStatusCompleted
		} else {
			status = RecoveryStatusPartial
		}
		now := time.Now().UTC()
		completedAt = &now
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE recovery_events SET tenants_recovered = $2, tenants_failed = $3, tenants_waiting = $4, status = $5, completed_at = $6 WHERE id = $1`,
		eventID, recovered, failed, waiting, status, completedAt,
	)
	if err != nil {
		return fmt.Errorf("updating recovery event counts: %w", err)
	}
	return nil
}

// InsertRecoveryItem inserts a new per-tenant recovery item.
func (s *Store) InsertRecoveryItem(ctx context.Context, item RecoveryItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recovery_items (id, event_id, tenant_id, source_node, target_node, backup_key, status, reason)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.EventID, item.TenantID, item.SourceNode, item.TargetNode, item.BackupKey, item.Status, item.Reason,
	)
	if err != nil {
		return fmt.Errorf("inserting recovery item: %w", err)
	}
	return nil
}

// UpdateRecoveryItem updates an item's terminal outcome.
func (s *Store) UpdateRecoveryItem(ctx context.Context, id, status string, targetNode, reason *string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE recovery_items SET status = $2, target_node = $3, reason = $4 WHERE id = $1`,
		id, status, targetNode, reason,
	)
	if err != nil {
		return fmt.Errorf("updating recovery item: %w", err)
	}
	return nil
}

// ListRecoveryItems returns every item for an event.
func (s *Store) ListRecoveryItems(ctx context.Context, eventID string) ([]RecoveryItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, tenant_id, source_node, target_node, backup_key, status, reason
		 FROM recovery_items WHERE event_id = $1`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recovery items: %w", err)
	}
	defer rows.Close()

	var out []RecoveryItem
	for rows.Next() {
		var it RecoveryItem
		if err := rows.Scan(&it.ID, &it.EventID, &it.TenantID, &it.SourceNode, &it.TargetNode, &it.BackupKey, &it.Status, &it.Reason); err != nil {
			return nil, fmt.Errorf("scanning recovery item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListWaitingItems returns every item of eventID currently waiting.
func (s *Store) ListWaitingItems(ctx context.Context, eventID string) ([]RecoveryItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, tenant_id, source_node, target_node, backup_key, status, reason
		 FROM recovery_items WHERE event_id = $1 AND status = $2`, eventID, ItemStatusWaiting,
	)
	if err != nil {
		return nil, fmt.Errorf("listing waiting items: %w", err)
	}
	defer rows.Close()

	var out []RecoveryItem
	for rows.Next() {
		var it RecoveryItem
		if err := rows.Scan(&it.ID, &it.EventID, &it.TenantID, &it.SourceNode, &it.TargetNode, &it.BackupKey, &it.Status, &it.Reason); err != nil {
			return nil, fmt.Errorf("scanning waiting item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// LatestBackupKey returns the most recent usable backup key for a tenant,
// or ("", false) if none exists. Backups are recorded by the snapshot
// manager; fleet only reads the pointer.
func (s *Store) LatestBackupKey(ctx context.Context, tenantID string) (string, bool, error) {
	var key string
	err := s.pool.QueryRow(ctx,
		`SELECT storage_path FROM snapshots WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 1`,
		tenantID,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading latest backup key: %w", err)
	}
	return key, true, nil
}
