package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides relational persistence for snapshot rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a snapshot Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var snapshotColumns = `id, tenant_id, instance_id, user_id, name, type, size_bytes, node_id, trigger,
	plugins, config_hash, storage_path, created_at, expires_at, deleted_at`

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.TenantID, &s.InstanceID, &s.UserID, &s.Name, &s.Type, &s.SizeBytes,
		&s.NodeID, &s.Trigger, &s.Plugins, &s.ConfigHash, &s.StoragePath, &s.CreatedAt, &s.ExpiresAt, &s.DeletedAt)
	return s, err
}

// Insert writes a new snapshot row.
func (s *Store) Insert(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		snap.ID, snap.TenantID, snap.InstanceID, snap.UserID, snap.Name, snap.Type, snap.SizeBytes,
		snap.NodeID, snap.Trigger, snap.Plugins, snap.ConfigHash, snap.StoragePath, snap.CreatedAt, snap.ExpiresAt, snap.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// Get reads a single snapshot by id, including soft-deleted rows.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = $1`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return snap, nil
}

// ListByInstance returns non-deleted snapshots for instanceID, newest first.
func (s *Store) ListByInstance(ctx context.Context, instanceID string) ([]Snapshot, error) {
	return s.list(ctx, `WHERE instance_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC, id DESC`, instanceID)
}

// ListByTenant returns non-deleted snapshots for tenantID, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Snapshot, error) {
	return s.list(ctx, `WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC, id DESC`, tenantID)
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+snapshotColumns+` FROM snapshots `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// CountByTenant returns the number of non-deleted snapshots for tenantID,
// optionally filtered to a single type (pass "" for all types).
func (s *Store) CountByTenant(ctx context.Context, tenantID uuid.UUID, snapType string) (int, error) {
	var count int
	var err error
	if snapType == "" {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM snapshots WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID,
		).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM snapshots WHERE tenant_id = $1 AND type = $2 AND deleted_at IS NULL`, tenantID, snapType,
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return count, nil
}

// ListActiveByInstanceOrdered returns non-deleted snapshots for instanceID
// ordered oldest-first (for retention enforcement).
func (s *Store) ListActiveByInstanceOrdered(ctx context.Context, instanceID string) ([]Snapshot, error) {
	return s.list(ctx, `WHERE instance_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC, id ASC`, instanceID)
}

// ListExpired returns non-deleted snapshots whose expiresAt has passed.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]Snapshot, error) {
	return s.list(ctx, `WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at < $1`, now)
}

// ListSoftDeletedBefore returns snapshots soft-deleted before cutoff, for
// the hard-delete grace sweep.
func (s *Store) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]Snapshot, error) {
	return s.list(ctx, `WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
}

// SoftDelete marks a snapshot deleted without removing the row.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE snapshots SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("soft-deleting snapshot: %w", err)
	}
	return nil
}

// HardDelete permanently removes a snapshot row.
func (s *Store) HardDelete(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hard-deleting snapshot: %w", err)
	}
	return nil
}
