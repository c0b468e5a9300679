package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/audit"
)

// hardDeleteGrace is the trailing window after a soft delete before the
// periodic sweep hard-deletes the row (spec.md §4.F, "e.g. 24 h after
// soft-delete").
const hardDeleteGrace = 24 * time.Hour

// Manager implements the snapshot operations of spec.md §4.F.
type Manager struct {
	store  *Store
	object ObjectStore
	audit  *audit.Writer
	logger *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(store *Store, object ObjectStore, auditWriter *audit.Writer, logger *slog.Logger) *Manager {
	return &Manager{store: store, object: object, audit: auditWriter, logger: logger}
}

// CreateParams holds parameters for Create.
type CreateParams struct {
	TenantID   uuid.UUID
	InstanceID string
	UserID     *uuid.UUID
	Name       *string
	Type       string
	Trigger    string
	SourcePath string
	Plugins    []string
	ConfigHash *string
	Tier       string
}

// Create captures a snapshot of SourcePath, enforces quota for on-demand
// snapshots, writes content to the object store, inserts the row, then
// enforces retention (spec.md §4.F).
func (m *Manager) Create(ctx context.Context, p CreateParams) (Snapshot, error) {
	tier := TierByName(p.Tier)

	if p.Type == TypeOnDemand {
		active, err := m.store.CountByTenant(ctx, p.TenantID, TypeOnDemand)
		if err != nil {
			return Snapshot{}, fmt.Errorf("checking quota: %w", err)
		}
		if active >= tier.OnDemandMaxActive {
			return Snapshot{}, ErrQuotaExceeded
		}
	}

	src, err := os.Open(p.SourcePath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return Snapshot{}, fmt.Errorf("stating source: %w", err)
	}

	id := uuid.New()
	now := time.Now().UTC()
	storagePath := fmt.Sprintf("%s/%s/%s.snap", p.TenantID, p.InstanceID, id)

	if err := m.object.Put(storagePath, src); err != nil {
		return Snapshot{}, fmt.Errorf("writing snapshot content: %w", err)
	}

	snap := Snapshot{
		ID:          id,
		TenantID:    p.TenantID,
		InstanceID:  p.InstanceID,
		UserID:      p.UserID,
		Name:        p.Name,
		Type:        p.Type,
		SizeBytes:   info.Size(),
		Trigger:     p.Trigger,
		Plugins:     p.Plugins,
		ConfigHash:  p.ConfigHash,
		StoragePath: storagePath,
		CreatedAt:   now,
	}
	if tier.RetentionDays > 0 {
		expires := now.Add(time.Duration(tier.RetentionDays) * 24 * time.Hour)
		snap.ExpiresAt = &expires
	}

	if err := m.store.Insert(ctx, snap); err != nil {
		return Snapshot{}, err
	}

	if err := m.EnforceRetention(ctx, p.InstanceID, tier); err != nil {
		m.logger.Error("enforcing retention after create", "error", err, "instance_id", p.InstanceID)
	}

	return snap, nil
}

// Restore replaces an instance's current state with a snapshot's content,
// first taking a pre-restore safety snapshot (spec.md §4.F).
func (m *Manager) Restore(ctx context.Context, id uuid.UUID, currentStatePath, tier string) error {
	snap, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.DeletedAt != nil {
		return ErrNotFound
	}

	safety, err := m.Create(ctx, CreateParams{
		TenantID:   snap.TenantID,
		InstanceID: snap.InstanceID,
		Type:       TypePreRestore,
		Trigger:    TriggerManual,
		SourcePath: currentStatePath,
		Tier:       tier,
	})
	if err != nil {
		return fmt.Errorf("taking pre-restore safety snapshot: %w", err)
	}

	reader, err := m.object.Get(snap.StoragePath)
	if err != nil {
		// The safety snapshot remains; the caller must be told this failed
		// without the original state having been touched yet.
		return fmt.Errorf("reading snapshot content (safety snapshot %s preserved): %w", safety.ID, err)
	}
	defer reader.Close()

	out, err := os.Create(currentStatePath)
	if err != nil {
		return fmt.Errorf("opening destination (safety snapshot %s preserved): %w", safety.ID, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("restoring content (safety snapshot %s preserved): %w", safety.ID, err)
	}

	m.audit.Log(audit.Entry{
		TenantID:   snap.TenantID,
		Action:     "restore",
		Resource:   "snapshot",
		ResourceID: snap.ID,
	})
	return nil
}

// Delete soft-deletes a snapshot.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	snap, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.DeletedAt != nil {
		return ErrNotFound
	}
	if err := m.store.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return err
	}

	m.audit.Log(audit.Entry{
		TenantID:   snap.TenantID,
		Action:     "delete",
		Resource:   "snapshot",
		ResourceID: snap.ID,
	})
	return nil
}

// ListByInstance lists non-deleted snapshots for an instance.
func (m *Manager) ListByInstance(ctx context.Context, instanceID string) ([]Snapshot, error) {
	return m.store.ListByInstance(ctx, instanceID)
}

// ListByTenant lists non-deleted snapshots for a tenant.
func (m *Manager) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Snapshot, error) {
	return m.store.ListByTenant(ctx, tenantID)
}

// CountByTenant counts non-deleted snapshots for a tenant.
func (m *Manager) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return m.store.CountByTenant(ctx, tenantID, "")
}

// EnforceRetention soft-deletes the oldest non-deleted snapshots for
// instanceID beyond tier.MaxCount (spec.md §4.F).
func (m *Manager) EnforceRetention(ctx context.Context, instanceID string, tier Tier) error {
	active, err := m.store.ListActiveByInstanceOrdered(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("listing active snapshots: %w", err)
	}
	if len(active) <= tier.MaxCount {
		return nil
	}

	now := time.Now().UTC()
	excess := active[:len(active)-tier.MaxCount]
	for _, snap := range excess {
		if err := m.store.SoftDelete(ctx, snap.ID, now); err != nil {
			return fmt.Errorf("soft-deleting excess snapshot %s: %w", snap.ID, err)
		}
	}
	return nil
}

// ListExpired returns snapshots whose expiresAt has passed.
func (m *Manager) ListExpired(ctx context.Context, now time.Time) ([]Snapshot, error) {
	return m.store.ListExpired(ctx, now)
}

// RunRetentionSweep soft-deletes expired snapshots and hard-deletes
// snapshots that have been soft-deleted for longer than hardDeleteGrace
// (spec.md §4.F periodic sweep).
func (m *Manager) RunRetentionSweep(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := m.ListExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("listing expired snapshots: %w", err)
	}
	for _, snap := range expired {
		if err := m.store.SoftDelete(ctx, snap.ID, now); err != nil {
			m.logger.Error("soft-deleting expired snapshot", "error", err, "snapshot_id", snap.ID)
		}
	}

	stale, err := m.store.ListSoftDeletedBefore(ctx, now.Add(-hardDeleteGrace))
	if err != nil {
		return fmt.Errorf("listing stale soft-deleted snapshots: %w", err)
	}
	for _, snap := range stale {
		if err := m.object.Remove(snap.StoragePath); err != nil {
			m.logger.Error("removing snapshot content", "error", err, "snapshot_id", snap.ID)
			continue
		}
		if err := m.store.HardDelete(ctx, snap.ID); err != nil {
			m.logger.Error("hard-deleting snapshot", "error", err, "snapshot_id", snap.ID)
		}
	}

	return nil
}

// RunRetentionSweepLoop runs RunRetentionSweep periodically until ctx is
// cancelled, in the same shape as roster.RunScheduleTopUpLoop.
func (m *Manager) RunRetentionSweepLoop(ctx context.Context, interval time.Duration) {
	m.logger.Info("snapshot retention sweep loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := m.RunRetentionSweep(ctx); err != nil {
		m.logger.Error("initial retention sweep", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("snapshot retention sweep loop stopped")
			return
		case <-ticker.C:
			if err := m.RunRetentionSweep(ctx); err != nil {
				m.logger.Error("retention sweep", "error", err)
			}
		}
	}
}
