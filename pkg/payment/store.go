package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the tenant→processor-customer mapping and the auto-topup
// schedule rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a payment Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertCustomerMapping records or updates the tenant's processor customer id.
func (s *Store) UpsertCustomerMapping(ctx context.Context, tenantID uuid.UUID, processorCustomerID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_processor_customers (tenant_id, processor_customer_id, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (tenant_id) DO UPDATE SET processor_customer_id = $2, updated_at = now()`,
		tenantID, processorCustomerID,
	)
	if err != nil {
		return fmt.Errorf("upserting customer mapping: %w", err)
	}
	return nil
}

// Schedule is one tenant's auto-topup configuration.
type Schedule struct {
	TenantID          uuid.UUID
	AmountCents       int64
	IntervalHours     int
	NextAt            time.Time
	FailureCount      int
	FailureCap        int
	Disabled          bool
	ProcessorCustomer string
}

// DueSchedules returns schedules whose NextAt has passed and that are not disabled.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, amount_cents, interval_hours, next_at, failure_count, failure_cap, disabled, processor_customer_id
		 FROM payment_schedules WHERE next_at <= $1 AND disabled = false`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("listing due schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var sch Schedule
		if err := rows.Scan(&sch.TenantID, &sch.AmountCents, &sch.IntervalHours, &sch.NextAt,
			&sch.FailureCount, &sch.FailureCap, &sch.Disabled, &sch.ProcessorCustomer); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

// AdvanceSchedule unconditionally advances next_at by intervalHours
// (spec.md §4.D: "unconditionally advances ... to prevent hammer-retry").
func (s *Store) AdvanceSchedule(ctx context.Context, tenantID uuid.UUID, intervalHours int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE payment_schedules SET next_at = next_at + make_interval(hours => $2) WHERE tenant_id = $1`,
		tenantID, intervalHours,
	)
	if err != nil {
		return fmt.Errorf("advancing schedule: %w", err)
	}
	return nil
}

// RecordSuccess resets the failure counter.
func (s *Store) RecordSuccess(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE payment_schedules SET failure_count = 0 WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("recording schedule success: %w", err)
	}
	return nil
}

// RecordFailure increments the failure counter and disables the schedule
// once it reaches the cap (spec.md §4.D: "disables the schedule once it
// reaches a fixed cap"). It reports whether this call is the one that
// crossed into disabled, so the caller can alert exactly once.
func (s *Store) RecordFailure(ctx context.Context, tenantID uuid.UUID) (nowDisabled bool, err error) {
	row := s.pool.QueryRow(ctx,
		`WITH updated AS (
		     UPDATE payment_schedules
		     SET failure_count = failure_count + 1,
		         disabled = (failure_count + 1 >= failure_cap)
		     WHERE tenant_id = $1
		     RETURNING disabled, failure_count, failure_cap
		 )
		 SELECT disabled AND failure_count = failure_cap FROM updated`,
		tenantID,
	)
	if err := row.Scan(&nowDisabled); err != nil {
		return false, fmt.Errorf("recording schedule failure: %w", err)
	}
	return nowDisabled, nil
}
