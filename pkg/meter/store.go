package meter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists flushed events and aggregated billing-period summaries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a meter Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertBatch bulk-inserts events into the meter_events table in one round
// trip (spec.md §4.C step 2: "insert the events in one batch ... using a
// bulk statement").
func (s *Store) InsertBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.ID, e.Tenant, e.Capability, e.Provider, e.Cost, e.Charge, e.Timestamp, e.SessionID, e.Duration}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"meter_events"},
		[]string{"id", "tenant", "capability", "provider", "cost", "charge", "timestamp", "session_id", "duration"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("bulk inserting meter events: %w", err)
	}
	return nil
}

// AggregateGroup is one (tenant, capability, provider, periodStart) bucket
// awaiting a summary upsert.
type AggregateGroup struct {
	Tenant       string
	Capability   string
	Provider     string
	PeriodStart  time.Time
	PeriodLength time.Duration
	EventCount   int
	TotalCost    float64
	TotalCharge  float64
	TotalDuration float64
}

// ScanForAggregation returns all meter events older than now-period that
// fall within the grace-extended aggregation window, for grouping in
// memory by the caller (spec.md §4.C step 3).
func (s *Store) ScanForAggregation(ctx context.Context, now time.Time, period, grace time.Duration) ([]Event, error) {
	cutoff := now.Add(-period)
	windowStart := now.Add(-period - grace - period) // re-scan one extra period back within the grace window

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant, capability, provider, cost, charge, timestamp, session_id, duration
		 FROM meter_events WHERE timestamp < $1 AND timestamp >= $2`,
		cutoff, windowStart,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning meter events for aggregation: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Capability, &e.Provider, &e.Cost, &e.Charge, &e.Timestamp, &e.SessionID, &e.Duration); err != nil {
			return nil, fmt.Errorf("scanning meter event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertSummary replaces the billing-period summary row for the group with
// the full re-sum, making aggregation idempotent (spec.md §4.C: "running
// it twice yields the same rows").
func (s *Store) UpsertSummary(ctx context.Context, g AggregateGroup) error {
	periodEnd := g.PeriodStart.Add(g.PeriodLength)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_period_summaries
		   (tenant, capability, provider, period_start, period_end, event_count, total_cost, total_charge, total_duration)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant, capability, provider, period_start) DO UPDATE SET
		   period_end = $5, event_count = $6, total_cost = $7, total_charge = $8, total_duration = $9`,
		g.Tenant, g.Capability, g.Provider, g.PeriodStart, periodEnd,
		g.EventCount, g.TotalCost, g.TotalCharge, g.TotalDuration,
	)
	if err != nil {
		return fmt.Errorf("upserting billing period summary: %w", err)
	}
	return nil
}

// GroupForAggregation buckets events by (tenant, capability, provider,
// periodStart), excluding the current incomplete period (spec.md §3:
// "Current (incomplete) period is never summarised").
func GroupForAggregation(events []Event, period time.Duration, now time.Time) []AggregateGroup {
	currentPeriodStart := PeriodStart(now, period)

	groups := make(map[[4]string]*AggregateGroup)
	var order [][4]string
	for _, e := range events {
		ps := PeriodStart(e.Timestamp, period)
		if ps.Equal(currentPeriodStart) || ps.After(currentPeriodStart) {
			continue
		}
		key := [4]string{e.Tenant, e.Capability, e.Provider, ps.Format(time.RFC3339Nano)}
		g, ok := groups[key]
		if !ok {
			g = &AggregateGroup{Tenant: e.Tenant, Capability: e.Capability, Provider: e.Provider, PeriodStart: ps, PeriodLength: period}
			groups[key] = g
			order = append(order, key)
		}
		g.EventCount++
		g.TotalCost += e.Cost
		g.TotalCharge += e.Charge
		if e.Duration != nil {
			g.TotalDuration += *e.Duration
		}
	}

	out := make([]AggregateGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}
