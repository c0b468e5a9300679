package meter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botfleet/creditcore/internal/telemetry"
)

// defaultMaxRetries is the flush retry bound before an event is dead-lettered
// (spec.md §4.C step 2, "e.g. 5").
const defaultMaxRetries = 5

// aggregateLockKey is the Redis key used to serialise aggregation across
// horizontally-scaled replicas of this process (SPEC_FULL.md addition —
// the spec's in-process self-exclusive timer is not sufficient once more
// than one replica runs the worker loop).
const aggregateLockKey = "platform:meter:aggregate-lock"

// Pipeline wires together the WAL, DLQ, relational store, and the
// background flush/aggregate loops. Emit is the only method called from
// request-handling goroutines; it never touches the network.
type Pipeline struct {
	wal    *WAL
	dlq    *DLQ
	store  *Store
	rdb    *redis.Client
	logger *slog.Logger

	maxRetries int

	flushing   chan struct{} // size-1 trylock, same idiom as audit.Writer's single goroutine
	aggregating chan struct{}
}

// NewPipeline constructs a Pipeline. maxRetries <= 0 uses the default of 5.
func NewPipeline(wal *WAL, dlq *DLQ, store *Store, rdb *redis.Client, logger *slog.Logger, maxRetries int) *Pipeline {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Pipeline{
		wal:         wal,
		dlq:         dlq,
		store:       store,
		rdb:         rdb,
		logger:      logger,
		maxRetries:  maxRetries,
		flushing:    make(chan struct{}, 1),
		aggregating: make(chan struct{}, 1),
	}
}

// Emit appends one usage event to the WAL. It never blocks on the
// relational store (spec.md §4.C step 1).
func (p *Pipeline) Emit(e Event) error {
	return p.wal.Append(e)
}

// Flush reads the WAL, bulk-inserts events into the relational store, and
// compacts the WAL to remove successfully-flushed lines. Events that fail
// repeatedly are moved to the DLQ. Self-exclusive: a Flush call returns
// immediately if one is already running.
func (p *Pipeline) Flush(ctx context.Context) error {
	select {
	case p.flushing <- struct{}{}:
		defer func() { <-p.flushing }()
	default:
		return nil
	}

	events, offset, err := p.wal.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshotting WAL: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	if err := p.store.InsertBatch(ctx, events); err != nil {
		return p.handleFlushFailure(events, offset, err)
	}

	if err := p.wal.Compact(offset, nil); err != nil {
		return fmt.Errorf("compacting WAL after flush: %w", err)
	}
	telemetry.MeterEventsFlushedTotal.Add(float64(len(events)))
	return nil
}

// handleFlushFailure retries each event up to maxRetries, moving
// exhausted ones to the DLQ, then compacts the WAL to keep only the
// events still eligible for retry.
func (p *Pipeline) handleFlushFailure(events []Event, offset int64, cause error) error {
	p.logger.Warn("meter flush failed, will retry", "error", cause, "event_count", len(events))

	var retained []Event
	for _, e := range events {
		e = e.WithRetryIncremented()
		if e.RetryCount() >= p.maxRetries {
			if err := p.dlq.Append(e, cause); err != nil {
				p.logger.Error("dead-lettering event failed", "error", err, "event_id", e.ID)
				retained = append(retained, e) // keep it in the WAL if we couldn't even DLQ it
				continue
			}
			telemetry.MeterEventsDeadLetteredTotal.Inc()
			continue
		}
		retained = append(retained, e)
	}

	if err := p.wal.Compact(offset, retained); err != nil {
		return fmt.Errorf("compacting WAL after flush failure: %w", err)
	}
	return nil
}

// Aggregate scans meter events and upserts billing-period summaries.
// Self-exclusive in-process, and additionally guarded by a Redis SET NX EX
// lock so at most one replica runs aggregation at a time.
func (p *Pipeline) Aggregate(ctx context.Context, period, lateArrivalGrace time.Duration) error {
	select {
	case p.aggregating <- struct{}{}:
		defer func() { <-p.aggregating }()
	default:
		return nil
	}

	acquired, err := p.rdb.SetNX(ctx, aggregateLockKey, "1", period).Result()
	if err != nil {
		return fmt.Errorf("acquiring aggregate lock: %w", err)
	}
	if !acquired {
		return nil
	}
	defer p.rdb.Del(context.Background(), aggregateLockKey)

	start := time.Now()
	defer func() { telemetry.MeterAggregateDuration.Observe(time.Since(start).Seconds()) }()

	now := time.Now().UTC()
	events, err := p.store.ScanForAggregation(ctx, now, period, lateArrivalGrace)
	if err != nil {
		return fmt.Errorf("scanning for aggregation: %w", err)
	}

	groups := GroupForAggregation(events, period, now)
	for _, g := range groups {
		if err := p.store.UpsertSummary(ctx, g); err != nil {
			p.logger.Error("upserting billing period summary", "error", err,
				"tenant", g.Tenant, "capability", g.Capability, "provider", g.Provider)
		}
	}
	return nil
}

// RunFlushLoop runs Flush periodically until ctx is cancelled, in the same
// shape as roster.RunScheduleTopUpLoop.
func (p *Pipeline) RunFlushLoop(ctx context.Context, interval time.Duration) {
	p.logger.Info("meter flush loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.Flush(ctx); err != nil {
		p.logger.Error("initial meter flush", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("meter flush loop stopped")
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("meter flush", "error", err)
			}
		}
	}
}

// RunAggregateLoop runs Aggregate periodically until ctx is cancelled.
func (p *Pipeline) RunAggregateLoop(ctx context.Context, interval, period, lateArrivalGrace time.Duration) {
	p.logger.Info("meter aggregate loop started", "interval", interval, "period", period)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.Aggregate(ctx, period, lateArrivalGrace); err != nil {
		p.logger.Error("initial meter aggregate", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("meter aggregate loop stopped")
			return
		case <-ticker.C:
			if err := p.Aggregate(ctx, period, lateArrivalGrace); err != nil {
				p.logger.Error("meter aggregate", "error", err)
			}
		}
	}
}

