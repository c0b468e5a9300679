// Package notifyqueue enforces the `(tenant, template, date)` dedup rule
// for the core's NotificationSink ("send(templateName, tenant, payload)...
// Deduplication of (tenant, template, date) is enforced by the
// notification queue store inside the core", spec.md §6). It is not a
// delivery mechanism itself: billing-email and digest flows call Send,
// which records the attempt and only invokes the configured notify.Sink
// the first time a given template fires for a tenant on a given day.
//
// Grounded on the teacher's pkg/alert.Deduplicator: a Redis SETNX-with-TTL
// hot path backed by a Postgres unique constraint as the authoritative
// fallback, so a Redis outage degrades to slightly slower dedup checks
// rather than duplicate sends.
package notifyqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/botfleet/creditcore/pkg/notify"
)

// redisKeyTTL bounds how long the Redis fast-path dedup key lives; one day
// plus slack covers the "date" granularity the dedup rule is keyed on.
const redisKeyTTL = 25 * time.Hour

const dateLayout = "2006-01-02"

func redisKey(tenantID uuid.UUID, template, date string) string {
	return fmt.Sprintf("platform:notifyqueue:%s:%s:%s", tenantID, template, date)
}

// Queue enforces the dedup rule and records every send attempt in
// notification_queue. rdb may be nil, in which case every check falls
// straight through to the database's unique constraint.
type Queue struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	sink   notify.Sink
	logger *slog.Logger
}

// NewQueue constructs a Queue. sink may be notify.NoopSink{} if no alert
// channel is configured.
func NewQueue(pool *pgxpool.Pool, rdb *redis.Client, sink notify.Sink, logger *slog.Logger) *Queue {
	return &Queue{pool: pool, rdb: rdb, sink: sink, logger: logger}
}

// Send records one (tenant, template, date) attempt and, only the first
// time it is seen for that day, posts it through the configured sink. It
// reports whether this call was the first for the day (i.e. whether the
// sink was actually invoked).
func (q *Queue) Send(ctx context.Context, tenantID uuid.UUID, template string, payload json.RawMessage) (sent bool, err error) {
	date := time.Now().UTC().Format(dateLayout)

	if q.rdb != nil {
		ok, err := q.rdb.SetNX(ctx, redisKey(tenantID, template, date), "1", redisKeyTTL).Result()
		if err != nil {
			q.logger.Warn("notifyqueue redis dedup check failed, falling back to database", "error", err)
		} else if !ok {
			return false, nil
		}
	}

	inserted, err := q.insert(ctx, tenantID, template, date, payload)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	alert := notify.BillingAlert{
		TenantID: tenantID.String(),
		Title:    template,
		Detail:   string(payload),
	}
	if err := q.sink.PostBillingAlert(ctx, alert); err != nil {
		q.logger.Error("posting queued notification", "error", err, "tenant_id", tenantID, "template", template)
		return true, nil
	}
	return true, nil
}

// insert writes the attempt row, relying on a unique index over
// (tenant_id, template, scheduled_date) to make the database the
// authoritative dedup check regardless of the Redis outcome.
func (q *Queue) insert(ctx context.Context, tenantID uuid.UUID, template, date string, payload json.RawMessage) (bool, error) {
	tag, err := q.pool.Exec(ctx,
		`INSERT INTO notification_queue (id, tenant_id, template, scheduled_date, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (tenant_id, template, scheduled_date) DO NOTHING`,
		uuid.New(), tenantID, template, date, payload,
	)
	if err != nil {
		return false, fmt.Errorf("inserting notification queue entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
