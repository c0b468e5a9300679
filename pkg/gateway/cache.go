package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// balanceCacheTTL bounds how stale a cached pre-check balance may be. The
// gate invalidates the cached balance on PostDebit, so staleness only matters for
// reads that race a concurrent debit from another request (SPEC_FULL.md
// DOMAIN STACK: "gateway's hot-path balance cache").
const balanceCacheTTL = 2 * time.Second

func balanceCacheKey(tenantID uuid.UUID) string {
	return "platform:gateway:balance:" + tenantID.String()
}

// BalanceCache is a best-effort Redis read-through cache in front of the
// ledger balance read on the PreCheck hot path. A cache miss or Redis
// error always falls back to reading the ledger directly; the cache is
// never the sole source of truth for the gate decision.
type BalanceCache struct {
	rdb *redis.Client
}

// NewBalanceCache wraps a Redis client. rdb may be nil, in which case the
// cache is a permanent no-op (every call is a miss).
func NewBalanceCache(rdb *redis.Client) *BalanceCache {
	return &BalanceCache{rdb: rdb}
}

// Get returns the cached balance in cents, or ok=false on a miss (including
// when the cache is disabled or Redis is unreachable).
func (c *BalanceCache) Get(ctx context.Context, tenantID uuid.UUID) (cents int64, ok bool) {
	if c.rdb == nil {
		return 0, false
	}
	raw, err := c.rdb.Get(ctx, balanceCacheKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false
	}
	if err != nil {
		return 0, false
	}
	cents, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return cents, true
}

// Set writes the current balance with a short TTL. Failures are swallowed:
// a cache write failure degrades to more ledger reads, not incorrect gate
// decisions.
func (c *BalanceCache) Set(ctx context.Context, tenantID uuid.UUID, cents int64) {
	if c.rdb == nil {
		return
	}
	c.rdb.Set(ctx, balanceCacheKey(tenantID), strconv.FormatInt(cents, 10), balanceCacheTTL)
}

// Invalidate drops the cached balance, used after a debit so the next
// PreCheck re-reads the ledger rather than serving a stale pre-debit value.
func (c *BalanceCache) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	if c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, balanceCacheKey(tenantID))
}
