package fleet

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botfleet/creditcore/internal/telemetry"
)

// nodeLostChannel is the Redis pub/sub channel the watchdog publishes to,
// for any out-of-process consumers (e.g. notify) that want node-lost
// events without subscribing to the in-process publisher directly. Named
// in the same style as the teacher's "nightowl:alert:escalated" channel.
const nodeLostChannel = "platform:node:lost"

// Watchdog periodically checks every active node's last heartbeat and
// publishes NodeLost for any that have timed out (spec.md §4.G piece 2).
type Watchdog struct {
	store     *Store
	publisher *NodeLostPublisher
	rdb       *redis.Client
	logger    *slog.Logger
	timeout   time.Duration
}

// NewWatchdog constructs a Watchdog. rdb may be nil to disable the Redis
// pub/sub fan-out; the in-process publisher always fires regardless.
func NewWatchdog(store *Store, publisher *NodeLostPublisher, rdb *redis.Client, logger *slog.Logger, timeout time.Duration) *Watchdog {
	return &Watchdog{store: store, publisher: publisher, rdb: rdb, logger: logger, timeout: timeout}
}

// Tick runs one watchdog pass.
func (w *Watchdog) Tick(ctx context.Context) error {
	nodes, err := w.store.ListNodes(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, n := range nodes {
		if n.Status != NodeStatusActive {
			continue
		}
		if now.Sub(n.LastHeartbeatAt) <= w.timeout {
			continue
		}

		w.logger.Warn("node heartbeat timed out, declaring lost", "node_id", n.ID, "last_heartbeat_at", n.LastHeartbeatAt)
		telemetry.FleetHeartbeatTimeoutsTotal.Inc()
		w.publisher.Publish(ctx, n.ID)

		if w.rdb != nil {
			payload, _ := json.Marshal(map[string]any{
				"node_id":           n.ID,
				"last_heartbeat_at": n.LastHeartbeatAt,
			})
			if err := w.rdb.Publish(ctx, nodeLostChannel, string(payload)).Err(); err != nil {
				w.logger.Error("publishing node-lost event to redis", "error", err, "node_id", n.ID)
			}
		}
	}
	return nil
}

// RunLoop runs Tick periodically until ctx is cancelled, in the same
// shape as roster.RunScheduleTopUpLoop.
func (w *Watchdog) RunLoop(ctx context.Context, interval time.Duration) {
	w.logger.Info("fleet heartbeat watchdog started", "interval", interval, "timeout", w.timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := w.Tick(ctx); err != nil {
		w.logger.Error("initial watchdog tick", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("fleet heartbeat watchdog stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("watchdog tick", "error", err)
			}
		}
	}
}
