package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "clerksync:delivery:"

// ReplayCache tracks delivery IDs that have already been processed, so
// duplicate at-least-once deliveries can be short-circuited. Checking and
// recording are separate steps: an ID is only recorded once its delivery
// reached an acknowledged outcome, so a transient processing failure
// leaves the ID unrecorded and the sender's retry is processed in full.
// It is a best-effort optimization: the reconciler stays idempotent
// without it, and a cache failure must never block a delivery.
type ReplayCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReplayCache wraps a redis client. A nil client yields a disabled
// cache where Seen always reports false and Mark is a no-op.
func NewReplayCache(rdb *redis.Client, ttl time.Duration) *ReplayCache {
	if ttl <= 0 {
		ttl = DefaultTolerance
	}
	return &ReplayCache{rdb: rdb, ttl: ttl}
}

// Enabled reports whether the cache is backed by a live client.
func (c *ReplayCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Seen reports whether deliveryID has already been recorded as processed.
// Read-only; it never records anything.
func (c *ReplayCache) Seen(ctx context.Context, deliveryID string) (bool, error) {
	if !c.Enabled() || deliveryID == "" {
		return false, nil
	}

	n, err := c.rdb.Exists(ctx, replayKeyPrefix+deliveryID).Result()
	if err != nil {
		return false, fmt.Errorf("replay cache check: %w", err)
	}
	return n > 0, nil
}

// Mark records deliveryID as processed. The entry expires after the
// configured TTL, which only needs to cover the verifier's timestamp
// tolerance window.
func (c *ReplayCache) Mark(ctx context.Context, deliveryID string) error {
	if !c.Enabled() || deliveryID == "" {
		return nil
	}

	if err := c.rdb.Set(ctx, replayKeyPrefix+deliveryID, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("replay cache mark: %w", err)
	}
	return nil
}
