package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReplayCache(t *testing.T) (*ReplayCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewReplayCache(rdb, time.Minute), mr
}

func TestReplayCacheSeenAndMark(t *testing.T) {
	cache, _ := newTestReplayCache(t)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen, "unrecorded delivery is not seen")

	// Checking does not record: a failed delivery must stay retryable.
	seen, err = cache.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen, "Seen must be read-only")

	require.NoError(t, cache.Mark(ctx, "msg_1"))

	seen, err = cache.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.True(t, seen, "recorded delivery is seen")

	seen, err = cache.Seen(ctx, "msg_2")
	require.NoError(t, err)
	assert.False(t, seen, "distinct delivery IDs are independent")
}

func TestReplayCacheExpiry(t *testing.T) {
	cache, mr := newTestReplayCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "msg_1"))

	mr.FastForward(2 * time.Minute)

	seen, err := cache.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen, "entry should expire after the TTL")
}

func TestReplayCacheDisabled(t *testing.T) {
	cache := NewReplayCache(nil, time.Minute)
	assert.False(t, cache.Enabled())

	ctx := context.Background()
	require.NoError(t, cache.Mark(ctx, "msg_1"))

	seen, err := cache.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen, "disabled cache never reports seen")
}

func TestReplayCacheEmptyID(t *testing.T) {
	cache, _ := newTestReplayCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, ""))

	seen, err := cache.Seen(ctx, "")
	require.NoError(t, err)
	assert.False(t, seen)
}
