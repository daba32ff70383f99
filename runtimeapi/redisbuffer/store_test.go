package redisbuffer_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/runtimeapi/redisbuffer"
)

// testRedis connects to REDIS_ADDR (default localhost:6379) and skips the
// test outright if nothing answers a PING, the same accommodation the
// teacher's registry package makes for its own Redis-backed integration
// tests when Docker isn't available.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s, skipping: %v", addr, err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestAppendRespectsKeepLast(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer func() { _ = rdb.Del(ctx, redisbuffer.DefaultKeyPrefix+"t1").Err() }()

	store, err := redisbuffer.NewStore(rdb)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "t1", 3, i))
	}

	contents, err := store.Contents(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, contents, 3)
	require.JSONEq(t, "2", string(contents[0]))
	require.JSONEq(t, "4", string(contents[2]))
}

func TestLatestOnEmptyBuffer(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	store, err := redisbuffer.NewStore(rdb)
	require.NoError(t, err)

	_, found, err := store.Latest(ctx, "nonexistent")
	require.NoError(t, err)
	require.False(t, found)
}

func TestClearRemovesHistory(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer func() { _ = rdb.Del(ctx, redisbuffer.DefaultKeyPrefix+"t2").Err() }()

	store, err := redisbuffer.NewStore(rdb)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "t2", 0, map[string]any{"n": 1}))
	require.NoError(t, store.Clear(ctx, "t2"))

	contents, err := store.Contents(ctx, "t2")
	require.NoError(t, err)
	require.Empty(t, contents)
}
