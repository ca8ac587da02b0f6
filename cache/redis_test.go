package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyx/sales-engine/cache"
)

// newRedis connects to SALES_REDIS_ADDR and skips when it is unset.
func newRedis(t *testing.T) (*cache.Redis, *redis.Client, string) {
	t.Helper()
	addr := os.Getenv("SALES_REDIS_ADDR")
	if addr == "" {
		t.Skip("SALES_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	prefix := fmt.Sprintf("test:%d:", time.Now().UnixNano())
	c := cache.NewRedis(client, prefix)
	require.NoError(t, c.Ping(context.Background()))
	return c, client, prefix
}

func TestRedis_SetGet(t *testing.T) {
	c, client, prefix := newRedis(t)
	ctx := context.Background()

	want := response("1.00", "85.98")
	require.NoError(t, c.Set(ctx, "k", want, time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "85.98", got.Lines[1].Sales)
	assert.True(t, want.Lines[1].BucketStart.Equal(got.Lines[1].BucketStart))

	ttl, err := client.TTL(ctx, prefix+"k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedis_MissIsNotAnError(t *testing.T) {
	c, _, _ := newRedis(t)

	_, ok, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_EmptyResponseRoundTrips(t *testing.T) {
	c, _, _ := newRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "empty", response(), time.Minute))

	got, ok, err := c.Get(ctx, "empty")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, got.Lines)
	assert.Empty(t, got.Lines)
}

func TestRedis_CorruptEntryIsAnError(t *testing.T) {
	c, client, prefix := newRedis(t)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, prefix+"bad", "not json", time.Minute).Err())

	_, ok, err := c.Get(ctx, "bad")
	assert.Error(t, err)
	assert.False(t, ok)
}
