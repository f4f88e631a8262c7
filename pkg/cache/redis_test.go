package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(&redis.Options{Addr: mr.Addr()}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, _ := setupRedisCache(t)
	ctx := context.Background()

	set := authz.NewResolvedSet([]string{"F_MAT_DSP"}, false)
	c.Store(ctx, "t1", "u1", "r1", set)

	got, ok := c.Lookup(ctx, "t1", "u1", "r1")
	require.True(t, ok)
	assert.True(t, got.Contains("F_MAT_DSP"))
	assert.False(t, got.IsAdmin)

	_, ok = c.Lookup(ctx, "t1", "u1", "r2")
	assert.False(t, ok)
}

func TestRedisCacheAdminSet(t *testing.T) {
	c, _ := setupRedisCache(t)
	ctx := context.Background()

	c.Store(ctx, "t1", "u1", "r1", authz.NewResolvedSet(nil, true))
	got, ok := c.Lookup(ctx, "t1", "u1", "r1")
	require.True(t, ok)
	assert.True(t, got.IsAdmin)
}

func TestRedisCacheTTL(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	c.Store(ctx, "t1", "u1", "r1", authz.NewResolvedSet(nil, false))
	mr.FastForward(2 * time.Minute)

	_, ok := c.Lookup(ctx, "t1", "u1", "r1")
	assert.False(t, ok, "entry survived past its TTL")
}

func TestRedisCacheInvalidateUser(t *testing.T) {
	c, _ := setupRedisCache(t)
	ctx := context.Background()

	c.Store(ctx, "t1", "u1", "r1", authz.NewResolvedSet(nil, false))
	c.Store(ctx, "t2", "u1", "r1", authz.NewResolvedSet(nil, false))
	c.Store(ctx, "t1", "u2", "r1", authz.NewResolvedSet(nil, false))

	c.InvalidateUser(ctx, "u1")

	_, ok := c.Lookup(ctx, "t1", "u1", "r1")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "t2", "u1", "r1")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "t1", "u2", "r1")
	assert.True(t, ok)
}

func TestRedisCacheInvalidateRole(t *testing.T) {
	c, _ := setupRedisCache(t)
	ctx := context.Background()

	c.Store(ctx, "t1", "u1", "r1", authz.NewResolvedSet(nil, false))
	c.Store(ctx, "t1", "u2", "r1", authz.NewResolvedSet(nil, false))
	c.Store(ctx, "t1", "u1", "r2", authz.NewResolvedSet(nil, false))

	c.InvalidateRole(ctx, "r1")

	_, ok := c.Lookup(ctx, "t1", "u1", "r1")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "t1", "u2", "r1")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "t1", "u1", "r2")
	assert.True(t, ok)
}

func TestRedisCacheCorruptPayload(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(redisKey("t1", "u1", "r1"), "not json"))
	_, ok := c.Lookup(ctx, "t1", "u1", "r1")
	assert.False(t, ok, "corrupt payload served as a hit")
}

func TestRedisCacheConnectFailure(t *testing.T) {
	_, err := NewRedisCache(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}, time.Minute)
	assert.Error(t, err)
}
