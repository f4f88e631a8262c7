package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

// RedisCache backs the permission cache with Redis so invalidation reaches
// every node. All Redis failures degrade silently: a failed read behaves as a
// miss, a failed write as "no cache", forcing recomputation on the next
// request.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(opts *redis.Options, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Client exposes the underlying connection for health checks.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// resolvedSetPayload is the wire form of a cached set. The in-memory set uses
// a map; Redis stores the flat list.
type resolvedSetPayload struct {
	Objects []string `json:"objects"`
	IsAdmin bool     `json:"is_admin"`
}

func redisKey(tenantID, userID, roleID string) string {
	return "authz:set:" + tenantID + ":" + userID + ":" + roleID
}

// Lookup fetches the cached set; expiry is enforced by the Redis TTL.
func (c *RedisCache) Lookup(ctx context.Context, tenantID, userID, roleID string) (*authz.ResolvedSet, bool) {
	data, err := c.client.Get(ctx, redisKey(tenantID, userID, roleID)).Result()
	if err != nil {
		return nil, false
	}
	var payload resolvedSetPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, false
	}
	return authz.NewResolvedSet(payload.Objects, payload.IsAdmin), true
}

// Store writes the set with the configured TTL. Failures are swallowed.
func (c *RedisCache) Store(ctx context.Context, tenantID, userID, roleID string, set *authz.ResolvedSet) {
	payload := resolvedSetPayload{Objects: set.ObjectNames(), IsAdmin: set.IsAdmin}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisKey(tenantID, userID, roleID), data, c.ttl)
}

// InvalidateUser deletes every key carrying the user segment. Tenant and role
// ids are UUIDs, so the segment match cannot collide on the separator.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) {
	c.deleteByPattern(ctx, "authz:set:*:"+userID+":*")
}

// InvalidateRole deletes every key carrying the role segment.
func (c *RedisCache) InvalidateRole(ctx context.Context, roleID string) {
	c.deleteByPattern(ctx, "authz:set:*:*:"+roleID)
}

func (c *RedisCache) deleteByPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if iter.Err() != nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}
