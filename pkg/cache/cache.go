// Package cache provides the resolved-permission cache. Entries are keyed by
// (tenant, user, role) and live for a bounded TTL; lookups past expiry behave
// as misses. Two backends exist: a sharded in-process map and a Redis-backed
// implementation for multi-node deployments.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

const (
	// DefaultTTL bounds how long a resolved set may be served without
	// recomputation.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is how often the janitor evicts expired entries.
	DefaultSweepInterval = 10 * time.Minute

	shardCount = 16
)

// Options configures a memory cache.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type entry struct {
	set       *authz.ResolvedSet
	userID    string
	roleID    string
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// MemoryCache is a sharded in-process TTL cache. It is constructed
// explicitly and owns its sweep lifecycle: Start launches the janitor, Stop
// halts it. Lock granularity never exceeds a single shard, so the sweep and
// concurrent lookups only contend briefly per shard.
type MemoryCache struct {
	ttl           time.Duration
	sweepInterval time.Duration
	shards        [shardCount]*shard

	stop    chan struct{}
	stopped sync.Once
	started atomic.Bool

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemoryCache creates a memory cache. Call Start to begin the periodic
// sweep and Stop during shutdown.
func NewMemoryCache(opts Options) *MemoryCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	c := &MemoryCache{
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		stop:          make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return c
}

// Start launches the background sweep. Calling Start twice is a no-op.
func (c *MemoryCache) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep(time.Now())
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the background sweep. Safe to call multiple times.
func (c *MemoryCache) Stop() {
	c.stopped.Do(func() { close(c.stop) })
}

func cacheKey(tenantID, userID, roleID string) string {
	return tenantID + "/" + userID + "/" + roleID
}

func (c *MemoryCache) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Lookup returns the cached set for the key, or (nil, false) on miss. An
// entry past its expiry is evicted and reported as a miss.
func (c *MemoryCache) Lookup(_ context.Context, tenantID, userID, roleID string) (*authz.ResolvedSet, bool) {
	key := cacheKey(tenantID, userID, roleID)
	s := c.shardFor(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !time.Now().Before(e.expiresAt) {
		s.mu.Lock()
		// Recheck under the write lock; a concurrent Store may have
		// refreshed the entry.
		if cur, ok := s.entries[key]; ok && !time.Now().Before(cur.expiresAt) {
			delete(s.entries, key)
			c.evictions.Add(1)
		}
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.set, true
}

// Store inserts or overwrites the entry with a fresh TTL.
func (c *MemoryCache) Store(_ context.Context, tenantID, userID, roleID string, set *authz.ResolvedSet) {
	key := cacheKey(tenantID, userID, roleID)
	s := c.shardFor(key)

	s.mu.Lock()
	s.entries[key] = entry{
		set:       set,
		userID:    userID,
		roleID:    roleID,
		expiresAt: time.Now().Add(c.ttl),
	}
	s.mu.Unlock()
}

// InvalidateUser removes every entry belonging to one user, across tenants.
// Entries for other users are untouched.
func (c *MemoryCache) InvalidateUser(_ context.Context, userID string) {
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.userID == userID {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

// InvalidateRole removes every entry resolved for a role, across all users
// holding it. Called synchronously after any assignment mutation so no
// request is served a stale set.
func (c *MemoryCache) InvalidateRole(_ context.Context, roleID string) {
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.roleID == roleID {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

// sweep evicts every entry expired at the given instant. Each shard is locked
// independently so concurrent lookups stall for at most one shard scan.
func (c *MemoryCache) sweep(now time.Time) {
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, key)
				c.evictions.Add(1)
			}
		}
		s.mu.Unlock()
	}
}

// Len returns the number of live entries across all shards.
func (c *MemoryCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Stats reports cumulative hit/miss/eviction counts.
func (c *MemoryCache) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}
