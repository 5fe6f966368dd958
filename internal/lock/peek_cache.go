package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const peekCacheKeyPrefix = "lock:peek:"

// PeekCache is a Redis-backed, fail-open fast path in front of
// DistributedLock.Peek. It never participates in try_acquire/release
// correctness: a cache miss or Redis error always falls through to the
// authoritative store. Redis is a non-authoritative accelerator in front
// of the SQL store of record here, never the store itself.
type PeekCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPeekCache builds a PeekCache with the given entry TTL, defaulting to
// a few hundred milliseconds.
func NewPeekCache(rdb *redis.Client, ttl time.Duration) *PeekCache {
	if ttl <= 0 {
		ttl = 300 * time.Millisecond
	}
	return &PeekCache{rdb: rdb, ttl: ttl}
}

func peekCacheKey(resourceID string) string {
	return peekCacheKeyPrefix + resourceID
}

// get reports the cached held state, and whether the cache had an entry at
// all. A nil receiver or any Redis error is treated as a miss.
func (c *PeekCache) get(ctx context.Context, resourceID string) (held bool, found bool) {
	if c == nil {
		return false, false
	}
	val, err := c.rdb.Get(ctx, peekCacheKey(resourceID)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

func (c *PeekCache) set(ctx context.Context, resourceID string, held bool) {
	if c == nil {
		return
	}
	val := "0"
	if held {
		val = "1"
	}
	_ = c.rdb.Set(ctx, peekCacheKey(resourceID), val, c.ttl).Err()
}
