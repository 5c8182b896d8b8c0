package cache

import (
	"context"
	"errors"
	"maps"
	"path"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MultiLevelCache)(nil)
)

// maxPendingKeys bounds the deferred key deletes; beyond it the whole L2
// keyspace is flushed instead.
const maxPendingKeys = 1024

// MultiLevelCache reads through an in-process L1 to an optional Redis L2.
// L2 calls go through a circuit breaker; while it is open the cache degrades
// to L1 only and L2 errors are logged rather than returned.
//
// An L2 delete that fails is remembered and retried before later L2 calls.
// Until it succeeds, L2 is never read for a key it covers.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	breaker *CircuitBreaker
	metrics *CacheMetrics
	l1TTL   time.Duration
	logger  *zap.Logger

	pendingMu       sync.Mutex
	pendingKeys     map[string]struct{}
	pendingPatterns map[string]struct{}
}

type MultiLevelOption func(*MultiLevelCache)

func WithL1TTL(ttl time.Duration) MultiLevelOption {
	return func(c *MultiLevelCache) { c.l1TTL = ttl }
}

func WithCircuitBreaker(cb *CircuitBreaker) MultiLevelOption {
	return func(c *MultiLevelCache) { c.breaker = cb }
}

func WithLogger(logger *zap.Logger) MultiLevelOption {
	return func(c *MultiLevelCache) { c.logger = logger }
}

func NewMultiLevelCache(l1 *MemoryCache, l2 *RedisCache, opts ...MultiLevelOption) *MultiLevelCache {
	c := &MultiLevelCache{
		l1:      l1,
		l2:      l2,
		metrics: NewCacheMetrics(),
		l1TTL:   time.Minute,
		logger:  zap.NewNop(),

		pendingKeys:     make(map[string]struct{}),
		pendingPatterns: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.l1 == nil {
		c.l1 = NewMemoryCache(0)
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreaker(nil)
	}
	c.breaker.OnStateChange(func(from, to CircuitBreakerState) {
		c.logger.Warn("cache circuit breaker state changed",
			zap.Stringer("from", from), zap.Stringer("to", to))
	})
	return c
}

func (c *MultiLevelCache) l1Expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}

// onL2 runs fn against L2 through the breaker. A miss is not a failure.
// Other errors are counted, logged and collapsed into errL2Unavailable.
func (c *MultiLevelCache) onL2(op, key string, fn func(l2 *RedisCache) error) error {
	if c.l2 == nil {
		return nil
	}
	var miss bool
	err := c.breaker.Execute(func() error {
		err := fn(c.l2)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})
	if miss {
		return ErrCacheMiss
	}
	if err != nil {
		c.metrics.RecordError()
		c.logger.Debug("l2 cache operation failed",
			zap.String("op", op), zap.String("key", key), zap.Error(err))
		return errL2Unavailable
	}
	return nil
}

var errL2Unavailable = errors.New("l2 unavailable")

func (c *MultiLevelCache) deferKeys(keys []string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for _, key := range keys {
		c.pendingKeys[key] = struct{}{}
	}
	if len(c.pendingKeys) > maxPendingKeys {
		clear(c.pendingKeys)
		c.pendingPatterns["*"] = struct{}{}
	}
}

func (c *MultiLevelCache) deferPattern(pattern string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pendingPatterns[pattern] = struct{}{}
}

// replayInvalidations retries deferred L2 deletes and reports whether any
// are still outstanding.
func (c *MultiLevelCache) replayInvalidations(ctx context.Context) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if len(c.pendingKeys) > 0 {
		keys := slices.Collect(maps.Keys(c.pendingKeys))
		err := c.onL2("replay_delete", "", func(l2 *RedisCache) error {
			return l2.Delete(ctx, keys...)
		})
		if err != nil {
			return true
		}
		clear(c.pendingKeys)
	}
	for pattern := range c.pendingPatterns {
		err := c.onL2("replay_delete_pattern", pattern, func(l2 *RedisCache) error {
			return l2.DeletePattern(ctx, pattern)
		})
		if err != nil {
			return true
		}
		delete(c.pendingPatterns, pattern)
	}
	return false
}

// stale reports whether a deferred delete still covers key.
func (c *MultiLevelCache) stale(key string) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, ok := c.pendingKeys[key]; ok {
		return true
	}
	for pattern := range c.pendingPatterns {
		if ok, _ := path.Match(pattern, key); ok {
			return true
		}
	}
	return false
}

// PendingInvalidations counts L2 deletes waiting to be retried.
func (c *MultiLevelCache) PendingInvalidations() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pendingKeys) + len(c.pendingPatterns)
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.l1Expiry(ttl)); err != nil {
		return err
	}
	c.metrics.RecordSet()
	if c.l2 == nil {
		return nil
	}
	if c.replayInvalidations(ctx) && c.stale(key) {
		return nil
	}
	_ = c.onL2("set", key, func(l2 *RedisCache) error {
		return l2.Set(ctx, key, value, ttl)
	})
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		c.metrics.RecordHit()
		return nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	if c.l2 == nil || (c.replayInvalidations(ctx) && c.stale(key)) {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	err := c.onL2("get", key, func(l2 *RedisCache) error {
		return l2.Get(ctx, key, dest)
	})
	if err != nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	c.metrics.RecordHit()
	_ = c.l1.Set(ctx, key, dest, c.l1TTL)
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	c.metrics.RecordDelete()
	err := c.onL2("delete", "", func(l2 *RedisCache) error {
		return l2.Delete(ctx, keys...)
	})
	if err != nil {
		c.deferKeys(keys)
		c.logger.Warn("l2 invalidation deferred", zap.Strings("keys", keys))
	}
	return nil
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	if err := c.l1.DeletePattern(ctx, pattern); err != nil {
		return err
	}
	c.metrics.RecordDelete()
	err := c.onL2("delete_pattern", pattern, func(l2 *RedisCache) error {
		return l2.DeletePattern(ctx, pattern)
	})
	if err != nil {
		c.deferPattern(pattern)
		c.logger.Warn("l2 invalidation deferred", zap.String("pattern", pattern))
	}
	return nil
}

func (c *MultiLevelCache) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *MultiLevelCache) HitRate() float64 {
	return c.metrics.HitRate()
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	snapshot := c.metrics.Snapshot()
	stats := map[string]interface{}{
		"hits":                  snapshot.Hits,
		"misses":                snapshot.Misses,
		"errors":                snapshot.Errors,
		"sets":                  snapshot.Sets,
		"deletes":               snapshot.Deletes,
		"hit_rate":              c.metrics.HitRate(),
		"l1":                    c.l1.Stats(),
		"circuit_breaker":       c.breaker.Stats(),
		"pending_invalidations": c.PendingInvalidations(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

// Health reports ErrCacheDown when Redis is configured but unreachable.
func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Health(ctx); err != nil {
		return errors.Join(ErrCacheDown, err)
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
