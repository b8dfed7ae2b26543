package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"stargazer-gateway/internal/metrics"
)

// DefaultL1TTL is the lifetime given to entries promoted from L2.
const DefaultL1TTL = 5 * time.Minute

// Config configures one layered cache instance.
type Config struct {
	// Name labels this cache in logs and metrics, e.g. "repo".
	Name string
	// MaxEntries bounds the L1 tier (default 128).
	MaxEntries int
	// L1TTL is the lifetime for entries promoted from L2 into L1
	// (default 5m). Promotion uses a fresh default TTL rather than the
	// remaining L2 TTL: the remainder is not recoverable from a plain
	// Redis GET and a bounded fresh window can never outlive the data
	// by more than L1TTL.
	L1TTL time.Duration
	// SweepInterval controls the L1 background purge of expired
	// entries (default 1m).
	SweepInterval time.Duration
}

// Layered unifies the in-process L1 and the shared L2 behind one
// get/set/invalidate contract.
//
// Reads check L1 first; an L2 hit is promoted into L1. Writes go
// through to both tiers. L2 failures are never fatal: reads degrade to
// misses and writes are skipped, both logged.
type Layered[V any] struct {
	name   string
	l1     *Memory[V]
	l2     Backend // nil in L1-only mode
	l1TTL  time.Duration
	logger *zap.Logger
}

// NewLayered builds a layered cache over backend. A nil backend yields
// an L1-only cache, used when no Redis is configured.
func NewLayered[V any](cfg Config, backend Backend, logger *zap.Logger) *Layered[V] {
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = DefaultL1TTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Layered[V]{
		name:   cfg.Name,
		l1:     NewMemory[V](cfg.MaxEntries, cfg.SweepInterval),
		l2:     backend,
		l1TTL:  cfg.L1TTL,
		logger: logger.Named("cache").With(zap.String("cache", cfg.Name)),
	}
}

// Get returns the cached value for key, consulting L1 then L2.
func (c *Layered[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	if v, ok := c.l1.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues(c.name, "l1").Inc()
		return v, true
	}

	if c.l2 == nil {
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}

	raw, found, err := c.l2.Get(ctx, key)
	if err != nil {
		// L2 down is a miss, not a failure.
		metrics.CacheDegradedTotal.WithLabelValues(c.name, "get").Inc()
		c.logger.Warn("l2 read degraded to miss", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	if !found {
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		// Corrupt payload: drop it and report a miss.
		metrics.CacheDegradedTotal.WithLabelValues(c.name, "decode").Inc()
		c.logger.Error("l2 payload corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		if derr := c.l2.Delete(ctx, key); derr != nil {
			c.logger.Warn("l2 delete after corrupt read failed", zap.String("key", key), zap.Error(derr))
		}
		return zero, false
	}

	c.l1.Set(key, v, c.l1TTL)
	metrics.CacheHitsTotal.WithLabelValues(c.name, "l2").Inc()
	return v, true
}

// Set writes value to both tiers. L2 keeps the full ttl; the L1 copy
// lives at most L1TTL so the fast tier re-validates against L2 sooner.
// Cache writes are best-effort; an L2 failure is logged and does not
// affect the L1 write.
func (c *Layered[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if key == "" {
		return
	}

	c.l1.Set(key, value, min(ttl, c.l1TTL))

	if c.l2 == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("encode for l2 failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.l2.Set(ctx, key, raw, ttl); err != nil {
		metrics.CacheDegradedTotal.WithLabelValues(c.name, "set").Inc()
		c.logger.Warn("l2 write skipped", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes key from both tiers. Used when the upstream data
// is known stale.
func (c *Layered[V]) Invalidate(ctx context.Context, key string) {
	c.l1.Delete(key)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Delete(ctx, key); err != nil {
		metrics.CacheDegradedTotal.WithLabelValues(c.name, "delete").Inc()
		c.logger.Warn("l2 invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases L1 resources.
func (c *Layered[V]) Close() {
	c.l1.Close()
}
