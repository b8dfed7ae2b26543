package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a backing-store failure (as opposed to a clean
// miss). Callers degrade: reads become misses, writes are skipped.
var ErrUnavailable = errors.New("cache backend unavailable")

// Backend is the shared, durable tier behind the in-process cache.
// Implemented by the Redis adapter; a nil Backend means L1-only mode.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
