// Package singleflight collapses concurrent duplicate fetches for the
// same key into a single upstream call whose result is shared by every
// waiter.
package singleflight

import (
	"context"
	"sync"
)

// inflight is the shared result slot for one key. val and err are
// written before done is closed, so any read after <-done sees the
// final values.
type inflight[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group coordinates calls so that fn runs at most once per key at any
// instant. The zero value is ready to use.
//
// The first caller for a key becomes the leader and runs fn to
// completion; cancelling a waiter's ctx releases only that waiter.
// Results (including errors) are never cached: once the leader
// finishes, the slot is removed and the next call starts fresh.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*inflight[V]
}

// Do invokes fn once for key, sharing the outcome with every caller
// that arrives before the leader completes.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*inflight[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &inflight[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return c.val, c.err
}
