package fetcher

import (
	"context"
	"sync"
	"time"
)

// backoffGate pauses admission of new upstream work while a rate-limit
// hint is active. Pause extends the deadline, never shortens it; Wait
// blocks until the deadline has passed or ctx is done.
type backoffGate struct {
	mu    sync.Mutex
	until time.Time
}

func (g *backoffGate) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)

	g.mu.Lock()
	if deadline.After(g.until) {
		g.until = deadline
	}
	g.mu.Unlock()
}

func (g *backoffGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		d := time.Until(g.until)
		g.mu.Unlock()

		if d <= 0 {
			return nil
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			// Re-check: another rate-limit hit may have extended the pause.
		}
	}
}
