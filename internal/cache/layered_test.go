package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type repoStub struct {
	Name  string `json:"name"`
	Stars int    `json:"stars"`
}

// fakeBackend is an in-memory Backend that can be switched into a
// failing state to exercise the degraded paths.
type fakeBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	failing bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (b *fakeBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return nil, false, ErrUnavailable
	}
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *fakeBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrUnavailable
	}
	b.data[key] = value
	return nil
}

func (b *fakeBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrUnavailable
	}
	delete(b.data, key)
	return nil
}

func (b *fakeBackend) setFailing(f bool) {
	b.mu.Lock()
	b.failing = f
	b.mu.Unlock()
}

func (b *fakeBackend) raw(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}

func newTestLayered(t *testing.T, backend Backend) *Layered[*repoStub] {
	t.Helper()
	c := NewLayered[*repoStub](Config{Name: "test", MaxEntries: 16}, backend, nil)
	t.Cleanup(c.Close)
	return c
}

func TestLayered_WriteThrough(t *testing.T) {
	backend := newFakeBackend()
	c := newTestLayered(t, backend)
	ctx := context.Background()

	c.Set(ctx, "repo:a/b", &repoStub{Name: "b", Stars: 7}, time.Minute)

	// L1 serves the value.
	v, ok := c.Get(ctx, "repo:a/b")
	if !ok || v.Stars != 7 {
		t.Fatalf("Get after Set: got (%+v, %v)", v, ok)
	}

	// L2 holds a serialized copy.
	raw, ok := backend.raw("repo:a/b")
	if !ok {
		t.Fatalf("Set did not write through to L2")
	}
	var stored repoStub
	if err := json.Unmarshal(raw, &stored); err != nil || stored.Stars != 7 {
		t.Fatalf("L2 copy broken: %s err=%v", raw, err)
	}
}

func TestLayered_PromotesL2Hit(t *testing.T) {
	backend := newFakeBackend()
	c := newTestLayered(t, backend)
	ctx := context.Background()

	// Seed only L2, as if another instance had cached it.
	raw, _ := json.Marshal(&repoStub{Name: "b", Stars: 3})
	backend.data["repo:a/b"] = raw

	v, ok := c.Get(ctx, "repo:a/b")
	if !ok || v.Stars != 3 {
		t.Fatalf("L2 hit not served: got (%+v, %v)", v, ok)
	}

	// The hit must now be in L1: cut L2 off and read again.
	backend.setFailing(true)
	v, ok = c.Get(ctx, "repo:a/b")
	if !ok || v.Stars != 3 {
		t.Fatalf("L2 hit was not promoted into L1")
	}
}

func TestLayered_DegradesWhenL2Down(t *testing.T) {
	backend := newFakeBackend()
	backend.setFailing(true)
	c := newTestLayered(t, backend)
	ctx := context.Background()

	// Reads degrade to misses, never error.
	if _, ok := c.Get(ctx, "repo:a/b"); ok {
		t.Fatalf("expected miss with L2 down")
	}

	// Writes still land in L1.
	c.Set(ctx, "repo:a/b", &repoStub{Stars: 1}, time.Minute)
	if v, ok := c.Get(ctx, "repo:a/b"); !ok || v.Stars != 1 {
		t.Fatalf("L1 write lost when L2 down: (%+v, %v)", v, ok)
	}
}

func TestLayered_CorruptL2PayloadIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	c := newTestLayered(t, backend)
	ctx := context.Background()

	backend.data["repo:a/b"] = []byte("{not json")

	if _, ok := c.Get(ctx, "repo:a/b"); ok {
		t.Fatalf("corrupt payload must read as miss")
	}
	// The bad entry is dropped so it cannot poison later reads.
	if _, ok := backend.raw("repo:a/b"); ok {
		t.Fatalf("corrupt payload should have been deleted from L2")
	}
}

func TestLayered_Invalidate(t *testing.T) {
	backend := newFakeBackend()
	c := newTestLayered(t, backend)
	ctx := context.Background()

	c.Set(ctx, "repo:a/b", &repoStub{Stars: 1}, time.Minute)
	c.Invalidate(ctx, "repo:a/b")

	if _, ok := c.Get(ctx, "repo:a/b"); ok {
		t.Fatalf("expected miss after Invalidate")
	}
	if _, ok := backend.raw("repo:a/b"); ok {
		t.Fatalf("Invalidate must clear L2 as well")
	}
}

func TestLayered_L1OnlyMode(t *testing.T) {
	c := newTestLayered(t, nil)
	ctx := context.Background()

	c.Set(ctx, "repo:a/b", &repoStub{Stars: 5}, time.Minute)
	if v, ok := c.Get(ctx, "repo:a/b"); !ok || v.Stars != 5 {
		t.Fatalf("L1-only mode broken: (%+v, %v)", v, ok)
	}
	c.Invalidate(ctx, "repo:a/b")
	if _, ok := c.Get(ctx, "repo:a/b"); ok {
		t.Fatalf("expected miss after Invalidate in L1-only mode")
	}
}

func TestLayered_L1TTLCapsShortLivedCopy(t *testing.T) {
	backend := newFakeBackend()
	c := NewLayered[*repoStub](Config{Name: "test", MaxEntries: 16, L1TTL: 20 * time.Millisecond}, backend, nil)
	t.Cleanup(c.Close)
	ctx := context.Background()

	c.Set(ctx, "repo:a/b", &repoStub{Stars: 9}, time.Hour)

	time.Sleep(30 * time.Millisecond)

	// The L1 copy has expired, but the L2 copy still serves and gets
	// re-promoted.
	v, ok := c.Get(ctx, "repo:a/b")
	if !ok || v.Stars != 9 {
		t.Fatalf("L2 should back the expired L1 copy: (%+v, %v)", v, ok)
	}
}
