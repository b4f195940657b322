package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNewFixedWindow_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, err := NewFixedWindow(0, time.Minute); err == nil {
		t.Fatalf("expected error for limit=0")
	}
	if _, err := NewFixedWindow(5, 0); err == nil {
		t.Fatalf("expected error for window=0")
	}
}

func TestFixedWindow_RefusesOverLimitWithoutMutation(t *testing.T) {
	t.Parallel()

	clk := newClock()
	w, err := NewFixedWindow(3, time.Minute, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewFixedWindow error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !w.TryAcquire() {
			t.Fatalf("expected acquire %d to succeed", i)
		}
	}
	before := w.Snapshot()
	if w.TryAcquire() {
		t.Fatalf("expected acquire over limit to fail")
	}
	after := w.Snapshot()
	if before != after {
		t.Fatalf("refused acquire mutated state: before=%+v after=%+v", before, after)
	}
	if after.Count != 3 || after.Remaining != 0 {
		t.Fatalf("unexpected snapshot %+v", after)
	}
}

func TestFixedWindow_ResetsOnlyAfterFullWindow(t *testing.T) {
	t.Parallel()

	clk := newClock()
	start := clk.Now()
	w, _ := NewFixedWindow(2, time.Minute, WithClock(clk.Now))

	w.TryAcquire()
	w.TryAcquire()

	clk.Advance(59 * time.Second)
	if w.TryAcquire() {
		t.Fatalf("expected no partial reset before window end")
	}

	// Exactly on the boundary the new window applies.
	clk.Advance(time.Second)
	if !w.TryAcquire() {
		t.Fatalf("expected acquire on window boundary to succeed")
	}

	snap := w.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1 in new window, got %d", snap.Count)
	}
	if !snap.WindowStart.Equal(start.Add(time.Minute)) {
		t.Fatalf("expected window start %v, got %v", start.Add(time.Minute), snap.WindowStart)
	}
	if !snap.ResetAt.Equal(start.Add(2 * time.Minute)) {
		t.Fatalf("unexpected reset time %v", snap.ResetAt)
	}
}

func TestFixedWindow_SnapshotOfElapsedWindow(t *testing.T) {
	t.Parallel()

	clk := newClock()
	w, _ := NewFixedWindow(5, time.Minute, WithClock(clk.Now))
	w.TryAcquire()

	clk.Advance(2 * time.Minute)
	snap := w.Snapshot()
	if snap.Count != 0 || snap.Remaining != 5 {
		t.Fatalf("expected empty budget after elapsed window, got %+v", snap)
	}
	if !snap.ResetAt.Equal(clk.Now()) {
		t.Fatalf("expected resetAt=now, got %v", snap.ResetAt)
	}
}

func TestFixedWindow_ConcurrentBurstNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	w, _ := NewFixedWindow(50, time.Hour)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.TryAcquire() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 50 {
		t.Fatalf("expected exactly 50 grants, got %d", got)
	}
}
