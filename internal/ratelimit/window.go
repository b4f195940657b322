// Package ratelimit implements the fixed-window send budget imposed by the
// upstream gateway.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

// FixedWindow counts acquisitions inside a fixed window. The count never
// exceeds the limit and the window only resets once it has fully elapsed.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu          sync.RWMutex
	windowStart time.Time
	count       int
}

type Option func(*FixedWindow)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(w *FixedWindow) { w.now = now }
}

func NewFixedWindow(limit int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	if window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	w := &FixedWindow{limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	w.windowStart = w.now()
	return w, nil
}

// TryAcquire never blocks. The window reset and the increment share one
// critical section; a call exactly on the boundary lands in the new window.
func (w *FixedWindow) TryAcquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !now.Before(w.windowStart.Add(w.window)) {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

// Snapshot is read-only. An elapsed window is reported as empty without
// being reset.
func (w *FixedWindow) Snapshot() model.RateLimitSnapshot {
	w.mu.RLock()
	start, count := w.windowStart, w.count
	w.mu.RUnlock()

	now := w.now()
	resetAt := start.Add(w.window)
	if !now.Before(resetAt) {
		return model.RateLimitSnapshot{
			Count:       0,
			Limit:       w.limit,
			Remaining:   w.limit,
			WindowStart: resetAt,
			ResetAt:     now,
		}
	}
	return model.RateLimitSnapshot{
		Count:       count,
		Limit:       w.limit,
		Remaining:   w.limit - count,
		WindowStart: start,
		ResetAt:     resetAt,
	}
}

func (w *FixedWindow) Limit() int { return w.limit }

func (w *FixedWindow) Window() time.Duration { return w.window }
