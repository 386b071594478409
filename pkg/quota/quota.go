// Package quota enforces the per-caller request budget of the pricing
// pipeline: a fixed window per caller identity, reset lazily on the first
// access past its expiry. No background timers are involved, which keeps the
// limiter fully deterministic under an injected clock.
package quota

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Limiter tracks one fixed window per caller identity. State is
// process-local by the same policy as the response cache.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewLimiter returns a limiter allowing limit requests per interval for each
// caller identity.
func NewLimiter(limit int, interval time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the limiter's time source for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Allow records one request for the caller and reports whether it fits the
// current window. When it does not, retryAfter tells how long until the
// window expires.
func (l *Limiter) Allow(callerID string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[callerID]
	if !ok || now.Sub(w.start) >= l.interval {
		l.windows[callerID] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count >= l.limit {
		return false, w.start.Add(l.interval).Sub(now)
	}
	w.count++
	return true, 0
}

// Remaining returns how many requests the caller still has in its current
// window without consuming one.
func (l *Limiter) Remaining(callerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[callerID]
	if !ok || l.now().Sub(w.start) >= l.interval {
		return l.limit
	}
	if w.count >= l.limit {
		return 0
	}
	return l.limit - w.count
}
