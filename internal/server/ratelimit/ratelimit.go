// Package ratelimit throttles download token requests per client
// fingerprint using a fixed window.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// Limiter is a fixed-window rate limiter keyed by client fingerprint.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	rate    int
	period  time.Duration
	now     func() time.Time
}

// New creates a Limiter that allows rate requests per period for each key.
func New(rate int, period time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		rate:    rate,
		period:  period,
		now:     time.Now,
	}
}

// Allow reports whether a request for key is within the rate limit.
// When denied, retryAfter is the time remaining until the window resets.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > l.period {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	if w.count <= l.rate {
		return true, 0
	}
	return false, w.start.Add(l.period).Sub(now)
}

// Prune drops windows that ended before the current period. Call it
// periodically to keep the map from growing with one-off fingerprints.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) > l.period {
			delete(l.windows, key)
		}
	}
}
