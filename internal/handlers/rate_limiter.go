package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter admits at most a fixed number of attempts per key within a window.
type rateLimiter interface {
	// Allow records an attempt. When refused, retryAfter is the time left in the window.
	Allow(key string) (allowed bool, retryAfter time.Duration)
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]attemptWindow
}

type attemptWindow struct {
	attempts int
	resetAt  time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]attemptWindow),
	}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.resetAt) {
		l.windows[key] = attemptWindow{attempts: 1, resetAt: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if current.attempts >= l.limit {
		return false, current.resetAt.Sub(now)
	}
	current.attempts++
	l.windows[key] = current
	return true, 0
}

// pruneLocked drops windows that have already reset. Callers hold l.mu.
func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
