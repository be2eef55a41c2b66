package embedcache

import (
	"sync"
	"time"
)

// windowLimiter caps requests per fixed time window. Requests beyond the
// cap are rejected, not queued.
type windowLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	windowStart time.Time
	count       int
}

func newWindowLimiter(window time.Duration, maxRequests int) *windowLimiter {
	return &windowLimiter{
		window:      window,
		maxRequests: maxRequests,
	}
}

// Allow reports whether a request fits within the current window.
func (l *windowLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.maxRequests {
		return false
	}
	l.count++
	return true
}
