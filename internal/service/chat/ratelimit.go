package chat

import (
	"sync"
	"time"
)

// RateLimiter remembers the last accepted message per user and rejects
// messages arriving within Interval of it. Rejected messages are dropped,
// not queued.
type RateLimiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
}

// NewRateLimiter returns a limiter enforcing the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		last:     make(map[string]time.Time),
		interval: interval,
	}
}

// Allow reports whether a message from userID at now should be processed.
func (l *RateLimiter) Allow(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[userID]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[userID] = now
	return true
}

// Prune forgets records older than the interval.
func (l *RateLimiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID, last := range l.last {
		if now.Sub(last) >= l.interval {
			delete(l.last, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}
