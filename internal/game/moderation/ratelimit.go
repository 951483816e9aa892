package moderation

import (
	"sync"
	"time"
)

// slidingLimiter enforces a per-session sliding-window message budget.
// Only accepted sends consume the window; rejected attempts are not
// recorded, so a spammer recovers as soon as their accepted sends age out.
type slidingLimiter struct {
	window time.Duration
	limit  int

	mu   sync.Mutex
	hits map[string][]time.Time
}

func newSlidingLimiter(window time.Duration, limit int) *slidingLimiter {
	return &slidingLimiter{
		window: window,
		limit:  limit,
		hits:   make(map[string][]time.Time),
	}
}

// allow reports whether a send at now fits the session's window, and
// records it if so.
func (l *slidingLimiter) allow(sessionID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	recent := l.hits[sessionID][:0]
	for _, ts := range l.hits[sessionID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.limit {
		l.hits[sessionID] = recent
		return false
	}
	l.hits[sessionID] = append(recent, now)
	return true
}

// forget drops all window state for a departed session.
func (l *slidingLimiter) forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, sessionID)
}
