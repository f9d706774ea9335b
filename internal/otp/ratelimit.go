package otp

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultWindow and DefaultMaxRequests cap code issuance per identity.
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 3
)

// RateLimiter is a per-identity sliding-window counter. State is in-process
// and ephemeral: it is a best-effort abuse defense, never the mechanism any
// voting invariant relies on. A multi-instance deployment gets per-instance
// limits, which is accepted.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	return &RateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether the identity may issue another code now. When denied,
// retryAfterMinutes is the wait (rounded up) until the oldest surviving
// request leaves the window.
func (l *RateLimiter) Allow(identity string) (allowed bool, retryAfterMinutes int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[identity][:0]
	for _, t := range l.hits[identity] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		l.hits[identity] = kept
		wait := kept[0].Add(l.window).Sub(now)
		return false, int(math.Ceil(wait.Minutes()))
	}

	l.hits[identity] = append(kept, now)
	return true, 0
}
