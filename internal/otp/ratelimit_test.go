package otp

import (
	"testing"
	"time"
)

func newTestLimiter(start time.Time) (*RateLimiter, *time.Time) {
	now := start
	l := NewRateLimiter(DefaultWindow, DefaultMaxRequests)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestRateLimiter_FourthRequestRejected(t *testing.T) {
	l, now := newTestLimiter(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("voter-1")
		if !allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		*now = now.Add(time.Minute)
	}

	allowed, retryAfter := l.Allow("voter-1")
	if allowed {
		t.Fatal("4th request within window: expected rejection")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", retryAfter)
	}
}

func TestRateLimiter_AllowsAfterWindowElapses(t *testing.T) {
	l, now := newTestLimiter(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		if allowed, _ := l.Allow("voter-1"); !allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}
	if allowed, _ := l.Allow("voter-1"); allowed {
		t.Fatal("expected rejection at limit")
	}

	*now = now.Add(DefaultWindow + time.Second)
	if allowed, _ := l.Allow("voter-1"); !allowed {
		t.Fatal("expected allowance after window elapsed")
	}
}

func TestRateLimiter_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		l.Allow("voter-1")
	}
	if allowed, _ := l.Allow("voter-1"); allowed {
		t.Fatal("voter-1 should be limited")
	}
	if allowed, _ := l.Allow("voter-2"); !allowed {
		t.Fatal("voter-2 should not be affected by voter-1's requests")
	}
}

func TestRateLimiter_RetryAfterShrinksAsWindowSlides(t *testing.T) {
	l, now := newTestLimiter(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		l.Allow("voter-1")
	}
	_, first := l.Allow("voter-1")

	*now = now.Add(10 * time.Minute)
	_, later := l.Allow("voter-1")
	if later >= first {
		t.Fatalf("expected retry_after to shrink, got %d then %d", first, later)
	}
}
