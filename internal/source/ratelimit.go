package source

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitState is a point-in-time view of an adapter's request budget
type RateLimitState struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// RateLimiter is a fixed-window token counter owned by a single adapter.
// All operations are thread-safe.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	remaining int
	reset     time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// A limit <= 0 disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		remaining: limit,
		now:       time.Now,
	}
}

// Take consumes one request from the budget. It fails with ErrRateLimited
// instead of blocking when the window is exhausted.
func (r *RateLimiter) Take() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.rollLocked(now)

	// Unlimited unless the server imposed a window through Observe
	if r.limit <= 0 && r.reset.IsZero() {
		return nil
	}
	if r.remaining <= 0 {
		return fmt.Errorf("%w: budget exhausted until %s", ErrRateLimited, r.reset.Format(time.RFC3339))
	}
	if r.reset.IsZero() {
		r.reset = now.Add(r.window)
	}
	r.remaining--
	return nil
}

// Observe records the budget a server reported, e.g. from X-RateLimit headers.
// A zero reset keeps the current window end.
func (r *RateLimiter) Observe(remaining int, reset time.Time) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.remaining = remaining
	if !reset.IsZero() {
		r.reset = reset
	}
}

// State returns the current budget
func (r *RateLimiter) State() RateLimitState {
	if r == nil {
		return RateLimitState{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollLocked(r.now())
	return RateLimitState{
		Limit:     r.limit,
		Remaining: r.remaining,
		Reset:     r.reset,
	}
}

// rollLocked refills the budget once the window has passed
func (r *RateLimiter) rollLocked(now time.Time) {
	if !r.reset.IsZero() && !now.Before(r.reset) {
		r.remaining = r.limit
		r.reset = time.Time{}
	}
}
