package source

import (
	"errors"
	"testing"
	"time"
)

func newTestLimiter(limit int, window time.Duration, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(limit, window)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_Take(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(2, time.Minute, &now)

	if err := rl.Take(); err != nil {
		t.Fatalf("first Take() = %v", err)
	}
	if err := rl.Take(); err != nil {
		t.Fatalf("second Take() = %v", err)
	}

	err := rl.Take()
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third Take() = %v, want ErrRateLimited", err)
	}

	state := rl.State()
	if state.Remaining != 0 || state.Limit != 2 {
		t.Errorf("State() = %+v", state)
	}
	if !state.Reset.Equal(now.Add(time.Minute)) {
		t.Errorf("Reset = %v, want %v", state.Reset, now.Add(time.Minute))
	}

	now = now.Add(time.Minute)
	if err := rl.Take(); err != nil {
		t.Errorf("Take() after window = %v, want nil", err)
	}
	if got := rl.State().Remaining; got != 1 {
		t.Errorf("Remaining after refill = %d, want 1", got)
	}
}

func TestRateLimiter_Observe(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(0, time.Minute, &now)

	if err := rl.Take(); err != nil {
		t.Fatalf("unlimited Take() = %v", err)
	}

	rl.Observe(0, now.Add(30*time.Second))
	if err := rl.Take(); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Take() after server exhaustion = %v, want ErrRateLimited", err)
	}

	now = now.Add(30 * time.Second)
	if err := rl.Take(); err != nil {
		t.Errorf("Take() after server reset = %v, want nil", err)
	}
}

func TestRateLimiter_Nil(t *testing.T) {
	var rl *RateLimiter
	if err := rl.Take(); err != nil {
		t.Errorf("nil Take() = %v", err)
	}
	rl.Observe(1, time.Now())
	if state := rl.State(); state != (RateLimitState{}) {
		t.Errorf("nil State() = %+v", state)
	}
}
