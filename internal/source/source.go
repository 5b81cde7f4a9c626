package source

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

var (
	// ErrSourceUnavailable wraps any failure to complete a fetch or liveness check.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord marks a single entry that could not be normalized.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrRateLimited is returned when an adapter's own request budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
)

// Adapter is satisfied by each tournament listing provider.
// Implementations must be safe for concurrent use or serialize internally.
type Adapter interface {
	// Fetch returns current listings overlapping window. Malformed entries are
	// dropped, not returned as errors; a failed fetch wraps ErrSourceUnavailable.
	Fetch(ctx context.Context, window TimeRange, price *PriceRange) ([]tournament.Tournament, error)

	// CheckAvailability is a cheap existence probe that never touches the full
	// fetch path. A nil error means available.
	CheckAvailability(ctx context.Context) error
}

// Closer is implemented by adapters holding resources such as a browser session.
// Close must be idempotent and safe on an adapter that was never used.
type Closer interface {
	Close() error
}

// RateLimitReporter is implemented by adapters that track a request budget.
type RateLimitReporter interface {
	RateLimit() RateLimitState
}

// Budgeter is implemented by adapters that know how long one complete Fetch may
// take, retries and session start-up included. A zero budget defers to the
// caller's default.
type Budgeter interface {
	FetchBudget() time.Duration
}

// TimeRange bounds listings by start date. Zero values are unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the range, inclusive on both ends.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// PriceRange bounds listings by buy-in. Nil bounds are open.
type PriceRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Contains reports whether amount lies within the range, inclusive on both ends.
func (r *PriceRange) Contains(amount decimal.Decimal) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && amount.LessThan(*r.Min) {
		return false
	}
	if r.Max != nil && amount.GreaterThan(*r.Max) {
		return false
	}
	return true
}

// Unavailable wraps err so that errors.Is(err, ErrSourceUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string {
	return ErrSourceUnavailable.Error() + ": " + e.err.Error()
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.err}
}

// Within keeps the records whose start date lies in window and whose buy-in lies in price
func Within(records []tournament.Tournament, window TimeRange, price *PriceRange) []tournament.Tournament {
	kept := make([]tournament.Tournament, 0, len(records))
	for _, rec := range records {
		if window.Contains(rec.StartDate) && price.Contains(rec.BuyIn) {
			kept = append(kept, rec)
		}
	}
	return kept
}
