package source

import (
	"context"
	"time"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// Func adapts plain functions to the Adapter interface.
// Nil functions behave as an always-available source with no listings.
type Func struct {
	FetchFunc func(ctx context.Context, window TimeRange, price *PriceRange) ([]tournament.Tournament, error)
	CheckFunc func(ctx context.Context) error
	CloseFunc func() error

	// Budget is reported by FetchBudget
	Budget time.Duration
}

// Fetch calls FetchFunc
func (f *Func) Fetch(ctx context.Context, window TimeRange, price *PriceRange) ([]tournament.Tournament, error) {
	if f.FetchFunc == nil {
		return nil, nil
	}
	return f.FetchFunc(ctx, window, price)
}

// CheckAvailability calls CheckFunc
func (f *Func) CheckAvailability(ctx context.Context) error {
	if f.CheckFunc == nil {
		return nil
	}
	return f.CheckFunc(ctx)
}

// Close calls CloseFunc
func (f *Func) Close() error {
	if f.CloseFunc == nil {
		return nil
	}
	return f.CloseFunc()
}

// FetchBudget returns Budget
func (f *Func) FetchBudget() time.Duration {
	return f.Budget
}
