package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

func TestTimeRange_Contains(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name string
		r    TimeRange
		t    time.Time
		want bool
	}{
		{"unbounded", TimeRange{}, start, true},
		{"inside", TimeRange{Start: start, End: end}, start.AddDate(0, 0, 10), true},
		{"on start", TimeRange{Start: start, End: end}, start, true},
		{"on end", TimeRange{Start: start, End: end}, end, true},
		{"before", TimeRange{Start: start, End: end}, start.Add(-time.Second), false},
		{"after", TimeRange{Start: start, End: end}, end.Add(time.Second), false},
		{"open end", TimeRange{Start: start}, end.AddDate(1, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestPriceRange_Contains(t *testing.T) {
	min := decimal.NewFromInt(100)
	max := decimal.NewFromInt(500)

	tests := []struct {
		name   string
		r      *PriceRange
		amount int64
		want   bool
	}{
		{"nil range", nil, 10_000, true},
		{"inside", &PriceRange{Min: &min, Max: &max}, 250, true},
		{"on min", &PriceRange{Min: &min, Max: &max}, 100, true},
		{"on max", &PriceRange{Min: &min, Max: &max}, 500, true},
		{"below", &PriceRange{Min: &min}, 99, false},
		{"above", &PriceRange{Max: &max}, 501, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Contains(decimal.NewFromInt(tt.amount)); got != tt.want {
				t.Errorf("Contains(%d) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestUnavailable(t *testing.T) {
	base := errors.New("connection refused")
	err := Unavailable(base)

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Error("expected error to match ErrSourceUnavailable")
	}
	if !errors.Is(err, base) {
		t.Error("expected error to keep the underlying cause")
	}
	if Unavailable(err) != err {
		t.Error("wrapping twice should be a no-op")
	}
	if Unavailable(nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
}

func TestSanitize(t *testing.T) {
	start := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	good := tournament.Tournament{
		ID:        "api:1",
		Name:      "Main Event",
		Venue:     tournament.Venue{Name: "Orleans"},
		BuyIn:     decimal.NewFromInt(1700),
		StartDate: start,
		EndDate:   start,
		Status:    tournament.StatusUpcoming,
	}
	bad := good
	bad.ID = "api:2"
	bad.EndDate = start.Add(-time.Hour)
	repeat := good
	repeat.Name = "Main Event Day 2"

	kept, dropped := Sanitize("api", []tournament.Tournament{good, bad, repeat}, nil)

	if len(kept) != 1 || kept[0].ID != "api:1" {
		t.Fatalf("expected only api:1 kept, got %+v", kept)
	}
	if kept[0].Name != "Main Event" {
		t.Errorf("first occurrence should win, got %q", kept[0].Name)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
}

func TestFunc_Defaults(t *testing.T) {
	var f Func
	ctx := context.Background()

	records, err := f.Fetch(ctx, TimeRange{}, nil)
	if err != nil || records != nil {
		t.Errorf("Fetch() = %v, %v; want nil, nil", records, err)
	}
	if err := f.CheckAvailability(ctx); err != nil {
		t.Errorf("CheckAvailability() = %v, want nil", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}

	var _ Adapter = &f
	var _ Closer = &f
}
