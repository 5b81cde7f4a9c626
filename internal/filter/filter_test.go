package filter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func money(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func tourney(id, name string, start time.Time, buyIn int64, cat tournament.Category, state string) tournament.Tournament {
	return tournament.Tournament{
		ID:        id,
		Name:      name,
		Circuit:   tournament.Circuit{Name: string(cat) + " circuit", Category: cat},
		Venue:     tournament.Venue{Name: "Venue " + id, City: "City " + id, State: state},
		BuyIn:     decimal.NewFromInt(buyIn),
		StartDate: start,
		EndDate:   start,
		Status:    tournament.StatusUpcoming,
	}
}

func TestFilter_IsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"empty filter", NewFilter(), true},
		{"force refresh only", &Filter{ForceRefresh: true}, true},
		{"whitespace search", &Filter{Search: "  "}, true},
		{"start date", &Filter{StartDate: timePtr(time.Now())}, false},
		{"min buy-in", &Filter{MinBuyIn: money(100)}, false},
		{"circuits", &Filter{Circuits: []tournament.Category{tournament.CategoryMajorTour}}, false},
		{"search", &Filter{Search: "main"}, false},
		{"max results", &Filter{MaxResults: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.IsEmpty(); got != tt.want {
				t.Errorf("Filter.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	feb1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	feb15 := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filter  *Filter
		wantErr bool
	}{
		{"empty", NewFilter(), false},
		{"ordered dates", &Filter{StartDate: &feb1, EndDate: &feb15}, false},
		{"same day", &Filter{StartDate: &feb1, EndDate: &feb1}, false},
		{"start after end", &Filter{StartDate: &feb15, EndDate: &feb1}, true},
		{"ordered buy-ins", &Filter{MinBuyIn: money(100), MaxBuyIn: money(500)}, false},
		{"min above max", &Filter{MinBuyIn: money(500), MaxBuyIn: money(100)}, true},
		{"negative min", &Filter{MinBuyIn: money(-1)}, true},
		{"negative max", &Filter{MaxBuyIn: money(-1)}, true},
		{"negative max results", &Filter{MaxResults: -1}, true},
		{"known categories", &Filter{Circuits: []tournament.Category{"major_tour", "regional", ""}}, false},
		{"unknown category", &Filter{Circuits: []tournament.Category{"world_series"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("Validate() error = %v, want ErrInvalidFilter", err)
			}
		})
	}
}

func TestFilter_Signature(t *testing.T) {
	feb1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	feb1Pacific := feb1.In(time.FixedZone("PST", -8*3600))
	price := decimal.RequireFromString("1700.00")

	tests := []struct {
		name string
		a, b *Filter
		same bool
	}{
		{
			name: "set order does not matter",
			a:    &Filter{States: []string{"NV", "CA"}, Circuits: []tournament.Category{"regional_tour", "major_tour"}},
			b:    &Filter{States: []string{"ca", "nv", "NV"}, Circuits: []tournament.Category{"major", "regional_tour"}},
			same: true,
		},
		{
			name: "force refresh is excluded",
			a:    &Filter{Search: "main", ForceRefresh: true},
			b:    &Filter{Search: " MAIN "},
			same: true,
		},
		{
			name: "time zone does not matter",
			a:    &Filter{StartDate: &feb1},
			b:    &Filter{StartDate: &feb1Pacific},
			same: true,
		},
		{
			name: "decimal scale does not matter",
			a:    &Filter{MaxBuyIn: money(1700)},
			b:    &Filter{MaxBuyIn: &price},
			same: true,
		},
		{
			name: "empty and nil sets match",
			a:    NewFilter(),
			b:    &Filter{},
			same: true,
		},
		{
			name: "different limit",
			a:    &Filter{MaxResults: 5},
			b:    &Filter{MaxResults: 10},
			same: false,
		},
		{
			name: "min and max are distinct",
			a:    &Filter{MinBuyIn: money(100)},
			b:    &Filter{MaxBuyIn: money(100)},
			same: false,
		},
		{
			name: "search text cannot collide with other fields",
			a:    &Filter{Search: `x";limit=5`},
			b:    &Filter{Search: "x", MaxResults: 5},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sa, sb := tt.a.Signature(), tt.b.Signature()
			if (sa == sb) != tt.same {
				t.Errorf("signatures equal = %v, want %v\n a: %s\n b: %s", sa == sb, tt.same, sa, sb)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	mar1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mar15 := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	mar31 := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)

	base := tourney("1", "Spring Main Event", mar15, 1100, tournament.CategoryMajorTour, "NV")
	base.Venue.Name = "Orleans"
	base.Venue.City = "Las Vegas"
	base.Circuit.Name = "Mid-States Poker Tour"

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"empty filter matches all", NewFilter(), true},
		{"within date range", &Filter{StartDate: &mar1, EndDate: &mar31}, true},
		{"range boundaries are inclusive", &Filter{StartDate: &mar15, EndDate: &mar15}, true},
		{"before range", &Filter{StartDate: timePtr(mar15.Add(time.Hour))}, false},
		{"after range", &Filter{EndDate: &mar1}, false},
		{"buy-in within range", &Filter{MinBuyIn: money(1000), MaxBuyIn: money(1100)}, true},
		{"buy-in below min", &Filter{MinBuyIn: money(1101)}, false},
		{"buy-in above max", &Filter{MaxBuyIn: money(1099)}, false},
		{"matching category", &Filter{Circuits: []tournament.Category{"regional_tour", "major_tour"}}, true},
		{"other category", &Filter{Circuits: []tournament.Category{"independent"}}, false},
		{"state case-insensitive", &Filter{States: []string{"ca", "nv"}}, true},
		{"other state", &Filter{States: []string{"CA"}}, false},
		{"search name", &Filter{Search: "main event"}, true},
		{"search venue", &Filter{Search: "ORLEANS"}, true},
		{"search city", &Filter{Search: "vegas"}, true},
		{"search state", &Filter{Search: "nv"}, true},
		{"search circuit name", &Filter{Search: "mid-states"}, true},
		{"search miss", &Filter{Search: "bellagio"}, false},
		{
			name: "all criteria combined",
			filter: &Filter{
				StartDate: &mar1, EndDate: &mar31,
				MinBuyIn: money(500), MaxBuyIn: money(2000),
				Circuits: []tournament.Category{"major_tour"},
				States:   []string{"NV"},
				Search:   "spring",
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(&base); got != tt.want {
				t.Errorf("Filter.Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_MatchesUnclassified(t *testing.T) {
	rec := tourney("1", "Weekly", time.Now(), 60, tournament.CategoryUnclassified, "NV")

	f := &Filter{Circuits: []tournament.Category{"unclassified"}}
	if !f.Matches(&rec) {
		t.Error("unclassified filter should match a record without category")
	}
}

func TestSort(t *testing.T) {
	day1 := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	records := []tournament.Tournament{
		tourney("late", "Late", day2, 100, tournament.CategoryMajorTour, "NV"),
		tourney("regional", "Regional", day1, 5000, tournament.CategoryRegionalTour, "NV"),
		tourney("none", "Unclassified", day1, 9000, tournament.CategoryUnclassified, "NV"),
		tourney("indie", "Indie", day1, 100, tournament.CategoryIndependent, "NV"),
		tourney("major-cheap", "Major cheap", day1, 400, tournament.CategoryMajorTour, "NV"),
		tourney("major-big", "Major big", day1, 1700, tournament.CategoryMajorTour, "NV"),
		tourney("major-big-2", "Major big two", day1, 1700, tournament.CategoryMajorTour, "NV"),
	}

	Sort(records)

	want := []string{"major-big", "major-big-2", "major-cheap", "indie", "regional", "none", "late"}
	for i, id := range want {
		if records[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, records[i].ID, id)
		}
	}
}

func TestFilter_Run(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var records []tournament.Tournament
	for i := 49; i >= 0; i-- {
		records = append(records, tourney(fmt.Sprintf("t%02d", i), "Event", start.AddDate(0, 0, i), 100, tournament.CategoryMajorTour, "NV"))
	}

	got := (&Filter{MaxResults: 5}).Run(records)
	if len(got) != 5 {
		t.Fatalf("Run() returned %d records, want 5", len(got))
	}
	for i := range got {
		want := start.AddDate(0, 0, i)
		if !got[i].StartDate.Equal(want) {
			t.Errorf("record %d starts %v, want %v (first 5 in sort order)", i, got[i].StartDate, want)
		}
	}

	if all := NewFilter().Run(records); len(all) != 50 {
		t.Errorf("Run() without limit = %d, want 50", len(all))
	}
	if records[0].StartDate.Before(records[1].StartDate) {
		t.Error("Run() must not reorder its input")
	}
}

func TestFilter_String(t *testing.T) {
	feb1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	feb29 := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter *Filter
		want   string
	}{
		{"empty filter", NewFilter(), "No active filters"},
		{
			name:   "dates and buy-in",
			filter: &Filter{StartDate: &feb1, EndDate: &feb29, MinBuyIn: money(400), MaxBuyIn: money(1700)},
			want:   "From: Feb 1, 2024 | To: Feb 29, 2024 | Buy-in: $400-$1700",
		},
		{
			name:   "min only",
			filter: &Filter{MinBuyIn: money(400)},
			want:   "Buy-in: $400+",
		},
		{
			name:   "sets and search",
			filter: &Filter{Circuits: []tournament.Category{"major_tour", ""}, States: []string{"NV", "CA"}, Search: "main", MaxResults: 5},
			want:   `Circuits: major_tour, unclassified | States: NV, CA | Search: "main" | Limit: 5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.String(); got != tt.want {
				t.Errorf("Filter.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilter_Clone(t *testing.T) {
	original := &Filter{
		StartDate:  timePtr(time.Now()),
		MinBuyIn:   money(100),
		Circuits:   []tournament.Category{tournament.CategoryMajorTour},
		States:     []string{"NV"},
		Search:     "main",
		MaxResults: 3,
	}

	clone := original.Clone()

	if clone.Signature() != original.Signature() {
		t.Error("clone signature differs from original")
	}

	clone.States[0] = "CA"
	clone.Circuits[0] = tournament.CategoryRegionalTour
	*clone.MinBuyIn = decimal.NewFromInt(999)
	*clone.StartDate = clone.StartDate.AddDate(1, 0, 0)

	if original.States[0] != "NV" {
		t.Error("modifying clone states affected original")
	}
	if original.Circuits[0] != tournament.CategoryMajorTour {
		t.Error("modifying clone circuits affected original")
	}
	if !original.MinBuyIn.Equal(decimal.NewFromInt(100)) {
		t.Error("modifying clone buy-in affected original")
	}
}
