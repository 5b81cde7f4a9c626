// Package filter selects and orders tournament listings.
//
// A Filter combines optional criteria that are AND-ed together, applied in a fixed order:
//   - Date range: start date within StartDate and EndDate (inclusive); with DateOnly
//     the bounds are calendar days and each tournament is dated in its venue's timezone
//   - Buy-in range: MinBuyIn <= buy-in <= MaxBuyIn
//   - Circuits: circuit category is one of the listed categories
//   - States: venue state is one of the listed codes (case-insensitive)
//   - Search: case-insensitive substring of name, venue, city, state or circuit name
//
// Results are ordered by start date, then circuit prestige, then descending buy-in.
// MaxResults truncates after filtering and sorting.
//
// Example usage:
//
//	f := filter.NewFilter()
//	f.States = []string{"NV"}
//	f.Circuits = []tournament.Category{tournament.CategoryMajorTour}
//	f.MaxResults = 10
//
//	if err := f.Validate(); err != nil {
//	    return err
//	}
//	results := f.Run(listings)
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// ErrInvalidFilter is returned for contradictory or out-of-range criteria
var ErrInvalidFilter = errors.New("invalid filter")

// zoneSpread covers the furthest UTC offset (+14:00) of any venue's local day
const zoneSpread = 14 * time.Hour

// Filter represents tournament selection criteria
type Filter struct {
	// Date range filtering on start date
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// DateOnly treats StartDate and EndDate as whole calendar days (their UTC
	// year, month and day), compared against the local date of each start
	DateOnly bool `json:"date_only,omitempty"`

	// Buy-in range filtering
	MinBuyIn *decimal.Decimal `json:"min_buy_in,omitempty"`
	MaxBuyIn *decimal.Decimal `json:"max_buy_in,omitempty"`

	// Circuit category membership
	Circuits []tournament.Category `json:"circuits,omitempty"`

	// Venue state membership (case-insensitive)
	States []string `json:"states,omitempty"`

	// Free text search (case-insensitive substring match)
	Search string `json:"search,omitempty"`

	// MaxResults caps the sorted result; 0 means unlimited
	MaxResults int `json:"max_results,omitempty"`

	// ForceRefresh bypasses the cache. Not part of the signature.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// NewFilter creates a new empty filter with no active criteria.
// The filter will match all tournaments until criteria are added.
func NewFilter() *Filter {
	return &Filter{
		Circuits: []tournament.Category{},
		States:   []string{},
	}
}

// IsEmpty checks if the filter has any active criteria.
// Returns true if the filter would return every tournament.
func (f *Filter) IsEmpty() bool {
	return f.StartDate == nil &&
		f.EndDate == nil &&
		f.MinBuyIn == nil &&
		f.MaxBuyIn == nil &&
		len(f.Circuits) == 0 &&
		len(f.States) == 0 &&
		strings.TrimSpace(f.Search) == "" &&
		f.MaxResults == 0
}

// Validate rejects filters that cannot match anything by construction.
// Errors wrap ErrInvalidFilter.
func (f *Filter) Validate() error {
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidFilter,
			f.StartDate.Format("2006-01-02"), f.EndDate.Format("2006-01-02"))
	}
	if f.MinBuyIn != nil && f.MinBuyIn.IsNegative() {
		return fmt.Errorf("%w: negative minimum buy-in %s", ErrInvalidFilter, f.MinBuyIn)
	}
	if f.MaxBuyIn != nil && f.MaxBuyIn.IsNegative() {
		return fmt.Errorf("%w: negative maximum buy-in %s", ErrInvalidFilter, f.MaxBuyIn)
	}
	if f.MinBuyIn != nil && f.MaxBuyIn != nil && f.MinBuyIn.GreaterThan(*f.MaxBuyIn) {
		return fmt.Errorf("%w: minimum buy-in %s exceeds maximum %s", ErrInvalidFilter, f.MinBuyIn, f.MaxBuyIn)
	}
	if f.MaxResults < 0 {
		return fmt.Errorf("%w: negative max results %d", ErrInvalidFilter, f.MaxResults)
	}
	for _, c := range f.Circuits {
		if _, err := tournament.ParseCategory(string(c)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}
	return nil
}

// Signature returns a canonical encoding of the criteria, used as the cache key.
// Set-valued criteria are deduplicated and sorted, so two filters selecting the same
// records in a different spelling share a signature. ForceRefresh is excluded.
func (f *Filter) Signature() string {
	var b strings.Builder

	b.WriteString("start=")
	if f.StartDate != nil {
		b.WriteString(f.StartDate.UTC().Format(time.RFC3339))
	}
	b.WriteString(";end=")
	if f.EndDate != nil {
		b.WriteString(f.EndDate.UTC().Format(time.RFC3339))
	}
	if f.DateOnly {
		b.WriteString(";days")
	}
	b.WriteString(";min=")
	if f.MinBuyIn != nil {
		b.WriteString(f.MinBuyIn.String())
	}
	b.WriteString(";max=")
	if f.MaxBuyIn != nil {
		b.WriteString(f.MaxBuyIn.String())
	}

	circuits := make([]string, 0, len(f.Circuits))
	for _, c := range f.Circuits {
		cat, err := tournament.ParseCategory(string(c))
		if err != nil {
			circuits = append(circuits, strings.ToLower(string(c)))
			continue
		}
		if cat == tournament.CategoryUnclassified {
			circuits = append(circuits, "unclassified")
			continue
		}
		circuits = append(circuits, string(cat))
	}
	b.WriteString(";circuits=")
	b.WriteString(strings.Join(sortedSet(circuits), ","))

	states := make([]string, 0, len(f.States))
	for _, s := range f.States {
		states = append(states, strings.ToUpper(strings.TrimSpace(s)))
	}
	b.WriteString(";states=")
	b.WriteString(strings.Join(sortedSet(states), ","))

	b.WriteString(";search=")
	b.WriteString(strconv.Quote(strings.ToLower(strings.TrimSpace(f.Search))))

	b.WriteString(";limit=")
	b.WriteString(strconv.Itoa(f.MaxResults))

	return b.String()
}

func sortedSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Matches checks if a tournament matches all active filter criteria.
// MaxResults and ForceRefresh do not affect matching.
func (f *Filter) Matches(t *tournament.Tournament) bool {
	// Check date range
	if f.DateOnly {
		day := localDay(t)
		if f.StartDate != nil && day.Before(calendarDay(*f.StartDate)) {
			return false
		}
		if f.EndDate != nil && day.After(calendarDay(*f.EndDate)) {
			return false
		}
	} else {
		if f.StartDate != nil && t.StartDate.Before(*f.StartDate) {
			return false
		}
		if f.EndDate != nil && t.StartDate.After(*f.EndDate) {
			return false
		}
	}

	// Check buy-in range
	if f.MinBuyIn != nil && t.BuyIn.LessThan(*f.MinBuyIn) {
		return false
	}
	if f.MaxBuyIn != nil && t.BuyIn.GreaterThan(*f.MaxBuyIn) {
		return false
	}

	// Check circuit category
	if len(f.Circuits) > 0 {
		matched := false
		for _, c := range f.Circuits {
			cat, err := tournament.ParseCategory(string(c))
			if err == nil && cat == t.Circuit.Category {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// Check venue state
	if len(f.States) > 0 {
		matched := false
		for _, state := range f.States {
			if strings.EqualFold(t.Venue.State, strings.TrimSpace(state)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// Check free text
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{t.Name, t.Venue.Name, t.Venue.City, t.Venue.State, t.Circuit.Name}
		matched := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// localDay is the calendar date a tournament starts on at its venue, as UTC midnight
func localDay(t *tournament.Tournament) time.Time {
	return calendarDay(t.StartDate.In(tournament.LoadLocation(t.Venue.Timezone)))
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window returns the instants bounding every start the date range can match,
// zero when unbounded. DateOnly ranges are widened to cover all venue timezones.
func (f *Filter) Window() (start, end time.Time) {
	if f.StartDate != nil {
		start = *f.StartDate
		if f.DateOnly {
			start = calendarDay(start).Add(-zoneSpread)
		}
	}
	if f.EndDate != nil {
		end = *f.EndDate
		if f.DateOnly {
			end = calendarDay(end).Add(24*time.Hour + zoneSpread)
		}
	}
	return start, end
}

// Apply returns a new slice containing only tournaments that match all criteria,
// in input order.
func (f *Filter) Apply(tournaments []tournament.Tournament) []tournament.Tournament {
	filtered := make([]tournament.Tournament, 0, len(tournaments))
	for i := range tournaments {
		if f.Matches(&tournaments[i]) {
			filtered = append(filtered, tournaments[i])
		}
	}
	return filtered
}

// Run filters, sorts and truncates to MaxResults
func (f *Filter) Run(tournaments []tournament.Tournament) []tournament.Tournament {
	result := f.Apply(tournaments)
	Sort(result)
	if f.MaxResults > 0 && len(result) > f.MaxResults {
		result = result[:f.MaxResults]
	}
	return result
}

// Sort orders tournaments in place: ascending start date, then circuit prestige
// (major tour, independent, regional, unclassified), then descending buy-in.
// Remaining ties keep their input order.
func Sort(tournaments []tournament.Tournament) {
	sort.SliceStable(tournaments, func(i, j int) bool {
		a, b := &tournaments[i], &tournaments[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		if pa, pb := a.Circuit.Category.Prestige(), b.Circuit.Category.Prestige(); pa != pb {
			return pa < pb
		}
		return a.BuyIn.GreaterThan(b.BuyIn)
	})
}

// String returns a human-readable description of the active filter criteria.
// Returns "No active filters" if the filter is empty.
// Format: "From: Feb 1, 2024 | To: Feb 29, 2024 | Buy-in: $400-$1700 | States: NV"
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string

	if f.StartDate != nil {
		parts = append(parts, fmt.Sprintf("From: %s", f.StartDate.Format("Jan 2, 2006")))
	}

	if f.EndDate != nil {
		parts = append(parts, fmt.Sprintf("To: %s", f.EndDate.Format("Jan 2, 2006")))
	}

	switch {
	case f.MinBuyIn != nil && f.MaxBuyIn != nil:
		parts = append(parts, fmt.Sprintf("Buy-in: $%s-$%s", f.MinBuyIn, f.MaxBuyIn))
	case f.MinBuyIn != nil:
		parts = append(parts, fmt.Sprintf("Buy-in: $%s+", f.MinBuyIn))
	case f.MaxBuyIn != nil:
		parts = append(parts, fmt.Sprintf("Buy-in: up to $%s", f.MaxBuyIn))
	}

	if len(f.Circuits) > 0 {
		names := make([]string, 0, len(f.Circuits))
		for _, c := range f.Circuits {
			if c == tournament.CategoryUnclassified {
				names = append(names, "unclassified")
				continue
			}
			names = append(names, string(c))
		}
		parts = append(parts, fmt.Sprintf("Circuits: %s", strings.Join(names, ", ")))
	}

	if len(f.States) > 0 {
		parts = append(parts, fmt.Sprintf("States: %s", strings.Join(f.States, ", ")))
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		parts = append(parts, fmt.Sprintf("Search: %q", s))
	}

	if f.MaxResults > 0 {
		parts = append(parts, fmt.Sprintf("Limit: %d", f.MaxResults))
	}

	return strings.Join(parts, " | ")
}

// Clone creates a deep copy of the filter.
// All slices and pointers are copied to new memory locations,
// ensuring modifications to the clone don't affect the original.
func (f *Filter) Clone() *Filter {
	clone := &Filter{
		DateOnly:     f.DateOnly,
		Search:       f.Search,
		MaxResults:   f.MaxResults,
		ForceRefresh: f.ForceRefresh,
	}

	if f.StartDate != nil {
		sd := *f.StartDate
		clone.StartDate = &sd
	}

	if f.EndDate != nil {
		ed := *f.EndDate
		clone.EndDate = &ed
	}

	if f.MinBuyIn != nil {
		mn := *f.MinBuyIn
		clone.MinBuyIn = &mn
	}

	if f.MaxBuyIn != nil {
		mx := *f.MaxBuyIn
		clone.MaxBuyIn = &mx
	}

	clone.Circuits = append([]tournament.Category{}, f.Circuits...)
	clone.States = append([]string{}, f.States...)

	return clone
}
