package tournament

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // venue timezones must resolve in minimal containers
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 02 2006",
	"Jan 2 2006",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"1.2.06",
	"01.02.06",
}

// yearlessLayouts have no year; the next occurrence after now is assumed.
var yearlessLayouts = []string{
	"Jan 2",
	"January 2",
	"Mon, Jan 2",
}

// ParseDate attempts to parse listing date text into a time.Time in UTC.
// Returns time.Time{} (zero value) if parsing fails.
func ParseDate(dateText string) time.Time {
	return ParseDateIn(dateText, time.UTC, time.Now())
}

// ParseDateIn parses date text in the given location. Yearless dates resolve to the
// current year of now, or next year when that day has already passed.
func ParseDateIn(dateText string, loc *time.Location, now time.Time) time.Time {
	normalized := strings.Join(strings.Fields(dateText), " ")
	if normalized == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			return t
		}
	}

	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, normalized, loc)
		if err != nil {
			continue
		}
		nowIn := now.In(loc)
		candidate := time.Date(nowIn.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		today := time.Date(nowIn.Year(), nowIn.Month(), nowIn.Day(), 0, 0, 0, 0, loc)
		if candidate.Before(today) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate
	}

	// Could not parse, return zero time
	return time.Time{}
}

// locations caches resolved zones; filters resolve one per record
var locations sync.Map

// LoadLocation resolves an IANA timezone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locations.Store(name, loc)
	return loc
}
