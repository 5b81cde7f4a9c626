package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// FromQuery builds a filter from URL query parameters:
//
//	start, end      2006-01-02 or RFC3339; end dates include the whole day
//	dates           free-form range such as "Mar 1-15" (overridden by start/end)
//	min_buy_in      decimal
//	max_buy_in      decimal
//	circuit         repeatable or comma separated category ids
//	state           repeatable or comma separated region codes
//	q               free-text search
//	limit           maximum results
//	refresh         "true" bypasses the cache
//
// Plain dates select calendar days at each venue (see Filter.DateOnly) unless
// the other bound is an RFC3339 instant, in which case both are instants.
// Errors wrap ErrInvalidFilter.
func FromQuery(q url.Values, now time.Time) (*Filter, error) {
	f := NewFilter()

	if dates := strings.TrimSpace(q.Get("dates")); dates != "" {
		start, end, err := ParseDateRangeAt(dates, now)
		if err != nil {
			return nil, fmt.Errorf("%w: dates: %v", ErrInvalidFilter, err)
		}
		f.StartDate, f.EndDate = start, end
	}

	instant := false
	if v := strings.TrimSpace(q.Get("start")); v != "" {
		t, day, err := parseDateParam(v, false)
		if err != nil {
			return nil, fmt.Errorf("%w: start: %v", ErrInvalidFilter, err)
		}
		f.StartDate = &t
		instant = instant || !day
	}
	if v := strings.TrimSpace(q.Get("end")); v != "" {
		t, day, err := parseDateParam(v, true)
		if err != nil {
			return nil, fmt.Errorf("%w: end: %v", ErrInvalidFilter, err)
		}
		f.EndDate = &t
		instant = instant || !day
	}
	f.DateOnly = (f.StartDate != nil || f.EndDate != nil) && !instant

	var err error
	if f.MinBuyIn, err = parseAmountParam(q.Get("min_buy_in")); err != nil {
		return nil, fmt.Errorf("%w: min_buy_in: %v", ErrInvalidFilter, err)
	}
	if f.MaxBuyIn, err = parseAmountParam(q.Get("max_buy_in")); err != nil {
		return nil, fmt.Errorf("%w: max_buy_in: %v", ErrInvalidFilter, err)
	}

	for _, c := range splitList(q["circuit"]) {
		category, err := tournament.ParseCategory(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		f.Circuits = append(f.Circuits, category)
	}
	f.States = append(f.States, splitList(q["state"])...)
	f.Search = strings.TrimSpace(q.Get("q"))

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: limit %q is not a number", ErrInvalidFilter, v)
		}
		f.MaxResults = n
	}

	if v := strings.TrimSpace(q.Get("refresh")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh %q is not a boolean", ErrInvalidFilter, v)
		}
		f.ForceRefresh = b
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// parseDateParam reports whether v was a plain date rather than an instant
func parseDateParam(v string, endOfDay bool) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is not YYYY-MM-DD or RFC3339", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, true, nil
}

func parseAmountParam(v string) (*decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	amount, err := tournament.ParseMoney(v)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

// splitList flattens repeated and comma separated values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
