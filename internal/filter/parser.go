package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthPattern = `(jan|january|feb|february|mar|march|apr|april|may|jun|june|jul|july|aug|august|sep|sept|september|oct|october|nov|november|dec|december)`

var (
	sameMonthRange  = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})\s*-\s*(\d{1,2})$`)
	crossMonthRange = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})\s*-\s*` + monthPattern + `\s+(\d{1,2})$`)
	wholeMonth      = regexp.MustCompile(`(?i)^` + monthPattern + `$`)
)

// ParseDateRangeAt parses a date range string into start and end times.
//
// Supported formats:
//   - "Mar 1-15" or "March 1-15" - Same month, different days
//   - "March 1 - April 15" - Different months
//   - "March" - Entire month
//
// The parser automatically infers the year:
//   - If the month is in the past, assumes next year
//   - Otherwise, uses current year
//   - For cross-month ranges, if end month < start month, end is in next year
//
// Returns (from, to, error) as calendar days encoded in UTC: from at 00:00:00,
// to at 23:59:59. Callers match them with Filter.DateOnly.
func ParseDateRangeAt(input string, now time.Time) (*time.Time, *time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, fmt.Errorf("date range cannot be empty")
	}

	// "Mar 1-15" or "March 1-15"
	if matches := sameMonthRange.FindStringSubmatch(input); matches != nil {
		month := parseMonth(matches[1])
		if month == 0 {
			return nil, nil, fmt.Errorf("invalid month: %s", matches[1])
		}

		day1, err := parseDay(matches[2])
		if err != nil {
			return nil, nil, err
		}

		day2, err := parseDay(matches[3])
		if err != nil {
			return nil, nil, err
		}

		year := getYearForMonth(month, now)
		from := time.Date(year, month, day1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, month, day2, 23, 59, 59, 0, time.UTC)

		if from.After(to) {
			return nil, nil, fmt.Errorf("start date must be before end date")
		}

		return &from, &to, nil
	}

	// "Mar 1 - Apr 15" or "March 1 - April 15"
	if matches := crossMonthRange.FindStringSubmatch(input); matches != nil {
		month1 := parseMonth(matches[1])
		if month1 == 0 {
			return nil, nil, fmt.Errorf("invalid month: %s", matches[1])
		}

		day1, err := parseDay(matches[2])
		if err != nil {
			return nil, nil, err
		}

		month2 := parseMonth(matches[3])
		if month2 == 0 {
			return nil, nil, fmt.Errorf("invalid month: %s", matches[3])
		}

		day2, err := parseDay(matches[4])
		if err != nil {
			return nil, nil, err
		}

		year1 := getYearForMonth(month1, now)
		year2 := getYearForMonth(month2, now)

		// If month2 < month1, assume month2 is in the next year
		if month2 < month1 {
			year2++
		}

		from := time.Date(year1, month1, day1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year2, month2, day2, 23, 59, 59, 0, time.UTC)

		if from.After(to) {
			return nil, nil, fmt.Errorf("start date must be before end date")
		}

		return &from, &to, nil
	}

	// "March" or "Mar" (entire month)
	if matches := wholeMonth.FindStringSubmatch(input); matches != nil {
		month := parseMonth(matches[1])
		if month == 0 {
			return nil, nil, fmt.Errorf("invalid month: %s", matches[1])
		}

		year := getYearForMonth(month, now)
		from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		// Last day of month
		to := time.Date(year, month+1, 0, 23, 59, 59, 0, time.UTC)

		return &from, &to, nil
	}

	return nil, nil, fmt.Errorf("invalid date range format. Use 'Mar 1-15', 'March 1 - April 15', or 'March'")
}

func parseDay(s string) (int, error) {
	day, err := strconv.Atoi(s)
	if err != nil || day < 1 || day > 31 {
		return 0, fmt.Errorf("invalid day: %s", s)
	}
	return day, nil
}

// parseMonth converts a month name to time.Month
func parseMonth(name string) time.Month {
	name = strings.ToLower(strings.TrimSpace(name))

	months := map[string]time.Month{
		"jan": time.January, "january": time.January,
		"feb": time.February, "february": time.February,
		"mar": time.March, "march": time.March,
		"apr": time.April, "april": time.April,
		"may": time.May,
		"jun": time.June, "june": time.June,
		"jul": time.July, "july": time.July,
		"aug": time.August, "august": time.August,
		"sep": time.September, "sept": time.September, "september": time.September,
		"oct": time.October, "october": time.October,
		"nov": time.November, "november": time.November,
		"dec": time.December, "december": time.December,
	}

	return months[name]
}

// getYearForMonth returns the year a month refers to relative to now.
// A month already past this year means next year.
func getYearForMonth(month time.Month, now time.Time) int {
	year := now.Year()

	// If month is in the past, use next year
	if month < now.Month() {
		year++
	}

	return year
}
