// Package calendar exports tournaments as iCalendar (RFC 5545) data.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

const (
	prodID    = "-//pokertour//pokertour//EN"
	uidDomain = "pokertour"

	// RFC 5545 limits content lines to 75 octets
	maxLineOctets = 75
)

// GenerateICS generates an iCalendar (.ics) document for one tournament
func GenerateICS(t *tournament.Tournament, now time.Time) string {
	var ics strings.Builder
	writeHeader(&ics, "")
	writeEvent(&ics, t, now)
	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

// GenerateBulkICS generates one calendar holding every tournament.
// Returns "" for an empty list; name becomes X-WR-CALNAME when set.
func GenerateBulkICS(ts []tournament.Tournament, name string, now time.Time) string {
	if len(ts) == 0 {
		return ""
	}

	var ics strings.Builder
	writeHeader(&ics, name)
	for i := range ts {
		writeEvent(&ics, &ts[i], now)
	}
	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

func writeHeader(ics *strings.Builder, name string) {
	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:" + prodID + "\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")
	if name != "" {
		writeLine(ics, "X-WR-CALNAME:"+escapeICS(name))
	}
}

func writeEvent(ics *strings.Builder, t *tournament.Tournament, now time.Time) {
	ics.WriteString("BEGIN:VEVENT\r\n")

	writeLine(ics, fmt.Sprintf("UID:%s@%s", t.ID, uidDomain))
	writeLine(ics, "DTSTAMP:"+formatICSTime(now))

	end := t.EndDate
	if end.IsZero() {
		end = t.StartDate
	}
	if isDateOnly(t.StartDate) && isDateOnly(end) {
		// All-day events: DTEND is exclusive
		writeLine(ics, "DTSTART;VALUE=DATE:"+formatICSDate(t.StartDate))
		writeLine(ics, "DTEND;VALUE=DATE:"+formatICSDate(end.AddDate(0, 0, 1)))
	} else {
		if !end.After(t.StartDate) {
			end = t.StartDate.Add(4 * time.Hour)
		}
		writeLine(ics, "DTSTART:"+formatICSTime(t.StartDate))
		writeLine(ics, "DTEND:"+formatICSTime(end))
	}

	summary := t.Name
	if t.Circuit.Name != "" {
		summary = fmt.Sprintf("%s - %s", t.Circuit.Name, t.Name)
	}
	writeLine(ics, "SUMMARY:"+escapeICS(summary))
	writeLine(ics, "DESCRIPTION:"+escapeICS(describe(t)))
	writeLine(ics, "LOCATION:"+escapeICS(location(t)))

	if t.Venue.Coordinates != nil {
		writeLine(ics, fmt.Sprintf("GEO:%.6f;%.6f", t.Venue.Coordinates.Latitude, t.Venue.Coordinates.Longitude))
	}
	if t.URL != "" {
		writeLine(ics, "URL:"+t.URL)
	}

	if t.Status == tournament.StatusCancelled {
		ics.WriteString("STATUS:CANCELLED\r\n")
	} else {
		ics.WriteString("STATUS:CONFIRMED\r\n")
	}
	ics.WriteString("SEQUENCE:0\r\n")
	ics.WriteString("TRANSP:OPAQUE\r\n")
	ics.WriteString("END:VEVENT\r\n")
}

func describe(t *tournament.Tournament) string {
	lines := []string{fmt.Sprintf("Buy-in: $%s", t.BuyIn.StringFixedBank(0))}
	if t.PrizeGuarantee != nil {
		lines = append(lines, fmt.Sprintf("Guarantee: $%s", t.PrizeGuarantee.StringFixedBank(0)))
	}
	if t.Structure.Type != "" {
		lines = append(lines, "Structure: "+string(t.Structure.Type))
	}
	if t.Circuit.Name != "" {
		lines = append(lines, "Circuit: "+t.Circuit.Name)
	}
	lines = append(lines, "Source: "+t.Source)
	if t.URL != "" {
		lines = append(lines, "", "Details at: "+t.URL)
	}
	return strings.Join(lines, "\n")
}

func location(t *tournament.Tournament) string {
	parts := []string{t.Venue.Name}
	if t.Venue.City != "" {
		parts = append(parts, t.Venue.City)
	}
	if t.Venue.State != "" {
		parts = append(parts, t.Venue.State)
	}
	return strings.Join(parts, ", ")
}

func isDateOnly(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func formatICSDate(t time.Time) string {
	return t.Format("20060102")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// Replace special characters according to RFC 5545
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// writeLine writes a content line, folding it at 75 octets without splitting
// a UTF-8 sequence. Continuation lines start with a space that counts toward the limit.
func writeLine(ics *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		ics.WriteString(line[:cut])
		ics.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineOctets - 1
	}
	ics.WriteString(line)
	ics.WriteString("\r\n")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
