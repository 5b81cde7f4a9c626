package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/pokertour/internal/aggregator"
	"github.com/pfrederiksen/pokertour/internal/calendar"
	"github.com/pfrederiksen/pokertour/internal/health"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
)

// ParseFormat validates a --format value against the formats a command allows
func ParseFormat(s string, allowed ...OutputFormat) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	names := make([]string, len(allowed))
	for i, a := range allowed {
		if format == a {
			return format, nil
		}
		names[i] = "'" + string(a) + "'"
	}
	return "", fmt.Errorf("invalid format: %s (must be %s)", s, strings.Join(names, " or "))
}

// ListResult is the list command output
type ListResult struct {
	CheckedAt        time.Time                `json:"checked_at"`
	Count            int                      `json:"count"`
	FromCache        bool                     `json:"from_cache"`
	Stale            bool                     `json:"stale"`
	AllSourcesFailed bool                     `json:"all_sources_failed"`
	Tournaments      []tournament.Tournament  `json:"tournaments"`
	Rounds           []aggregator.SourceRound `json:"rounds,omitempty"`
	Health           []health.SourceHealth    `json:"health,omitempty"`
}

// NewListResult converts an aggregator result
func NewListResult(res *aggregator.Result, checkedAt time.Time) *ListResult {
	return &ListResult{
		CheckedAt:        checkedAt.UTC(),
		Count:            len(res.Tournaments),
		FromCache:        res.FromCache,
		Stale:            res.Stale,
		AllSourcesFailed: res.AllSourcesFailed,
		Tournaments:      res.Tournaments,
		Rounds:           res.Rounds,
		Health:           res.Health,
	}
}

// WriteList writes the result in the specified format
func WriteList(w io.Writer, result *ListResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatICS:
		_, err := io.WriteString(w, calendar.GenerateBulkICS(result.Tournaments, "Poker Tournaments", result.CheckedAt))
		return err
	case FormatText:
		return writeListText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeListText(w io.Writer, result *ListResult, verbose bool) error {
	switch {
	case result.AllSourcesFailed && result.Stale:
		fmt.Fprintln(w, "Warning: all sources failed; showing expired cached results.")
	case result.AllSourcesFailed && result.Count > 0:
		fmt.Fprintln(w, "Warning: all sources failed; showing cached results.")
	case result.AllSourcesFailed:
		fmt.Fprintln(w, "Warning: all sources failed and no cached results are available.")
	}

	if result.Count == 0 {
		fmt.Fprintln(w, "No tournaments found.")
		return nil
	}

	for i := range result.Tournaments {
		writeTournamentText(w, &result.Tournaments[i], "", verbose)
	}

	origin := "live"
	if result.FromCache {
		origin = "cached"
	}
	fmt.Fprintf(w, "\nTotal: %d tournaments (%s)\n", result.Count, origin)

	if verbose {
		for _, r := range result.Rounds {
			switch {
			case r.Skipped:
				fmt.Fprintf(w, "  %s: skipped (unavailable)\n", r.Source)
			case r.Error != "":
				fmt.Fprintf(w, "  %s: failed: %s\n", r.Source, r.Error)
			default:
				fmt.Fprintf(w, "  %s: %d records, %d dropped in %s\n", r.Source, r.Records, r.Dropped, r.Duration.Round(time.Millisecond))
			}
		}
	}
	return nil
}

// writeTournamentText writes one tournament as a headline plus a venue line
func writeTournamentText(w io.Writer, t *tournament.Tournament, prefix string, verbose bool) {
	headline := fmt.Sprintf("%s  %s  %s", formatStart(t.StartDate), formatMoney(t), t.Name)
	if prefix != "" {
		headline = prefix + ": " + headline
	}
	if t.Status == tournament.StatusCancelled {
		headline += " (cancelled)"
	}
	fmt.Fprintln(w, headline)

	venue := t.Venue.Name
	if place := joinNonEmpty(", ", t.Venue.City, t.Venue.State); place != "" {
		venue += ", " + place
	}
	if t.Circuit.Name != "" {
		venue += "  [" + t.Circuit.Name + "]"
	}
	fmt.Fprintf(w, "     %s\n", venue)

	if verbose {
		fmt.Fprintf(w, "     ID: %s\n", t.ID)
		if t.PrizeGuarantee != nil {
			fmt.Fprintf(w, "     Guarantee: $%s\n", t.PrizeGuarantee.StringFixed(0))
		}
		if t.URL != "" {
			fmt.Fprintf(w, "     URL: %s\n", t.URL)
		}
	}
}

func formatStart(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format("Mon Jan 2 2006")
	}
	return t.Format("Mon Jan 2 2006 3:04 PM")
}

func formatMoney(t *tournament.Tournament) string {
	if t.BuyIn.Equal(t.BuyIn.Truncate(0)) {
		return "$" + t.BuyIn.StringFixed(0)
	}
	return "$" + t.BuyIn.StringFixed(2)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// WriteHealth writes source health in the specified format
func WriteHealth(w io.Writer, sources []health.SourceHealth, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, sources)
	case FormatText:
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return nil
	}

	available := 0
	for _, s := range sources {
		status := "DOWN"
		if s.Available {
			status = "OK"
			available++
		}
		line := fmt.Sprintf("%-4s %s", status, s.SourceName)
		if s.Error != "" {
			line += ": " + s.Error
		}
		if s.ConsecutiveFailures > 1 {
			line += fmt.Sprintf(" (%d consecutive failures)", s.ConsecutiveFailures)
		}
		if s.RateLimitRemaining != nil {
			line += fmt.Sprintf(" [rate limit: %d remaining", *s.RateLimitRemaining)
			if s.RateLimitReset != nil {
				line += ", resets " + s.RateLimitReset.UTC().Format(time.RFC3339)
			}
			line += "]"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d of %d sources available\n", available, len(sources))
	return nil
}

// DiffResult is the new command output
type DiffResult struct {
	CheckedAt      time.Time                          `json:"checked_at"`
	Snapshot       string                             `json:"snapshot"`
	NewTournaments []tournament.Tournament            `json:"new_tournaments"`
	Count          int                                `json:"count"`
	Removed        int                                `json:"removed"`
	ByState        map[string][]tournament.Tournament `json:"by_state,omitempty"`
}

// WriteDiff writes newly-listed tournaments grouped by venue state
func WriteDiff(w io.Writer, result *DiffResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if result.Count == 0 {
		fmt.Fprintln(w, "No new tournaments found.")
		return nil
	}

	states := make([]string, 0, len(result.ByState))
	for state := range result.ByState {
		states = append(states, state)
	}
	sort.Strings(states)

	for _, state := range states {
		ts := result.ByState[state]
		label := state
		if label == "" {
			label = "Unknown state"
		}
		fmt.Fprintf(w, "\n%s (%d new):\n", label, len(ts))
		for i := range ts {
			writeTournamentText(w, &ts[i], "  NEW", verbose)
		}
	}
	fmt.Fprintf(w, "\nTotal: %d new across %d states\n", result.Count, len(result.ByState))
	return nil
}

// WriteTournament writes a single tournament in the specified format
func WriteTournament(w io.Writer, t *tournament.Tournament, format OutputFormat, now time.Time) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, t)
	case FormatICS:
		_, err := io.WriteString(w, calendar.GenerateICS(t, now))
		return err
	case FormatText:
		writeTournamentText(w, t, "", true)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
