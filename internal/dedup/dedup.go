// Package dedup collapses tournament records that describe the same real-world event.
//
// Two records are the same event when their normalized (name, venue, start date)
// keys match. The first record seen for a key wins, so callers control which
// source takes precedence through input order.
package dedup

import "github.com/pfrederiksen/pokertour/internal/tournament"

// Result is the outcome of a deduplication pass
type Result struct {
	Tournaments []tournament.Tournament
	Duplicates  int
}

// Deduplicate keeps the first record for each dedup key, preserving input order
func Deduplicate(records []tournament.Tournament) Result {
	kept := make([]tournament.Tournament, 0, len(records))
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		key := rec.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, rec)
	}

	return Result{
		Tournaments: kept,
		Duplicates:  len(records) - len(kept),
	}
}
