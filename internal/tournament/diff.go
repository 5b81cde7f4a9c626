package tournament

import (
	"sort"
	"time"
)

// Snapshot represents the listings seen at a point in time
type Snapshot struct {
	Tournaments map[string]Tournament `json:"tournaments"` // keyed by Tournament.ID
	UpdatedAt   string                `json:"updated_at"`  // RFC3339 timestamp
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Tournaments: make(map[string]Tournament),
	}
}

// CreateSnapshot creates a snapshot from a list of tournaments
func CreateSnapshot(tournaments []Tournament, updatedAt time.Time) *Snapshot {
	snap := NewSnapshot()
	snap.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	for _, t := range tournaments {
		snap.Tournaments[t.ID] = t
	}
	return snap
}

// DiffResult contains the results of comparing a snapshot with current listings
type DiffResult struct {
	New     []Tournament
	Removed []Tournament
	ByState map[string][]Tournament // new tournaments grouped by venue state
}

// Diff compares current listings against a previous snapshot.
// Identity is the source-qualified ID; a nil previous snapshot reports everything as new.
func Diff(previous *Snapshot, current []Tournament) *DiffResult {
	result := &DiffResult{
		New:     make([]Tournament, 0),
		Removed: make([]Tournament, 0),
		ByState: make(map[string][]Tournament),
	}

	if previous == nil {
		previous = NewSnapshot()
	}

	seen := make(map[string]bool, len(current))
	for _, t := range current {
		seen[t.ID] = true
		if _, exists := previous.Tournaments[t.ID]; exists {
			continue
		}
		result.New = append(result.New, t)
		result.ByState[t.Venue.State] = append(result.ByState[t.Venue.State], t)
	}

	for id, t := range previous.Tournaments {
		if !seen[id] {
			result.Removed = append(result.Removed, t)
		}
	}

	sortForReport(result.New)
	sortForReport(result.Removed)
	for state := range result.ByState {
		sortForReport(result.ByState[state])
	}

	return result
}

// sortForReport orders by start date, then name, for consistent output
func sortForReport(ts []Tournament) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].StartDate.Equal(ts[j].StartDate) {
			return ts[i].StartDate.Before(ts[j].StartDate)
		}
		if ts[i].Name != ts[j].Name {
			return ts[i].Name < ts[j].Name
		}
		return ts[i].ID < ts[j].ID
	})
}
