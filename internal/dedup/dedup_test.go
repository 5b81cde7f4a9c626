package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

func rec(id, name, venue string, start time.Time, buyIn int64) tournament.Tournament {
	return tournament.Tournament{
		ID:        id,
		Name:      name,
		Venue:     tournament.Venue{Name: venue},
		StartDate: start,
		EndDate:   start,
		BuyIn:     decimal.NewFromInt(buyIn),
	}
}

func TestDeduplicate(t *testing.T) {
	feb15 := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	feb16 := feb15.AddDate(0, 0, 1)

	tests := []struct {
		name       string
		records    []tournament.Tournament
		wantIDs    []string
		duplicates int
	}{
		{
			name:    "empty",
			records: nil,
			wantIDs: []string{},
		},
		{
			name: "case differences collapse to first",
			records: []tournament.Tournament{
				rec("a:1", "Main Event", "Orleans", feb15, 1700),
				rec("b:9", "main event", "orleans", feb15, 1650),
			},
			wantIDs:    []string{"a:1"},
			duplicates: 1,
		},
		{
			name: "priority order decides the winner",
			records: []tournament.Tournament{
				rec("b:9", "main event", "orleans", feb15, 1650),
				rec("a:1", "Main Event", "Orleans", feb15, 1700),
			},
			wantIDs:    []string{"b:9"},
			duplicates: 1,
		},
		{
			name: "different date is a different event",
			records: []tournament.Tournament{
				rec("a:1", "Main Event", "Orleans", feb15, 1700),
				rec("b:9", "Main Event", "Orleans", feb16, 1700),
			},
			wantIDs: []string{"a:1", "b:9"},
		},
		{
			name: "venue suffix is not merged",
			records: []tournament.Tournament{
				rec("a:1", "Main Event", "Orleans", feb15, 1700),
				rec("b:9", "Main Event", "Orleans Casino", feb15, 1700),
			},
			wantIDs: []string{"a:1", "b:9"},
		},
		{
			name: "same calendar day at different times collapses",
			records: []tournament.Tournament{
				rec("a:1", "Main Event", "Orleans", feb15, 1700),
				rec("b:9", "Main Event", "Orleans", feb15.Add(6*time.Hour), 1700),
			},
			wantIDs:    []string{"a:1"},
			duplicates: 1,
		},
		{
			name: "order of survivors is preserved",
			records: []tournament.Tournament{
				rec("a:3", "C", "V", feb15, 1),
				rec("a:1", "A", "V", feb15, 1),
				rec("b:1", "c", "v", feb15, 1),
				rec("a:2", "B", "V", feb15, 1),
			},
			wantIDs:    []string{"a:3", "a:1", "a:2"},
			duplicates: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deduplicate(tt.records)

			if got.Duplicates != tt.duplicates {
				t.Errorf("Duplicates = %d, want %d", got.Duplicates, tt.duplicates)
			}
			if len(got.Tournaments) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %d", len(got.Tournaments), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got.Tournaments[i].ID != id {
					t.Errorf("record[%d].ID = %q, want %q", i, got.Tournaments[i].ID, id)
				}
			}
		})
	}
}
