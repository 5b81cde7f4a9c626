package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	// SortDefault keeps the aggregator order: date, circuit prestige, buy-in
	SortDefault SortOrder = ""
	SortByDate  SortOrder = "date"
	SortByBuyIn SortOrder = "buyin"
	SortByName  SortOrder = "name"
	SortByVenue SortOrder = "venue"
)

// ParseSortOrder validates a --sort value
func ParseSortOrder(s string) (SortOrder, error) {
	order := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	switch order {
	case SortDefault, SortByDate, SortByBuyIn, SortByName, SortByVenue:
		return order, nil
	}
	return "", fmt.Errorf("invalid sort: %s (must be date, buyin, name or venue)", s)
}

// sortTournaments re-orders ts in place. The sort is stable, so ties keep the
// aggregator order.
func sortTournaments(ts []tournament.Tournament, order SortOrder) {
	switch order {
	case SortByDate:
		sort.SliceStable(ts, func(i, j int) bool {
			return ts[i].StartDate.Before(ts[j].StartDate)
		})
	case SortByBuyIn:
		sort.SliceStable(ts, func(i, j int) bool {
			return ts[i].BuyIn.LessThan(ts[j].BuyIn)
		})
	case SortByName:
		sort.SliceStable(ts, func(i, j int) bool {
			return strings.ToLower(ts[i].Name) < strings.ToLower(ts[j].Name)
		})
	case SortByVenue:
		sort.SliceStable(ts, func(i, j int) bool {
			vi, vj := strings.ToLower(ts[i].Venue.Name), strings.ToLower(ts[j].Venue.Name)
			if vi != vj {
				return vi < vj
			}
			return ts[i].StartDate.Before(ts[j].StartDate)
		})
	}
}
