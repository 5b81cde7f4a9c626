package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/source"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// envelope is the listing response
type envelope struct {
	Tournaments []json.RawMessage `json:"tournaments"`
}

type wireCircuit struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Organizer string `json:"organizer"`
	Category  string `json:"category"`
}

type wireVenue struct {
	Name       string   `json:"name"`
	Street     string   `json:"street"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	Country    string   `json:"country"`
	PostalCode string   `json:"postal_code"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Timezone   string   `json:"timezone"`
}

type wireStructure struct {
	Type          string `json:"type"`
	StartingStack int    `json:"starting_stack"`
	LevelMinutes  int    `json:"level_minutes"`
}

// wireID accepts a string or numeric identifier
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = wireID(n.String())
	return nil
}

// wireTournament is one API item. Amounts accept JSON numbers or strings.
type wireTournament struct {
	ID                     wireID           `json:"id"`
	Name                   string           `json:"name"`
	Circuit                *wireCircuit     `json:"circuit"`
	Venue                  wireVenue        `json:"venue"`
	BuyIn                  decimal.Decimal  `json:"buy_in"`
	StartDate              string           `json:"start_date"`
	EndDate                string           `json:"end_date"`
	EstimatedField         int              `json:"estimated_field"`
	Structure              wireStructure    `json:"structure"`
	PrizeGuarantee         *decimal.Decimal `json:"prize_guarantee"`
	Status                 string           `json:"status"`
	RegistrationDeadline   string           `json:"registration_deadline"`
	LateRegistrationLevels *int             `json:"late_registration_levels"`
	URL                    string           `json:"url"`
}

// decode parses a listing response. Items that fail to decode or normalize are
// dropped and logged; only an unreadable envelope is an error.
func (c *Client) decode(body []byte) ([]tournament.Tournament, error) {
	var items []json.RawMessage

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		items = env.Tournaments
	}

	now := c.now()
	records := make([]tournament.Tournament, 0, len(items))
	for i, raw := range items {
		rec, err := c.convert(raw, now)
		if err != nil {
			c.log.Warn("dropping malformed item", logger.Fields{
				"source": c.cfg.Name,
				"index":  i,
				"reason": fmt.Errorf("%w: %v", source.ErrMalformedRecord, err).Error(),
			})
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) convert(raw json.RawMessage, now time.Time) (tournament.Tournament, error) {
	var w wireTournament
	if err := json.Unmarshal(raw, &w); err != nil {
		return tournament.Tournament{}, fmt.Errorf("decoding item: %w", err)
	}

	loc := c.loc
	timezone := w.Venue.Timezone
	if timezone != "" {
		loc = tournament.LoadLocation(timezone)
	} else if c.cfg.Timezone != "" {
		// dates were read in the source's zone, so the venue is there too
		timezone = loc.String()
	}

	start, err := parseInstant(w.StartDate, loc, now)
	if err != nil {
		return tournament.Tournament{}, fmt.Errorf("start_date: %w", err)
	}
	var end time.Time
	if w.EndDate != "" {
		if end, err = parseInstant(w.EndDate, loc, now); err != nil {
			return tournament.Tournament{}, fmt.Errorf("end_date: %w", err)
		}
	}

	circuit := c.cfg.Circuit
	if w.Circuit != nil {
		category, err := tournament.ParseCategory(w.Circuit.Category)
		if err != nil {
			return tournament.Tournament{}, err
		}
		circuit = tournament.Circuit{
			ID:        w.Circuit.ID,
			Name:      w.Circuit.Name,
			Organizer: w.Circuit.Organizer,
			Category:  category,
		}
	}

	nativeID := strings.TrimSpace(string(w.ID))
	if nativeID == "" {
		nativeID = tournament.GenerateID(w.Name, w.Venue.Name, start.Format("2006-01-02"))
	}

	rec := tournament.Tournament{
		ID:      tournament.QualifyID(c.cfg.Name, nativeID),
		Source:  c.cfg.Name,
		Name:    strings.TrimSpace(w.Name),
		Circuit: circuit,
		Venue: tournament.Venue{
			Name:       strings.TrimSpace(w.Venue.Name),
			Street:     w.Venue.Street,
			City:       w.Venue.City,
			State:      strings.ToUpper(strings.TrimSpace(w.Venue.State)),
			Country:    w.Venue.Country,
			PostalCode: w.Venue.PostalCode,
			Timezone:   timezone,
		},
		BuyIn:          w.BuyIn,
		StartDate:      start,
		EndDate:        end,
		EstimatedField: w.EstimatedField,
		Structure: tournament.Structure{
			Type:          normalizeStructure(w.Structure.Type),
			StartingStack: w.Structure.StartingStack,
			LevelMinutes:  w.Structure.LevelMinutes,
		},
		PrizeGuarantee:         w.PrizeGuarantee,
		Status:                 tournament.Status(strings.ToLower(strings.TrimSpace(w.Status))),
		LateRegistrationLevels: w.LateRegistrationLevels,
		URL:                    w.URL,
	}
	if w.Venue.Latitude != nil && w.Venue.Longitude != nil {
		rec.Venue.Coordinates = &tournament.Coordinates{Latitude: *w.Venue.Latitude, Longitude: *w.Venue.Longitude}
	}
	if w.RegistrationDeadline != "" {
		if deadline, err := parseInstant(w.RegistrationDeadline, loc, now); err == nil {
			rec.RegistrationDeadline = &deadline
		}
	}

	rec.Normalize(now)
	if err := rec.Validate(); err != nil {
		return tournament.Tournament{}, err
	}
	return rec, nil
}

func parseInstant(text string, loc *time.Location, now time.Time) (time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	t := tournament.ParseDateIn(text, loc, now)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("unparseable date %q", text)
	}
	return t, nil
}

func normalizeStructure(s string) tournament.StructureType {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "freezeout":
		return tournament.StructureFreezeout
	case "reentry":
		return tournament.StructureReentry
	case "rebuy":
		return tournament.StructureRebuy
	case "":
		return ""
	}
	return tournament.StructureType(strings.ToLower(s))
}
