package tournament

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalid is returned by Validate when a record breaks a model invariant.
var ErrInvalid = errors.New("invalid tournament record")

// Category classifies a circuit for filtering and prestige ordering
type Category string

const (
	CategoryMajorTour    Category = "major_tour"
	CategoryRegionalTour Category = "regional_tour"
	CategoryIndependent  Category = "independent"
	// CategoryUnclassified is the zero value, used when a source does not say.
	CategoryUnclassified Category = ""
)

// ParseCategory converts a category id into a Category.
// Accepts the canonical ids plus a few spellings seen in source feeds.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major_tour", "major", "majortour":
		return CategoryMajorTour, nil
	case "regional_tour", "regional", "regionaltour":
		return CategoryRegionalTour, nil
	case "independent", "indie":
		return CategoryIndependent, nil
	case "", "unclassified":
		return CategoryUnclassified, nil
	}
	return CategoryUnclassified, fmt.Errorf("unknown circuit category: %q", s)
}

// Prestige returns the circuit's rank in tie-break ordering. Lower ranks sort first:
// major tour, then independent, then regional, then unclassified.
func (c Category) Prestige() int {
	switch c {
	case CategoryMajorTour:
		return 0
	case CategoryIndependent:
		return 1
	case CategoryRegionalTour:
		return 2
	default:
		return 3
	}
}

// Circuit describes the tour or series a tournament belongs to
type Circuit struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Organizer string   `json:"organizer,omitempty"`
	Category  Category `json:"category,omitempty"`
}

// Coordinates is a WGS84 position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Venue is the casino or card room hosting a tournament
type Venue struct {
	Name        string       `json:"name"`
	Street      string       `json:"street,omitempty"`
	City        string       `json:"city,omitempty"`
	State       string       `json:"state,omitempty"`
	Country     string       `json:"country,omitempty"`
	PostalCode  string       `json:"postal_code,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timezone    string       `json:"timezone,omitempty"`
}

// StructureType is the re-entry model of a tournament
type StructureType string

const (
	StructureFreezeout StructureType = "freezeout"
	StructureReentry   StructureType = "reentry"
	StructureRebuy     StructureType = "rebuy"
)

// Structure holds the blind structure basics
type Structure struct {
	Type          StructureType `json:"type,omitempty"`
	StartingStack int           `json:"starting_stack,omitempty"`
	LevelMinutes  int           `json:"level_minutes,omitempty"`
}

// Status is the lifecycle state of a tournament
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Tournament is the canonical record every source adapter produces
type Tournament struct {
	ID                     string           `json:"id"` // "<source>:<native id>"
	Source                 string           `json:"source"`
	Name                   string           `json:"name"`
	Circuit                Circuit          `json:"circuit"`
	Venue                  Venue            `json:"venue"`
	BuyIn                  decimal.Decimal  `json:"buy_in"`
	StartDate              time.Time        `json:"start_date"`
	EndDate                time.Time        `json:"end_date"`
	EstimatedField         int              `json:"estimated_field,omitempty"`
	Structure              Structure        `json:"structure"`
	PrizeGuarantee         *decimal.Decimal `json:"prize_guarantee,omitempty"`
	Status                 Status           `json:"status"`
	RegistrationDeadline   *time.Time       `json:"registration_deadline,omitempty"`
	LateRegistrationLevels *int             `json:"late_registration_levels,omitempty"`
	URL                    string           `json:"url,omitempty"`
}

// GenerateID creates a deterministic ID from stable fields
func GenerateID(parts ...string) string {
	h := sha1.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// QualifyID prefixes a native identifier with its source name.
// Already-qualified identifiers are returned unchanged.
func QualifyID(source, nativeID string) string {
	prefix := source + ":"
	if strings.HasPrefix(nativeID, prefix) {
		return nativeID
	}
	return prefix + nativeID
}

// DedupKey is the normalized (name, venue, date) triple used to collapse records
// that describe the same real-world event.
func (t *Tournament) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(t.Name)) + "|" +
		strings.ToLower(strings.TrimSpace(t.Venue.Name)) + "|" +
		t.StartDate.UTC().Format("2006-01-02")
}

// Validate checks the record invariants
func (t *Tournament) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalid)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: missing name", ErrInvalid)
	case strings.TrimSpace(t.Venue.Name) == "":
		return fmt.Errorf("%w: missing venue name", ErrInvalid)
	case t.StartDate.IsZero():
		return fmt.Errorf("%w: missing start date", ErrInvalid)
	case t.EndDate.Before(t.StartDate):
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalid,
			t.EndDate.Format(time.RFC3339), t.StartDate.Format(time.RFC3339))
	case t.BuyIn.IsNegative():
		return fmt.Errorf("%w: negative buy-in %s", ErrInvalid, t.BuyIn)
	case t.PrizeGuarantee != nil && t.PrizeGuarantee.IsNegative():
		return fmt.Errorf("%w: negative prize guarantee %s", ErrInvalid, t.PrizeGuarantee)
	}

	if _, err := ParseCategory(string(t.Circuit.Category)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch t.Structure.Type {
	case "", StructureFreezeout, StructureReentry, StructureRebuy:
	default:
		return fmt.Errorf("%w: unknown structure %q", ErrInvalid, t.Structure.Type)
	}

	switch t.Status {
	case StatusUpcoming, StatusRunning, StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}

	return nil
}

// DeriveStatus computes a status from the schedule relative to now.
// Cancelled is never derived; it only comes from a source.
func (t *Tournament) DeriveStatus(now time.Time) Status {
	switch {
	case now.Before(t.StartDate):
		return StatusUpcoming
	case !now.After(t.EndDate):
		return StatusRunning
	default:
		return StatusCompleted
	}
}

// Normalize fills derived fields: a missing end date collapses onto the start date
// and a missing status is derived from the schedule.
func (t *Tournament) Normalize(now time.Time) {
	if t.EndDate.IsZero() {
		t.EndDate = t.StartDate
	}
	if t.Status == "" {
		t.Status = t.DeriveStatus(now)
	}
}

// IsUpcoming reports whether the tournament has not started yet
func (t *Tournament) IsUpcoming(now time.Time) bool {
	return t.StartDate.After(now)
}
