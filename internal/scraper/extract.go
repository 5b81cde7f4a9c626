package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// Selectors locate tournament fields on a listing page. Item selects one element
// per tournament; the rest are evaluated within that element.
type Selectors struct {
	Item      string `yaml:"item" json:"item"`
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string `yaml:"name" json:"name"`
	Venue     string `yaml:"venue" json:"venue"`
	City      string `yaml:"city,omitempty" json:"city,omitempty"`
	State     string `yaml:"state,omitempty" json:"state,omitempty"`
	Date      string `yaml:"date" json:"date"`
	EndDate   string `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	BuyIn     string `yaml:"buy_in,omitempty" json:"buy_in,omitempty"`
	Guarantee string `yaml:"guarantee,omitempty" json:"guarantee,omitempty"`
	Link      string `yaml:"link,omitempty" json:"link,omitempty"`
}

// Validate checks that the required selectors are present
func (s Selectors) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Item) == "" {
		missing = append(missing, "item")
	}
	if strings.TrimSpace(s.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(s.Venue) == "" {
		missing = append(missing, "venue")
	}
	if strings.TrimSpace(s.Date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing selectors: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Extractor turns listing HTML into tournament records
type Extractor struct {
	Source    string
	Selectors Selectors
	Circuit   tournament.Circuit
	Location  *time.Location
	Log       *logger.Logger
	Now       func() time.Time
}

// Extract parses every listing row in r. pageURL resolves relative links.
// Only a document that cannot be parsed at all is an error.
func (e *Extractor) Extract(r io.Reader, pageURL string) ([]tournament.Tournament, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	log := e.Log
	if log == nil {
		log = logger.NewNop()
	}
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}

	base, _ := url.Parse(pageURL)
	records := make([]tournament.Tournament, 0)

	doc.Find(e.Selectors.Item).Each(func(i int, row *goquery.Selection) {
		rec, err := e.extractRow(row, base, loc, now)
		if err != nil {
			log.Warn("dropping listing row", logger.Fields{
				"source": e.Source,
				"row":    i,
				"reason": err.Error(),
			})
			return
		}
		records = append(records, rec)
	})

	return records, nil
}

func (e *Extractor) extractRow(row *goquery.Selection, base *url.URL, loc *time.Location, now time.Time) (tournament.Tournament, error) {
	sel := e.Selectors

	name := field(row, sel.Name)
	venue := field(row, sel.Venue)
	if name == "" {
		return tournament.Tournament{}, fmt.Errorf("missing name")
	}
	if venue == "" {
		return tournament.Tournament{}, fmt.Errorf("missing venue for %q", name)
	}

	dateText := field(row, sel.Date)
	endText := field(row, sel.EndDate)
	if endText == "" {
		dateText, endText = splitDateRange(dateText)
	}

	start := tournament.ParseDateIn(dateText, loc, now)
	if start.IsZero() {
		return tournament.Tournament{}, fmt.Errorf("unparseable date %q for %q", dateText, name)
	}
	var end time.Time
	if endText != "" {
		end = tournament.ParseDateIn(endText, loc, now)
		if end.IsZero() {
			return tournament.Tournament{}, fmt.Errorf("unparseable end date %q for %q", endText, name)
		}
		// "Dec 30 - Jan 2" with yearless text resolves the end before the start
		if end.Before(start) && end.AddDate(1, 0, 0).After(start) {
			end = end.AddDate(1, 0, 0)
		}
	}

	buyIn := decimal.Zero
	if sel.BuyIn != "" {
		text := field(row, sel.BuyIn)
		amount, err := tournament.ParseMoney(text)
		if err != nil {
			return tournament.Tournament{}, fmt.Errorf("buy-in for %q: %w", name, err)
		}
		buyIn = amount
	}

	var guarantee *decimal.Decimal
	if sel.Guarantee != "" {
		if text := field(row, sel.Guarantee); text != "" {
			if amount, err := tournament.ParseMoney(strings.TrimSuffix(strings.TrimSpace(text), " GTD")); err == nil {
				guarantee = &amount
			}
		}
	}

	link := resolveURL(base, field(row, sel.Link))

	nativeID := field(row, sel.ID)
	if nativeID == "" {
		nativeID = tournament.GenerateID(name, venue, start.Format("2006-01-02"))
	}

	rec := tournament.Tournament{
		ID:      tournament.QualifyID(e.Source, nativeID),
		Source:  e.Source,
		Name:    name,
		Circuit: e.Circuit,
		Venue: tournament.Venue{
			Name:     venue,
			City:     field(row, sel.City),
			State:    strings.ToUpper(field(row, sel.State)),
			Timezone: loc.String(),
		},
		BuyIn:          buyIn,
		StartDate:      start,
		EndDate:        end,
		PrizeGuarantee: guarantee,
		URL:            link,
	}
	rec.Normalize(now)

	if err := rec.Validate(); err != nil {
		return tournament.Tournament{}, err
	}
	return rec, nil
}

// field evaluates a selector within row. "selector@attr" reads an attribute;
// "@attr" reads it from the row itself. Whitespace is collapsed.
func field(row *goquery.Selection, spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ""
	}

	selector, attr := spec, ""
	if i := strings.LastIndex(spec, "@"); i >= 0 {
		selector, attr = strings.TrimSpace(spec[:i]), spec[i+1:]
	}

	target := row
	if selector != "" {
		target = row.Find(selector).First()
	}
	if target.Length() == 0 {
		return ""
	}

	var value string
	if attr != "" {
		value, _ = target.Attr(attr)
	} else {
		value = target.Text()
	}
	return strings.Join(strings.Fields(value), " ")
}

// splitDateRange splits "Feb 15 - Feb 17, 2024" style text into its two ends.
// The year of the end is carried to the start when only the end has one.
func splitDateRange(text string) (string, string) {
	for _, sep := range []string{" - ", " – ", " to "} {
		parts := strings.SplitN(text, sep, 2)
		if len(parts) != 2 {
			continue
		}
		start, end := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if year := trailingYear(end); year != "" && trailingYear(start) == "" {
			start = start + ", " + year
		}
		return start, end
	}
	return text, ""
}

func trailingYear(s string) string {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) < 2 {
		return ""
	}
	last := fields[len(fields)-1]
	if len(last) == 4 && (strings.HasPrefix(last, "19") || strings.HasPrefix(last, "20")) {
		return last
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
