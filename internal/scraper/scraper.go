package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/source"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

const (
	UserAgent = "pokertour/1.0 (github.com/pfrederiksen/pokertour)"
	Timeout   = 30 * time.Second
)

// Config describes one scraped listing site
type Config struct {
	Name      string
	URL       string
	HealthURL string // defaults to URL
	Timeout   time.Duration
	Timezone  string // IANA name used for dates without an offset
	Circuit   tournament.Circuit
	Selectors Selectors

	// RateLimit caps requests per RateWindow; 0 disables limiting
	RateLimit  int
	RateWindow time.Duration
}

// Scraper fetches and parses a tournament listing page. It implements source.Adapter.
type Scraper struct {
	cfg       Config
	client    *http.Client
	limiter   *source.RateLimiter
	extractor *Extractor
	log       *logger.Logger
}

// Option configures a Scraper
type Option func(*Scraper)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(s *Scraper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used to resolve yearless dates
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.extractor.Now = now }
}

// New creates a new Scraper instance
func New(cfg Config, opts ...Option) (*Scraper, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("scraper source name is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("scraper %s: url is required", cfg.Name)
	}
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("scraper %s: %w", cfg.Name, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = Timeout
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = cfg.URL
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	s := &Scraper{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: source.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		log:     logger.NewNop(),
	}
	s.extractor = &Extractor{
		Source:    cfg.Name,
		Selectors: cfg.Selectors,
		Circuit:   cfg.Circuit,
		Location:  tournament.LoadLocation(cfg.Timezone),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.extractor.Log = s.log

	return s, nil
}

// Fetch downloads the listing page and returns the tournaments inside window and price
func (s *Scraper) Fetch(ctx context.Context, window source.TimeRange, price *source.PriceRange) ([]tournament.Tournament, error) {
	if err := s.limiter.Take(); err != nil {
		return nil, source.Unavailable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, source.Unavailable(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, source.Unavailable(fmt.Errorf("fetching page: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, source.Unavailable(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	records, err := s.extractor.Extract(resp.Body, s.cfg.URL)
	if err != nil {
		return nil, source.Unavailable(err)
	}

	return source.Within(records, window, price), nil
}

// FetchBudget is the page download timeout
func (s *Scraper) FetchBudget() time.Duration {
	return s.cfg.Timeout
}

// CheckAvailability probes the health URL without downloading the listing
func (s *Scraper) CheckAvailability(ctx context.Context) error {
	return source.Probe(ctx, s.client, s.cfg.HealthURL, UserAgent)
}

// RateLimit reports the scraper's own request budget
func (s *Scraper) RateLimit() source.RateLimitState {
	return s.limiter.State()
}
