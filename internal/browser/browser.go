// Package browser renders JavaScript-heavy listing pages in headless Chrome and
// extracts tournaments from the rendered DOM.
//
// The Chrome session is launched lazily on the first Fetch and reused until Close.
// Pages are opened through go-rod/stealth so sites that fingerprint automation
// serve the same markup a desktop browser sees. Extraction reuses the scraper's
// selector-driven Extractor.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/scraper"
	"github.com/pfrederiksen/pokertour/internal/source"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

const DefaultTimeout = 45 * time.Second

// launchAllowance is added to Timeout for starting and connecting to Chrome,
// which happens outside the render deadline's control
const launchAllowance = 15 * time.Second

// ErrClosed is returned by Fetch after Close
var ErrClosed = errors.New("browser session closed")

// Config describes one browser-rendered source
type Config struct {
	Name      string
	URL       string
	HealthURL string // defaults to URL

	// RemoteURL is the DevTools WebSocket URL of an existing Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// WaitSelector, when set, must appear before the DOM is captured
	WaitSelector string

	Timeout   time.Duration
	Timezone  string
	Circuit   tournament.Circuit
	Selectors scraper.Selectors

	RateLimit  int
	RateWindow time.Duration
}

// Renderer loads pageURL and returns its rendered HTML
type Renderer func(ctx context.Context, pageURL string) (string, error)

// Adapter is a headless-browser tournament source. It implements source.Adapter
// and source.Closer.
type Adapter struct {
	cfg       Config
	client    *http.Client
	limiter   *source.RateLimiter
	extractor *scraper.Extractor
	render    Renderer
	log       *logger.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	closed   bool
}

// Option configures an Adapter
type Option func(*Adapter)

// WithRenderer replaces the Chrome renderer
func WithRenderer(r Renderer) Option {
	return func(a *Adapter) { a.render = r }
}

// WithHTTPClient replaces the client used for availability probes
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// WithClock overrides the time source used to resolve yearless dates
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.extractor.Now = now }
}

// New creates a browser adapter. No browser is started until the first Fetch.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("browser source name is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("browser %s: url is required", cfg.Name)
	}
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("browser %s: %w", cfg.Name, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = cfg.URL
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	a := &Adapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: scraper.Timeout},
		limiter: source.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		extractor: &scraper.Extractor{
			Source:    cfg.Name,
			Selectors: cfg.Selectors,
			Circuit:   cfg.Circuit,
			Location:  tournament.LoadLocation(cfg.Timezone),
		},
		log: logger.NewNop(),
	}
	a.render = a.renderChrome
	for _, opt := range opts {
		opt(a)
	}
	a.extractor.Log = a.log

	return a, nil
}

// Fetch renders the listing page and returns the tournaments inside window and price
func (a *Adapter) Fetch(ctx context.Context, window source.TimeRange, price *source.PriceRange) ([]tournament.Tournament, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, source.Unavailable(ErrClosed)
	}

	if err := a.limiter.Take(); err != nil {
		return nil, source.Unavailable(err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	html, err := a.render(ctx, a.cfg.URL)
	if err != nil {
		return nil, source.Unavailable(fmt.Errorf("rendering %s: %w", a.cfg.URL, err))
	}

	records, err := a.extractor.Extract(strings.NewReader(html), a.cfg.URL)
	if err != nil {
		return nil, source.Unavailable(err)
	}
	return source.Within(records, window, price), nil
}

// CheckAvailability probes the health URL over plain HTTP. It never starts Chrome.
func (a *Adapter) CheckAvailability(ctx context.Context) error {
	return source.Probe(ctx, a.client, a.cfg.HealthURL, scraper.UserAgent)
}

// FetchBudget is the render timeout plus time to start Chrome
func (a *Adapter) FetchBudget() time.Duration {
	return a.cfg.Timeout + launchAllowance
}

// RateLimit reports the adapter's own request budget
func (a *Adapter) RateLimit() source.RateLimitState {
	return a.limiter.State()
}

// Close shuts down Chrome. It is idempotent and safe when Chrome was never started.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	return a.cleanupLocked()
}

func (a *Adapter) cleanupLocked() error {
	var err error
	if a.browser != nil {
		err = a.browser.Close()
		a.browser = nil
	}
	if a.launcher != nil {
		a.launcher.Cleanup()
		a.launcher = nil
	}
	return err
}

// session returns the shared Chrome connection, launching it on first use
func (a *Adapter) session() (*rod.Browser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if a.browser != nil {
		return a.browser, nil
	}

	wsURL := a.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
		wsURL = u
		a.launcher = l
		a.log.Info("launched headless chrome", logger.Fields{"source": a.cfg.Name})
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		_ = a.cleanupLocked()
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	a.browser = b
	return b, nil
}

func (a *Adapter) renderChrome(ctx context.Context, pageURL string) (string, error) {
	b, err := a.session()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		// A dead session is dropped so the next fetch relaunches
		a.mu.Lock()
		if a.browser == b {
			_ = a.cleanupLocked()
		}
		a.mu.Unlock()
		return "", fmt.Errorf("opening tab: %w", err)
	}
	defer page.Close() // nolint:errcheck

	page = page.Context(ctx)
	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigating: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		a.log.Warn("page load wait failed", logger.Fields{
			"source": a.cfg.Name,
			"error":  err.Error(),
		})
	}
	if a.cfg.WaitSelector != "" {
		if _, err := page.Element(a.cfg.WaitSelector); err != nil {
			return "", fmt.Errorf("waiting for %q: %w", a.cfg.WaitSelector, err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("reading DOM: %w", err)
	}
	return html, nil
}
