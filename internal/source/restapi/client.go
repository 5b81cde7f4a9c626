// Package restapi adapts a JSON tournament API to the source.Adapter contract.
//
// The API is queried with start, end, min_buy_in and max_buy_in parameters and
// answers {"tournaments": [...]} (a bare array is accepted too). Items are decoded
// one at a time so a malformed entry is dropped without failing the response.
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff; other 4xx responses fail immediately.
package restapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/source"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

const (
	UserAgent      = "pokertour/1.0 (github.com/pfrederiksen/pokertour)"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 16 << 20

	// retryWaitCeiling caps the total backoff wait of defaultBackOff
	retryWaitCeiling = 15 * time.Second
)

// Config describes one REST source
type Config struct {
	Name       string
	URL        string // listing endpoint
	HealthURL  string // defaults to URL
	APIKey     string // sent as "Authorization: Key <key>"
	Timeout    time.Duration
	MaxRetries int
	Timezone   string             // for date strings without an offset
	Circuit    tournament.Circuit // used when an item names no circuit

	// RateLimit caps requests per RateWindow; 0 leaves limiting to the server headers
	RateLimit  int
	RateWindow time.Duration
}

// Client is a REST tournament source. It implements source.Adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *source.RateLimiter
	newBackOff func() backoff.BackOff
	loc        *time.Location
	log        *logger.Logger
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(cl *Client) {
		if log != nil {
			cl.log = log
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// WithBackOff replaces the retry schedule
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(cl *Client) { cl.newBackOff = newBackOff }
}

// NewClient creates a REST source client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("rest source name is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("rest source %s: invalid url %q: %w", cfg.Name, cfg.URL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = cfg.URL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    source.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		newBackOff: defaultBackOff,
		loc:        tournament.LoadLocation(cfg.Timezone),
		log:        logger.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = retryWaitCeiling
	return b
}

// FetchBudget covers every attempt at the per-request timeout plus the waits
// between them
func (c *Client) FetchBudget() time.Duration {
	budget := c.cfg.Timeout * time.Duration(c.cfg.MaxRetries+1)
	if c.cfg.MaxRetries > 0 {
		budget += retryWaitCeiling
	}
	return budget
}

// statusError is a non-200 API response
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d", e.code)
}

// Fetch queries the API for tournaments inside window and price
func (c *Client) Fetch(ctx context.Context, window source.TimeRange, price *source.PriceRange) ([]tournament.Tournament, error) {
	if err := c.limiter.Take(); err != nil {
		return nil, source.Unavailable(err)
	}

	reqURL, err := c.listingURL(window, price)
	if err != nil {
		return nil, source.Unavailable(err)
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		data, err := c.get(ctx, reqURL)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code != http.StatusTooManyRequests && se.code < 500 {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = data
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Warn("retrying source request", logger.Fields{
			"source":  c.cfg.Name,
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, source.Unavailable(err)
	}

	records, err := c.decode(body)
	if err != nil {
		return nil, source.Unavailable(err)
	}
	return source.Within(records, window, price), nil
}

func (c *Client) listingURL(window source.TimeRange, price *source.PriceRange) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	params := u.Query()
	if !window.Start.IsZero() {
		params.Set("start", window.Start.UTC().Format("2006-01-02"))
	}
	if !window.End.IsZero() {
		params.Set("end", window.End.UTC().Format("2006-01-02"))
	}
	if price != nil && price.Min != nil {
		params.Set("min_buy_in", price.Min.String())
	}
	if price != nil && price.Max != nil {
		params.Set("max_buy_in", price.Max.String())
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	// Add API key header in format: Authorization: Key <key>
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Key %s", c.cfg.APIKey))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	c.observeRateLimit(resp.Header)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

// observeRateLimit learns the server's budget from X-RateLimit-Remaining and
// X-RateLimit-Reset (unix seconds or seconds from now).
func (c *Client) observeRateLimit(h http.Header) {
	remainingText := h.Get("X-RateLimit-Remaining")
	if remainingText == "" {
		return
	}
	remaining, err := strconv.Atoi(strings.TrimSpace(remainingText))
	if err != nil {
		return
	}

	var reset time.Time
	if v, err := strconv.ParseInt(strings.TrimSpace(h.Get("X-RateLimit-Reset")), 10, 64); err == nil && v > 0 {
		// Small values are a delta; epoch timestamps are far larger than any window.
		if v < 1_000_000_000 {
			reset = c.now().Add(time.Duration(v) * time.Second)
		} else {
			reset = time.Unix(v, 0)
		}
	}

	c.limiter.Observe(remaining, reset)
}

// CheckAvailability probes the health URL
func (c *Client) CheckAvailability(ctx context.Context) error {
	return source.Probe(ctx, c.httpClient, c.cfg.HealthURL, UserAgent)
}

// RateLimit reports the request budget, including what the server last reported
func (c *Client) RateLimit() source.RateLimitState {
	return c.limiter.State()
}
