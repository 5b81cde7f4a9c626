package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/source"
)

const (
	// DefaultInterval is how long a health result stays valid
	DefaultInterval = 5 * time.Minute
	// DefaultProbeTimeout bounds a single availability check
	DefaultProbeTimeout = 3 * time.Second
)

// Source is a named adapter in priority order
type Source struct {
	Name    string
	Adapter source.Adapter
}

// SourceHealth is a point-in-time view of one source
type SourceHealth struct {
	SourceName          string     `json:"source_name"`
	Available           bool       `json:"available"`
	LastChecked         time.Time  `json:"last_checked"`
	Error               string     `json:"error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RateLimitRemaining  *int       `json:"rate_limit_remaining,omitempty"`
	RateLimitReset      *time.Time `json:"rate_limit_reset,omitempty"`
}

type state struct {
	available   bool
	lastChecked time.Time
	err         string
	failures    int
}

// Monitor holds per-source health. All operations are thread-safe.
type Monitor struct {
	sources      []Source
	interval     time.Duration
	probeTimeout time.Duration
	log          *logger.Logger
	metrics      *logger.Metrics
	now          func() time.Time

	mu     sync.RWMutex
	states map[string]*state

	probes singleflight.Group
}

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval sets how long a health result stays valid
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout bounds each availability check
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics records availability gauges
func WithMetrics(metrics *logger.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor for sources, each starting unavailable and unchecked.
// Source order is kept as the reporting order.
func NewMonitor(sources []Source, opts ...Option) *Monitor {
	m := &Monitor{
		sources:      append([]Source(nil), sources...),
		interval:     DefaultInterval,
		probeTimeout: DefaultProbeTimeout,
		log:          logger.NewNop(),
		now:          time.Now,
		states:       make(map[string]*state, len(sources)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range m.sources {
		m.states[s.Name] = &state{}
	}
	return m
}

// RefreshIfStale probes every source that was never checked or whose last check is
// older than the interval. Probes run concurrently and each is bounded by the probe
// timeout. Concurrent callers wait on the same probe round. Safe to call before
// every aggregation round.
func (m *Monitor) RefreshIfStale(ctx context.Context) {
	stale := m.staleSources()
	if len(stale) == 0 {
		return
	}

	ch := m.probes.DoChan("refresh", func() (interface{}, error) {
		// Re-read under the flight so a caller that joined late does not re-probe.
		m.probe(context.WithoutCancel(ctx), m.staleSources())
		return nil, nil
	})

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

func (m *Monitor) staleSources() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	var stale []Source
	for _, s := range m.sources {
		st := m.states[s.Name]
		if st.lastChecked.IsZero() || now.Sub(st.lastChecked) >= m.interval {
			stale = append(stale, s)
		}
	}
	return stale
}

func (m *Monitor) probe(ctx context.Context, sources []Source) {
	var wg sync.WaitGroup
	for _, s := range sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
			defer cancel()

			err := checkAvailability(probeCtx, s.Adapter)
			if err != nil {
				m.RecordFailure(s.Name, err)
				m.log.Warn("source health check failed", logger.Fields{
					"source": s.Name,
					"error":  err.Error(),
				})
				return
			}
			m.RecordSuccess(s.Name)
			m.log.Debug("source health check passed", logger.Fields{"source": s.Name})
		}(s)
	}
	wg.Wait()
}

// checkAvailability runs the adapter probe, converting panics and overruns to errors
func checkAvailability(ctx context.Context, a source.Adapter) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("availability check panicked: %v", r)
			}
		}()
		done <- a.CheckAvailability(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("availability check: %w", ctx.Err())
	}
}

// IsUsable reports whether the source's last known state is available.
// Unknown sources are never usable.
func (m *Monitor) IsUsable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[name]
	return ok && st.available
}

// RecordSuccess marks a source available and clears its error
func (m *Monitor) RecordSuccess(name string) {
	m.mu.Lock()
	st, ok := m.states[name]
	if ok {
		st.available = true
		st.lastChecked = m.now()
		st.err = ""
		st.failures = 0
	}
	m.mu.Unlock()

	if ok {
		m.metrics.SetSourceAvailable(name, true)
	}
}

// RecordFailure marks a source unavailable with err as the reason
func (m *Monitor) RecordFailure(name string, err error) {
	msg := "unavailable"
	if err != nil {
		msg = err.Error()
	}

	m.mu.Lock()
	st, ok := m.states[name]
	if ok {
		st.available = false
		st.lastChecked = m.now()
		st.err = msg
		st.failures++
	}
	m.mu.Unlock()

	if ok {
		m.metrics.SetSourceAvailable(name, false)
	}
}

// MarkStale forces every source to be re-probed on the next RefreshIfStale.
// Known availability is kept until the probe replaces it.
func (m *Monitor) MarkStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.states {
		st.lastChecked = time.Time{}
	}
}

// Snapshot returns the health of every source in priority order
func (m *Monitor) Snapshot() []SourceHealth {
	m.mu.RLock()
	out := make([]SourceHealth, 0, len(m.sources))
	for _, s := range m.sources {
		st := m.states[s.Name]
		out = append(out, SourceHealth{
			SourceName:          s.Name,
			Available:           st.available,
			LastChecked:         st.lastChecked,
			Error:               st.err,
			ConsecutiveFailures: st.failures,
		})
	}
	m.mu.RUnlock()

	// Adapters guard their own rate-limit state; read it outside our lock.
	for i, s := range m.sources {
		reporter, ok := s.Adapter.(source.RateLimitReporter)
		if !ok {
			continue
		}
		rl := reporter.RateLimit()
		if rl.Limit <= 0 && rl.Reset.IsZero() {
			continue
		}
		remaining := rl.Remaining
		out[i].RateLimitRemaining = &remaining
		if !rl.Reset.IsZero() {
			reset := rl.Reset
			out[i].RateLimitReset = &reset
		}
	}

	return out
}

// Sources returns the monitored sources in priority order
func (m *Monitor) Sources() []Source {
	return append([]Source(nil), m.sources...)
}
