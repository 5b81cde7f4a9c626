package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pfrederiksen/pokertour/internal/cache"
	"github.com/pfrederiksen/pokertour/internal/dedup"
	"github.com/pfrederiksen/pokertour/internal/filter"
	"github.com/pfrederiksen/pokertour/internal/health"
	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/source"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// DefaultFetchTimeout bounds a single source fetch within a round when the
// adapter reports no fetch budget of its own
const DefaultFetchTimeout = 20 * time.Second

// SourceRound is one source's part in an aggregation round
type SourceRound struct {
	Source   string        `json:"source"`
	Skipped  bool          `json:"skipped"` // unusable, not attempted
	Records  int           `json:"records"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is a query answer with the metadata a caller needs to interpret it
type Result struct {
	Tournaments      []tournament.Tournament `json:"tournaments"`
	RoundID          string                  `json:"round_id,omitempty"`
	FromCache        bool                    `json:"from_cache"`
	Stale            bool                    `json:"stale"`
	AllSourcesFailed bool                    `json:"all_sources_failed"`
	Duplicates       int                     `json:"duplicates"`
	Rounds           []SourceRound           `json:"rounds,omitempty"`
	Health           []health.SourceHealth   `json:"health"`
}

// Service aggregates tournaments from a fixed, ordered list of sources.
// All methods are safe for concurrent use.
type Service struct {
	sources      []health.Source
	monitor      *health.Monitor
	cache        *cache.Store
	fetchTimeout time.Duration
	log          *logger.Logger
	metrics      *logger.Metrics
	now          func() time.Time

	flights singleflight.Group

	// expired entries evicted by a lookup, kept per signature until a round
	// for it succeeds so any failed round can still serve them
	staleMu sync.Mutex
	stale   map[string]cache.Entry

	closeOnce sync.Once
	closeErr  error

	// options collected before the monitor and cache are built
	cacheOpts  []cache.Option
	healthOpts []health.Option
}

// Option configures a Service
type Option func(*Service)

// WithCache uses an existing cache store instead of building one
func WithCache(c *cache.Store) Option {
	return func(s *Service) { s.cache = c }
}

// WithCacheTTL sets the TTL of the built cache store
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheOpts = append(s.cacheOpts, cache.WithTTL(ttl)) }
}

// WithPersister persists the built cache store
func WithPersister(p cache.Persister) Option {
	return func(s *Service) { s.cacheOpts = append(s.cacheOpts, cache.WithPersister(p)) }
}

// WithHealthOptions passes options through to the health monitor
func WithHealthOptions(opts ...health.Option) Option {
	return func(s *Service) { s.healthOpts = append(s.healthOpts, opts...) }
}

// WithFetchTimeout bounds each fetch from a source that is not a source.Budgeter
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger, shared with the monitor and cache
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records service metrics
func WithMetrics(m *logger.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source of the service, monitor and cache
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. Source order is priority order: when two sources report
// the same event, the earlier source's record is kept.
func New(sources []health.Source, opts ...Option) (*Service, error) {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source name is required")
		}
		if src.Adapter == nil {
			return nil, fmt.Errorf("source %s: adapter is required", src.Name)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("duplicate source name: %s", src.Name)
		}
		seen[src.Name] = true
	}

	s := &Service{
		sources:      append([]health.Source(nil), sources...),
		fetchTimeout: DefaultFetchTimeout,
		log:          logger.NewNop(),
		now:          time.Now,
		stale:        make(map[string]cache.Entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		cacheOpts := append([]cache.Option{
			cache.WithLogger(s.log),
			cache.WithClock(s.now),
		}, s.cacheOpts...)
		s.cache = cache.New(cacheOpts...)
	}

	healthOpts := append([]health.Option{
		health.WithLogger(s.log),
		health.WithMetrics(s.metrics),
		health.WithClock(s.now),
	}, s.healthOpts...)
	s.monitor = health.NewMonitor(s.sources, healthOpts...)

	return s, nil
}

// Cache returns the service's cache store
func (s *Service) Cache() *cache.Store {
	return s.cache
}

// GetTournaments returns the tournaments matching f. Source outages never fail
// the call; only an invalid filter does.
func (s *Service) GetTournaments(ctx context.Context, f *filter.Filter) ([]tournament.Tournament, error) {
	res, err := s.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return res.Tournaments, nil
}

// Query is GetTournaments plus round metadata and a health snapshot.
// A nil filter matches everything.
func (s *Service) Query(ctx context.Context, f *filter.Filter) (*Result, error) {
	if f == nil {
		f = filter.NewFilter()
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.Clone()
	key := f.Signature()

	var expired *cache.Entry
	if !f.ForceRefresh {
		entry, status := s.cache.Get(key)
		s.metrics.IncrCacheLookup(status.String())
		switch status {
		case cache.StatusHit:
			return &Result{
				Tournaments: entry.Tournaments,
				FromCache:   true,
				Health:      s.monitor.Snapshot(),
			}, nil
		case cache.StatusExpired:
			expired = &entry
			s.keepStale(key, entry)
		}
	}

	ch := s.flights.DoChan(key, func() (interface{}, error) {
		// Rounds outlive a cancelled caller so joined callers still get an answer.
		return s.round(context.WithoutCancel(ctx), f, key), nil
	})

	select {
	case r := <-ch:
		shared := r.Val.(*Result)
		res := *shared
		res.Tournaments = copyTournaments(shared.Tournaments)
		res.Rounds = append([]SourceRound(nil), shared.Rounds...)
		res.Health = s.monitor.Snapshot()
		// A joined round may have settled before this caller's entry was kept
		if res.AllSourcesFailed && !res.FromCache && expired != nil {
			res.Tournaments = copyTournaments(expired.Tournaments)
			res.FromCache = true
			res.Stale = true
		}
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetDataSourceHealth returns the health of every source in priority order
func (s *Service) GetDataSourceHealth() []health.SourceHealth {
	return s.monitor.Snapshot()
}

// CheckDataSourceHealth probes every source whose health is older than the
// probe interval, then returns the result.
func (s *Service) CheckDataSourceHealth(ctx context.Context) []health.SourceHealth {
	s.monitor.RefreshIfStale(ctx)
	return s.monitor.Snapshot()
}

// RefreshAllData clears the cache, forces a re-probe of every source and runs
// an unfiltered aggregation round.
func (s *Service) RefreshAllData(ctx context.Context) error {
	s.cache.Clear()
	s.dropStale("")
	s.monitor.MarkStale()

	f := filter.NewFilter()
	f.ForceRefresh = true
	res, err := s.Query(ctx, f)
	if err != nil {
		return err
	}

	s.log.Info("refreshed all data", logger.Fields{
		"round_id":    res.RoundID,
		"tournaments": len(res.Tournaments),
		"all_failed":  res.AllSourcesFailed,
	})
	return nil
}

// Close releases adapter resources. It is idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, src := range s.sources {
			closer, ok := src.Adapter.(source.Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", src.Name, err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// fetchOutcome is one source's buffered result, merged in priority order
type fetchOutcome struct {
	records []tournament.Tournament
	err     error
	elapsed time.Duration
}

// round runs one aggregation round for f and caches its result
func (s *Service) round(ctx context.Context, f *filter.Filter, key string) *Result {
	roundID := uuid.NewString()
	log := s.log.With(logger.Fields{"round_id": roundID})
	start := s.now()

	s.monitor.RefreshIfStale(ctx)

	window, price := fetchBounds(f)
	outcomes := make([]*fetchOutcome, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		if !s.monitor.IsUsable(src.Name) {
			continue
		}
		wg.Add(1)
		go func(i int, src health.Source) {
			defer wg.Done()
			outcomes[i] = s.fetch(ctx, src, window, price)
		}(i, src)
	}
	wg.Wait()

	var merged []tournament.Tournament
	rounds := make([]SourceRound, len(s.sources))
	attempted, succeeded := 0, 0

	for i, src := range s.sources {
		out := outcomes[i]
		rounds[i].Source = src.Name
		if out == nil {
			rounds[i].Skipped = true
			continue
		}
		attempted++
		rounds[i].Duration = out.elapsed

		if out.err != nil {
			rounds[i].Error = out.err.Error()
			s.monitor.RecordFailure(src.Name, out.err)
			log.Warn("source fetch failed", logger.Fields{
				"source":   src.Name,
				"duration": out.elapsed.String(),
				"error":    out.err.Error(),
			})
			continue
		}

		succeeded++
		s.monitor.RecordSuccess(src.Name)
		kept, dropped := source.Sanitize(src.Name, out.records, log)
		s.metrics.AddDropped(src.Name, "malformed", dropped)
		rounds[i].Records = len(kept)
		rounds[i].Dropped = dropped
		merged = append(merged, kept...)
	}

	if succeeded == 0 {
		return s.fallback(key, roundID, rounds, attempted, log)
	}

	deduped := dedup.Deduplicate(merged)
	result := f.Run(deduped.Tournaments)
	s.cache.Put(key, result)
	s.dropStale(key)
	s.metrics.IncrRound("success")

	log.Info("aggregation round complete", logger.Fields{
		"sources":     attempted,
		"failed":      attempted - succeeded,
		"merged":      len(merged),
		"duplicates":  deduped.Duplicates,
		"tournaments": len(result),
		"duration":    s.now().Sub(start).String(),
	})

	return &Result{
		Tournaments: result,
		RoundID:     roundID,
		Duplicates:  deduped.Duplicates,
		Rounds:      rounds,
	}
}

// fallback answers a round in which no source succeeded. Nothing is cached.
func (s *Service) fallback(key, roundID string, rounds []SourceRound, attempted int, log *logger.Logger) *Result {
	s.metrics.IncrRound("all_failed")

	res := &Result{
		Tournaments:      []tournament.Tournament{},
		RoundID:          roundID,
		AllSourcesFailed: true,
		Rounds:           rounds,
	}

	// A forced refresh keeps serving the live entry it meant to replace
	if entry, status := s.cache.Get(key); status == cache.StatusHit {
		res.Tournaments = entry.Tournaments
		res.FromCache = true
	} else if expired, ok := s.staleEntry(key); ok {
		res.Tournaments = expired.Tournaments
		res.FromCache = true
		res.Stale = true
	}

	log.Warn("all sources failed", logger.Fields{
		"attempted":     attempted,
		"served_cached": res.FromCache,
		"tournaments":   len(res.Tournaments),
	})
	return res
}

func (s *Service) keepStale(key string, entry cache.Entry) {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	s.stale[key] = entry
}

func (s *Service) staleEntry(key string) (cache.Entry, bool) {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	entry, ok := s.stale[key]
	return entry, ok
}

// dropStale forgets the expired entry for key, or all of them when key is empty
func (s *Service) dropStale(key string) {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	if key == "" {
		clear(s.stale)
		return
	}
	delete(s.stale, key)
}

// fetch runs one adapter fetch under its budget. Panics become errors.
func (s *Service) fetch(ctx context.Context, src health.Source, window source.TimeRange, price *source.PriceRange) *fetchOutcome {
	budget := s.fetchBudget(src)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type fetched struct {
		records []tournament.Tournament
		err     error
	}
	done := make(chan fetched, 1)
	started := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetched{err: source.Unavailable(fmt.Errorf("fetch panicked: %v", r))}
			}
		}()
		records, err := src.Adapter.Fetch(ctx, window, price)
		done <- fetched{records: records, err: err}
	}()

	var out fetchOutcome
	select {
	case r := <-done:
		out.records, out.err = r.records, r.err
	case <-ctx.Done():
		out.err = source.Unavailable(fmt.Errorf("fetch timed out after %s: %w", budget, ctx.Err()))
	}
	if out.err != nil {
		out.err = source.Unavailable(out.err)
	}
	out.elapsed = time.Since(started)
	s.metrics.ObserveFetch(src.Name, out.elapsed, out.err)
	return &out
}

// fetchBudget is the source's own budget when it reports one, else the service default
func (s *Service) fetchBudget(src health.Source) time.Duration {
	if b, ok := src.Adapter.(source.Budgeter); ok {
		if d := b.FetchBudget(); d > 0 {
			return d
		}
	}
	return s.fetchTimeout
}

// fetchBounds narrows what adapters are asked for to the filter's date and buy-in range
func fetchBounds(f *filter.Filter) (source.TimeRange, *source.PriceRange) {
	var window source.TimeRange
	window.Start, window.End = f.Window()

	var price *source.PriceRange
	if f.MinBuyIn != nil || f.MaxBuyIn != nil {
		price = &source.PriceRange{Min: f.MinBuyIn, Max: f.MaxBuyIn}
	}
	return window, price
}

func copyTournaments(ts []tournament.Tournament) []tournament.Tournament {
	out := make([]tournament.Tournament, len(ts))
	copy(out, ts)
	return out
}
