package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pfrederiksen/pokertour/internal/aggregator"
	"github.com/pfrederiksen/pokertour/internal/browser"
	"github.com/pfrederiksen/pokertour/internal/cache"
	"github.com/pfrederiksen/pokertour/internal/config"
	"github.com/pfrederiksen/pokertour/internal/health"
	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/scraper"
	"github.com/pfrederiksen/pokertour/internal/source"
	"github.com/pfrederiksen/pokertour/internal/source/restapi"
	"github.com/pfrederiksen/pokertour/internal/storage"
)

// app is a fully wired aggregator with the resources it owns
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *logger.Metrics
	svc     *aggregator.Service
	store   *storage.Storage

	closers []func() error
}

// newApp builds sources, cache persistence and the aggregator from cfg.
// httpClient is shared by the REST and HTML adapters; nil uses their defaults.
func newApp(cfg *config.Config, log *logger.Logger, httpClient *http.Client, now func() time.Time) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: logger.NewMetrics(),
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	a.store = store

	sources, err := buildSources(cfg, log, httpClient, now)
	if err != nil {
		return nil, err
	}

	opts := []aggregator.Option{
		aggregator.WithCacheTTL(cfg.Cache.TTL),
		aggregator.WithFetchTimeout(cfg.Aggregator.FetchTimeout),
		aggregator.WithHealthOptions(
			health.WithInterval(cfg.Health.Interval),
			health.WithProbeTimeout(cfg.Health.ProbeTimeout),
		),
		aggregator.WithLogger(log),
		aggregator.WithMetrics(a.metrics),
		aggregator.WithClock(now),
	}

	persister, closePersister, err := a.buildPersister(now)
	if err != nil {
		closeSources(sources)
		return nil, err
	}
	if persister != nil {
		opts = append(opts, aggregator.WithPersister(persister))
	}
	if closePersister != nil {
		a.closers = append(a.closers, closePersister)
	}

	svc, err := aggregator.New(sources, opts...)
	if err != nil {
		closeSources(sources)
		a.Close() // nolint:errcheck
		return nil, err
	}
	// The service closes the adapters; it runs before the persister closes.
	a.closers = append([]func() error{svc.Close}, a.closers...)
	a.svc = svc

	if persister != nil {
		n, err := svc.Cache().Restore()
		if err != nil {
			log.Warn("cache restore failed", logger.Fields{"error": err.Error()})
		} else {
			log.Debug("restored cache entries", logger.Fields{"entries": n})
		}
	}

	return a, nil
}

// buildPersister opens the configured cache backend. Both return values are nil
// for the "none" backend.
func (a *app) buildPersister(now func() time.Time) (cache.Persister, func() error, error) {
	path := a.cfg.CachePath()
	switch a.cfg.Cache.Backend {
	case config.BackendFile:
		fs, err := storage.NewFileStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening cache file: %w", err)
		}
		return fs, nil, nil

	case config.BackendSQLite:
		db, err := storage.OpenSQLite(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening cache database: %w", err)
		}
		st, err := storage.NewSQLiteStore(db)
		if err != nil {
			db.Close() // nolint:errcheck
			return nil, nil, fmt.Errorf("opening cache database: %w", err)
		}
		if n, err := st.PurgeExpired(now()); err != nil {
			a.log.Warn("purging expired cache rows failed", logger.Fields{"error": err.Error()})
		} else if n > 0 {
			a.log.Debug("purged expired cache rows", logger.Fields{"rows": n})
		}
		return st, st.Close, nil
	}
	return nil, nil, nil
}

// buildSources creates one adapter per enabled source, in priority order
func buildSources(cfg *config.Config, log *logger.Logger, httpClient *http.Client, now func() time.Time) ([]health.Source, error) {
	var sources []health.Source
	for _, sc := range cfg.EnabledSources() {
		adapter, err := buildAdapter(sc, log.With(logger.Fields{"source": sc.Name}), httpClient, now)
		if err != nil {
			closeSources(sources)
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		sources = append(sources, health.Source{Name: sc.Name, Adapter: adapter})
	}
	return sources, nil
}

func buildAdapter(sc config.SourceConfig, log *logger.Logger, httpClient *http.Client, now func() time.Time) (source.Adapter, error) {
	circuit, err := sc.CircuitValue()
	if err != nil {
		return nil, err
	}

	switch sc.Kind {
	case config.KindREST:
		opts := []restapi.Option{restapi.WithLogger(log), restapi.WithClock(now)}
		if httpClient != nil {
			opts = append(opts, restapi.WithHTTPClient(httpClient))
		}
		return restapi.NewClient(restapi.Config{
			Name:       sc.Name,
			URL:        sc.URL,
			HealthURL:  sc.HealthURL,
			APIKey:     sc.APIKey,
			Timeout:    sc.Timeout,
			MaxRetries: sc.MaxRetries,
			Timezone:   sc.Timezone,
			Circuit:    circuit,
			RateLimit:  sc.RateLimit,
			RateWindow: sc.RateWindow,
		}, opts...)

	case config.KindHTML:
		opts := []scraper.Option{scraper.WithLogger(log), scraper.WithClock(now)}
		if httpClient != nil {
			opts = append(opts, scraper.WithHTTPClient(httpClient))
		}
		return scraper.New(scraper.Config{
			Name:       sc.Name,
			URL:        sc.URL,
			HealthURL:  sc.HealthURL,
			Timeout:    sc.Timeout,
			Timezone:   sc.Timezone,
			Circuit:    circuit,
			Selectors:  sc.Selectors,
			RateLimit:  sc.RateLimit,
			RateWindow: sc.RateWindow,
		}, opts...)

	case config.KindBrowser:
		opts := []browser.Option{browser.WithLogger(log), browser.WithClock(now)}
		if httpClient != nil {
			opts = append(opts, browser.WithHTTPClient(httpClient))
		}
		return browser.New(browser.Config{
			Name:         sc.Name,
			URL:          sc.URL,
			HealthURL:    sc.HealthURL,
			RemoteURL:    sc.RemoteURL,
			WaitSelector: sc.WaitSelector,
			Timeout:      sc.Timeout,
			Timezone:     sc.Timezone,
			Circuit:      circuit,
			Selectors:    sc.Selectors,
			RateLimit:    sc.RateLimit,
			RateWindow:   sc.RateWindow,
		}, opts...)
	}
	return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
}

func closeSources(sources []health.Source) {
	for _, s := range sources {
		if c, ok := s.Adapter.(source.Closer); ok {
			c.Close() // nolint:errcheck
		}
	}
}

// Close releases adapters and the cache backend, then flushes the logger
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.log.Sync() // nolint:errcheck
	return errors.Join(errs...)
}
