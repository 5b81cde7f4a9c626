package logger

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "pokertour"

// Metrics tracks operational metrics for the aggregation pipeline.
// All methods are thread-safe and no-ops on a nil receiver, so components can
// run without metrics in tests.
type Metrics struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	available     *prometheus.GaugeVec
	cacheLookups  *prometheus.CounterVec
	rounds        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
}

// NewMetrics creates a metrics tracker backed by its own Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Source fetch attempts by outcome",
		}, []string{"source", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Source fetch latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"source"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "source",
			Name:      "available",
			Help:      "1 when the last health check or fetch succeeded",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss, expired, bypass)",
		}, []string{"result"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "aggregator",
			Name:      "rounds_total",
			Help:      "Aggregation rounds by outcome",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "source",
			Name:      "dropped_records_total",
			Help:      "Records dropped as malformed or duplicate",
		}, []string{"source", "reason"}),
	}

	m.registry.MustRegister(m.fetches, m.fetchDuration, m.available, m.cacheLookups, m.rounds, m.dropped)
	return m
}

// ObserveFetch records one source fetch and its latency
func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.fetches.WithLabelValues(source, result).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// SetSourceAvailable sets the availability gauge for a source
func (m *Metrics) SetSourceAvailable(source string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.available.WithLabelValues(source).Set(v)
}

// IncrCacheLookup counts a cache lookup by result
func (m *Metrics) IncrCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// IncrRound counts an aggregation round by outcome
func (m *Metrics) IncrRound(outcome string) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(outcome).Inc()
}

// AddDropped counts records dropped from a source
func (m *Metrics) AddDropped(source, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(source, reason).Add(float64(n))
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
