// Package server is a thin HTTP facade over the aggregator.
//
//	GET  /api/tournaments  filtered query, see filter.FromQuery
//	GET  /api/health       per-source health
//	POST /api/refresh      clear the cache and run a fresh round
//	GET  /metrics          Prometheus metrics
//	GET  /healthz          liveness
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pfrederiksen/pokertour/internal/aggregator"
	"github.com/pfrederiksen/pokertour/internal/filter"
	"github.com/pfrederiksen/pokertour/internal/health"
	"github.com/pfrederiksen/pokertour/internal/logger"
)

const (
	DefaultAddr     = ":8080"
	shutdownTimeout = 10 * time.Second
	refreshTimeout  = 2 * time.Minute
)

// Service is the aggregator surface the facade forwards to
type Service interface {
	Query(ctx context.Context, f *filter.Filter) (*aggregator.Result, error)
	GetDataSourceHealth() []health.SourceHealth
	RefreshAllData(ctx context.Context) error
}

// Server routes HTTP requests to a Service
type Server struct {
	svc     Service
	router  chi.Router
	log     *logger.Logger
	metrics *logger.Metrics
	now     func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(log *logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics exposes m on /metrics
func WithMetrics(m *logger.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock overrides the time source used to resolve relative date ranges
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server for svc
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc: svc,
		log: logger.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleLiveness)
	r.Route("/api", func(r chi.Router) {
		r.Get("/tournaments", s.handleTournaments)
		r.Get("/health", s.handleHealth)
		r.Post("/refresh", s.handleRefresh)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.router = r
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logger.Fields{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string                `json:"status"` // ok, degraded or down
	Sources []health.SourceHealth `json:"sources"`
}

func (s *Server) handleTournaments(w http.ResponseWriter, r *http.Request) {
	f, err := filter.FromQuery(r.URL.Query(), s.now())
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.svc.Query(r.Context(), f)
	if err != nil {
		if errors.Is(err, filter.ErrInvalidFilter) {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.log.Error("tournament query failed", logger.Fields{"filter": f.String()}, err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sources := s.svc.GetDataSourceHealth()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  overallStatus(sources),
		Sources: sources,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	if err := s.svc.RefreshAllData(ctx); err != nil {
		s.log.Error("refresh failed", nil, err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "refresh failed"})
		return
	}

	sources := s.svc.GetDataSourceHealth()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  overallStatus(sources),
		Sources: sources,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func overallStatus(sources []health.SourceHealth) string {
	up := 0
	for _, h := range sources {
		if h.Available {
			up++
		}
	}
	switch {
	case len(sources) > 0 && up == len(sources):
		return "ok"
	case up > 0:
		return "degraded"
	default:
		return "down"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", logger.Fields{"error": err.Error()})
	}
}

// requestLogger logs one line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Info("http request", logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(started).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
