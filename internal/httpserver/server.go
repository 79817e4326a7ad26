// Package httpserver adapts the recovery services to HTTP: correlation and
// timeout middleware, the structured error envelope, and the diagnostics
// surface consumed by operator dashboards.
package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gigaelk/worrybox/internal/core/config"
	"github.com/gigaelk/worrybox/internal/core/domain"
	"github.com/gigaelk/worrybox/internal/dbrecovery"
	"github.com/gigaelk/worrybox/internal/recovery"
	"github.com/gigaelk/worrybox/internal/resilience/breaker"
)

// Server exposes health, metrics and diagnostics endpoints.
type Server struct {
	recovery   *recovery.Service
	dbrec      *dbrecovery.Service
	fallback   ResponseCache
	timeouts   config.TimeoutConfig
	production bool
	server     *http.Server
}

// New creates the HTTP server and mounts all routes. fallback may be nil,
// disabling response capture for the cache_fallback strategy.
func New(rec *recovery.Service, dbrec *dbrecovery.Service, fallback ResponseCache, cfg *config.AppConfig) *Server {
	s := &Server{
		recovery:   rec,
		dbrec:      dbrec,
		fallback:   fallback,
		timeouts:   cfg.Timeouts,
		production: cfg.IsProduction(),
	}

	r := chi.NewRouter()
	r.Use(correlationMiddleware)
	r.Use(bodyCaptureMiddleware)
	r.Use(s.timeoutMiddleware)
	r.Use(s.fallbackCaptureMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/diagnostics", func(r chi.Router) {
		r.Get("/metrics", s.handleErrorMetrics)
		r.Get("/breakers", s.handleBreakers)
		r.Get("/errors", s.handleRecentErrors)
		r.Get("/actions", s.handleActions)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/archive", s.wrap(s.handleArchive))
		r.Post("/alerts/{id}/acknowledge", s.handleAcknowledge)
		r.Post("/alerts/{id}/resolve", s.handleResolve)
		r.Post("/test-error", s.wrap(s.handleTestError))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// HandlerFunc is an HTTP handler that may fail; errors flow through the
// recovery pipeline before reaching the client.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap turns a fallible handler into an http.HandlerFunc. An open breaker
// for the path short-circuits with a 503 before the handler runs. On error
// the recovery service classifies and attempts recovery, then graceful
// degradation; only when both fail does the error envelope go out.
func (s *Server) wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := CorrelationFrom(r.Context())

		var b *breaker.Breaker
		if s.recovery.BreakerEnabled() {
			b = s.recovery.Breaker(r.URL.Path)
			if retryAfter := b.RetryAfter(); retryAfter > 0 {
				writeBreakerOpen(w, correlationID, retryAfter)
				return
			}
		}

		err := h(w, r)
		if err == nil {
			if b != nil && b.State() != breaker.StateClosed {
				b.RecordSuccess()
			}
			return
		}

		ectx := s.recovery.NewErrorContext(metaFrom(r), nil)
		enhanced, actions := s.recovery.Handle(r.Context(), err, ectx)

		if len(actions) == 1 && actions[0].Type == domain.ActionCircuitBreaker && !actions[0].Success {
			retryAfter := breaker.DefaultConfig.RecoveryTimeout
			if b != nil {
				retryAfter = b.RetryAfter()
			}
			writeBreakerOpen(w, correlationID, retryAfter)
			return
		}

		if result, derr := s.recovery.Degrade(r.Context(), err, ectx); derr == nil {
			writeJSON(w, http.StatusOK, result)
			return
		}

		writeError(w, s.production, enhanced, actions)
	}
}
