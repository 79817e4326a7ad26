package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gigaelk/worrybox/internal/core/domain"
	"github.com/gigaelk/worrybox/internal/dbrecovery"
	"github.com/gigaelk/worrybox/internal/infra/storage/postgres"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	switch s.dbrec.State() {
	case dbrecovery.StateConnected:
	case dbrecovery.StateRecovering, dbrecovery.StateConnecting:
		status = "degraded"
	default:
		status = "critical"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"database": s.dbrec.HealthMetrics(),
		"errors":   s.recovery.Metrics(),
		"breakers": s.recovery.BreakerStates(),
	})
}

func (s *Server) handleErrorMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recovery.Metrics())
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recovery.BreakerStates())
}

func limitParam(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleRecentErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recovery.RecentErrors(limitParam(r, 50)))
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recovery.RecoveryActions(limitParam(r, 50)))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.recovery.ActiveAlerts()
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.recovery.AcknowledgeAlert(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.recovery.ResolveAlert(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// handleArchive reads the persisted error archive. The read goes through
// the database recovery service like every other operation, so it queues
// and fails the same way feature traffic does.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) error {
	limit := limitParam(r, 50)

	result, err := s.dbrec.Execute(r.Context(), "read_error_archive", func(ctx context.Context, db *postgres.DB) (any, error) {
		events, err := postgres.RecentErrorEvents(ctx, db, limit)
		if err != nil {
			return nil, err
		}
		count, err := postgres.CountErrorEventsSince(ctx, db, time.Now().Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		return map[string]any{"events": events, "last_24h": count}, nil
	})
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, result)
	return nil
}

// handleTestError raises a synthetic error of the requested kind so
// operators can exercise the recovery pipeline end to end.
func (s *Server) handleTestError(w http.ResponseWriter, r *http.Request) error {
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "database":
		return domain.Tag(domain.KindDatabase, errors.New("synthetic database failure: connection refused"))
	case "memory":
		return domain.Tag(domain.KindMemory, errors.New("synthetic memory pressure: heap allocation failed"))
	case "network":
		return domain.Tag(domain.KindNetwork, errors.New("synthetic network failure: ENOTFOUND upstream.example"))
	case "timeout":
		// Sleep past any sane route timeout; the middleware aborts first.
		select {
		case <-r.Context().Done():
			return r.Context().Err()
		case <-time.After(time.Hour):
			return nil
		}
	case "validation":
		return domain.Tag(domain.KindValidation, errors.New("synthetic validation failure: field worry is required"))
	default:
		return errors.New("synthetic generic failure")
	}
}
