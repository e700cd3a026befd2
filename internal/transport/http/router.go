package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sellsync/internal/hrsync"
)

// StatusProvider exposes the listener's counters without coupling the HTTP
// layer to the listener itself.
type StatusProvider interface {
	Status() hrsync.Stats
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler is the thin HTTP surface of the sync service: liveness, readiness,
// metrics, and an authenticated status endpoint. All business logic stays in
// the hrsync packages.
type Handler struct {
	status    StatusProvider
	validator TokenValidator
	checks    map[string]HealthCheck
	logger    *slog.Logger
}

func NewHandler(status StatusProvider, validator TokenValidator, checks map[string]HealthCheck, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		status:    status,
		validator: validator,
		checks:    checks,
		logger:    logger,
	}
}

// NewRouter wires all endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/livez", h.handleLiveness)
	r.Get("/readyz", h.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.validator, h.logger))
		r.Get("/sync/status", h.handleSyncStatus)
	})
	return r
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		h.logger.Warn("readiness check failed", "failures", failures)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"failures": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "listener not running"})
		return
	}
	writeJSON(w, http.StatusOK, h.status.Status())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
