package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"go.uber.org/zap"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// DependencyChecker reports whether a backing service is reachable.
type DependencyChecker func(ctx context.Context) error

// HealthHandler serves liveness and dependency health endpoints.
type HealthHandler struct {
	checks map[string]DependencyChecker
	log    *zap.Logger
}

// NewHealthHandler creates the health handler. Nil checkers are skipped so
// optional dependencies (queue, cache) can be left unwired.
func NewHealthHandler(log *zap.Logger, checks map[string]DependencyChecker) *HealthHandler {
	enabled := make(map[string]DependencyChecker, len(checks))
	for name, check := range checks {
		if check != nil {
			enabled[name] = check
		}
	}
	return &HealthHandler{checks: enabled, log: log}
}

// RegisterRoutes registers the health and version routes.
func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/version", h.VersionInfo).Methods("GET")
}

// Healthz reports liveness. With ?mode=extended each backing dependency is
// probed and the overall status degrades to 503 if any probe fails.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("mode") != "extended" {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("dependency_health_check_failed",
				zap.String("dependency", name),
				zap.String("error", logger.SanitizeError(err)),
			)
			deps[name] = "unavailable"
			overall = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}

	respondJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
	})
}

// VersionInfo reports the running build.
func (h *HealthHandler) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": Version})
}
