package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"go.uber.org/zap"
)

// AdminHandler handles privileged maintenance endpoints. These run outside
// the owner-scoped pipeline and are gated by a service token instead of a
// user session.
type AdminHandler struct {
	archive database.ArchiveRepositoryInterface
	cache   OwnerCacheInvalidator
	ring    *logger.Ring
	cfg     *config.Config
	log     *zap.Logger
}

// OwnerCacheInvalidator drops an owner's cached task entries.
type OwnerCacheInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
}

// AdminHandlerOption configures optional admin handler collaborators.
type AdminHandlerOption func(*AdminHandler)

// WithSweepCacheInvalidation makes the archival sweep drop the cached task
// lists of every owner it archived tasks for.
func WithSweepCacheInvalidation(cache OwnerCacheInvalidator) AdminHandlerOption {
	return func(h *AdminHandler) {
		h.cache = cache
	}
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(archive database.ArchiveRepositoryInterface, ring *logger.Ring, cfg *config.Config, log *zap.Logger, opts ...AdminHandlerOption) *AdminHandler {
	h := &AdminHandler{archive: archive, ring: ring, cfg: cfg, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers admin routes on the given router. The router
// should already carry the /api/admin prefix.
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/archive-tasks", h.ArchiveTasks).Methods("GET", "POST")
	if h.cfg.ServerDebugMode {
		r.HandleFunc("/logs", h.QueryLogs).Methods("GET")
	}
}

// ArchiveTasksResponse is the payload returned by the archival sweep.
type ArchiveTasksResponse struct {
	ArchivedCount int                  `json:"archived_count"`
	ArchivedTasks []models.TaskSummary `json:"archived_tasks"`
	Cutoff        time.Time            `json:"cutoff"`
	DryRun        bool                 `json:"dry_run,omitempty"`
}

func summariesOrEmpty(s []models.TaskSummary) []models.TaskSummary {
	if s == nil {
		return []models.TaskSummary{}
	}
	return s
}

// ArchiveTasks runs the archival sweep: every done task untouched since the
// cutoff moves to archived. GET with ?dry_run=true previews without writing.
// Re-running against an already-swept table archives nothing.
func (h *AdminHandler) ArchiveTasks(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(r) {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or missing service token")
		return
	}

	ctx := r.Context()
	cutoff := h.cfg.ArchiveCutoff(time.Now().UTC())

	dryRun := r.Method == http.MethodGet && r.URL.Query().Get("dry_run") == "true"
	if dryRun {
		candidates, err := h.archive.FindArchivable(ctx, cutoff)
		if err != nil {
			h.log.Error("archive_sweep_preview_failed", zap.String("error", logger.SanitizeError(err)))
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to preview archival sweep")
			return
		}
		respondJSON(w, http.StatusOK, ArchiveTasksResponse{
			ArchivedCount: len(candidates),
			ArchivedTasks: summariesOrEmpty(candidates),
			Cutoff:        cutoff,
			DryRun:        true,
		})
		return
	}

	archived, err := h.archive.Archive(ctx, cutoff)
	if err != nil {
		h.log.Error("archive_sweep_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to run archival sweep")
		return
	}

	if h.cache != nil {
		seen := make(map[uuid.UUID]struct{}, len(archived))
		for _, s := range archived {
			if _, ok := seen[s.OwnerID]; ok {
				continue
			}
			seen[s.OwnerID] = struct{}{}
			h.cache.InvalidateOwner(ctx, s.OwnerID)
		}
	}

	h.log.Info("archive_sweep_completed",
		zap.Int("archived_count", len(archived)),
		zap.Time("cutoff", cutoff),
	)

	respondJSON(w, http.StatusOK, ArchiveTasksResponse{
		ArchivedCount: len(archived),
		ArchivedTasks: summariesOrEmpty(archived),
		Cutoff:        cutoff,
	})
}

// QueryLogs exposes the in-memory diagnostic ring. Debug mode only.
func (h *AdminHandler) QueryLogs(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(r) {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or missing service token")
		return
	}

	q := r.URL.Query()
	filter := logger.Filter{
		Level:   q.Get("level"),
		Message: q.Get("message"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	entries := h.ring.Query(filter)
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// authorize checks the service token. Debug mode skips the check so local
// sweeps do not need a configured secret.
func (h *AdminHandler) authorize(r *http.Request) bool {
	if h.cfg.ServerDebugMode && h.cfg.ArchiveToken == "" {
		return true
	}
	if h.cfg.ArchiveToken == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.ArchiveToken)) == 1
}
