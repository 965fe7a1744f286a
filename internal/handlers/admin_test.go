package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"go.uber.org/zap"
)

// fakeArchiveRepo archives its pending summaries exactly once.
type fakeArchiveRepo struct {
	pending []models.TaskSummary
	sweeps  int
}

func (f *fakeArchiveRepo) FindArchivable(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error) {
	return f.pending, nil
}

func (f *fakeArchiveRepo) Archive(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error) {
	f.sweeps++
	archived := f.pending
	f.pending = nil
	return archived, nil
}

func newAdminFixture(repo *fakeArchiveRepo, cfg *config.Config) *mux.Router {
	handler := NewAdminHandler(repo, logger.NewRing(10), cfg, zap.NewNop())
	router := mux.NewRouter()
	handler.RegisterRoutes(router.PathPrefix("/api/admin").Subrouter())
	return router
}

func adminRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestArchiveTasks_SweepIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := &fakeArchiveRepo{pending: []models.TaskSummary{
		{ID: uuid.New(), OwnerID: uuid.New(), Title: "Old report", UpdatedAt: time.Now().Add(-60 * 24 * time.Hour)},
		{ID: uuid.New(), OwnerID: uuid.New(), Title: "Stale cleanup", UpdatedAt: time.Now().Add(-45 * 24 * time.Hour)},
	}}
	cfg := &config.Config{ArchiveToken: "svc-token", ArchiveAfterDays: 30}
	router := newAdminFixture(repo, cfg)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, adminRequest(http.MethodPost, "/api/admin/archive-tasks", "svc-token"))
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", first.Code, first.Body.String())
	}
	data := decodeEnvelope(t, first)["data"].(map[string]any)
	if data["archived_count"] != float64(2) {
		t.Errorf("first sweep archived_count = %v, want 2", data["archived_count"])
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, adminRequest(http.MethodPost, "/api/admin/archive-tasks", "svc-token"))
	if second.Code != http.StatusOK {
		t.Fatalf("second sweep status = %d", second.Code)
	}
	data = decodeEnvelope(t, second)["data"].(map[string]any)
	if data["archived_count"] != float64(0) {
		t.Errorf("second sweep archived_count = %v, want 0", data["archived_count"])
	}
	if repo.sweeps != 2 {
		t.Errorf("sweeps = %d, want 2", repo.sweeps)
	}
}

type recordingInvalidator struct {
	owners []uuid.UUID
}

func (r *recordingInvalidator) InvalidateOwner(_ context.Context, ownerID uuid.UUID) {
	r.owners = append(r.owners, ownerID)
}

func TestArchiveTasks_InvalidatesArchivedOwnersCache(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	repo := &fakeArchiveRepo{pending: []models.TaskSummary{
		{ID: uuid.New(), OwnerID: owner, Title: "Old report", UpdatedAt: time.Now().Add(-60 * 24 * time.Hour)},
		{ID: uuid.New(), OwnerID: owner, Title: "Stale cleanup", UpdatedAt: time.Now().Add(-45 * 24 * time.Hour)},
	}}
	inv := &recordingInvalidator{}
	cfg := &config.Config{ArchiveToken: "svc-token", ArchiveAfterDays: 30}
	handler := NewAdminHandler(repo, logger.NewRing(10), cfg, zap.NewNop(),
		WithSweepCacheInvalidation(inv))
	router := mux.NewRouter()
	handler.RegisterRoutes(router.PathPrefix("/api/admin").Subrouter())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/api/admin/archive-tasks", "svc-token"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", rec.Code, rec.Body.String())
	}

	if len(inv.owners) != 1 || inv.owners[0] != owner {
		t.Errorf("invalidated owners = %v, want exactly [%s]", inv.owners, owner)
	}
}

func TestArchiveTasks_DryRunDoesNotWrite(t *testing.T) {
	t.Parallel()

	repo := &fakeArchiveRepo{pending: []models.TaskSummary{
		{ID: uuid.New(), OwnerID: uuid.New(), Title: "Old report", UpdatedAt: time.Now().Add(-60 * 24 * time.Hour)},
	}}
	cfg := &config.Config{ArchiveToken: "svc-token", ArchiveAfterDays: 30}
	router := newAdminFixture(repo, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/archive-tasks?dry_run=true", "svc-token"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", rec.Code, rec.Body.String())
	}

	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["archived_count"] != float64(1) {
		t.Errorf("archived_count = %v, want 1", data["archived_count"])
	}
	if data["dry_run"] != true {
		t.Errorf("dry_run = %v, want true", data["dry_run"])
	}
	if repo.sweeps != 0 {
		t.Errorf("dry run performed %d sweeps, want 0", repo.sweeps)
	}
}

func TestArchiveTasks_Authorization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *config.Config
		token    string
		wantCode int
	}{
		{
			name:     "valid token",
			cfg:      &config.Config{ArchiveToken: "svc-token"},
			token:    "svc-token",
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong token",
			cfg:      &config.Config{ArchiveToken: "svc-token"},
			token:    "other",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing token",
			cfg:      &config.Config{ArchiveToken: "svc-token"},
			token:    "",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no token configured outside debug mode",
			cfg:      &config.Config{},
			token:    "",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "debug mode without configured token",
			cfg:      &config.Config{ServerDebugMode: true},
			token:    "",
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt // shadow for parallel subtest (Go 1.21)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newAdminFixture(&fakeArchiveRepo{}, tt.cfg)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, adminRequest(http.MethodPost, "/api/admin/archive-tasks", tt.token))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestQueryLogs_DebugModeOnly(t *testing.T) {
	t.Parallel()

	// Outside debug mode the route is not registered at all.
	router := newAdminFixture(&fakeArchiveRepo{}, &config.Config{ArchiveToken: "svc-token"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/logs", "svc-token"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status outside debug mode = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestQueryLogs(t *testing.T) {
	t.Parallel()

	ring := logger.NewRing(10)
	ring.Append(logger.Entry{Time: time.Now(), Level: "warn", Message: "cache_degraded"})
	ring.Append(logger.Entry{Time: time.Now(), Level: "info", Message: "http_request"})

	handler := NewAdminHandler(&fakeArchiveRepo{}, ring, &config.Config{ServerDebugMode: true}, zap.NewNop())
	router := mux.NewRouter()
	handler.RegisterRoutes(router.PathPrefix("/api/admin").Subrouter())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/logs?level=warn", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", rec.Code, rec.Body.String())
	}

	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["count"] != float64(1) {
		t.Errorf("count = %v, want 1", data["count"])
	}
}
