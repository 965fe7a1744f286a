package workers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"go.uber.org/zap"
)

// CacheInvalidator drops an owner's cached task entries.
type CacheInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
}

// Archiver periodically moves stale done tasks to archived. It is the only
// component besides the admin endpoint that operates across owners.
type Archiver struct {
	repo        database.ArchiveRepositoryInterface
	invalidator CacheInvalidator
	interval    time.Duration
	maxAge      time.Duration
	log         *zap.Logger
}

// ArchiverOption configures optional archiver collaborators.
type ArchiverOption func(*Archiver)

// WithCacheInvalidation makes each sweep drop the cached task lists of every
// owner it archived tasks for, so readers do not see pre-archive status until
// the cache TTL expires.
func WithCacheInvalidation(invalidator CacheInvalidator) ArchiverOption {
	return func(a *Archiver) {
		a.invalidator = invalidator
	}
}

// NewArchiver creates an archiver that sweeps every interval, archiving done
// tasks untouched for longer than maxAge.
func NewArchiver(repo database.ArchiveRepositoryInterface, interval, maxAge time.Duration, log *zap.Logger, opts ...ArchiverOption) *Archiver {
	a := &Archiver{repo: repo, interval: interval, maxAge: maxAge, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start runs the sweep loop until the context is cancelled. One sweep runs
// immediately on startup.
func (a *Archiver) Start(ctx context.Context) {
	a.log.Info("archiver_started",
		zap.Duration("interval", a.interval),
		zap.Duration("max_age", a.maxAge),
	)

	a.sweep(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("archiver_stopped")
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// Sweep archives all done tasks whose last update is older than the cutoff.
// Re-running against an already-swept table is a no-op.
func (a *Archiver) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	archived, err := a.repo.Archive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	a.invalidateOwners(ctx, archived)
	return len(archived), nil
}

// invalidateOwners drops cached task lists for each distinct owner touched by
// a sweep. Without this, a cached list could show pre-archive status until the
// TTL expires.
func (a *Archiver) invalidateOwners(ctx context.Context, archived []models.TaskSummary) {
	if a.invalidator == nil {
		return
	}
	seen := make(map[uuid.UUID]struct{}, len(archived))
	for _, s := range archived {
		if _, ok := seen[s.OwnerID]; ok {
			continue
		}
		seen[s.OwnerID] = struct{}{}
		a.invalidator.InvalidateOwner(ctx, s.OwnerID)
	}
}

func (a *Archiver) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.maxAge)
	count, err := a.Sweep(ctx, cutoff)
	if err != nil {
		a.log.Error("archive_sweep_failed",
			zap.String("error", logger.SanitizeError(err)),
		)
		return
	}
	if count > 0 {
		a.log.Info("archive_sweep_completed",
			zap.Int("archived_count", count),
			zap.Time("cutoff", cutoff),
		)
	} else {
		a.log.Debug("archive_sweep_completed",
			zap.Int("archived_count", 0),
			zap.Time("cutoff", cutoff),
		)
	}
}
