package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/models"
)

// TaskRepositoryInterface defines the owner-scoped task operations used by
// the handlers. It enables mock implementations in tests.
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.Task, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, status *models.TaskStatus, page, pageSize int) ([]*models.Task, int, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

// ArchiveRepositoryInterface defines the unscoped archival sweep operations.
type ArchiveRepositoryInterface interface {
	FindArchivable(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error)
	Archive(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error)
}

// UserRepositoryInterface defines the user lookup operations used by the
// session middleware.
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}
