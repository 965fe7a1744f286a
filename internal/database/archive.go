package database

import (
	"context"
	"fmt"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/models"
)

// ArchiveRepository runs the archival sweep. Unlike TaskRepository its queries
// span all owners; it is the only unscoped data path in the system and is
// never reachable from the per-owner request pipeline. Construct it only in
// main, the worker, the admin handler and the ops CLI.
type ArchiveRepository struct {
	db *DB
}

// NewArchiveRepository creates a new archive repository.
func NewArchiveRepository(db *DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// FindArchivable returns summaries of tasks eligible for archival: status is
// done and the last mutation predates the cutoff.
func (r *ArchiveRepository) FindArchivable(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error) {
	query := `
		SELECT id, owner_id, title, updated_at
		FROM tasks
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, models.TaskStatusDone, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query archivable tasks: %w", err)
	}
	defer rows.Close()

	var summaries []models.TaskSummary
	for rows.Next() {
		var s models.TaskSummary
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archivable task: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archivable tasks: %w", err)
	}

	return summaries, nil
}

// Archive transitions all archivable tasks (same predicate as FindArchivable)
// to archived and refreshes their updated_at. Idempotent: archived rows no
// longer match the predicate, so a second run with the same cutoff archives
// nothing. Returns summaries of the rows it archived.
func (r *ArchiveRepository) Archive(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error) {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
		RETURNING id, owner_id, title, updated_at
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.TaskStatusArchived,
		time.Now().UTC(),
		models.TaskStatusDone,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to archive tasks: %w", err)
	}
	defer rows.Close()

	var archived []models.TaskSummary
	for rows.Next() {
		var s models.TaskSummary
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived task: %w", err)
		}
		archived = append(archived, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived tasks: %w", err)
	}

	return archived, nil
}
