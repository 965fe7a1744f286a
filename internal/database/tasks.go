package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/models"
)

// TaskRepository handles task database operations. Every query carries the
// owner id in its predicate; there is no unscoped access through this type.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task for the given owner. ID, CreatedAt and UpdatedAt
// are populated on the passed task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, owner_id, title, description, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullTime(task.DueDate),
		now,
		now,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by id, scoped to the owner.
func (r *TaskRepository) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.Task, error) {
	query := `
		SELECT id, owner_id, title, description, status, due_date, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND owner_id = $2
	`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetByOwner retrieves tasks for an owner, optionally filtered by status,
// with pagination. Returns the page of tasks and the total match count.
func (r *TaskRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID, status *models.TaskStatus, page, pageSize int) ([]*models.Task, int, error) {
	where := "WHERE owner_id = $1"
	args := []any{ownerID}
	if status != nil {
		where += " AND status = $2"
		args = append(args, string(*status))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM tasks " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, title, description, status, due_date, created_at, updated_at
		FROM tasks
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, total, nil
}

// Update mutates title, description, status and due date of an owned task and
// refreshes updated_at. Id, owner and created_at never change.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, status = $5, due_date = $6, updated_at = $7
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullTime(task.DueDate),
		time.Now().UTC(),
	).Scan(&task.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// Delete removes an owned task. Irrecoverable.
func (r *TaskRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var description sql.NullString
	var dueDate sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&description,
		&task.Status,
		&dueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		task.Description = description.String
	}
	if dueDate.Valid {
		t := dueDate.Time
		task.DueDate = &t
	}
	return task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
