package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityRepository records per-user task activity derived from lifecycle
// events. Written by the worker, not by the request pipeline.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// RecordEvent upserts the owner's activity row, bumping the event counter and
// the last-event timestamp.
func (r *ActivityRepository) RecordEvent(ctx context.Context, ownerID uuid.UUID, eventType string, at time.Time) error {
	query := `
		INSERT INTO user_activity (owner_id, last_event_type, last_event_at, event_count, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET last_event_type = EXCLUDED.last_event_type,
		    last_event_at = EXCLUDED.last_event_at,
		    event_count = user_activity.event_count + 1,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, ownerID, eventType, at, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record activity event: %w", err)
	}
	return nil
}
