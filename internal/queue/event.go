package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a task lifecycle event.
type EventType string

const (
	EventTaskCreated  EventType = "task_created"
	EventTaskUpdated  EventType = "task_updated"
	EventTaskDeleted  EventType = "task_deleted"
	EventTaskArchived EventType = "task_archived"
)

// TaskEvent is one task lifecycle notification published after a successful
// persistence write. Events are best-effort: losing one degrades downstream
// activity stats, never task data.
type TaskEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	OwnerID   uuid.UUID `json:"owner_id"`
	TaskID    uuid.UUID `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a task lifecycle event.
func NewTaskEvent(eventType EventType, ownerID, taskID uuid.UUID) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		OwnerID:   ownerID,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}
}
