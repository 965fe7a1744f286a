package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/taskdeck/taskdeck-api/internal/cache"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"github.com/taskdeck/taskdeck-api/internal/validation"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize is the default page size for task listings
	DefaultPageSize = 100
	// MaxPageSize is the maximum page size for task listings
	MaxPageSize = 500
)

// TaskCache is the cache surface the handler needs; satisfied by
// *cache.Cache and by fakes in tests.
type TaskCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
}

// TaskHandler handles task CRUD requests. Each handler runs the tail of the
// request pipeline: validate, cache lookup (reads), owner-scoped persistence,
// cache invalidation (writes), respond with diagnostic headers.
type TaskHandler struct {
	repo   database.TaskRepositoryInterface
	cache  TaskCache
	events queue.EventPublisher
	log    *zap.Logger
}

// TaskHandlerOption configures optional collaborators.
type TaskHandlerOption func(*TaskHandler)

// WithTaskEvents wires the lifecycle event publisher.
func WithTaskEvents(events queue.EventPublisher) TaskHandlerOption {
	return func(h *TaskHandler) { h.events = events }
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(repo database.TaskRepositoryInterface, taskCache TaskCache, log *zap.Logger, opts ...TaskHandlerOption) *TaskHandler {
	h := &TaskHandler{repo: repo, cache: taskCache, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers task routes on the given router. The router
// should already carry the /api/tasks prefix plus auth and rate limit
// middleware.
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/{id}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PUT")
	r.HandleFunc("/{id}", h.DeleteTask).Methods("DELETE")
}

// CreateTaskRequest is the body for POST /api/tasks. Unknown fields are
// rejected at decode time.
type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"omitempty,task_status"`
	DueDate     string `json:"due_date"`
}

// UpdateTaskRequest is the body for PUT /api/tasks/{id}. Only title,
// description, status and due_date are mutable; absent fields keep their
// current values.
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	DueDate     *string `json:"due_date"`
}

// ListTasksResponse is the paginated payload for task listings.
type ListTasksResponse struct {
	Tasks      []*models.Task `json:"tasks"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// ListTasks lists the caller's tasks. The default view (first page, no
// filter) is read through the cache; the response reports HIT or MISS so
// invalidation stays externally observable.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	ctx := r.Context()

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	pageSize := DefaultPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			pageSize = parsed
			if pageSize > MaxPageSize {
				pageSize = MaxPageSize
			}
		}
	}

	var status *models.TaskStatus
	if s := r.URL.Query().Get("status"); s != "" {
		if err := validation.ValidateTaskStatus(s); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		sEnum := models.TaskStatus(s)
		status = &sEnum
	}

	// Only the default view is cached; filtered and paged variants go
	// straight to the database.
	cacheable := page == 1 && pageSize == DefaultPageSize && status == nil
	if cacheable {
		var cached ListTasksResponse
		if h.cache.Get(ctx, cache.TaskListKey(user.ID), &cached) {
			w.Header().Set("X-Cache", "HIT")
			respondJSONCached(w, http.StatusOK, cached, true)
			return
		}
	}

	tasks, total, err := h.repo.GetByOwner(ctx, user.ID, status, page, pageSize)
	if err != nil {
		h.logDBError("failed_to_list_tasks", user.ID, err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	response := ListTasksResponse{
		Tasks:      tasks,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}

	if cacheable {
		h.cache.Set(ctx, cache.TaskListKey(user.ID), response)
	}
	w.Header().Set("X-Cache", "MISS")
	respondJSONCached(w, http.StatusOK, response, false)
}

// CreateTask creates a new task owned by the caller. The owner is always the
// resolved identity, never anything from the request body.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateTaskRequest
	if ok := decodeStrict(w, r, &req); !ok {
		return
	}

	req.Title = validation.SanitizeText(req.Title)
	req.Description = validation.SanitizeText(req.Description)

	if err := validation.Validate.Struct(req); err != nil {
		respondValidationError(w, validation.FieldErrors(err))
		return
	}

	status := models.TaskStatusTodo
	if req.Status != "" {
		status = models.TaskStatus(req.Status)
	}

	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		respondValidationError(w, []validation.FieldError{{Field: "due_date", Message: err.Error()}})
		return
	}

	ctx := r.Context()
	task := &models.Task{
		ID:          uuid.New(),
		OwnerID:     user.ID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		DueDate:     dueDate,
	}

	if err := h.repo.Create(ctx, task); err != nil {
		h.logDBError("failed_to_create_task", user.ID, err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create task")
		return
	}

	// Invalidation runs only after the write committed.
	h.cache.InvalidateOwner(ctx, user.ID)
	h.publishEvent(ctx, queue.EventTaskCreated, user.ID, task.ID)

	respondJSON(w, http.StatusCreated, task)
}

// GetTask retrieves one of the caller's tasks by id, read through the cache.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := taskID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	var cached models.Task
	if h.cache.Get(ctx, cache.TaskKey(user.ID, id), &cached) {
		w.Header().Set("X-Cache", "HIT")
		respondJSONCached(w, http.StatusOK, &cached, true)
		return
	}

	task, err := h.repo.GetByID(ctx, user.ID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
			return
		}
		h.logDBError("failed_to_get_task", user.ID, err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve task")
		return
	}

	h.cache.Set(ctx, cache.TaskKey(user.ID, id), task)
	w.Header().Set("X-Cache", "MISS")
	respondJSONCached(w, http.StatusOK, task, false)
}

// UpdateTask mutates one of the caller's tasks. Id, owner and created_at are
// immutable; updated_at refreshes on success.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := taskID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	task, err := h.repo.GetByID(ctx, user.ID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
			return
		}
		h.logDBError("failed_to_get_task", user.ID, err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve task")
		return
	}

	var req UpdateTaskRequest
	if ok := decodeStrict(w, r, &req); !ok {
		return
	}

	archiving := false
	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		// Character bounds, not bytes, matching the create-path validator.
		if title == "" || utf8.RuneCountInString(title) > models.MaxTitleLength {
			respondValidationError(w, []validation.FieldError{{
				Field:   "title",
				Message: fmt.Sprintf("must be between 1 and %d characters", models.MaxTitleLength),
			}})
			return
		}
		task.Title = title
	}
	if req.Description != nil {
		description := validation.SanitizeText(*req.Description)
		if utf8.RuneCountInString(description) > models.MaxDescriptionLength {
			respondValidationError(w, []validation.FieldError{{
				Field:   "description",
				Message: fmt.Sprintf("must be at most %d characters", models.MaxDescriptionLength),
			}})
			return
		}
		task.Description = description
	}
	if req.Status != nil {
		if err := validation.ValidateTaskStatus(*req.Status); err != nil {
			respondValidationError(w, []validation.FieldError{{Field: "status", Message: err.Error()}})
			return
		}
		newStatus := models.TaskStatus(*req.Status)
		archiving = newStatus == models.TaskStatusArchived && task.Status != models.TaskStatusArchived
		task.Status = newStatus
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			task.DueDate = nil
		} else {
			dueDate, err := parseDueDate(*req.DueDate)
			if err != nil {
				respondValidationError(w, []validation.FieldError{{Field: "due_date", Message: err.Error()}})
				return
			}
			task.DueDate = dueDate
		}
	}

	if err := h.repo.Update(ctx, task); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
			return
		}
		h.logDBError("failed_to_update_task", user.ID, err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update task")
		return
	}

	// Drop the whole per-owner set so list and detail views cannot disagree.
	h.cache.InvalidateOwner(ctx, user.ID)
	if archiving {
		h.publishEvent(ctx, queue.EventTaskArchived, user.ID, task.ID)
	} else {
		h.publishEvent(ctx, queue.EventTaskUpdated, user.ID, task.ID)
	}

	respondJSON(w, http.StatusOK, task)
}

// DeleteTask removes one of the caller's tasks. Irrecoverable.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := taskID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.repo.Delete(ctx, user.ID, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
			return
		}
		h.logDBError("failed_to_delete_task", user.ID, err)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete task")
		return
	}

	h.cache.InvalidateOwner(ctx, user.ID)
	h.publishEvent(ctx, queue.EventTaskDeleted, user.ID, id)

	respondJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (h *TaskHandler) publishEvent(ctx context.Context, eventType queue.EventType, ownerID, taskID uuid.UUID) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, queue.NewTaskEvent(eventType, ownerID, taskID)); err != nil {
		h.log.Warn("failed_to_publish_task_event",
			zap.String("event_type", string(eventType)),
			zap.String("owner_id", logger.SanitizeOwnerID(ownerID.String())),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
}

func (h *TaskHandler) logDBError(event string, ownerID uuid.UUID, err error) {
	h.log.Error(event,
		zap.String("owner_id", logger.SanitizeOwnerID(ownerID.String())),
		zap.String("error", logger.SanitizeError(err)),
	)
}

// taskID parses the path id, responding 400 on malformed input.
func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeStrict decodes a JSON body rejecting unknown fields, responding with
// the appropriate error on failure.
func decodeStrict(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		if strings.Contains(err.Error(), "unknown field") {
			respondValidationError(w, []validation.FieldError{{
				Field:   unknownFieldName(err),
				Message: "is not a recognized field",
			}})
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}
	return true
}

// unknownFieldName pulls the field name out of encoding/json's
// "unknown field" error text.
func unknownFieldName(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "unknown field "); i >= 0 {
		return strings.Trim(msg[i+len("unknown field "):], `"`)
	}
	return ""
}

// parseDueDate accepts a calendar date (2006-01-02) or an RFC3339 timestamp.
func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("must be a date (2006-01-02) or RFC3339 timestamp")
}

// respondJSONCached sends a success envelope with the cache status flag read
// endpoints report.
func respondJSONCached(w http.ResponseWriter, status int, data any, cached bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"cached":    cached,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
