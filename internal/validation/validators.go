package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/taskdeck/taskdeck-api/internal/models"
)

// Validate is a shared validator instance.
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
}

// validateTaskStatus validates that a string is a valid TaskStatus enum value.
func validateTaskStatus(fl validator.FieldLevel) bool {
	return models.TaskStatus(fl.Field().String()).Valid()
}

// ValidateTaskStatus validates a status string outside of struct validation
// (query parameters, patch bodies).
func ValidateTaskStatus(status string) error {
	if !models.TaskStatus(status).Valid() {
		return fmt.Errorf("invalid status: must be one of %s, %s, %s, %s",
			models.TaskStatusTodo, models.TaskStatusInProgress, models.TaskStatusDone, models.TaskStatusArchived)
	}
	return nil
}

// FieldError is one per-field validation issue reported in 400 responses.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors converts a validator error into user-facing per-field issues.
// Non-validation errors produce a single generic entry.
func FieldErrors(err error) []FieldError {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "", Message: "invalid request body"}}
	}
	issues := make([]FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		issues = append(issues, FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return issues
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "task_status":
		return "is not a valid status"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// SanitizeText trims whitespace and removes control characters (except
// newline and tab) from free-text input.
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	sanitized.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}
	return sanitized.String()
}
