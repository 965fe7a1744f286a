package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated identity in the system. The identity
// provider is authoritative; this record only mirrors the subject reference
// and a display name.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	ProviderID *string   `json:"provider_id,omitempty"`
	Name       *string   `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
