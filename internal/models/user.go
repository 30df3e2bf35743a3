// Package models defines the persisted record types and the shared error
// taxonomy for Recordkit repositories.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User statuses.
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// User is an account record.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email" validate:"required,email"`
	Name      string    `json:"name" validate:"required,max=255"`
	Status    string    `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
