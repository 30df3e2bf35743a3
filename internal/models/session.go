package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated session record. The token itself is an
// opaque value issued elsewhere; this layer only persists and queries it.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	Token     string    `json:"-" validate:"required,min=16"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
