package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription statuses.
const (
	SubscriptionStatusTrial    = "trial"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription is a billing subscription record. Amount is a decimal to
// avoid float rounding on money values.
type Subscription struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id" validate:"required"`
	Plan      string          `json:"plan" validate:"required,max=100"`
	Status    string          `json:"status" validate:"omitempty,oneof=trial active canceled"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"required,len=3,uppercase"`
	RenewsAt  *time.Time      `json:"renews_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
