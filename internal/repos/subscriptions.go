package repos

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

var subscriptionColumns = []string{
	"id", "user_id", "plan", "status", "amount", "currency",
	"renews_at", "created_at", "updated_at",
}

type subscriptionCodec struct{}

func (subscriptionCodec) ToEntity(row repo.Row) (models.Subscription, error) {
	var s models.Subscription
	var err error

	if s.ID, err = row.UUID("id"); err != nil {
		return s, err
	}
	if s.UserID, err = row.UUID("user_id"); err != nil {
		return s, err
	}
	if s.Plan, err = row.String("plan"); err != nil {
		return s, err
	}
	if s.Status, err = row.StringOr("status", models.SubscriptionStatusTrial); err != nil {
		return s, err
	}
	if s.Amount, err = row.Decimal("amount"); err != nil {
		return s, err
	}
	if s.Currency, err = row.String("currency"); err != nil {
		return s, err
	}
	if s.RenewsAt, err = row.OptTime("renews_at"); err != nil {
		return s, err
	}
	if s.CreatedAt, err = row.Time("created_at"); err != nil {
		return s, err
	}
	if s.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return s, err
	}

	return s, nil
}

func (subscriptionCodec) ToRow(s models.Subscription, forInsert bool) (repo.Row, error) {
	row := repo.Row{
		"user_id":  s.UserID,
		"plan":     s.Plan,
		"amount":   s.Amount,
		"currency": s.Currency,
	}

	if s.Status != "" {
		row["status"] = s.Status
	}

	if s.RenewsAt != nil {
		row["renews_at"] = *s.RenewsAt
	}

	if !forInsert {
		row["id"] = s.ID
	}

	return row, nil
}

func validateSubscription(s models.Subscription, isUpdate bool) error {
	if isUpdate && s.ID == uuid.Nil {
		return &models.ValidationError{Field: "id", Message: "required on update"}
	}

	if s.Amount.IsNegative() {
		return &models.ValidationError{Field: "amount", Message: "must not be negative"}
	}

	return checkStruct(s)
}

// SubscriptionRepository persists Subscription records.
type SubscriptionRepository struct {
	*repo.Repository[models.Subscription, uuid.UUID]
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(db *repo.DB) *SubscriptionRepository {
	return &SubscriptionRepository{
		Repository: repo.New[models.Subscription, uuid.UUID](db, repo.Options[models.Subscription]{
			Entity:   "subscription",
			Table:    "subscriptions",
			Columns:  subscriptionColumns,
			Codec:    subscriptionCodec{},
			Validate: validateSubscription,
		}),
	}
}

// ByStatus returns one page of subscriptions in the given status.
func (r *SubscriptionRepository) ByStatus(ctx context.Context, status string, limit, offset int, includeCount bool) (repo.QueryResult[models.Subscription], error) {
	return r.List(ctx, repo.QueryOptions{
		Filters:      repo.Filters{"status": repo.Eq(status)},
		OrderBy:      []string{"-created_at"},
		Limit:        limit,
		Offset:       offset,
		IncludeCount: includeCount,
	})
}

// RenewingBefore returns active subscriptions that renew before the cutoff.
func (r *SubscriptionRepository) RenewingBefore(ctx context.Context, cutoff time.Time) ([]models.Subscription, error) {
	return r.FindBy(ctx, repo.Filters{
		"status":    repo.Eq(models.SubscriptionStatusActive),
		"renews_at": repo.Lt(cutoff),
	})
}
