package repos

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

var sessionColumns = []string{"id", "user_id", "token", "expires_at", "revoked", "created_at", "updated_at"}

type sessionCodec struct{}

func (sessionCodec) ToEntity(row repo.Row) (models.Session, error) {
	var s models.Session
	var err error

	if s.ID, err = row.UUID("id"); err != nil {
		return s, err
	}
	if s.UserID, err = row.UUID("user_id"); err != nil {
		return s, err
	}
	if s.Token, err = row.String("token"); err != nil {
		return s, err
	}
	if s.ExpiresAt, err = row.Time("expires_at"); err != nil {
		return s, err
	}
	if s.Revoked, err = row.Bool("revoked"); err != nil {
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

func (sessionCodec) ToRow(s models.Session, forInsert bool) (repo.Row, error) {
	row := repo.Row{
		"user_id":    s.UserID,
		"token":      s.Token,
		"expires_at": s.ExpiresAt,
		"revoked":    s.Revoked,
	}

	if !forInsert {
		row["id"] = s.ID
	}

	return row, nil
}

func validateSession(s models.Session, isUpdate bool) error {
	if isUpdate && s.ID == uuid.Nil {
		return &models.ValidationError{Field: "id", Message: "required on update"}
	}

	return checkStruct(s)
}

// SessionRepository persists Session records.
type SessionRepository struct {
	*repo.Repository[models.Session, uuid.UUID]
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(db *repo.DB) *SessionRepository {
	return &SessionRepository{
		Repository: repo.New[models.Session, uuid.UUID](db, repo.Options[models.Session]{
			Entity:   "session",
			Table:    "sessions",
			Columns:  sessionColumns,
			Codec:    sessionCodec{},
			Validate: validateSession,
		}),
	}
}

// FindByToken returns the session holding the given token, or nil.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	return r.FindOneBy(ctx, repo.Filters{"token": repo.Eq(token)})
}

// ActiveForUser returns the user's sessions that are unrevoked and not yet
// expired at the given instant, newest first.
func (r *SessionRepository) ActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Session, error) {
	result, err := r.List(ctx, repo.QueryOptions{
		Filters: repo.Filters{
			"user_id":    repo.Eq(userID),
			"revoked":    repo.Eq(false),
			"expires_at": repo.Gt(now),
		},
		OrderBy: []string{"-created_at"},
	})
	if err != nil {
		return nil, err
	}

	return result.Data, nil
}

// ExpiringBefore returns sessions whose expiry falls before the cutoff,
// for sweep jobs owned by the caller.
func (r *SessionRepository) ExpiringBefore(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	return r.FindBy(ctx, repo.Filters{"expires_at": repo.Lt(cutoff)})
}
