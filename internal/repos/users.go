package repos

import (
	"context"

	"github.com/google/uuid"

	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

var userColumns = []string{"id", "email", "name", "status", "created_at", "updated_at"}

type userCodec struct{}

func (userCodec) ToEntity(row repo.Row) (models.User, error) {
	var u models.User
	var err error

	if u.ID, err = row.UUID("id"); err != nil {
		return u, err
	}
	if u.Email, err = row.String("email"); err != nil {
		return u, err
	}
	if u.Name, err = row.String("name"); err != nil {
		return u, err
	}
	if u.Status, err = row.StringOr("status", models.UserStatusActive); err != nil {
		return u, err
	}
	if u.CreatedAt, err = row.Time("created_at"); err != nil {
		return u, err
	}
	if u.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return u, err
	}

	return u, nil
}

func (userCodec) ToRow(u models.User, forInsert bool) (repo.Row, error) {
	row := repo.Row{
		"email": u.Email,
		"name":  u.Name,
	}

	// Status left absent falls through to the column default.
	if u.Status != "" {
		row["status"] = u.Status
	}

	if !forInsert {
		row["id"] = u.ID
	}

	return row, nil
}

func validateUser(u models.User, isUpdate bool) error {
	if !isUpdate && u.ID != uuid.Nil {
		return &models.ValidationError{Field: "id", Message: "must not be set on create; identifiers are store-assigned"}
	}

	if isUpdate && u.ID == uuid.Nil {
		return &models.ValidationError{Field: "id", Message: "required on update"}
	}

	return checkStruct(u)
}

// UserRepository persists User records.
type UserRepository struct {
	*repo.Repository[models.User, uuid.UUID]
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *repo.DB) *UserRepository {
	return &UserRepository{
		Repository: repo.New[models.User, uuid.UUID](db, repo.Options[models.User]{
			Entity:   "user",
			Table:    "users",
			Columns:  userColumns,
			Codec:    userCodec{},
			Validate: validateUser,
		}),
	}
}

// FindByEmail returns the user with the given email, or nil when none
// exists. Email is unique, so more than one match is a defect.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.FindOneBy(ctx, repo.Filters{"email": repo.Eq(email)})
}

// ActiveUsers returns all users with active status.
func (r *UserRepository) ActiveUsers(ctx context.Context) ([]models.User, error) {
	return r.FindBy(ctx, repo.Filters{"status": repo.Eq(models.UserStatusActive)})
}
