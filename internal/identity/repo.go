package identity

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront/pkg/db/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists identity provider accounts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, user *models.AuthUser) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.AuthUser, error) {
	var user models.AuthUser
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AuthUser, error) {
	var user models.AuthUser
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata models.UserMetadata) error {
	return r.updateColumn(ctx, id, "user_metadata", dbtypes.NewJSON(metadata))
}

func (r *Repository) MarkConfirmed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateColumn(ctx, id, "email_confirmed_at", at)
}

func (r *Repository) TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateColumn(ctx, id, "last_sign_in_at", at)
}

func (r *Repository) updateColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	res := r.db.WithContext(ctx).
		Model(&models.AuthUser{}).
		Where("id = ?", id).
		UpdateColumn(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
