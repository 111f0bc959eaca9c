package profiles

import (
	"context"

	"github.com/angelmondragon/storefront/internal/repo"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and writes the profiles table.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Find returns the profile keyed by the identity id, or gorm.ErrRecordNotFound.
func (r *Repository) Find(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.DB(ctx).First(&profile, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Upsert inserts the profile or overwrites the editable columns of an existing row.
func (r *Repository) Upsert(ctx context.Context, profile *models.Profile) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "phone", "date_of_birth", "gender", "avatar_url", "updated_at"}),
	}).Create(profile).Error
}

// Count returns the number of stored profiles.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Profile{}).Count(&n).Error
	return n, err
}
