package profiles

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront/internal/repo"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleStore answers admin checks from the admin_users table.
type RoleStore struct {
	repo.Base
	useFunction bool
}

// NewRoleStore builds a role store. When useFunction is set the check calls the is_admin
// database function instead of querying the table directly (postgres only).
func NewRoleStore(db *gorm.DB, useFunction bool) *RoleStore {
	return &RoleStore{Base: repo.NewBase(db), useFunction: useFunction}
}

func (s *RoleStore) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	if s.useFunction {
		var admin bool
		if err := s.DB(ctx).Raw("SELECT is_admin(?)", userID).Scan(&admin).Error; err != nil {
			return false, err
		}
		return admin, nil
	}
	var count int64
	if err := s.DB(ctx).Model(&models.AdminUser{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Grant adds userID to the admin allow-list; granting twice is a no-op.
func (s *RoleStore) Grant(ctx context.Context, userID uuid.UUID, email string) error {
	row := models.AdminUser{
		ID:     uuid.New(),
		UserID: userID,
		Email:  strings.ToLower(strings.TrimSpace(email)),
	}
	return s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// Revoke removes userID from the admin allow-list.
func (s *RoleStore) Revoke(ctx context.Context, userID uuid.UUID) error {
	return s.DB(ctx).Where("user_id = ?", userID).Delete(&models.AdminUser{}).Error
}
