package addresses

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront/internal/repo"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the address book.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error)
	Find(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error)
	CountByType(ctx context.Context, userID uuid.UUID, typ enums.AddressType, excludeID uuid.UUID) (int64, error)
	ClearDefaults(ctx context.Context, userID uuid.UUID, typ enums.AddressType, exceptID uuid.UUID) error
	Create(ctx context.Context, address *models.UserAddress) error
	Save(ctx context.Context, address *models.UserAddress) error
	Delete(ctx context.Context, userID, id uuid.UUID) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an address repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// ListByUser returns defaults first, then oldest first.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	var rows []models.UserAddress
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Find(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error) {
	var row models.UserAddress
	if err := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) CountByType(ctx context.Context, userID uuid.UUID, typ enums.AddressType, excludeID uuid.UUID) (int64, error) {
	var count int64
	q := r.DB(ctx).Model(&models.UserAddress{}).Where("user_id = ? AND type = ?", userID, typ)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&count).Error
	return count, err
}

func (r *repository) ClearDefaults(ctx context.Context, userID uuid.UUID, typ enums.AddressType, exceptID uuid.UUID) error {
	q := r.DB(ctx).Model(&models.UserAddress{}).
		Where("user_id = ? AND type = ? AND is_default = ?", userID, typ, true)
	if exceptID != uuid.Nil {
		q = q.Where("id <> ?", exceptID)
	}
	return q.UpdateColumns(map[string]any{
		"is_default": false,
		"updated_at": time.Now().UTC(),
	}).Error
}

func (r *repository) Create(ctx context.Context, address *models.UserAddress) error {
	if address.ID == uuid.Nil {
		address.ID = uuid.New()
	}
	return r.DB(ctx).Create(address).Error
}

func (r *repository) Save(ctx context.Context, address *models.UserAddress) error {
	return r.DB(ctx).Save(address).Error
}

func (r *repository) Delete(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.UserAddress{})
	return res.RowsAffected, res.Error
}
