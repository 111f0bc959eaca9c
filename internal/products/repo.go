package products

import (
	"context"

	"github.com/angelmondragon/storefront/internal/repo"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists catalog listings.
type Repository interface {
	List(ctx context.Context) ([]models.Product, error)
	Find(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Save(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// List returns every listing, newest first.
func (r *repository) List(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.DB(ctx).Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.DB(ctx).Create(product).Error
}

func (r *repository) Save(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Save(product).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.Product{})
	return res.RowsAffected, res.Error
}
