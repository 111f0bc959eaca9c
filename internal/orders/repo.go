package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront/internal/repo"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	ListPage(ctx context.Context, params pagination.Params) (pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.DB(ctx).Create(order).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var row models.Order
	if err := r.DB(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListByUser returns the user's orders, newest first.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListAll(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListPage(ctx context.Context, params pagination.Params) (pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}

	q := r.DB(ctx).Model(&models.Order{})
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// UpdateStatus moves the order only if it is still in from. Zero rows means it was missing or
// changed underneath the caller.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error) {
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
