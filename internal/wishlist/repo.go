package wishlist

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront/internal/repo"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// AddItem inserts a wishlist entry and ignores duplicates.
func (r *Repository) AddItem(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	row := &models.WishlistItem{ID: uuid.New(), UserID: userID, ProductID: productID}
	return r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}}, DoNothing: true}).
		Create(row).Error
}

// RemoveItem deletes the like if it exists and reports whether a row went away.
func (r *Repository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&count).Error
	return count > 0, err
}

// ListItemIDs returns one page of liked product ids, most recent first.
func (r *Repository) ListItemIDs(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[uuid.UUID], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[uuid.UUID]{}, err
	}

	query := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Select("id", "created_at", "product_id").
		Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	type idRecord struct {
		ID        uuid.UUID
		CreatedAt time.Time
		ProductID uuid.UUID
	}
	var records []idRecord
	if err := query.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Scan(&records).Error; err != nil {
		return pagination.Page[uuid.UUID]{}, err
	}

	page := pagination.Build(records, params.Limit, func(rec idRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rec.CreatedAt, ID: rec.ID}
	})
	ids := make([]uuid.UUID, 0, len(page.Items))
	for _, rec := range page.Items {
		ids = append(ids, rec.ProductID)
	}
	return pagination.Page[uuid.UUID]{Items: ids, NextCursor: page.NextCursor}, nil
}

// ListAllIDs returns every liked product id for the user.
func (r *Repository) ListAllIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Pluck("product_id", &ids).Error
	return ids, err
}
