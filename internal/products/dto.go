package products

import (
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is a catalog listing as shown to shoppers.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Featured    bool            `json:"featured"`
	IsNew       bool            `json:"new"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductInput creates a listing.
type ProductInput struct {
	Name        string          `json:"name" validate:"notblank,max=200"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Description string          `json:"description" validate:"max=5000"`
	Image       string          `json:"image" validate:"omitempty,url"`
	Category    string          `json:"category" validate:"notblank,max=60"`
	Featured    bool            `json:"featured"`
	IsNew       bool            `json:"new"`
	Sizes       []string        `json:"sizes" validate:"required,min=1,dive,notblank,max=20"`
	Colors      []string        `json:"colors" validate:"omitempty,dive,notblank,max=40"`
}

// ProductPatch changes only the fields it carries.
type ProductPatch struct {
	Name        *string          `json:"name" validate:"omitempty,notblank,max=200"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Image       *string          `json:"image" validate:"omitempty,url"`
	Category    *string          `json:"category" validate:"omitempty,notblank,max=60"`
	Featured    *bool            `json:"featured"`
	IsNew       *bool            `json:"new"`
	Sizes       []string         `json:"sizes" validate:"omitempty,min=1,dive,notblank,max=20"`
	Colors      []string         `json:"colors" validate:"omitempty,dive,notblank,max=40"`
}

// Filter narrows a catalog listing. Zero values match everything.
type Filter struct {
	Category string
	Featured *bool
	New      *bool
}

func (f Filter) match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.Featured != nil && *f.Featured != p.Featured {
		return false
	}
	if f.New != nil && *f.New != p.IsNew {
		return false
	}
	return true
}

func (in ProductInput) toModel() *models.Product {
	return &models.Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Price:       in.Price,
		Description: in.Description,
		Image:       in.Image,
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Featured:    in.Featured,
		IsNew:       in.IsNew,
		Sizes:       pq.StringArray(in.Sizes),
		Colors:      pq.StringArray(in.Colors),
	}
}

func (p ProductPatch) apply(row *models.Product) {
	if p.Name != nil {
		row.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		row.Price = *p.Price
	}
	if p.Description != nil {
		row.Description = *p.Description
	}
	if p.Image != nil {
		row.Image = *p.Image
	}
	if p.Category != nil {
		row.Category = strings.ToLower(strings.TrimSpace(*p.Category))
	}
	if p.Featured != nil {
		row.Featured = *p.Featured
	}
	if p.IsNew != nil {
		row.IsNew = *p.IsNew
	}
	if p.Sizes != nil {
		row.Sizes = pq.StringArray(p.Sizes)
	}
	if p.Colors != nil {
		row.Colors = pq.StringArray(p.Colors)
	}
}

func fromModel(row models.Product) Product {
	return Product{
		ID:          row.ID,
		Name:        row.Name,
		Price:       row.Price,
		Description: row.Description,
		Image:       row.Image,
		Category:    row.Category,
		Featured:    row.Featured,
		IsNew:       row.IsNew,
		Sizes:       append([]string(nil), row.Sizes...),
		Colors:      append([]string(nil), row.Colors...),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
