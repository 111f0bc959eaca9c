package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is a catalog listing.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Description string          `gorm:"column:description;not null;default:''"`
	Image       string          `gorm:"column:image;not null;default:''"`
	Category    string          `gorm:"column:category;not null"`
	Featured    bool            `gorm:"column:featured;not null;default:false"`
	IsNew       bool            `gorm:"column:new;not null;default:false"`
	Sizes       pq.StringArray  `gorm:"column:sizes;type:text[];not null"`
	Colors      pq.StringArray  `gorm:"column:colors;type:text[]"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
