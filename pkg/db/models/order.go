package models

import (
	"time"

	dbtypes "github.com/angelmondragon/storefront/pkg/db/types"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is one line of an order as persisted in the items column.
type OrderItem struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Size        string          `json:"size"`
	Price       decimal.Decimal `json:"price"`
}

// ShippingAddress is the snapshot copied into an order at checkout.
type ShippingAddress struct {
	FullName      string  `json:"fullName"`
	StreetAddress string  `json:"streetAddress"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	PostalCode    string  `json:"postalCode"`
	Country       string  `json:"country"`
	Phone         *string `json:"phone,omitempty"`
}

type Order struct {
	ID              uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                     `gorm:"column:user_id;type:uuid;not null;index"`
	CustomerName    string                        `gorm:"column:customer_name;not null"`
	Email           string                        `gorm:"column:email;not null"`
	Items           dbtypes.JSON[[]OrderItem]     `gorm:"column:items;type:jsonb;not null"`
	Status          enums.OrderStatus             `gorm:"column:status;not null"`
	ShippingAddress dbtypes.JSON[ShippingAddress] `gorm:"column:shipping_address;type:jsonb;not null"`
	Total           decimal.Decimal               `gorm:"column:total;type:numeric(12,2);not null"`
	CreatedAt       time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
