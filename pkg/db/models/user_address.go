package models

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
)

// UserAddress is a saved shipping or billing address.
type UserAddress struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	FullName      string            `gorm:"column:full_name;not null"`
	StreetAddress string            `gorm:"column:street_address;not null"`
	City          string            `gorm:"column:city;not null"`
	State         string            `gorm:"column:state;not null"`
	PostalCode    string            `gorm:"column:postal_code;not null"`
	Country       string            `gorm:"column:country;not null"`
	Phone         *string           `gorm:"column:phone"`
	IsDefault     bool              `gorm:"column:is_default;not null;default:false"`
	Type          enums.AddressType `gorm:"column:type;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserAddress) TableName() string { return "user_addresses" }
