package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user record keyed by the identity id.
type Profile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email       *string   `gorm:"column:email"`
	Name        *string   `gorm:"column:name"`
	Phone       *string   `gorm:"column:phone"`
	DateOfBirth *string   `gorm:"column:date_of_birth"`
	Gender      *string   `gorm:"column:gender"`
	AvatarURL   *string   `gorm:"column:avatar_url"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Profile) TableName() string { return "profiles" }

// AdminUser grants the admin role to an identity.
type AdminUser struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Email     string    `gorm:"column:email;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AdminUser) TableName() string { return "admin_users" }
