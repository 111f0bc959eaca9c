package models

import (
	"time"

	dbtypes "github.com/angelmondragon/storefront/pkg/db/types"
	"github.com/google/uuid"
)

// UserMetadata holds the free-form profile fields submitted at signup or profile edit.
type UserMetadata struct {
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// AuthUser is the identity provider's account row.
type AuthUser struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Email            string                     `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash     string                     `gorm:"column:password_hash;not null"`
	Metadata         dbtypes.JSON[UserMetadata] `gorm:"column:user_metadata;type:jsonb;not null"`
	EmailConfirmedAt *time.Time                 `gorm:"column:email_confirmed_at"`
	LastSignInAt     *time.Time                 `gorm:"column:last_sign_in_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (AuthUser) TableName() string { return "auth_users" }
