package identity

import (
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
)

// Metadata is the free-form profile data attached to an identity.
type Metadata struct {
	Name        *string       `json:"name,omitempty" validate:"omitempty,max=200"`
	Phone       *string       `json:"phone,omitempty" validate:"omitempty,max=40"`
	DateOfBirth *string       `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender      *enums.Gender `json:"gender,omitempty" validate:"omitempty,enum"`
	AvatarURL   *string       `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

// User is the authenticated identity as reported by the provider.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Session is a signed-in identity plus its tokens.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

// AuthChange is one notification on the provider's change feed. Session is nil on sign-out.
type AuthChange struct {
	Event   enums.AuthEvent
	Session *Session
}

// SignUpResult reports a registration. Session is nil while email confirmation is pending.
type SignUpResult struct {
	User                 User     `json:"user"`
	Session              *Session `json:"session,omitempty"`
	ConfirmationRequired bool     `json:"confirmationRequired"`
}

// Merge overlays the non-nil fields of patch on m.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m
	if patch.Name != nil {
		out.Name = patch.Name
	}
	if patch.Phone != nil {
		out.Phone = patch.Phone
	}
	if patch.DateOfBirth != nil {
		out.DateOfBirth = patch.DateOfBirth
	}
	if patch.Gender != nil {
		out.Gender = patch.Gender
	}
	if patch.AvatarURL != nil {
		out.AvatarURL = patch.AvatarURL
	}
	return out
}

func metadataFromModel(m models.UserMetadata) Metadata {
	out := Metadata{
		Name:        m.Name,
		Phone:       m.Phone,
		DateOfBirth: m.DateOfBirth,
		AvatarURL:   m.AvatarURL,
	}
	if m.Gender != nil {
		if g, err := enums.ParseGender(*m.Gender); err == nil {
			out.Gender = &g
		}
	}
	return out
}

func metadataToModel(m Metadata) models.UserMetadata {
	out := models.UserMetadata{
		Name:        m.Name,
		Phone:       m.Phone,
		DateOfBirth: m.DateOfBirth,
		AvatarURL:   m.AvatarURL,
	}
	if m.Gender != nil {
		g := m.Gender.String()
		out.Gender = &g
	}
	return out
}

func userFromModel(m *models.AuthUser) User {
	return User{
		ID:             m.ID,
		Email:          m.Email,
		EmailConfirmed: m.EmailConfirmedAt != nil,
		Metadata:       metadataFromModel(m.Metadata.Data),
		CreatedAt:      m.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
