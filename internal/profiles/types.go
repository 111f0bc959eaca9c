package profiles

import (
	"strings"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
)

// Profile is the display-oriented view of a signed-in user.
type Profile struct {
	ID          uuid.UUID     `json:"id"`
	Email       string        `json:"email"`
	Name        string        `json:"name"`
	Phone       *string       `json:"phone,omitempty"`
	DateOfBirth *string       `json:"dateOfBirth,omitempty"`
	Gender      *enums.Gender `json:"gender,omitempty"`
	AvatarURL   *string       `json:"avatarUrl,omitempty"`
	// Synthesized is set when no profile record exists for the user.
	Synthesized bool `json:"-"`
}

// Resolution is the outcome of hydrating an identity.
type Resolution struct {
	Profile Profile `json:"profile"`
	IsAdmin bool    `json:"isAdmin"`
}

// DisplayNameFromEmail derives a display name from the local part of an email address.
func DisplayNameFromEmail(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	return local
}

// merge applies source precedence: profile record, then identity metadata, then the email.
func merge(user identity.User, record *models.Profile) Profile {
	out := Profile{
		ID:          user.ID,
		Email:       user.Email,
		Phone:       user.Metadata.Phone,
		DateOfBirth: user.Metadata.DateOfBirth,
		Gender:      user.Metadata.Gender,
		AvatarURL:   user.Metadata.AvatarURL,
		Synthesized: record == nil,
	}
	if user.Metadata.Name != nil {
		out.Name = strings.TrimSpace(*user.Metadata.Name)
	}

	if record != nil {
		if v := nonBlank(record.Email); v != nil {
			out.Email = *v
		}
		if v := nonBlank(record.Name); v != nil {
			out.Name = *v
		}
		if v := nonBlank(record.Phone); v != nil {
			out.Phone = v
		}
		if v := nonBlank(record.DateOfBirth); v != nil {
			out.DateOfBirth = v
		}
		if v := nonBlank(record.AvatarURL); v != nil {
			out.AvatarURL = v
		}
		if v := nonBlank(record.Gender); v != nil {
			if g, err := enums.ParseGender(*v); err == nil {
				out.Gender = &g
			}
		}
	}

	if out.Name == "" {
		out.Name = DisplayNameFromEmail(out.Email)
	}
	return out
}

// recordFromUser builds the profile row written when a user edits their profile.
func recordFromUser(user identity.User) *models.Profile {
	email := user.Email
	rec := &models.Profile{
		ID:          user.ID,
		Email:       &email,
		Name:        user.Metadata.Name,
		Phone:       user.Metadata.Phone,
		DateOfBirth: user.Metadata.DateOfBirth,
		AvatarURL:   user.Metadata.AvatarURL,
	}
	if user.Metadata.Gender != nil {
		g := user.Metadata.Gender.String()
		rec.Gender = &g
	}
	return rec
}

func nonBlank(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
