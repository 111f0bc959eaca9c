package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenPayload captures the data available when minting a session JWT.
type SessionTokenPayload struct {
	UserID    uuid.UUID
	Email     string
	SessionID string
}

// SessionTokenClaims represents the typed JWT handed to the storefront for the signed-in user.
type SessionTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}
