package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// SessionStore is the slice of the session store the HTTP bridge drives.
type SessionStore interface {
	State() session.State
	Login(ctx context.Context, email, password string) (bool, error)
	Signup(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.SignUpResult, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, metadata identity.Metadata) error
}

type EmailConfirmer interface {
	ConfirmEmail(ctx context.Context, token string) (*identity.User, error)
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupRequest struct {
	Email    string            `json:"email" validate:"required,email"`
	Password string            `json:"password" validate:"required"`
	Metadata identity.Metadata `json:"metadata"`
}

type confirmRequest struct {
	Token string `json:"token" validate:"notblank"`
}

func SessionState(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, store.State())
	}
}

// SessionLogin returns the admin flag straight from the login so the UI can route without
// waiting for the next state publication.
func SessionLogin(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isAdmin, err := store.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"isAdmin": isAdmin, "state": store.State()})
	}
}

func SessionSignup(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := store.Signup(r.Context(), req.Email, req.Password, req.Metadata)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func SessionConfirm(confirmer EmailConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := confirmer.ConfirmEmail(r.Context(), req.Token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// SessionLogout always leaves the store signed out; a failed remote sign-out is still reported.
func SessionLogout(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Logout(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.State())
	}
}

func SessionUpdateProfile(store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.Metadata
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.UpdateProfile(r.Context(), req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.State())
	}
}
