package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/profiles"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
)

type CartService interface {
	Cart(userID uuid.UUID) checkout.Summary
	AddItem(ctx context.Context, userID uuid.UUID, input checkout.AddItemInput) (checkout.Summary, error)
	UpdateQuantity(userID, productID uuid.UUID, size string, qty int) (checkout.Summary, error)
	RemoveItem(userID, productID uuid.UUID, size string) (checkout.Summary, error)
	Clear(userID uuid.UUID)
	Checkout(ctx context.Context, input checkout.Input) (*orders.Order, error)
}

type cartQuantityRequest struct {
	Size     string `json:"size" validate:"max=20"`
	Quantity int    `json:"quantity" validate:"min=0,max=99"`
}

type checkoutRequest struct {
	CustomerName string     `json:"customerName" validate:"omitempty,max=200"`
	AddressID    *uuid.UUID `json:"addressId,omitempty"`
}

func CartFetch(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Cart(middleware.UserIDFromContext(r.Context())))
	}
}

func CartAdd(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input checkout.AddItemInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.AddItem(r.Context(), middleware.UserIDFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CartUpdate sets a line's quantity; zero removes the line.
func CartUpdate(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cartQuantityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.UpdateQuantity(middleware.UserIDFromContext(r.Context()), productID, req.Size, req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func CartRemove(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.RemoveItem(middleware.UserIDFromContext(r.Context()), productID, r.URL.Query().Get("size"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func CartClear(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Clear(middleware.UserIDFromContext(r.Context()))
		responses.WriteNoContent(w)
	}
}

// Checkout fills the buyer's name and email from the signed-in session when the body omits them.
func Checkout(svc CartService, store SessionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.Input{
			UserID:       middleware.UserIDFromContext(r.Context()),
			CustomerName: req.CustomerName,
			AddressID:    req.AddressID,
		}
		state := store.State()
		if state.User != nil {
			input.Email = state.User.Email
			if input.CustomerName == "" {
				input.CustomerName = customerName(state.Profile, state.User.Email)
			}
		}

		order, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(*order))
	}
}

func customerName(profile *profiles.Profile, email string) string {
	if profile != nil && profile.Name != "" {
		return profile.Name
	}
	return profiles.DisplayNameFromEmail(email)
}
