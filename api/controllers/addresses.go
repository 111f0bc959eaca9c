package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/addresses"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
)

type AddressBook interface {
	List(ctx context.Context, userID uuid.UUID) ([]addresses.Address, error)
	Add(ctx context.Context, userID uuid.UUID, input addresses.AddressInput) (*addresses.Address, error)
	Update(ctx context.Context, userID, id uuid.UUID, patch addresses.AddressPatch) (*addresses.Address, error)
	Remove(ctx context.Context, userID, id uuid.UUID) error
}

func AddressList(book AddressBook, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := book.List(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AddressCreate(book AddressBook, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input addresses.AddressInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		addr, err := book.Add(r.Context(), middleware.UserIDFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, addr)
	}
}

func AddressUpdate(book AddressBook, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "addressId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var patch addresses.AddressPatch
		if err := validators.DecodeJSONBody(r, &patch); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		addr, err := book.Update(r.Context(), middleware.UserIDFromContext(r.Context()), id, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, addr)
	}
}

func AddressDelete(book AddressBook, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "addressId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := book.Remove(r.Context(), middleware.UserIDFromContext(r.Context()), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
