package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
)

type ProductReader interface {
	List(ctx context.Context, filter products.Filter) ([]products.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*products.Product, error)
}

type ProductWriter interface {
	Create(ctx context.Context, input products.ProductInput) (*products.Product, error)
	Update(ctx context.Context, id uuid.UUID, patch products.ProductPatch) (*products.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProductList accepts ?category=, ?featured= and ?new= filters.
func ProductList(catalog ProductReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		featured, err := validators.ParseQueryBool(r, "featured")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isNew, err := validators.ParseQueryBool(r, "new")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := products.Filter{
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
			Featured: featured,
			New:      isNew,
		}
		list, err := catalog.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ProductDetail(catalog ProductReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := catalog.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func AdminProductCreate(catalog ProductWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input products.ProductInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := catalog.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

func AdminProductUpdate(catalog ProductWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var patch products.ProductPatch
		if err := validators.DecodeJSONBody(r, &patch); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := catalog.Update(r.Context(), id, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func AdminProductDelete(catalog ProductWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := catalog.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
