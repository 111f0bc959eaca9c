package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/google/uuid"
)

type OrderReader interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]orders.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*orders.Order, error)
}

type OrderAdmin interface {
	ListAll(ctx context.Context) ([]orders.Order, error)
	ListPage(ctx context.Context, params pagination.Params) (pagination.Page[orders.Order], error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (*orders.Order, error)
}

type orderStatusRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
}

// orderView decorates an order with the badge the UI renders for its status.
type orderView struct {
	orders.Order
	Display orders.StatusDisplay `json:"display"`
}

func viewOf(o orders.Order) orderView {
	return orderView{Order: o, Display: orders.Display(o.Status)}
}

func viewsOf(list []orders.Order) []orderView {
	out := make([]orderView, 0, len(list))
	for _, o := range list {
		out = append(out, viewOf(o))
	}
	return out
}

func OrderList(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListForUser(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewsOf(list))
	}
}

// OrderDetail hides orders that belong to someone else unless the caller is an admin.
func OrderDetail(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if !middleware.IsAdminFromContext(r.Context()) && order.UserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, viewOf(*order))
	}
}

// AdminOrderList returns every order, or a keyset page when limit or cursor is given.
func AdminOrderList(svc OrderAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("limit") == "" && query.Get("cursor") == "" {
			list, err := svc.ListAll(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, viewsOf(list))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListPage(r.Context(), pagination.Params{Limit: limit, Cursor: query.Get("cursor")})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pagination.Page[orderView]{Items: viewsOf(page.Items), NextCursor: page.NextCursor})
	}
}

func AdminOrderStatus(svc OrderAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req orderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.SetStatus(r.Context(), id, req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(*order))
	}
}
