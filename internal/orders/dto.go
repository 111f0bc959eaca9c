package orders

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront/pkg/db/types"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the projected view of a placed order.
type Order struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"userId"`
	CustomerName    string            `json:"customerName"`
	Email           string            `json:"email"`
	Items           []Item            `json:"items"`
	Status          enums.OrderStatus `json:"status"`
	ShippingAddress ShippingAddress   `json:"shippingAddress"`
	Total           decimal.Decimal   `json:"total"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type Item struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Size        string          `json:"size,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

type ShippingAddress struct {
	FullName      string  `json:"fullName"`
	StreetAddress string  `json:"streetAddress"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	PostalCode    string  `json:"postalCode"`
	Country       string  `json:"country"`
	Phone         *string `json:"phone,omitempty"`
}

// CreateInput is what checkout submits. Status is not accepted: new orders start as processing.
type CreateInput struct {
	UserID          uuid.UUID            `json:"userId"`
	CustomerName    string               `json:"customerName" validate:"notblank,max=200"`
	Email           string               `json:"email" validate:"required,email"`
	Items           []ItemInput          `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressInput `json:"shippingAddress"`
	Total           decimal.Decimal      `json:"total" validate:"gte=0"`
}

type ItemInput struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName" validate:"notblank"`
	Quantity    int             `json:"quantity" validate:"min=1"`
	Size        string          `json:"size" validate:"max=20"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
}

type ShippingAddressInput struct {
	FullName      string  `json:"fullName" validate:"notblank,max=200"`
	StreetAddress string  `json:"streetAddress" validate:"notblank,max=300"`
	City          string  `json:"city" validate:"notblank,max=120"`
	State         string  `json:"state" validate:"notblank,max=120"`
	PostalCode    string  `json:"postalCode" validate:"notblank,max=20"`
	Country       string  `json:"country" validate:"notblank,max=120"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// ItemsTotal is the sum of price times quantity. Orders keep the submitted total even when it
// differs from this value.
func ItemsTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (in CreateInput) toModel() *models.Order {
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Size:        item.Size,
			Price:       item.Price,
		})
	}
	addr := in.ShippingAddress
	return &models.Order{
		ID:           uuid.New(),
		UserID:       in.UserID,
		CustomerName: in.CustomerName,
		Email:        in.Email,
		Items:        dbtypes.NewJSON(items),
		Status:       enums.OrderStatusProcessing,
		ShippingAddress: dbtypes.NewJSON(models.ShippingAddress{
			FullName:      addr.FullName,
			StreetAddress: addr.StreetAddress,
			City:          addr.City,
			State:         addr.State,
			PostalCode:    addr.PostalCode,
			Country:       addr.Country,
			Phone:         addr.Phone,
		}),
		Total: in.Total,
	}
}

func fromModel(row models.Order) Order {
	items := make([]Item, 0, len(row.Items.Data))
	for _, item := range row.Items.Data {
		items = append(items, Item{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Size:        item.Size,
			Price:       item.Price,
		})
	}
	addr := row.ShippingAddress.Data
	return Order{
		ID:           row.ID,
		UserID:       row.UserID,
		CustomerName: row.CustomerName,
		Email:        row.Email,
		Items:        items,
		Status:       row.Status,
		ShippingAddress: ShippingAddress{
			FullName:      addr.FullName,
			StreetAddress: addr.StreetAddress,
			City:          addr.City,
			State:         addr.State,
			PostalCode:    addr.PostalCode,
			Country:       addr.Country,
			Phone:         addr.Phone,
		},
		Total:     row.Total,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func fromModels(rows []models.Order) []Order {
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out
}
