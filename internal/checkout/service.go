package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/angelmondragon/storefront/internal/addresses"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/validate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	errLineNotFound  = errors.New("cart line not found")
	errQuantityLimit = errors.New("cart line quantity limit")
)

type productLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*products.Product, error)
}

type addressBook interface {
	List(ctx context.Context, userID uuid.UUID) ([]addresses.Address, error)
	Default(ctx context.Context, userID uuid.UUID, typ enums.AddressType) (*addresses.Address, error)
}

type orderCreator interface {
	Create(ctx context.Context, input orders.CreateInput) (*orders.Order, error)
}

// ServiceParams wires checkout. Logger is optional.
type ServiceParams struct {
	Cart      *Cart
	Products  productLookup
	Addresses addressBook
	Orders    orderCreator
	Logger    *logger.Logger
}

// Service turns a cart into an order.
type Service struct {
	cart      *Cart
	products  productLookup
	addresses addressBook
	orders    orderCreator
	logg      *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	if p.Products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if p.Addresses == nil {
		return nil, fmt.Errorf("address book required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Service{cart: p.Cart, products: p.Products, addresses: p.Addresses, orders: p.Orders, logg: p.Logger}, nil
}

// AddItemInput puts a product into the cart.
type AddItemInput struct {
	ProductID uuid.UUID `json:"productId"`
	Size      string    `json:"size" validate:"max=20"`
	Quantity  int       `json:"quantity" validate:"min=1,max=99"`
}

// Summary is the cart as shown before checkout.
type Summary struct {
	Lines []Line          `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func (s *Service) Cart(userID uuid.UUID) Summary {
	return Summary{Lines: s.cart.Lines(userID), Count: s.cart.Count(userID), Total: s.cart.Total(userID)}
}

// AddItem prices the line from the catalog. A size is required when the product lists sizes.
func (s *Service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (Summary, error) {
	if userID == uuid.Nil {
		return Summary{}, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to use the cart")
	}
	if err := validate.Struct(input); err != nil {
		return Summary{}, err
	}
	product, err := s.products.Get(ctx, input.ProductID)
	if err != nil {
		return Summary{}, err
	}
	if len(product.Sizes) > 0 && !slices.Contains(product.Sizes, input.Size) {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "choose an available size").
			WithDetails(map[string]string{"size": "must be one of the product's sizes"})
	}

	err = s.cart.Add(userID, Line{
		ProductID:   product.ID,
		ProductName: product.Name,
		Size:        input.Size,
		Price:       product.Price,
		Quantity:    input.Quantity,
	})
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("at most %d of an item per order", MaxQuantity)).
			WithDetails(map[string]string{"quantity": fmt.Sprintf("cart would exceed %d", MaxQuantity)})
	}
	return s.Cart(userID), nil
}

func (s *Service) UpdateQuantity(userID, productID uuid.UUID, size string, qty int) (Summary, error) {
	if qty < 0 || qty > MaxQuantity {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 0 and %d", MaxQuantity))
	}
	if err := s.cart.SetQuantity(userID, productID, size, qty); err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "item is not in the cart")
	}
	return s.Cart(userID), nil
}

func (s *Service) RemoveItem(userID, productID uuid.UUID, size string) (Summary, error) {
	return s.UpdateQuantity(userID, productID, size, 0)
}

func (s *Service) Clear(userID uuid.UUID) {
	s.cart.Clear(userID)
}

// Input identifies the buyer. A nil AddressID ships to the default shipping address.
type Input struct {
	UserID       uuid.UUID  `json:"-"`
	CustomerName string     `json:"customerName" validate:"notblank,max=200"`
	Email        string     `json:"email" validate:"required,email"`
	AddressID    *uuid.UUID `json:"addressId,omitempty"`
}

// Checkout snapshots the shipping address into a new order built from the cart, then takes the
// ordered lines out of the cart.
func (s *Service) Checkout(ctx context.Context, input Input) (*orders.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to check out")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	lines := s.cart.Lines(input.UserID)
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "your cart is empty")
	}

	addr, err := s.shippingAddress(ctx, input)
	if err != nil {
		return nil, err
	}

	items := make([]orders.ItemInput, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		items = append(items, orders.ItemInput{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Size:        line.Size,
			Price:       line.Price,
		})
		total = total.Add(line.Subtotal())
	}

	order, err := s.orders.Create(ctx, orders.CreateInput{
		UserID:       input.UserID,
		CustomerName: input.CustomerName,
		Email:        input.Email,
		Items:        items,
		ShippingAddress: orders.ShippingAddressInput{
			FullName:      addr.FullName,
			StreetAddress: addr.StreetAddress,
			City:          addr.City,
			State:         addr.State,
			PostalCode:    addr.PostalCode,
			Country:       addr.Country,
			Phone:         addr.Phone,
		},
		Total: total,
	})
	if err != nil {
		return nil, err
	}
	s.cart.Deduct(input.UserID, lines)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"lines":    len(lines),
	}), "checkout completed")
	return order, nil
}

func (s *Service) shippingAddress(ctx context.Context, input Input) (*addresses.Address, error) {
	if input.AddressID == nil {
		addr, err := s.addresses.Default(ctx, input.UserID, enums.AddressTypeShipping)
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "add a shipping address before checking out")
		}
		return addr, err
	}

	list, err := s.addresses.List(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	for _, addr := range list {
		if addr.ID == *input.AddressID {
			found := addr
			return &found, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
}
