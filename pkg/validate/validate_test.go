package validate

import (
	"testing"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	Quantity int             `json:"quantity" validate:"gte=1"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
}

type sample struct {
	Name   string            `json:"name" validate:"notblank"`
	Email  string            `json:"email" validate:"required,email"`
	Type   enums.AddressType `json:"type" validate:"enum"`
	Lines  []line            `json:"lines" validate:"min=1,dive"`
	Ignore string            `json:"-"`
}

func TestStructCollectsFieldMessages(t *testing.T) {
	err := Struct(sample{
		Name:  "   ",
		Email: "nope",
		Type:  "home",
		Lines: []line{{Quantity: 0, Price: decimal.NewFromInt(-1)}},
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "is not a recognized value", details["type"])
	assert.Equal(t, "must be greater than or equal to 1", details["lines[0].quantity"])
	assert.Equal(t, "must be greater than or equal to 0", details["lines[0].price"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	err := Struct(sample{
		Name:  "Ada",
		Email: "ada@example.com",
		Type:  enums.AddressTypeShipping,
		Lines: []line{{Quantity: 2, Price: decimal.RequireFromString("9.99")}},
	})
	assert.NoError(t, err)
}

func TestVar(t *testing.T) {
	err := Var("status", enums.OrderStatus("refunded"), "enum")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	assert.NoError(t, Var("status", enums.OrderStatusShipped, "enum"))
}
