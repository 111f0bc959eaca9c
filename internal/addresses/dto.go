package addresses

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
)

// Address is a saved shipping or billing address.
type Address struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"userId"`
	FullName      string            `json:"fullName"`
	StreetAddress string            `json:"streetAddress"`
	City          string            `json:"city"`
	State         string            `json:"state"`
	PostalCode    string            `json:"postalCode"`
	Country       string            `json:"country"`
	Phone         *string           `json:"phone,omitempty"`
	IsDefault     bool              `json:"isDefault"`
	Type          enums.AddressType `json:"type"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// AddressInput is the payload for a new address. A nil IsDefault lets the manager decide.
type AddressInput struct {
	FullName      string            `json:"fullName" validate:"notblank,max=200"`
	StreetAddress string            `json:"streetAddress" validate:"notblank,max=300"`
	City          string            `json:"city" validate:"notblank,max=120"`
	State         string            `json:"state" validate:"notblank,max=120"`
	PostalCode    string            `json:"postalCode" validate:"notblank,max=20"`
	Country       string            `json:"country" validate:"notblank,max=120"`
	Phone         *string           `json:"phone,omitempty" validate:"omitempty,max=40"`
	IsDefault     *bool             `json:"isDefault,omitempty"`
	Type          enums.AddressType `json:"type" validate:"required,enum"`
}

// AddressPatch carries the fields to change; nil fields are left alone.
type AddressPatch struct {
	FullName      *string            `json:"fullName,omitempty" validate:"omitempty,notblank,max=200"`
	StreetAddress *string            `json:"streetAddress,omitempty" validate:"omitempty,notblank,max=300"`
	City          *string            `json:"city,omitempty" validate:"omitempty,notblank,max=120"`
	State         *string            `json:"state,omitempty" validate:"omitempty,notblank,max=120"`
	PostalCode    *string            `json:"postalCode,omitempty" validate:"omitempty,notblank,max=20"`
	Country       *string            `json:"country,omitempty" validate:"omitempty,notblank,max=120"`
	Phone         *string            `json:"phone,omitempty" validate:"omitempty,max=40"`
	IsDefault     *bool              `json:"isDefault,omitempty"`
	Type          *enums.AddressType `json:"type,omitempty" validate:"omitempty,enum"`
}

func (p AddressPatch) apply(row *models.UserAddress) {
	if p.FullName != nil {
		row.FullName = *p.FullName
	}
	if p.StreetAddress != nil {
		row.StreetAddress = *p.StreetAddress
	}
	if p.City != nil {
		row.City = *p.City
	}
	if p.State != nil {
		row.State = *p.State
	}
	if p.PostalCode != nil {
		row.PostalCode = *p.PostalCode
	}
	if p.Country != nil {
		row.Country = *p.Country
	}
	if p.Phone != nil {
		row.Phone = p.Phone
	}
}

func fromModel(m models.UserAddress) Address {
	return Address{
		ID:            m.ID,
		UserID:        m.UserID,
		FullName:      m.FullName,
		StreetAddress: m.StreetAddress,
		City:          m.City,
		State:         m.State,
		PostalCode:    m.PostalCode,
		Country:       m.Country,
		Phone:         m.Phone,
		IsDefault:     m.IsDefault,
		Type:          m.Type,
		CreatedAt:     m.CreatedAt,
	}
}

func fromModels(rows []models.UserAddress) []Address {
	out := make([]Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out
}
