package enums

import "fmt"

// AddressType separates the shipping and billing address groups.
type AddressType string

const (
	AddressTypeShipping AddressType = "shipping"
	AddressTypeBilling  AddressType = "billing"
)

var validAddressTypes = []AddressType{
	AddressTypeShipping,
	AddressTypeBilling,
}

func (t AddressType) String() string {
	return string(t)
}

func (t AddressType) IsValid() bool {
	for _, candidate := range validAddressTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseAddressType(value string) (AddressType, error) {
	for _, candidate := range validAddressTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid address type %q", value)
}
