package enums

import "fmt"

// ProductChange mirrors the row-level operations published on the product change feed.
type ProductChange string

const (
	ProductChangeInsert ProductChange = "INSERT"
	ProductChangeUpdate ProductChange = "UPDATE"
	ProductChangeDelete ProductChange = "DELETE"
)

func (c ProductChange) String() string {
	return string(c)
}

func (c ProductChange) IsValid() bool {
	switch c {
	case ProductChangeInsert, ProductChangeUpdate, ProductChangeDelete:
		return true
	}
	return false
}

func ParseProductChange(value string) (ProductChange, error) {
	c := ProductChange(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid product change %q", value)
	}
	return c, nil
}
