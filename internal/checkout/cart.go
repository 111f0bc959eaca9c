package checkout

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one product and size in a cart.
type Line struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Size        string          `json:"size,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Subtotal is price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart holds each user's unsaved lines in process memory.
type Cart struct {
	mu    sync.Mutex
	lines map[uuid.UUID][]Line
}

func NewCart() *Cart {
	return &Cart{lines: make(map[uuid.UUID][]Line)}
}

// MaxQuantity bounds a single line.
const MaxQuantity = 99

// Add merges the line into an existing one with the same product and size. A merge that would
// exceed MaxQuantity leaves the cart unchanged.
func (c *Cart) Add(userID uuid.UUID, line Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines[userID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID && lines[i].Size == line.Size {
			if lines[i].Quantity+line.Quantity > MaxQuantity {
				return errQuantityLimit
			}
			lines[i].Quantity += line.Quantity
			lines[i].Price = line.Price
			return nil
		}
	}
	if line.Quantity > MaxQuantity {
		return errQuantityLimit
	}
	c.lines[userID] = append(lines, line)
	return nil
}

// Deduct removes the quantities in taken from the matching lines, dropping lines that reach
// zero. Units added after taken was read stay in the cart.
func (c *Cart) Deduct(userID uuid.UUID, taken []Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines[userID]
	for _, t := range taken {
		for i := range lines {
			if lines[i].ProductID == t.ProductID && lines[i].Size == t.Size {
				lines[i].Quantity -= t.Quantity
				break
			}
		}
	}
	kept := lines[:0]
	for _, line := range lines {
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		delete(c.lines, userID)
		return
	}
	c.lines[userID] = kept
}

// SetQuantity changes a line's quantity; zero removes it.
func (c *Cart) SetQuantity(userID, productID uuid.UUID, size string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines[userID]
	for i := range lines {
		if lines[i].ProductID == productID && lines[i].Size == size {
			if qty == 0 {
				c.lines[userID] = append(lines[:i:i], lines[i+1:]...)
			} else {
				lines[i].Quantity = qty
			}
			return nil
		}
	}
	return errLineNotFound
}

func (c *Cart) Remove(userID, productID uuid.UUID, size string) error {
	return c.SetQuantity(userID, productID, size, 0)
}

func (c *Cart) Clear(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, userID)
}

func (c *Cart) Lines(userID uuid.UUID) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.lines[userID]...)
}

// Total sums every line's subtotal.
func (c *Cart) Total(userID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines(userID) {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Count is the number of units across all lines.
func (c *Cart) Count(userID uuid.UUID) int {
	n := 0
	for _, line := range c.Lines(userID) {
		n += line.Quantity
	}
	return n
}
