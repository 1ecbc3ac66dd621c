// Package cart keeps the ordered product lines of one shopping cart.
// Cart is not safe for concurrent use; the owning store serializes access.
package cart

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type Cart struct {
	items []domain.CartItem
}

func New() *Cart {
	return &Cart{}
}

// Restore builds a cart from persisted lines. Lines with a quantity below 1
// are dropped and repeated product ids are merged into the first line.
func Restore(items []domain.CartItem) *Cart {
	c := New()
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.ID == "" {
			continue
		}
		if i, ok := index[item.ID]; ok {
			c.items[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	return c
}

// Add puts one unit of p in the cart and returns the resulting line.
// Stock is not enforced here.
func (c *Cart) Add(p domain.Product) domain.CartItem {
	if i := c.find(p.ID); i >= 0 {
		c.items[i].Quantity++
		return c.items[i]
	}
	item := domain.CartItem{Product: p, Quantity: 1}
	c.items = append(c.items, item)
	return item
}

// Remove deletes the line for productID. It reports whether a line existed.
func (c *Cart) Remove(productID string) bool {
	i := c.find(productID)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// SetQuantity overwrites the quantity of an existing line. Quantities below 1
// are rejected; use Remove to drop a line. It reports whether the cart changed.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	if quantity < 1 {
		return false
	}
	i := c.find(productID)
	if i < 0 || c.items[i].Quantity == quantity {
		return false
	}
	c.items[i].Quantity = quantity
	return true
}

func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []domain.CartItem {
	out := make([]domain.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the line for productID.
func (c *Cart) Get(productID string) (domain.CartItem, bool) {
	i := c.find(productID)
	if i < 0 {
		return domain.CartItem{}, false
	}
	return c.items[i], true
}

// Total is Σ price × quantity, computed on every call.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Len is the number of lines.
func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) find(productID string) int {
	for i := range c.items {
		if c.items[i].ID == productID {
			return i
		}
	}
	return -1
}
