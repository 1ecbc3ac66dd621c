package domain

import "github.com/shopspring/decimal"

// CartItem is a product line in a cart. The embedded Product is the catalog
// entry as it was when the line was created.
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

// Subtotal returns price × quantity for the line.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OverStock reports whether the line asks for more units than are in stock.
func (i CartItem) OverStock() bool {
	return i.Quantity > i.Stock
}
