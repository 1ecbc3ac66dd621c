package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// GuestOwner owns orders placed without a logged-in user.
const GuestOwner = "guest"

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

type ShippingDetails struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
}

// Complete reports whether every shipping field is filled in.
func (d ShippingDetails) Complete() bool {
	for _, f := range []string{d.Name, d.Address, d.City, d.Zip} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	Shipping  ShippingDetails `json:"shipping"`
	CreatedAt time.Time       `json:"created_at"`
}

// Clone returns a copy whose item slice does not alias the receiver's.
func (o Order) Clone() Order {
	c := o
	c.Items = make([]CartItem, len(o.Items))
	copy(c.Items, o.Items)
	return c
}
