package ledger

import (
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// DemoOrders returns the order history a fresh store starts with. products
// supplies the catalog entries the orders refer to; orders whose product is
// missing are left out.
func DemoOrders(products []domain.Product) []domain.Order {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	demoShipping := domain.ShippingDetails{
		Name:    "Demo User",
		Address: "1 Market Street",
		City:    "San Francisco",
		Zip:     "94105",
	}

	specs := []struct {
		id        string
		productID string
		quantity  int
		total     string
		status    domain.OrderStatus
		createdAt time.Time
	}{
		{"ord_12345", "1", 1, "299.99", domain.OrderStatusDelivered, time.Date(2023, 10, 15, 10, 0, 0, 0, time.UTC)},
		{"ord_67890", "2", 2, "699.00", domain.OrderStatusProcessing, time.Date(2023, 10, 25, 14, 30, 0, 0, time.UTC)},
	}

	var orders []domain.Order
	for _, s := range specs {
		p, ok := byID[s.productID]
		if !ok {
			continue
		}
		orders = append(orders, domain.Order{
			ID:        s.id,
			UserID:    "u1",
			Items:     []domain.CartItem{{Product: p, Quantity: s.quantity}},
			Total:     decimal.RequireFromString(s.total),
			Status:    s.status,
			Shipping:  demoShipping,
			CreatedAt: s.createdAt,
		})
	}
	return orders
}
