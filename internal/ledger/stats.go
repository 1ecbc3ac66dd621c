package ledger

import (
	"sort"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const topProductsLimit = 5

type ProductSales struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Units     int             `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// Stats summarises the whole ledger for the admin dashboard.
type Stats struct {
	OrderCount        int                        `json:"order_count"`
	Revenue           decimal.Decimal            `json:"revenue"`
	AverageOrder      decimal.Decimal            `json:"average_order"`
	ByStatus          map[domain.OrderStatus]int `json:"by_status"`
	RevenueByCategory map[string]decimal.Decimal `json:"revenue_by_category"`
	TopProducts       []ProductSales             `json:"top_products"`
}

func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		Revenue:           decimal.Zero,
		AverageOrder:      decimal.Zero,
		ByStatus:          make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
		RevenueByCategory: make(map[string]decimal.Decimal),
		TopProducts:       []ProductSales{},
	}
	for _, status := range domain.OrderStatuses {
		s.ByStatus[status] = 0
	}

	sales := make(map[string]*ProductSales)
	for _, o := range l.orders {
		s.OrderCount++
		s.Revenue = s.Revenue.Add(o.Total)
		s.ByStatus[o.Status]++

		for _, item := range o.Items {
			sub := item.Subtotal()
			s.RevenueByCategory[item.Category] = s.RevenueByCategory[item.Category].Add(sub)

			ps, ok := sales[item.ID]
			if !ok {
				ps = &ProductSales{ProductID: item.ID, Name: item.Name, Revenue: decimal.Zero}
				sales[item.ID] = ps
			}
			ps.Units += item.Quantity
			ps.Revenue = ps.Revenue.Add(sub)
		}
	}

	if s.OrderCount > 0 {
		s.AverageOrder = s.Revenue.Div(decimal.NewFromInt(int64(s.OrderCount))).Round(2)
	}

	for _, ps := range sales {
		s.TopProducts = append(s.TopProducts, *ps)
	}
	sort.Slice(s.TopProducts, func(i, j int) bool {
		a, b := s.TopProducts[i], s.TopProducts[j]
		if a.Units != b.Units {
			return a.Units > b.Units
		}
		return a.ProductID < b.ProductID
	})
	if len(s.TopProducts) > topProductsLimit {
		s.TopProducts = s.TopProducts[:topProductsLimit]
	}

	return s
}
