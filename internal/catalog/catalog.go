// Package catalog holds the purchasable products for the store. The product
// list is read once from the repository and served from memory afterwards.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"golang.org/x/sync/singleflight"
)

// AllCategories is the category filter value that matches every product.
const AllCategories = "All"

var ErrCatalogUnavailable = errors.New("catalog unavailable")

type Filter struct {
	Category string
	Query    string
}

type Catalog struct {
	repo  RepoInterface
	delay time.Duration
	sfg   singleflight.Group

	mu       sync.RWMutex
	products []domain.Product
	byID     map[string]domain.Product
}

// New returns a catalog reading from repo. delay simulates fetch latency on
// the first load.
func New(repo RepoInterface, delay time.Duration) *Catalog {
	return &Catalog{repo: repo, delay: delay}
}

// Load returns the full product list. The first call fetches from the
// repository; concurrent first calls share one fetch and later calls return
// the cached list.
func (c *Catalog) Load(ctx context.Context) ([]domain.Product, error) {
	if products, ok := c.cached(); ok {
		return products, nil
	}

	v, err, _ := c.sfg.Do("products", func() (interface{}, error) {
		if products, ok := c.cached(); ok {
			return products, nil
		}

		if err := sleep(ctx, c.delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
		}

		products, err := c.repo.GetAllProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
		}

		if products == nil {
			products = []domain.Product{}
		}

		c.mu.Lock()
		c.products = products
		c.byID = make(map[string]domain.Product, len(products))
		for _, p := range products {
			c.byID[p.ID] = p
		}
		c.mu.Unlock()

		return products, nil
	})
	if err != nil {
		return nil, err
	}

	return clone(v.([]domain.Product)), nil
}

func (c *Catalog) FindByID(ctx context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	loaded := c.byID != nil
	p, ok := c.byID[id]
	c.mu.RUnlock()

	if loaded {
		if !ok {
			return domain.Product{}, ErrProductNotFound
		}
		return p, nil
	}

	p, err := c.repo.GetProduct(ctx, id)
	if err != nil && !errors.Is(err, ErrProductNotFound) {
		return domain.Product{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return p, err
}

// Filter returns the products in f.Category (AllCategories or empty for any)
// whose name contains f.Query, ignoring case.
func (c *Catalog) Filter(ctx context.Context, f Filter) ([]domain.Product, error) {
	products, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(f.Query))
	matched := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if f.Category != "" && f.Category != AllCategories && p.Category != f.Category {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		matched = append(matched, p)
	}
	return matched, nil
}

// Categories returns AllCategories followed by each distinct category in
// catalog order.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	products, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	categories := []string{AllCategories}
	for _, p := range products {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	return categories, nil
}

func (c *Catalog) cached() ([]domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.products == nil {
		return nil, false
	}
	return clone(c.products), true
}

func clone(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
