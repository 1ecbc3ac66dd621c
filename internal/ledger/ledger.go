// Package ledger records placed orders, newest first. Orders are immutable
// once placed except for their status.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrEmptyOrder     = errors.New("order has no items")
	ErrDuplicateOrder = errors.New("order already recorded")
)

// Archive is a durable copy of the ledger. The in-memory ledger stays the
// source of truth for reads; the archive only makes orders survive restarts.
type Archive interface {
	Append(ctx context.Context, order domain.Order) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	All(ctx context.Context) ([]domain.Order, error)
}

type Ledger struct {
	mu      sync.RWMutex
	orders  []domain.Order
	archive Archive
	now     func() time.Time
}

type Option func(*Ledger)

func WithArchive(a Archive) Option {
	return func(l *Ledger) { l.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewOrderID returns a time-ordered order identifier.
func NewOrderID() string {
	return "ord_" + uuid.Must(uuid.NewV7()).String()
}

// Place records a new pending order for owner holding a snapshot of items.
// When an archive is configured and rejects the order, nothing is recorded.
func (l *Ledger) Place(ctx context.Context, owner string, items []domain.CartItem, shipping domain.ShippingDetails) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}
	if owner == "" {
		owner = domain.GuestOwner
	}

	snapshot := make([]domain.CartItem, len(items))
	copy(snapshot, items)

	total := decimal.Zero
	for _, item := range snapshot {
		total = total.Add(item.Subtotal())
	}

	order := domain.Order{
		ID:        NewOrderID(),
		UserID:    owner,
		Items:     snapshot,
		Total:     total,
		Status:    domain.OrderStatusPending,
		Shipping:  shipping,
		CreatedAt: l.now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.archive != nil {
		if err := l.archive.Append(ctx, order.Clone()); err != nil {
			return domain.Order{}, fmt.Errorf("archive order: %w", err)
		}
	}

	l.orders = append([]domain.Order{order}, l.orders...)
	return order.Clone(), nil
}

// UpdateStatus overwrites the status of orderID. found is false, without
// error, when the order does not exist; changed is false when the order
// already had that status. Who may call it is up to the caller.
func (l *Ledger) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (found, changed bool, err error) {
	if !status.Valid() {
		return false, false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(orderID)
	if i < 0 {
		return false, false, nil
	}
	if l.orders[i].Status == status {
		return true, false, nil
	}

	if l.archive != nil {
		if err := l.archive.UpdateStatus(ctx, orderID, status); err != nil {
			return true, false, fmt.Errorf("archive status: %w", err)
		}
	}

	l.orders[i].Status = status
	return true, true, nil
}

// List returns the orders viewer may see, newest first: every order for an
// admin, their own orders for anyone else logged in, none for anonymous
// visitors.
func (l *Ledger) List(viewer domain.Viewer) []domain.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Order, 0, len(l.orders))
	if viewer.Anonymous() {
		return out
	}
	for _, o := range l.orders {
		if viewer.Role == domain.RoleAdmin || o.UserID == viewer.UserID {
			out = append(out, o.Clone())
		}
	}
	return out
}

func (l *Ledger) Get(orderID string) (domain.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.index(orderID)
	if i < 0 {
		return domain.Order{}, false
	}
	return l.orders[i].Clone(), true
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

// Seed adds pre-existing orders without archiving them. Orders whose id is
// already present are skipped.
func (l *Ledger) Seed(orders ...domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.merge(orders)
}

// Restore loads every archived order into the ledger.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.archive == nil {
		return nil
	}
	orders, err := l.archive.All(ctx)
	if err != nil {
		return fmt.Errorf("restore orders: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.merge(orders)
	return nil
}

func (l *Ledger) merge(orders []domain.Order) {
	for _, o := range orders {
		if l.index(o.ID) >= 0 {
			continue
		}
		l.orders = append(l.orders, o.Clone())
	}
	sort.SliceStable(l.orders, func(i, j int) bool {
		return l.orders[i].CreatedAt.After(l.orders[j].CreatedAt)
	})
}

func (l *Ledger) index(orderID string) int {
	for i := range l.orders {
		if l.orders[i].ID == orderID {
			return i
		}
	}
	return -1
}
