// Package store composes catalog, session, cart, ledger and persistence into
// the single facade the HTTP layer talks to. One Store serves one profile.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/assistant"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/ledger"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidShipping = errors.New("shipping details incomplete")
	ErrForbidden       = errors.New("admin role required")

	ErrProductNotFound    = catalog.ErrProductNotFound
	ErrInvalidCredentials = session.ErrInvalidCredentials
	ErrSuperseded         = session.ErrSuperseded
	ErrInvalidStatus      = ledger.ErrInvalidStatus
)

// TaxRate is applied to the cart subtotal when quoting a checkout.
var TaxRate = decimal.RequireFromString("0.08")

// Catalog is the read side of the product catalog.
type Catalog interface {
	Load(ctx context.Context) ([]domain.Product, error)
	FindByID(ctx context.Context, id string) (domain.Product, error)
	Filter(ctx context.Context, f catalog.Filter) ([]domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
}

type Assistant interface {
	AskProductQuestion(ctx context.Context, p domain.Product, question string) string
	SummarizeReviews(ctx context.Context, p domain.Product) string
}

// EventSink receives order lifecycle events. Emit must not block.
type EventSink interface {
	Emit(ctx context.Context, e events.Event)
}

// Deps are the collaborators shared by every store of a registry.
type Deps struct {
	Catalog       Catalog
	Directory     session.Directory
	Ledger        *ledger.Ledger
	KV            storage.KV
	Assistant     Assistant
	Events        EventSink
	Logger        *slog.Logger
	LoginDelay    time.Duration
	CheckoutDelay time.Duration
}

// Notice carries soft warnings about a cart mutation.
type Notice struct {
	OverStock bool `json:"over_stock"`
	Stock     int  `json:"stock"`
	Quantity  int  `json:"quantity"`
}

type Quote struct {
	Items    int             `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Insight is the latest assistant answer recorded for a product.
type Insight struct {
	ProductID string    `json:"product_id"`
	Question  string    `json:"question,omitempty"`
	Answer    string    `json:"answer"`
	At        time.Time `json:"at"`
}

type Store struct {
	profile       string
	catalog       Catalog
	session       *session.Session
	ledger        *ledger.Ledger
	persist       *storage.Adapter
	assistant     Assistant
	events        EventSink
	logger        *slog.Logger
	checkoutDelay time.Duration
	userMu        sync.Mutex

	mu            sync.Mutex
	cart          *cart.Cart
	products      []domain.Product
	loading       bool
	checkoutToken uint64
	askTokens     map[string]uint64
	insights      map[string]Insight
	summaries     map[string]string
}

func New(profile string, deps Deps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("profile", profile)

	kv := deps.KV
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	l := deps.Ledger
	if l == nil {
		l = ledger.New()
	}
	ai := deps.Assistant
	if ai == nil {
		ai = assistant.Disabled(logger)
	}

	return &Store{
		profile:       profile,
		catalog:       deps.Catalog,
		session:       session.New(deps.Directory, deps.LoginDelay),
		ledger:        l,
		persist:       storage.NewAdapter(kv, profile, logger),
		assistant:     ai,
		events:        deps.Events,
		logger:        logger,
		checkoutDelay: deps.CheckoutDelay,
		cart:          cart.New(),
		loading:       true,
		askTokens:     make(map[string]uint64),
		insights:      make(map[string]Insight),
		summaries:     make(map[string]string),
	}
}

// Init loads the catalog, then restores the persisted session and cart. Until
// it returns Loading reports true.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	products, err := s.catalog.Load(ctx)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return fmt.Errorf("init store: %w", err)
	}

	var user domain.User
	hasUser := s.persist.Load(ctx, storage.KeyUser, &user) && user.ID != ""
	if hasUser {
		s.session.Restore(user)
	}

	var items []domain.CartItem
	hasCart := s.persist.Load(ctx, storage.KeyCart, &items)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = products
	if hasCart {
		s.cart = cart.Restore(items)
	}
	s.loading = false

	attrs := []any{"products", len(products), "cart_lines", s.cart.Len()}
	if hasUser {
		attrs = append(attrs, "user_id", user.ID)
		if user.IsAdmin() {
			attrs = append(attrs, "orders", len(s.ledger.List(domain.ViewerOf(user))))
		}
	}
	s.logger.InfoContext(ctx, "store initialized", attrs...)
	return nil
}

func (s *Store) Profile() string {
	return s.profile
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *Store) FilterProducts(ctx context.Context, f catalog.Filter) ([]domain.Product, error) {
	return s.catalog.Filter(ctx, f)
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	return s.catalog.Categories(ctx)
}

func (s *Store) Product(ctx context.Context, id string) (domain.Product, error) {
	return s.catalog.FindByID(ctx, id)
}

func (s *Store) Cart() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Items()
}

// CartTotal is recomputed from the cart on every call.
func (s *Store) CartTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total()
}

func (s *Store) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Count()
}

func (s *Store) Quote() Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return quote(s.cart)
}

func quote(c *cart.Cart) Quote {
	subtotal := c.Total()
	tax := subtotal.Mul(TaxRate).Round(2)
	return Quote{
		Items:    c.Count(),
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

func (s *Store) User() (domain.User, bool) {
	return s.session.Current()
}

func (s *Store) viewer() domain.Viewer {
	if u, ok := s.session.Current(); ok {
		return domain.ViewerOf(u)
	}
	return domain.Viewer{}
}

// Orders returns the ledger as seen by the current user: everything for an
// admin, their own orders for a user, nothing when nobody is logged in.
func (s *Store) Orders() []domain.Order {
	return s.ledger.List(s.viewer())
}

func (s *Store) Order(orderID string) (domain.Order, bool) {
	o, ok := s.ledger.Get(orderID)
	if !ok {
		return domain.Order{}, false
	}
	v := s.viewer()
	if v.Anonymous() || (v.Role != domain.RoleAdmin && o.UserID != v.UserID) {
		return domain.Order{}, false
	}
	return o, true
}

func (s *Store) Stats() (ledger.Stats, error) {
	if !s.viewer().IsAdmin() {
		return ledger.Stats{}, ErrForbidden
	}
	return s.ledger.Stats(), nil
}

// Login authenticates by email and persists the user on success.
func (s *Store) Login(ctx context.Context, email string) (domain.User, error) {
	user, err := s.session.Login(ctx, email)
	if err != nil {
		s.logger.InfoContext(ctx, "login failed", "error", err)
		return domain.User{}, err
	}

	s.persistUser(ctx)
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *Store) Logout(ctx context.Context) {
	s.session.Logout()
	s.persistUser(ctx)
}

// persistUser writes the session's current user, or removes it when nobody is
// logged in. Calls are serialized so the last one reflects the latest session
// change.
func (s *Store) persistUser(ctx context.Context) {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	user, ok := s.session.Current()
	if !ok {
		if err := s.persist.Delete(ctx, storage.KeyUser); err != nil {
			metrics.PersistenceFailures.WithLabelValues("delete").Inc()
			s.logger.WarnContext(ctx, "failed to remove persisted user", "error", err)
		}
		return
	}
	if err := s.persist.Save(ctx, storage.KeyUser, user); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save").Inc()
		s.logger.WarnContext(ctx, "failed to persist user", "error", err)
	}
}

// AddToCart adds one unit of productID. Adding past the product's stock is
// allowed and reported through the notice.
func (s *Store) AddToCart(ctx context.Context, productID string) (Notice, error) {
	p, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return Notice{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.cart.Add(p)
	metrics.CartOperations.WithLabelValues("add").Inc()
	s.saveCart(ctx)

	return Notice{OverStock: line.OverStock(), Stock: p.Stock, Quantity: line.Quantity}, nil
}

// RemoveFromCart is a no-op for products not in the cart.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cart.Remove(productID) {
		return false
	}
	metrics.CartOperations.WithLabelValues("remove").Inc()
	s.saveCart(ctx)
	return true
}

// UpdateQuantity overwrites the quantity of an existing line. Quantities
// below one and unknown products leave the cart unchanged.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cart.SetQuantity(productID, quantity) {
		line, ok := s.cart.Get(productID)
		if !ok {
			return Notice{}, false
		}
		return Notice{OverStock: line.OverStock(), Stock: line.Stock, Quantity: line.Quantity}, false
	}
	metrics.CartOperations.WithLabelValues("set_quantity").Inc()
	s.saveCart(ctx)

	line, _ := s.cart.Get(productID)
	return Notice{OverStock: line.OverStock(), Stock: line.Stock, Quantity: line.Quantity}, true
}

func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Clear()
	metrics.CartOperations.WithLabelValues("clear").Inc()
	s.saveCart(ctx)
}

// saveCart must be called with mu held.
func (s *Store) saveCart(ctx context.Context) {
	if err := s.persist.Save(ctx, storage.KeyCart, s.cart.Items()); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save").Inc()
		s.logger.WarnContext(ctx, "failed to persist cart", "error", err)
	}
}

// PlaceOrder waits out the simulated payment, then records the cart as a new
// pending order and clears the cart. Either both happen or neither does. If
// another checkout was started meanwhile this one returns ErrSuperseded.
func (s *Store) PlaceOrder(ctx context.Context, shipping domain.ShippingDetails) (domain.Order, error) {
	if !shipping.Complete() {
		return domain.Order{}, ErrInvalidShipping
	}

	// the buyer is whoever started the checkout
	owner := domain.GuestOwner
	if u, ok := s.session.Current(); ok {
		owner = u.ID
	}

	s.mu.Lock()
	s.checkoutToken++
	token := s.checkoutToken
	s.mu.Unlock()

	if err := wait(ctx, s.checkoutDelay); err != nil {
		metrics.OrdersPlaced.WithLabelValues("cancelled").Inc()
		return domain.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.checkoutToken {
		metrics.OrdersPlaced.WithLabelValues("superseded").Inc()
		return domain.Order{}, ErrSuperseded
	}

	items := s.cart.Items()
	if len(items) == 0 {
		metrics.OrdersPlaced.WithLabelValues("empty").Inc()
		return domain.Order{}, ErrEmptyCart
	}

	order, err := s.ledger.Place(ctx, owner, items, shipping)
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues("failed").Inc()
		s.logger.ErrorContext(ctx, "failed to place order", "error", err)
		return domain.Order{}, fmt.Errorf("place order: %w", err)
	}

	s.cart.Clear()
	s.saveCart(ctx)

	metrics.OrdersPlaced.WithLabelValues("placed").Inc()
	metrics.OrderRevenue.Add(order.Total.InexactFloat64())
	s.emit(ctx, events.OrderPlaced(s.profile, order))
	s.logger.InfoContext(ctx, "order placed", "order_id", order.ID, "user_id", order.UserID, "total", order.Total.StringFixed(2))

	return order, nil
}

// UpdateOrderStatus requires an admin session. Unknown orders are a no-op and
// report false. Setting the status an order already has reports true but
// emits nothing.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	if !s.viewer().IsAdmin() {
		return false, ErrForbidden
	}

	found, changed, err := s.ledger.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return false, err
	}
	if !found || !changed {
		return found, nil
	}

	metrics.StatusUpdates.WithLabelValues(status.String()).Inc()
	if o, found := s.ledger.Get(orderID); found {
		s.emit(ctx, events.StatusChanged(s.profile, o))
	}
	s.logger.InfoContext(ctx, "order status updated", "order_id", orderID, "status", status)
	return true, nil
}

func (s *Store) emit(ctx context.Context, e events.Event) {
	if s.events != nil {
		s.events.Emit(ctx, e)
	}
}

// AskAssistant answers a question about productID and records the answer as
// the product's current insight. When a newer question about the same product
// was asked meanwhile the answer is dropped with ErrSuperseded.
func (s *Store) AskAssistant(ctx context.Context, productID, question string) (Insight, error) {
	p, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return Insight{}, err
	}

	s.mu.Lock()
	s.askTokens[productID]++
	token := s.askTokens[productID]
	s.mu.Unlock()

	answer := s.assistant.AskProductQuestion(ctx, p, question)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.askTokens[productID] {
		return Insight{}, ErrSuperseded
	}
	insight := Insight{ProductID: productID, Question: question, Answer: answer, At: time.Now().UTC()}
	s.insights[productID] = insight
	return insight, nil
}

func (s *Store) LastInsight(productID string) (Insight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insight, ok := s.insights[productID]
	return insight, ok
}

// ReviewSummary returns the assistant's review summary for productID,
// generating it on first request. Fallback answers are not remembered.
func (s *Store) ReviewSummary(ctx context.Context, productID string) (string, error) {
	p, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	summary, ok := s.summaries[productID]
	s.mu.Unlock()
	if ok {
		return summary, nil
	}

	summary = s.assistant.SummarizeReviews(ctx, p)
	if isFallback(summary) {
		return summary, nil
	}

	s.mu.Lock()
	s.summaries[productID] = summary
	s.mu.Unlock()
	return summary, nil
}

func isFallback(text string) bool {
	return text == assistant.FallbackSummaryFailed || text == assistant.FallbackNoSummary
}

func wait(ctx context.Context, d time.Duration) error {
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
