package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/assistant"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/ledger"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	products []domain.Product
	err      error
	loads    atomic.Int32
}

func (m *mockCatalog) Load(context.Context) ([]domain.Product, error) {
	m.loads.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

func (m *mockCatalog) FindByID(_ context.Context, id string) (domain.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, catalog.ErrProductNotFound
}

func (m *mockCatalog) Filter(ctx context.Context, _ catalog.Filter) ([]domain.Product, error) {
	return m.Load(ctx)
}

func (m *mockCatalog) Categories(context.Context) ([]string, error) {
	return []string{catalog.AllCategories}, nil
}

type mockDirectory struct {
	users map[string]domain.User
}

func (m *mockDirectory) FindByEmail(_ context.Context, email string) (domain.User, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return domain.User{}, catalog.ErrUserNotFound
}

type mockAssistant struct {
	mu      sync.Mutex
	answer  string
	summary string
	delays  map[string]time.Duration
	calls   int
}

func (m *mockAssistant) AskProductQuestion(ctx context.Context, _ domain.Product, question string) string {
	m.mu.Lock()
	m.calls++
	d := m.delays[question]
	answer := m.answer
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
	return answer + " " + question
}

func (m *mockAssistant) SummarizeReviews(context.Context, domain.Product) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.summary
}

type mockSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockSink) Emit(_ context.Context, e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockSink) emitted() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.events))
	copy(out, m.events)
	return out
}

type failingArchive struct{}

func (failingArchive) Append(context.Context, domain.Order) error {
	return errors.New("archive down")
}

func (failingArchive) UpdateStatus(context.Context, string, domain.OrderStatus) error {
	return errors.New("archive down")
}

func (failingArchive) All(context.Context) ([]domain.Order, error) {
	return nil, errors.New("archive down")
}

// gatedKV holds writes of one key until release is closed.
type gatedKV struct {
	*storage.MemoryKV
	key     string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedKV(key string) *gatedKV {
	return &gatedKV{
		MemoryKV: storage.NewMemoryKV(),
		key:      key,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	if key == g.key {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.MemoryKV.Set(ctx, key, value)
}

var (
	productA = domain.Product{ID: "a", Name: "Product A", Price: decimal.NewFromInt(10), Category: "Audio", Stock: 5}
	productB = domain.Product{ID: "b", Name: "Product B", Price: decimal.NewFromInt(5), Category: "Wearables", Stock: 1}
	productC = domain.Product{ID: "c", Name: "Product C", Price: decimal.RequireFromString("2.50"), Category: "Audio", Stock: 0}

	regularUser = domain.User{ID: "u1", Name: "Alex User", Email: "user@demo.com", Role: domain.RoleUser}
	adminUser   = domain.User{ID: "u2", Name: "Sam Admin", Email: "admin@demo.com", Role: domain.RoleAdmin}

	validShipping = domain.ShippingDetails{Name: "Alex", Address: "1 Main St", City: "Springfield", Zip: "12345"}
)

type fixture struct {
	deps    Deps
	catalog *mockCatalog
	kv      *storage.MemoryKV
	ledger  *ledger.Ledger
	sink    *mockSink
	ai      *mockAssistant
}

func newFixture() *fixture {
	f := &fixture{
		catalog: &mockCatalog{products: []domain.Product{productA, productB, productC}},
		kv:      storage.NewMemoryKV(),
		ledger:  ledger.New(),
		sink:    &mockSink{},
		ai:      &mockAssistant{answer: "answer:", summary: "Great sound, long battery, a bit heavy."},
	}
	f.deps = Deps{
		Catalog: f.catalog,
		Directory: &mockDirectory{users: map[string]domain.User{
			regularUser.Email: regularUser,
			adminUser.Email:   adminUser,
		}},
		Ledger:    f.ledger,
		KV:        f.kv,
		Assistant: f.ai,
		Events:    f.sink,
		Logger:    logger.Discard(),
	}
	return f
}

func (f *fixture) store(t *testing.T) *Store {
	t.Helper()
	s := New(DefaultProfile, f.deps)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func login(t *testing.T, s *Store, u domain.User) {
	t.Helper()
	_, err := s.Login(context.Background(), u.Email)
	require.NoError(t, err)
}

func TestInit_Fresh(t *testing.T) {
	f := newFixture()
	s := New(DefaultProfile, f.deps)
	assert.True(t, s.Loading())

	require.NoError(t, s.Init(context.Background()))

	assert.False(t, s.Loading())
	assert.Len(t, s.Products(), 3)
	assert.Empty(t, s.Cart())
	_, ok := s.User()
	assert.False(t, ok)
}

func TestInit_RestoresPersistedState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.store(t)
	login(t, first, regularUser)
	_, err := first.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = first.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = first.AddToCart(ctx, "b")
	require.NoError(t, err)

	reloaded := f.store(t)

	u, ok := reloaded.User()
	require.True(t, ok)
	assert.Equal(t, regularUser, u)
	assert.Equal(t, first.Cart(), reloaded.Cart())
	assert.True(t, first.CartTotal().Equal(reloaded.CartTotal()))
}

func TestInit_CorruptStateIsIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.kv.Set(ctx, "storefront:default:session.user", []byte("{not json")))
	require.NoError(t, f.kv.Set(ctx, "storefront:default:session.cart", []byte(`{"version":99,"data":[]}`)))

	s := f.store(t)

	_, ok := s.User()
	assert.False(t, ok)
	assert.Empty(t, s.Cart())
	assert.False(t, s.Loading())
}

func TestInit_CatalogUnavailable(t *testing.T) {
	f := newFixture()
	f.catalog.err = catalog.ErrCatalogUnavailable
	s := New(DefaultProfile, f.deps)

	err := s.Init(context.Background())

	assert.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	assert.False(t, s.Loading())
}

func TestAddToCart_DistinctProducts(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()

	calls := map[string]int{"a": 3, "b": 1, "c": 2}
	for _, id := range []string{"a", "c", "a", "b", "c", "a"} {
		_, err := s.AddToCart(ctx, id)
		require.NoError(t, err)
	}

	items := s.Cart()
	assert.Len(t, items, len(calls))
	for _, item := range items {
		assert.Equal(t, calls[item.ID], item.Quantity, item.ID)
	}
	assert.Equal(t, 6, s.CartCount())
	assert.Equal(t, []string{"a", "c", "b"}, ids(items))
}

func TestAddToCart_SameProductTwice(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()

	_, err := s.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "a")
	require.NoError(t, err)

	items := s.Cart()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	s := newFixture().store(t)

	_, err := s.AddToCart(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, s.Cart())
}

func TestAddToCart_OverStockIsSoft(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()

	n, err := s.AddToCart(ctx, "b")
	require.NoError(t, err)
	assert.False(t, n.OverStock)

	n, err = s.AddToCart(ctx, "b")
	require.NoError(t, err)
	assert.True(t, n.OverStock)
	assert.Equal(t, 2, n.Quantity)
	assert.Equal(t, 1, n.Stock)
	assert.Equal(t, 2, s.CartCount())
}

func TestUpdateQuantity(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()
	_, err := s.AddToCart(ctx, "a")
	require.NoError(t, err)

	n, changed := s.UpdateQuantity(ctx, "a", 4)
	assert.True(t, changed)
	assert.Equal(t, 4, n.Quantity)
	assert.True(t, s.CartTotal().Equal(decimal.NewFromInt(40)))
}

func TestUpdateQuantity_BelowOneIsNoop(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()
	_, err := s.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "a")
	require.NoError(t, err)
	before := s.Cart()

	for _, q := range []int{0, -1, -100} {
		_, changed := s.UpdateQuantity(ctx, "a", q)
		assert.False(t, changed)
		assert.Equal(t, before, s.Cart())
	}
}

func TestUpdateQuantity_AbsentIsNoop(t *testing.T) {
	s := newFixture().store(t)

	_, changed := s.UpdateQuantity(context.Background(), "a", 3)

	assert.False(t, changed)
	assert.Empty(t, s.Cart())
}

func TestRemoveFromCart(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()
	_, err := s.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "b")
	require.NoError(t, err)

	assert.False(t, s.RemoveFromCart(ctx, "missing"))
	assert.Len(t, s.Cart(), 2)

	assert.True(t, s.RemoveFromCart(ctx, "a"))
	assert.Equal(t, []string{"b"}, ids(s.Cart()))
}

func TestClearCart(t *testing.T) {
	f := newFixture()
	s := f.store(t)
	ctx := context.Background()
	_, err := s.AddToCart(ctx, "a")
	require.NoError(t, err)

	s.ClearCart(ctx)

	assert.Empty(t, s.Cart())
	assert.Empty(t, f.store(t).Cart())
}

func TestCartTotal_Scenario(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()

	_, err := s.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "a")
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, "25", s.CartTotal().String())
}

func TestCartTotal_TracksEveryMutation(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()

	expect := func(want string) {
		t.Helper()
		assert.True(t, s.CartTotal().Equal(decimal.RequireFromString(want)), "total %s, want %s", s.CartTotal(), want)
	}

	expect("0")
	_, _ = s.AddToCart(ctx, "c")
	expect("2.5")
	_, _ = s.AddToCart(ctx, "a")
	expect("12.5")
	s.UpdateQuantity(ctx, "c", 3)
	expect("17.5")
	s.RemoveFromCart(ctx, "a")
	expect("7.5")
	s.ClearCart(ctx)
	expect("0")
}

func TestQuote(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()
	_, _ = s.AddToCart(ctx, "a")
	_, _ = s.AddToCart(ctx, "a")
	_, _ = s.AddToCart(ctx, "b")

	q := s.Quote()

	assert.Equal(t, 3, q.Items)
	assert.Equal(t, "25.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", q.Tax.StringFixed(2))
	assert.Equal(t, "27.00", q.Total.StringFixed(2))
}

func TestLogin(t *testing.T) {
	f := newFixture()
	s := f.store(t)

	u, err := s.Login(context.Background(), regularUser.Email)
	require.NoError(t, err)
	assert.Equal(t, regularUser, u)

	current, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, regularUser, current)
}

func TestLogin_UnknownEmail(t *testing.T) {
	s := newFixture().store(t)

	_, err := s.Login(context.Background(), "nobody@demo.com")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, ok := s.User()
	assert.False(t, ok)
}

func TestLogin_UnknownEmailKeepsExistingUser(t *testing.T) {
	s := newFixture().store(t)
	login(t, s, regularUser)

	_, err := s.Login(context.Background(), "nobody@demo.com")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	u, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, regularUser.ID, u.ID)
}

func TestLogin_StaleResultDiscarded(t *testing.T) {
	f := newFixture()
	f.deps.LoginDelay = 50 * time.Millisecond
	s := f.store(t)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = s.Login(context.Background(), adminUser.Email)
	}()
	time.Sleep(10 * time.Millisecond)

	u, err := s.Login(context.Background(), regularUser.Email)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, regularUser.ID, u.ID)
	assert.ErrorIs(t, firstErr, ErrSuperseded)

	current, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, regularUser.ID, current.ID)
}

func TestLogout(t *testing.T) {
	f := newFixture()
	s := f.store(t)
	login(t, s, adminUser)
	_, _ = s.AddToCart(context.Background(), "a")

	s.Logout(context.Background())

	_, ok := s.User()
	assert.False(t, ok)
	assert.Empty(t, s.Orders())
	assert.Len(t, s.Cart(), 1)

	reloaded := f.store(t)
	_, ok = reloaded.User()
	assert.False(t, ok)
}

func TestLogout_DuringUserPersistStaysLoggedOut(t *testing.T) {
	f := newFixture()
	kv := newGatedKV("storefront:default:session.user")
	f.deps.KV = kv
	s := f.store(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Login(ctx, regularUser.Email)
		assert.NoError(t, err)
	}()
	<-kv.entered

	go func() {
		defer wg.Done()
		s.Logout(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	close(kv.release)
	wg.Wait()

	_, ok := s.User()
	assert.False(t, ok)

	reloaded := f.store(t)
	_, ok = reloaded.User()
	assert.False(t, ok, "logged out user must not come back after reload")
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture()
	s := f.store(t)
	login(t, s, regularUser)
	ctx := context.Background()
	_, _ = s.AddToCart(ctx, "a")
	_, _ = s.AddToCart(ctx, "a")
	_, _ = s.AddToCart(ctx, "b")

	cartBefore := s.Cart()
	totalBefore := s.CartTotal()
	ledgerBefore := f.ledger.Len()

	order, err := s.PlaceOrder(ctx, validShipping)
	require.NoError(t, err)

	assert.Empty(t, s.Cart())
	assert.True(t, s.CartTotal().IsZero())
	assert.Equal(t, ledgerBefore+1, f.ledger.Len())

	assert.Equal(t, cartBefore, order.Items)
	assert.True(t, totalBefore.Equal(order.Total))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, regularUser.ID, order.UserID)
	assert.Equal(t, validShipping, order.Shipping)

	orders := s.Orders()
	require.NotEmpty(t, orders)
	assert.Equal(t, order.ID, orders[0].ID)

	assert.Empty(t, f.store(t).Cart(), "cleared cart is persisted")

	emitted := f.sink.emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.TypeOrderPlaced, emitted[0].Type)
	assert.Equal(t, order.ID, emitted[0].OrderID)
}

func TestPlaceOrder_Guest(t *testing.T) {
	s := newFixture().store(t)
	ctx := context.Background()
	_, _ = s.AddToCart(ctx, "a")

	order, err := s.PlaceOrder(ctx, validShipping)
	require.NoError(t, err)

	assert.Equal(t, domain.GuestOwner, order.UserID)
	assert.Empty(t, s.Orders(), "anonymous viewer sees no orders")
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture()
	s := f.store(t)

	_, err := s.PlaceOrder(context.Background(), validShipping)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, f.ledger.Len())
}

func TestPlaceOrder_InvalidShipping(t *testing.T) {
	f := newFixture()
	s := f.store(t)
	_, _ = s.AddToCart(context.Background(), "a")

	_, err := s.PlaceOrder(context.Background(), domain.ShippingDetails{Name: "Alex"})

	assert.ErrorIs(t, err, ErrInvalidShipping)
	assert.Len(t, s.Cart(), 1)
	assert.Zero(t, f.ledger.Len())
}

func TestPlaceOrder_LedgerFailureKeepsCart(t *testing.T) {
	f := newFixture()
	f.deps.Ledger = ledger.New(ledger.WithArchive(failingArchive{}))
	s := f.store(t)
	ctx := context.Background()
	_, _ = s.AddToCart(ctx, "a")
	cartBefore := s.Cart()

	_, err := s.PlaceOrder(ctx, validShipping)

	require.Error(t, err)
	assert.Equal(t, cartBefore, s.Cart())
	assert.Zero(t, f.deps.Ledger.Len())
	assert.Empty(t, f.sink.emitted())
}

func TestPlaceOrder_Superseded(t *testing.T) {
	f := newFixture()
	f.deps.CheckoutDelay = 50 * time.Millisecond
	s := f.store(t)
	ctx := context.Background()
	_, _ = s.AddToCart(ctx, "a")

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = s.PlaceOrder(ctx, validShipping)
	}()
	time.Sleep(10 * time.Millisecond)

	order, err := s.PlaceOrder(ctx, validShipping)
	wg.Wait()

	require.NoError(t, err)
	assert.ErrorIs(t, firstErr, ErrSuperseded)
	assert.Equal(t, 1, f.ledger.Len())
	assert.Len(t, order.Items, 1)
}

func TestPlaceOrder_OwnerIsBuyerWhenLoggedOutMidway(t *testing.T) {
	f := newFixture()
	f.deps.CheckoutDelay = 50 * time.Millisecond
	s := f.store(t)
	ctx := context.Background()
	login(t, s, regularUser)
	_, _ = s.AddToCart(ctx, "a")

	var wg sync.WaitGroup
	var order domain.Order
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		order, err = s.PlaceOrder(ctx, validShipping)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Logout(ctx)
	login(t, s, adminUser)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, regularUser.ID, order.UserID)
}

func TestPlaceOrder_Cancelled(t *testing.T) {
	f := newFixture()
	f.deps.CheckoutDelay = time.Second
	s := f.store(t)
	_, _ = s.AddToCart(context.Background(), "a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.PlaceOrder(ctx, validShipping)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, s.Cart(), 1)
	assert.Zero(t, f.ledger.Len())
}

func TestUpdateOrderStatus_Scenario(t *testing.T) {
	f := newFixture()
	items := []domain.CartItem{{Product: productA, Quantity: 2}}
	f.ledger.Seed(domain.Order{
		ID:        "ord_1",
		UserID:    regularUser.ID,
		Items:     items,
		Total:     decimal.NewFromInt(20),
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	})
	s := f.store(t)
	login(t, s, adminUser)

	ok, err := s.UpdateOrderStatus(context.Background(), "ord_1", domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.True(t, ok)

	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "ord_1", orders[0].ID)
	assert.Equal(t, domain.OrderStatusShipped, orders[0].Status)
	assert.Equal(t, items, orders[0].Items)
	assert.Equal(t, "20", orders[0].Total.String())

	emitted := f.sink.emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.TypeStatusChanged, emitted[0].Type)
	assert.Equal(t, domain.OrderStatusShipped, emitted[0].Status)
}

func TestUpdateOrderStatus_SameStatusEmitsNothing(t *testing.T) {
	f := newFixture()
	f.ledger.Seed(domain.Order{ID: "ord_1", UserID: regularUser.ID, Status: domain.OrderStatusShipped})
	s := f.store(t)
	login(t, s, adminUser)

	ok, err := s.UpdateOrderStatus(context.Background(), "ord_1", domain.OrderStatusShipped)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.sink.emitted())
}

func TestUpdateOrderStatus_RequiresAdmin(t *testing.T) {
	f := newFixture()
	f.ledger.Seed(domain.Order{ID: "ord_1", UserID: regularUser.ID, Status: domain.OrderStatusPending})
	s := f.store(t)

	_, err := s.UpdateOrderStatus(context.Background(), "ord_1", domain.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrForbidden)

	login(t, s, regularUser)
	_, err = s.UpdateOrderStatus(context.Background(), "ord_1", domain.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrForbidden)

	o, _ := f.ledger.Get("ord_1")
	assert.Equal(t, domain.OrderStatusPending, o.Status)
}

func TestUpdateOrderStatus_UnknownOrderAndInvalidStatus(t *testing.T) {
	f := newFixture()
	f.ledger.Seed(domain.Order{ID: "ord_1", UserID: regularUser.ID, Status: domain.OrderStatusPending})
	s := f.store(t)
	login(t, s, adminUser)

	ok, err := s.UpdateOrderStatus(context.Background(), "ord_missing", domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UpdateOrderStatus(context.Background(), "ord_1", domain.OrderStatus("teleported"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, f.sink.emitted())
}

func TestOrders_Visibility(t *testing.T) {
	f := newFixture()
	f.ledger.Seed(
		domain.Order{ID: "ord_u1", UserID: regularUser.ID, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		domain.Order{ID: "ord_u2", UserID: adminUser.ID, CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	)
	s := f.store(t)

	assert.Empty(t, s.Orders())
	_, ok := s.Order("ord_u1")
	assert.False(t, ok)

	login(t, s, regularUser)
	assert.Equal(t, []string{"ord_u1"}, orderIDs(s.Orders()))
	_, ok = s.Order("ord_u2")
	assert.False(t, ok)

	login(t, s, adminUser)
	assert.Equal(t, []string{"ord_u2", "ord_u1"}, orderIDs(s.Orders()))
	_, ok = s.Order("ord_u1")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	f := newFixture()
	s := f.store(t)
	ctx := context.Background()
	_, _ = s.AddToCart(ctx, "a")
	_, err := s.PlaceOrder(ctx, validShipping)
	require.NoError(t, err)

	_, err = s.Stats()
	assert.ErrorIs(t, err, ErrForbidden)

	login(t, s, adminUser)
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OrderCount)
	assert.Equal(t, "10", stats.Revenue.String())
}

func TestProfilesAreIsolated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	alice := New("alice", f.deps)
	require.NoError(t, alice.Init(ctx))
	bob := New("bob", f.deps)
	require.NoError(t, bob.Init(ctx))

	_, _ = alice.AddToCart(ctx, "a")
	login(t, alice, regularUser)

	assert.Empty(t, bob.Cart())
	_, ok := bob.User()
	assert.False(t, ok)
}

func TestAskAssistant(t *testing.T) {
	f := newFixture()
	s := f.store(t)

	insight, err := s.AskAssistant(context.Background(), "a", "is it loud?")
	require.NoError(t, err)
	assert.Equal(t, "answer: is it loud?", insight.Answer)

	last, ok := s.LastInsight("a")
	require.True(t, ok)
	assert.Equal(t, insight, last)

	_, err = s.AskAssistant(context.Background(), "missing", "?")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAskAssistant_StaleAnswerDiscarded(t *testing.T) {
	f := newFixture()
	f.ai.delays = map[string]time.Duration{"slow": 80 * time.Millisecond}
	s := f.store(t)

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = s.AskAssistant(context.Background(), "a", "slow")
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := s.AskAssistant(context.Background(), "a", "fast")
	require.NoError(t, err)
	wg.Wait()

	assert.ErrorIs(t, slowErr, ErrSuperseded)
	last, ok := s.LastInsight("a")
	require.True(t, ok)
	assert.Equal(t, "fast", last.Question)
}

func TestReviewSummary_Cached(t *testing.T) {
	f := newFixture()
	s := f.store(t)

	first, err := s.ReviewSummary(context.Background(), "a")
	require.NoError(t, err)
	second, err := s.ReviewSummary(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.ai.calls)
}

func TestReviewSummary_FallbackNotCached(t *testing.T) {
	f := newFixture()
	f.ai.summary = assistant.FallbackSummaryFailed
	s := f.store(t)

	for i := 0; i < 2; i++ {
		summary, err := s.ReviewSummary(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, assistant.FallbackSummaryFailed, summary)
	}
	assert.Equal(t, 2, f.ai.calls)
}

func ids(items []domain.CartItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func orderIDs(orders []domain.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
