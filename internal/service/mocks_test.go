package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	commits   int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.commits++
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// fakeStore is an in-memory OrderStore and PaymentStore. Rollbacks are not
// modelled, so tests only rely on state after successful calls.
type fakeStore struct {
	mu       sync.Mutex
	clock    time.Time
	names    map[uuid.UUID]string
	orders   map[uuid.UUID]database.Order
	items    map[database.ItemKind]map[uuid.UUID]database.OrderItem
	payments map[uuid.UUID]database.Payment
	links    map[database.ItemKind]map[uuid.UUID][]uuid.UUID
	refunds  map[uuid.UUID]database.Refund

	// failures forces the named method to return the error.
	failures map[string]error
	// short makes the named update method report one row fewer than it
	// changed.
	short map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:    time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		names:    map[uuid.UUID]string{},
		orders:   map[uuid.UUID]database.Order{},
		items:    map[database.ItemKind]map[uuid.UUID]database.OrderItem{database.ItemKindFood: {}, database.ItemKindDrink: {}},
		payments: map[uuid.UUID]database.Payment{},
		links:    map[database.ItemKind]map[uuid.UUID][]uuid.UUID{database.ItemKindFood: {}, database.ItemKindDrink: {}},
		refunds:  map[uuid.UUID]database.Refund{},
		failures: map[string]error{},
		short:    map[string]bool{},
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) fail(name string) error {
	return f.failures[name]
}

func (f *fakeStore) count(name string, n int64) int64 {
	if f.short[name] && n > 0 {
		return n - 1
	}
	return n
}

func (f *fakeStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	now := f.tick()
	o := database.Order{
		ID:          uuid.New(),
		TableNumber: arg.TableNumber,
		ServerID:    arg.ServerID,
		GuestCount:  arg.GuestCount,
		Status:      arg.Status,
		Discount:    arg.Discount,
		TotalAmount: arg.TotalAmount,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return f.GetOrder(ctx, id)
}

func (f *fakeStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []database.Order{}
	for _, o := range f.orders {
		if arg.Status.Valid && o.Status != arg.Status.OrderStatus {
			continue
		}
		if arg.ServerID.Valid && o.ServerID != uuid.UUID(arg.ServerID.Bytes) {
			continue
		}
		if arg.TableNumber.Valid && o.TableNumber != arg.TableNumber.String {
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b database.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	start := min(int(arg.Offset), len(out))
	end := min(start+int(arg.Limit), len(out))
	return out[start:end], nil
}

func (f *fakeStore) UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[arg.ID]
	if !ok || o.Version != arg.Version {
		return database.Order{}, pgx.ErrNoRows
	}
	o.TotalAmount = arg.TotalAmount
	o.Version++
	o.UpdatedAt = f.tick()
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) UpdateOrderProperties(ctx context.Context, arg database.UpdateOrderPropertiesParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateOrderProperties"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.TableNumber = arg.TableNumber
	o.ServerID = arg.ServerID
	o.GuestCount = arg.GuestCount
	o.Status = arg.Status
	o.Discount = arg.Discount
	o.TotalAmount = arg.TotalAmount
	o.CompletedAt = arg.CompletedAt
	o.Version++
	o.UpdatedAt = f.tick()
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.CompletedAt = arg.CompletedAt
	o.Version++
	o.UpdatedAt = f.tick()
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return 0, nil
	}
	delete(f.orders, id)
	return 1, nil
}

func (f *fakeStore) CountPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.payments {
		if p.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateOrderItem(ctx context.Context, kind database.ItemKind, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateOrderItem"); err != nil {
		return database.OrderItem{}, err
	}
	item := database.OrderItem{
		ID:             uuid.New(),
		OrderID:        arg.OrderID,
		CatalogItemID:  arg.CatalogItemID,
		Name:           f.names[arg.CatalogItemID],
		Price:          arg.Price,
		Discount:       arg.Discount,
		FinalPrice:     arg.FinalPrice,
		GuestNumber:    arg.GuestNumber,
		SpecialRequest: arg.SpecialRequest,
		Allergies:      arg.Allergies,
		PaymentStatus:  database.ItemPaymentStatusNONE,
		CreatedAt:      f.tick(),
	}
	f.items[kind][item.ID] = item
	return item, nil
}

func (f *fakeStore) ListOrderItems(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) ([]database.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []database.OrderItem{}
	for _, item := range f.items[kind] {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b database.OrderItem) int {
		if c := cmp.Compare(a.GuestNumber, b.GuestNumber); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) GetOrderItemsForUpdate(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []database.OrderItem{}
	for _, id := range ids {
		if item, ok := f.items[kind][id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateOrderItemPrice(ctx context.Context, kind database.ItemKind, arg database.UpdateOrderItemPriceParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[kind][arg.ID]
	if !ok {
		return 0, nil
	}
	item.Price = arg.Price
	item.Discount = arg.Discount
	item.FinalPrice = arg.FinalPrice
	f.items[kind][arg.ID] = item
	return f.count("UpdateOrderItemPrice", 1), nil
}

func (f *fakeStore) MarkOrderItemsPrinted(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) (int64, error) {
	n := f.updateItems(kind, ids, func(item *database.OrderItem) bool {
		if item.Printed {
			return false
		}
		item.Printed = true
		return true
	})
	return f.count("MarkOrderItemsPrinted", n), nil
}

func (f *fakeStore) MarkOrderItemsFired(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) (int64, error) {
	return f.updateItems(kind, ids, func(item *database.OrderItem) bool {
		if !item.Printed || item.Fired {
			return false
		}
		item.Fired = true
		return true
	}), nil
}

func (f *fakeStore) updateItems(kind database.ItemKind, ids []uuid.UUID, apply func(*database.OrderItem) bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		item, ok := f.items[kind][id]
		if !ok || !apply(&item) {
			continue
		}
		f.items[kind][id] = item
		n++
	}
	return n
}

func (f *fakeStore) DeleteOrderItems(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, item := range f.items[kind] {
		if item.OrderID == orderID {
			delete(f.items[kind], id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ClaimItemsForPayment(ctx context.Context, kind database.ItemKind, orderID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if err := f.fail("ClaimItemsForPayment"); err != nil {
		return 0, err
	}
	n := f.updateItems(kind, ids, func(item *database.OrderItem) bool {
		if item.OrderID != orderID ||
			item.PaymentStatus == database.ItemPaymentStatusPENDING ||
			item.PaymentStatus == database.ItemPaymentStatusPAID {
			return false
		}
		item.PaymentStatus = database.ItemPaymentStatusPENDING
		return true
	})
	return f.count("ClaimItemsForPayment", n), nil
}

func (f *fakeStore) SetItemsPaymentStatus(ctx context.Context, kind database.ItemKind, arg database.SetItemsPaymentStatusParams) (int64, error) {
	return f.updateItems(kind, arg.IDs, func(item *database.OrderItem) bool {
		if item.OrderID != arg.OrderID {
			return false
		}
		item.PaymentStatus = arg.Status
		return true
	}), nil
}

func (f *fakeStore) ListItemPaymentStatuses(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) ([]database.ItemPaymentStatus, error) {
	items, _ := f.ListOrderItems(ctx, kind, orderID)
	out := make([]database.ItemPaymentStatus, len(items))
	for i, item := range items {
		out[i] = item.PaymentStatus
	}
	return out, nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := database.Payment{
		ID:            uuid.New(),
		OrderID:       arg.OrderID,
		Amount:        arg.Amount,
		Tax:           arg.Tax,
		ServiceCharge: arg.ServiceCharge,
		TotalAmount:   arg.TotalAmount,
		Tip:           arg.Tip,
		Status:        arg.Status,
		CreatedAt:     f.tick(),
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetPayment(ctx context.Context, id uuid.UUID) (database.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return database.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (database.Payment, error) {
	return f.GetPayment(ctx, id)
}

func (f *fakeStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []database.Payment{}
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b database.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[arg.ID]
	if !ok {
		return database.Payment{}, pgx.ErrNoRows
	}
	p.Status = arg.Status
	p.CompletedAt = arg.CompletedAt
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeStore) LinkPaymentItems(ctx context.Context, kind database.ItemKind, paymentID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[kind][paymentID] = append(f.links[kind][paymentID], itemIDs...)
	return int64(len(itemIDs)), nil
}

func (f *fakeStore) ListPaymentItemIDs(ctx context.Context, kind database.ItemKind, paymentID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.links[kind][paymentID]), nil
}

func (f *fakeStore) CreateRefund(ctx context.Context, arg database.CreateRefundParams) (database.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.refunds[arg.PaymentID]; ok {
		return database.Refund{}, errors.New("duplicate key value violates unique constraint \"refunds_payment_id_key\"")
	}
	r := database.Refund{
		ID:        uuid.New(),
		PaymentID: arg.PaymentID,
		Reason:    arg.Reason,
		Amount:    arg.Amount,
		Status:    arg.Status,
		CreatedAt: f.tick(),
	}
	f.refunds[arg.PaymentID] = r
	return r, nil
}

func (f *fakeStore) item(kind database.ItemKind, id uuid.UUID) database.OrderItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[kind][id]
}

func (f *fakeStore) order(id uuid.UUID) database.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

// fakeCatalog serves fixed prices.
type fakeCatalog struct {
	food  map[uuid.UUID]decimal.Decimal
	drink map[uuid.UUID]decimal.Decimal
	err   error

	mu    sync.Mutex
	calls int
}

func (c *fakeCatalog) FoodPrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return c.lookup(c.food, ids)
}

func (c *fakeCatalog) DrinkPrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return c.lookup(c.drink, ids)
}

func (c *fakeCatalog) lookup(prices map[uuid.UUID]decimal.Decimal, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, id := range ids {
		if p, ok := prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// mapCache is an unexpiring Cache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]any
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]any{}}
}

func (c *mapCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *mapCache) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// --- Test helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	return numericToDecimal(n).Equal(dec(expected))
}

func assertKind(t *testing.T, err, kind, detail error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected kind %v, got %v", kind, err)
	}
	if detail != nil && !errors.Is(err, detail) {
		t.Fatalf("expected %v, got %v", detail, err)
	}
}

// fixture wires both services to one fake store.
type fixture struct {
	store    *fakeStore
	catalog  *fakeCatalog
	cache    *mapCache
	events   *recordingPublisher
	tx       *mockTx
	orders   *OrderService
	payments *PaymentService

	burger, salad, cola, wine uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		store:  newFakeStore(),
		cache:  newMapCache(),
		events: &recordingPublisher{},
		tx:     &mockTx{},
		burger: uuid.New(),
		salad:  uuid.New(),
		cola:   uuid.New(),
		wine:   uuid.New(),
	}
	f.store.names[f.burger] = "Burger"
	f.store.names[f.salad] = "Salad"
	f.store.names[f.cola] = "Cola"
	f.store.names[f.wine] = "Wine"
	f.catalog = &fakeCatalog{
		food:  map[uuid.UUID]decimal.Decimal{f.burger: dec("10.00"), f.salad: dec("5.00")},
		drink: map[uuid.UUID]decimal.Decimal{f.cola: dec("3.00"), f.wine: dec("8.50")},
	}

	pool := &mockTxBeginner{tx: f.tx}
	clock := func() time.Time { return time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) }
	opts := []Option{WithCache(f.cache, time.Minute), WithEvents(f.events), WithClock(clock)}
	f.orders = NewOrderService(pool, func(db database.DBTX) OrderStore { return f.store }, f.catalog, opts...)
	f.payments = NewPaymentService(pool, func(db database.DBTX) PaymentStore { return f.store }, opts...)
	return f
}

func item(catalogID uuid.UUID) LineItem {
	return LineItem{CatalogItemID: catalogID}
}

// createOrder opens a two-guest order: a burger and a cola for guest 1, a
// salad for guest 2.
func (f *fixture) createOrder(t *testing.T) *OrderView {
	t.Helper()
	view, err := f.orders.CreateOrder(context.Background(), CreateOrderRequest{
		TableNumber: "T4",
		ServerID:    uuid.New(),
		GuestCount:  2,
		FoodItems: []GuestItemGroup{
			{GuestNumber: 1, Items: []LineItem{item(f.burger)}},
			{GuestNumber: 2, Items: []LineItem{item(f.salad)}},
		},
		DrinkItems: []GuestItemGroup{
			{GuestNumber: 1, Items: []LineItem{item(f.cola)}},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return view
}

func itemIDs(groups []GuestItemGroup) []uuid.UUID {
	ids := []uuid.UUID{}
	for _, g := range groups {
		for _, item := range g.Items {
			ids = append(ids, item.ID)
		}
	}
	return ids
}
