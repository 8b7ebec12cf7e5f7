package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/kiwari-pos/floor/internal/enum"
)

const (
	orderService = "order"

	defaultListLimit = 20
	maxListLimit     = 100
)

// OrderStore defines the DB methods needed by the order lifecycle.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	UpdateOrderProperties(ctx context.Context, arg database.UpdateOrderPropertiesParams) (database.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error)
	CountPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)

	CreateOrderItem(ctx context.Context, kind database.ItemKind, arg database.CreateOrderItemParams) (database.OrderItem, error)
	ListOrderItems(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) ([]database.OrderItem, error)
	GetOrderItemsForUpdate(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderItemPrice(ctx context.Context, kind database.ItemKind, arg database.UpdateOrderItemPriceParams) (int64, error)
	MarkOrderItemsPrinted(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) (int64, error)
	MarkOrderItemsFired(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) (int64, error)
	DeleteOrderItems(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// OrderService handles the order lifecycle: creation, item updates, kitchen
// flags, property patches and deletion.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	pricing  *Reconciler
	deps
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, catalog CatalogReader, opts ...Option) *OrderService {
	return &OrderService{
		pool:     pool,
		newStore: newStore,
		pricing:  NewReconciler(catalog),
		deps:     newDeps(opts),
	}
}

// orderTransitions lists the statuses each non-terminal status may move to
// through a property patch.
var orderTransitions = map[database.OrderStatus][]database.OrderStatus{
	database.OrderStatusRECEIVED:   {database.OrderStatusINPROGRESS, database.OrderStatusREADYTOPAY, database.OrderStatusCANCELED},
	database.OrderStatusINPROGRESS: {database.OrderStatusSERVED, database.OrderStatusREADYTOPAY, database.OrderStatusCANCELED},
	database.OrderStatusSERVED:     {database.OrderStatusREADYTOPAY, database.OrderStatusCANCELED},
	database.OrderStatusREADYTOPAY: {database.OrderStatusCOMPLETED, database.OrderStatusDISPUTED, database.OrderStatusCANCELED},
}

func isTerminal(s database.OrderStatus) bool {
	switch s {
	case database.OrderStatusCOMPLETED, database.OrderStatusDISPUTED, database.OrderStatusCANCELED:
		return true
	}
	return false
}

func validOrderStatus(s database.OrderStatus) bool {
	_, ok := orderTransitions[s]
	return ok || isTerminal(s)
}

// CreateOrder validates the request, prices every item from the catalog and
// stores the order with its items in one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderView, error) {
	view, err := s.createOrder(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, orderService, "create order", err)
	}
	s.cache.DeleteByPrefix(orderListPrefix)
	s.publish(ctx, Event{Type: enum.EventOrderCreated, OrderID: view.ID, Status: string(view.Status)})
	return view, nil
}

func (s *OrderService) createOrder(ctx context.Context, req CreateOrderRequest) (*OrderView, error) {
	if strings.TrimSpace(req.TableNumber) == "" {
		return nil, validationErr(orderService, ErrMissingTable)
	}
	if req.ServerID == uuid.Nil {
		return nil, validationErr(orderService, ErrMissingServer)
	}
	if req.GuestCount < 1 {
		return nil, validationErr(orderService, ErrInvalidGuestCount)
	}
	if countItems(req.FoodItems)+countItems(req.DrinkItems) == 0 {
		return nil, validationErr(orderService, ErrEmptyItems)
	}
	if err := validateGuestNumbers(req.GuestCount, req.FoodItems, req.DrinkItems); err != nil {
		return nil, err
	}
	if !validDiscount(req.Discount) {
		return nil, validationErr(orderService, ErrInvalidDiscount)
	}

	food, drink, err := s.pricing.Reconcile(ctx, sanitizeIncoming(req.FoodItems), sanitizeIncoming(req.DrinkItems))
	if err != nil {
		return nil, err
	}
	total := CalculateTotal(food, drink, req.Discount)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		TableNumber: strings.TrimSpace(req.TableNumber),
		ServerID:    req.ServerID,
		GuestCount:  req.GuestCount,
		Status:      database.OrderStatusRECEIVED,
		Discount:    decimalToNumeric(req.Discount),
		TotalAmount: decimalToNumeric(total),
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, validationErr(orderService, ErrUnknownServer)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	foodRows, err := insertItems(ctx, store, database.ItemKindFood, order.ID, food)
	if err != nil {
		return nil, err
	}
	drinkRows, err := insertItems(ctx, store, database.ItemKindDrink, order.ID, drink)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return buildOrderView(order, foodRows, drinkRows), nil
}

func insertItems(ctx context.Context, store OrderStore, kind database.ItemKind, orderID uuid.UUID, groups []GuestItemGroup) ([]database.OrderItem, error) {
	rows := []database.OrderItem{}
	for _, item := range Flatten(groups) {
		row, err := store.CreateOrderItem(ctx, kind, database.CreateOrderItemParams{
			OrderID:        orderID,
			CatalogItemID:  item.CatalogItemID,
			Price:          decimalToNumeric(item.Price),
			Discount:       decimalToNumeric(item.Discount),
			FinalPrice:     decimalToNumeric(item.FinalPrice),
			GuestNumber:    item.GuestNumber,
			SpecialRequest: item.SpecialRequest,
			Allergies:      item.Allergies,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s item: %w", strings.ToLower(string(kind)), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func validateGuestNumbers(guestCount int32, groups ...[]GuestItemGroup) error {
	for _, gs := range groups {
		for _, g := range gs {
			if len(g.Items) == 0 {
				continue
			}
			if g.GuestNumber < 1 || g.GuestNumber > guestCount {
				return validationErr(orderService, fmt.Errorf("guest %d: %w", g.GuestNumber, ErrInvalidGuestNumber))
			}
		}
	}
	return nil
}

// FindOrderByID returns an order with its items grouped by guest.
func (s *OrderService) FindOrderByID(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	if v, ok := s.cache.Get(orderKey(id)); ok {
		if view, ok := v.(OrderView); ok {
			return &view, nil
		}
	}

	view, err := s.findOrder(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, orderService, "find order", err)
	}
	s.cache.Set(orderKey(id), *view, s.cacheTTL)
	return view, nil
}

func (s *OrderService) findOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	// Read only; the deferred rollback ends the snapshot.
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr(orderService, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return loadOrderView(ctx, store, order)
}

func loadOrderView(ctx context.Context, store OrderStore, order database.Order) (*OrderView, error) {
	food, drink, err := listItems(ctx, store, order.ID)
	if err != nil {
		return nil, err
	}
	return buildOrderView(order, food, drink), nil
}

func listItems(ctx context.Context, store OrderStore, orderID uuid.UUID) (food, drink []database.OrderItem, err error) {
	food, err = store.ListOrderItems(ctx, database.ItemKindFood, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("list food items: %w", err)
	}
	drink, err = store.ListOrderItems(ctx, database.ItemKindDrink, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("list drink items: %w", err)
	}
	return food, drink, nil
}

// ListOrders returns order summaries matching the filter, newest first.
func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]OrderSummary, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, validationErr(orderService, ErrInvalidPage)
	}
	if f.Status != "" && !validOrderStatus(f.Status) {
		return nil, validationErr(orderService, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status))
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)

	key := orderListKey(f)
	if v, ok := s.cache.Get(key); ok {
		if list, ok := v.([]OrderSummary); ok {
			return list, nil
		}
	}

	params := database.ListOrdersParams{Limit: f.Limit, Offset: f.Offset}
	if f.Status != "" {
		params.Status = database.NullOrderStatus{OrderStatus: f.Status, Valid: true}
	}
	if f.ServerID != uuid.Nil {
		params.ServerID = pgtype.UUID{Bytes: f.ServerID, Valid: true}
	}
	if f.TableNumber != "" {
		params.TableNumber = pgtype.Text{String: f.TableNumber, Valid: true}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, s.fail(ctx, orderService, "list orders", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	orders, err := s.newStore(tx).ListOrders(ctx, params)
	if err != nil {
		return nil, s.fail(ctx, orderService, "list orders", fmt.Errorf("list orders: %w", err))
	}
	list := make([]OrderSummary, len(orders))
	for i, o := range orders {
		list[i] = orderSummary(o)
	}
	s.cache.Set(key, list, s.cacheTTL)
	return list, nil
}

// UpdateItemsInOrder merges new items into an order, re-prices every item not
// yet committed to a payment and recomputes the total. Existing items are
// never removed.
func (s *OrderService) UpdateItemsInOrder(ctx context.Context, id uuid.UUID, req UpdateItemsRequest) (*OrderView, error) {
	view, added, err := s.updateItems(ctx, id, req)
	if err != nil {
		return nil, s.fail(ctx, orderService, "update order items", err)
	}
	s.invalidateOrder(id)
	s.publish(ctx, Event{Type: enum.EventOrderUpdated, OrderID: id, ItemIDs: added, Status: string(view.Status)})
	return view, nil
}

func (s *OrderService) updateItems(ctx context.Context, id uuid.UUID, req UpdateItemsRequest) (*OrderView, []uuid.UUID, error) {
	if countItems(req.FoodItems)+countItems(req.DrinkItems) == 0 {
		return nil, nil, validationErr(orderService, ErrEmptyItems)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := lockOrder(ctx, store, id, req.ExpectedVersion)
	if err != nil {
		return nil, nil, err
	}
	if err := validateGuestNumbers(order.GuestCount, req.FoodItems, req.DrinkItems); err != nil {
		return nil, nil, err
	}

	foodRows, drinkRows, err := listItems(ctx, store, id)
	if err != nil {
		return nil, nil, err
	}
	existingFood, existingDrink := groupRows(foodRows), groupRows(drinkRows)

	food, drink, err := s.pricing.Reconcile(ctx,
		MergeGuests(existingFood, sanitizeIncoming(req.FoodItems)),
		MergeGuests(existingDrink, sanitizeIncoming(req.DrinkItems)),
	)
	if err != nil {
		return nil, nil, err
	}

	added := []uuid.UUID{}
	for _, part := range []struct {
		kind     database.ItemKind
		existing []GuestItemGroup
		merged   []GuestItemGroup
	}{
		{database.ItemKindFood, existingFood, food},
		{database.ItemKindDrink, existingDrink, drink},
	} {
		ids, err := replaceItems(ctx, store, part.kind, id, part.existing, part.merged)
		if err != nil {
			return nil, nil, err
		}
		added = append(added, ids...)
	}

	total := CalculateTotal(food, drink, numericToDecimal(order.Discount))
	order, err = store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:          id,
		TotalAmount: decimalToNumeric(total),
		Version:     order.Version,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, conflictErr(orderService, ErrVersionMismatch)
		}
		return nil, nil, fmt.Errorf("update order total: %w", err)
	}

	view, err := loadOrderView(ctx, store, order)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return view, added, nil
}

// replaceItems writes the merged item set of one kind: stored items are
// re-priced in place, keeping their ids, kitchen flags and payment links, and
// new items are inserted. It returns the ids of the inserted items.
func replaceItems(ctx context.Context, store OrderStore, kind database.ItemKind, orderID uuid.UUID, existing, merged []GuestItemGroup) ([]uuid.UUID, error) {
	stored := make(map[uuid.UUID]LineItem)
	for _, item := range Flatten(existing) {
		stored[item.ID] = item.LineItem
	}

	var fresh []GuestItemGroup
	for _, g := range merged {
		var items []LineItem
		for _, item := range g.Items {
			if item.ID == uuid.Nil {
				items = append(items, item)
				continue
			}
			prev := stored[item.ID]
			if item.locked() || samePricing(prev, item) {
				continue
			}
			n, err := store.UpdateOrderItemPrice(ctx, kind, database.UpdateOrderItemPriceParams{
				ID:         item.ID,
				Price:      decimalToNumeric(item.Price),
				Discount:   decimalToNumeric(item.Discount),
				FinalPrice: decimalToNumeric(item.FinalPrice),
			})
			if err != nil {
				return nil, fmt.Errorf("reprice %s item: %w", strings.ToLower(string(kind)), err)
			}
			if n != 1 {
				return nil, conflictErr(orderService, fmt.Errorf("reprice %s item %s: %w", strings.ToLower(string(kind)), item.ID, ErrItemCountMismatch))
			}
		}
		if len(items) > 0 {
			fresh = append(fresh, GuestItemGroup{GuestNumber: g.GuestNumber, Items: items})
		}
	}

	rows, err := insertItems(ctx, store, kind, orderID, fresh)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func samePricing(a, b LineItem) bool {
	return a.Price.Equal(b.Price) && a.Discount.Equal(b.Discount) && a.FinalPrice.Equal(b.FinalPrice)
}

// lockOrder loads and row-locks an open order, checking the caller's expected
// version when one is given.
func lockOrder(ctx context.Context, store OrderStore, id uuid.UUID, expectedVersion int32) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, notFoundErr(orderService, ErrOrderNotFound)
		}
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if expectedVersion != 0 && expectedVersion != order.Version {
		return database.Order{}, conflictErr(orderService, ErrVersionMismatch)
	}
	if isTerminal(order.Status) {
		return database.Order{}, conflictErr(orderService, fmt.Errorf("%w: %s", ErrOrderClosed, order.Status))
	}
	return order, nil
}

// UpdateOrderProperties patches table, server, guest count, status and
// discount. A discount change recomputes the order total.
func (s *OrderService) UpdateOrderProperties(ctx context.Context, id uuid.UUID, req UpdateOrderPropertiesRequest) (*OrderView, error) {
	view, err := s.updateProperties(ctx, id, req)
	if err != nil {
		return nil, s.fail(ctx, orderService, "update order properties", err)
	}
	s.invalidateOrder(id)
	eventType := enum.EventOrderUpdated
	if view.Status == database.OrderStatusCOMPLETED {
		eventType = enum.EventOrderCompleted
	}
	s.publish(ctx, Event{Type: eventType, OrderID: id, Status: string(view.Status)})
	return view, nil
}

func (s *OrderService) updateProperties(ctx context.Context, id uuid.UUID, req UpdateOrderPropertiesRequest) (*OrderView, error) {
	if req.Status != nil && !validOrderStatus(*req.Status) {
		return nil, validationErr(orderService, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status))
	}
	if req.Discount != nil && !validDiscount(*req.Discount) {
		return nil, validationErr(orderService, ErrInvalidDiscount)
	}
	if req.TableNumber != nil && strings.TrimSpace(*req.TableNumber) == "" {
		return nil, validationErr(orderService, ErrMissingTable)
	}
	if req.ServerID != nil && *req.ServerID == uuid.Nil {
		return nil, validationErr(orderService, ErrMissingServer)
	}
	if req.GuestCount != nil && *req.GuestCount < 1 {
		return nil, validationErr(orderService, ErrInvalidGuestCount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := lockOrder(ctx, store, id, req.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	foodRows, drinkRows, err := listItems(ctx, store, id)
	if err != nil {
		return nil, err
	}
	food, drink := groupRows(foodRows), groupRows(drinkRows)

	params := database.UpdateOrderPropertiesParams{
		ID:          id,
		TableNumber: order.TableNumber,
		ServerID:    order.ServerID,
		GuestCount:  order.GuestCount,
		Status:      order.Status,
		Discount:    order.Discount,
		TotalAmount: order.TotalAmount,
		CompletedAt: order.CompletedAt,
	}
	if req.TableNumber != nil {
		params.TableNumber = strings.TrimSpace(*req.TableNumber)
	}
	if req.ServerID != nil {
		params.ServerID = *req.ServerID
	}
	if req.GuestCount != nil {
		if *req.GuestCount < maxGuestNumber(food, drink) {
			return nil, validationErr(orderService, ErrInvalidGuestCount)
		}
		params.GuestCount = *req.GuestCount
	}
	if req.Status != nil && *req.Status != order.Status {
		if !slices.Contains(orderTransitions[order.Status], *req.Status) {
			return nil, conflictErr(orderService, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, *req.Status))
		}
		params.Status = *req.Status
		params.CompletedAt = pgtype.Timestamptz{}
		if params.Status == database.OrderStatusCOMPLETED || params.Status == database.OrderStatusDISPUTED {
			params.CompletedAt = timestamptz(s.now())
		}
	}
	if req.Discount != nil {
		params.Discount = decimalToNumeric(*req.Discount)
		params.TotalAmount = decimalToNumeric(CalculateTotal(food, drink, *req.Discount))
	}

	order, err = store.UpdateOrderProperties(ctx, params)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, validationErr(orderService, ErrUnknownServer)
		}
		return nil, fmt.Errorf("update order properties: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return buildOrderView(order, foodRows, drinkRows), nil
}

// PrintOrderItems marks the selected items as sent to the kitchen printer and
// returns how many were marked.
func (s *OrderService) PrintOrderItems(ctx context.Context, sel ItemSelection) (int, error) {
	n, err := s.markItems(ctx, sel, enum.EventItemsPrinted, func(item database.OrderItem) error {
		if item.Printed {
			return conflictErr(orderService, fmt.Errorf("%w: %s", ErrAlreadyPrinted, item.ID))
		}
		return nil
	}, OrderStore.MarkOrderItemsPrinted)
	if err != nil {
		return 0, s.fail(ctx, orderService, "print items", err)
	}
	return n, nil
}

// CallOrderItems fires previously printed items and returns how many were
// fired.
func (s *OrderService) CallOrderItems(ctx context.Context, sel ItemSelection) (int, error) {
	n, err := s.markItems(ctx, sel, enum.EventItemsFired, func(item database.OrderItem) error {
		if !item.Printed {
			return conflictErr(orderService, fmt.Errorf("%w: %s", ErrNotPrinted, item.ID))
		}
		if item.Fired {
			return conflictErr(orderService, fmt.Errorf("%w: %s", ErrAlreadyFired, item.ID))
		}
		return nil
	}, OrderStore.MarkOrderItemsFired)
	if err != nil {
		return 0, s.fail(ctx, orderService, "fire items", err)
	}
	return n, nil
}

type markFunc func(store OrderStore, ctx context.Context, kind database.ItemKind, ids []uuid.UUID) (int64, error)

func (s *OrderService) markItems(ctx context.Context, sel ItemSelection, eventType string, check func(database.OrderItem) error, mark markFunc) (int, error) {
	if sel.empty() {
		return 0, validationErr(orderService, ErrEmptySelection)
	}
	if hasDuplicates(sel.FoodItemIDs) || hasDuplicates(sel.DrinkItemIDs) {
		return 0, validationErr(orderService, ErrDuplicateItem)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	touched := make(map[uuid.UUID][]uuid.UUID)
	open := make(map[uuid.UUID]bool)
	var total int64
	for _, part := range []struct {
		kind database.ItemKind
		ids  []uuid.UUID
	}{
		{database.ItemKindFood, sel.FoodItemIDs},
		{database.ItemKindDrink, sel.DrinkItemIDs},
	} {
		if len(part.ids) == 0 {
			continue
		}
		rows, err := store.GetOrderItemsForUpdate(ctx, part.kind, part.ids)
		if err != nil {
			return 0, fmt.Errorf("lock %s items: %w", strings.ToLower(string(part.kind)), err)
		}
		if len(rows) != len(part.ids) {
			return 0, notFoundErr(orderService, ErrItemNotFound)
		}
		for _, row := range rows {
			if !open[row.OrderID] {
				if err := requireOpenOrder(ctx, store, row.OrderID); err != nil {
					return 0, err
				}
				open[row.OrderID] = true
			}
			if err := check(row); err != nil {
				return 0, err
			}
			touched[row.OrderID] = append(touched[row.OrderID], row.ID)
		}
		n, err := mark(store, ctx, part.kind, part.ids)
		if err != nil {
			return 0, fmt.Errorf("mark %s items: %w", strings.ToLower(string(part.kind)), err)
		}
		if n != int64(len(part.ids)) {
			return 0, conflictErr(orderService, ErrItemCountMismatch)
		}
		total += n
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	for orderID, ids := range touched {
		s.invalidateOrder(orderID)
		s.publish(ctx, Event{Type: eventType, OrderID: orderID, ItemIDs: ids})
	}
	return int(total), nil
}

// DeleteOrder removes an order that has no payments and whose items never
// reached the kitchen or a payment.
func (s *OrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if err := s.deleteOrder(ctx, id); err != nil {
		return s.fail(ctx, orderService, "delete order", err)
	}
	s.invalidateOrder(id)
	s.cache.Delete(orderPaymentsKey(id))
	s.publish(ctx, Event{Type: enum.EventOrderDeleted, OrderID: id})
	return nil
}

func (s *OrderService) deleteOrder(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetOrderForUpdate(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundErr(orderService, ErrOrderNotFound)
		}
		return fmt.Errorf("lock order: %w", err)
	}

	payments, err := store.CountPaymentsByOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("count payments: %w", err)
	}
	if payments > 0 {
		return conflictErr(orderService, ErrOrderHasPayments)
	}

	food, drink, err := listItems(ctx, store, id)
	if err != nil {
		return err
	}
	for _, item := range slices.Concat(food, drink) {
		if item.Printed || item.Fired || item.PaymentStatus != database.ItemPaymentStatusNONE {
			return conflictErr(orderService, ErrOrderHasActiveItems)
		}
	}

	for _, kind := range []database.ItemKind{database.ItemKindFood, database.ItemKindDrink} {
		if _, err := store.DeleteOrderItems(ctx, kind, id); err != nil {
			return fmt.Errorf("delete %s items: %w", strings.ToLower(string(kind)), err)
		}
	}
	n, err := store.DeleteOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n == 0 {
		return notFoundErr(orderService, ErrOrderNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// requireOpenOrder rejects kitchen flag changes on terminal orders. Item rows
// are already locked, so the order is read without a row lock to keep the
// order-then-items lock order of the other mutations.
func requireOpenOrder(ctx context.Context, store OrderStore, id uuid.UUID) error {
	order, err := store.GetOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if isTerminal(order.Status) {
		return conflictErr(orderService, fmt.Errorf("%w: %s", ErrOrderClosed, order.Status))
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *OrderService) invalidateOrder(id uuid.UUID) {
	s.cache.Delete(orderKey(id))
	s.cache.DeleteByPrefix(orderListPrefix)
}

func hasDuplicates(ids []uuid.UUID) bool {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}
