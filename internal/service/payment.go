package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/kiwari-pos/floor/internal/enum"
	"github.com/shopspring/decimal"
)

const paymentService = "payment"

// PaymentStore defines the DB methods needed by the payment lifecycle.
// Satisfied by *database.Queries (and its WithTx variant).
type PaymentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)

	ListOrderItems(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) ([]database.OrderItem, error)
	ClaimItemsForPayment(ctx context.Context, kind database.ItemKind, orderID uuid.UUID, ids []uuid.UUID) (int64, error)
	SetItemsPaymentStatus(ctx context.Context, kind database.ItemKind, arg database.SetItemsPaymentStatusParams) (int64, error)
	ListItemPaymentStatuses(ctx context.Context, kind database.ItemKind, orderID uuid.UUID) ([]database.ItemPaymentStatus, error)

	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (database.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (database.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Payment, error)
	LinkPaymentItems(ctx context.Context, kind database.ItemKind, paymentID uuid.UUID, itemIDs []uuid.UUID) (int64, error)
	ListPaymentItemIDs(ctx context.Context, kind database.ItemKind, paymentID uuid.UUID) ([]uuid.UUID, error)
	CreateRefund(ctx context.Context, arg database.CreateRefundParams) (database.Refund, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentService handles payments against an order's items. Mutations lock
// the payment row before the order row.
type PaymentService struct {
	pool     TxBeginner
	newStore NewPaymentStore
	deps
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(pool TxBeginner, newStore NewPaymentStore, opts ...Option) *PaymentService {
	return &PaymentService{pool: pool, newStore: newStore, deps: newDeps(opts)}
}

var itemKinds = []database.ItemKind{database.ItemKindFood, database.ItemKindDrink}

// CreatePayment opens a PENDING payment for the selected items. Selected items
// must belong to the order and must not be pending or paid elsewhere.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentView, error) {
	view, err := s.createPayment(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, paymentService, "create payment", err)
	}
	s.invalidate(view.ID, view.OrderID)
	s.publish(ctx, Event{
		Type:      enum.EventPaymentCreated,
		OrderID:   view.OrderID,
		PaymentID: &view.ID,
		ItemIDs:   append(append([]uuid.UUID{}, view.FoodItemIDs...), view.DrinkItemIDs...),
		Status:    string(view.Status),
	})
	return view, nil
}

func (s *PaymentService) createPayment(ctx context.Context, req CreatePaymentRequest) (*PaymentView, error) {
	if len(req.FoodItemIDs)+len(req.DrinkItemIDs) == 0 {
		return nil, validationErr(paymentService, ErrNoPaymentItems)
	}
	if hasDuplicates(req.FoodItemIDs) || hasDuplicates(req.DrinkItemIDs) {
		return nil, validationErr(paymentService, ErrDuplicateItem)
	}
	if req.Tip.IsNegative() {
		return nil, validationErr(paymentService, ErrInvalidTip)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr(paymentService, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	switch order.Status {
	case database.OrderStatusCOMPLETED:
		return nil, conflictErr(paymentService, ErrOrderCompleted)
	case database.OrderStatusCANCELED:
		return nil, conflictErr(paymentService, fmt.Errorf("%w: %s", ErrOrderClosed, order.Status))
	}

	selected := map[database.ItemKind][]uuid.UUID{
		database.ItemKindFood:  req.FoodItemIDs,
		database.ItemKindDrink: req.DrinkItemIDs,
	}

	amount := decimal.Zero
	for _, kind := range itemKinds {
		if len(selected[kind]) == 0 {
			continue
		}
		sum, err := sumSelected(ctx, store, kind, order.ID, selected[kind])
		if err != nil {
			return nil, err
		}
		amount = amount.Add(sum)
	}
	tax, serviceCharge, total := paymentAmounts(amount)

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:       order.ID,
		Amount:        decimalToNumeric(amount),
		Tax:           decimalToNumeric(tax),
		ServiceCharge: decimalToNumeric(serviceCharge),
		TotalAmount:   decimalToNumeric(total),
		Tip:           decimalToNumeric(req.Tip),
		Status:        database.PaymentStatusPENDING,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	for _, kind := range itemKinds {
		ids := selected[kind]
		if len(ids) == 0 {
			continue
		}
		if _, err := store.LinkPaymentItems(ctx, kind, payment.ID, ids); err != nil {
			return nil, fmt.Errorf("link %s items: %w", strings.ToLower(string(kind)), err)
		}
		n, err := store.ClaimItemsForPayment(ctx, kind, order.ID, ids)
		if err != nil {
			return nil, fmt.Errorf("claim %s items: %w", strings.ToLower(string(kind)), err)
		}
		if n != int64(len(ids)) {
			return nil, conflictErr(paymentService, ErrItemAlreadyCommitted)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	view := paymentView(payment, req.FoodItemIDs, req.DrinkItemIDs)
	return &view, nil
}

// sumSelected validates the selected items of one kind against the order and
// returns the sum of their final prices.
func sumSelected(ctx context.Context, store PaymentStore, kind database.ItemKind, orderID uuid.UUID, ids []uuid.UUID) (decimal.Decimal, error) {
	rows, err := store.ListOrderItems(ctx, kind, orderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list %s items: %w", strings.ToLower(string(kind)), err)
	}
	byID := make(map[uuid.UUID]database.OrderItem, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	sum := decimal.Zero
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			return decimal.Zero, validationErr(paymentService, fmt.Errorf("%w: %s", ErrItemNotOnOrder, id))
		}
		if row.PaymentStatus == database.ItemPaymentStatusPENDING || row.PaymentStatus == database.ItemPaymentStatusPAID {
			return decimal.Zero, validationErr(paymentService, fmt.Errorf("%w: %s", ErrItemAlreadyCommitted, id))
		}
		sum = sum.Add(numericToDecimal(row.FinalPrice))
	}
	return sum, nil
}

// CompletePayment marks a pending payment and its items as paid. When every
// item of the order is then paid, the order is completed too.
func (s *PaymentService) CompletePayment(ctx context.Context, paymentID uuid.UUID) (*CompletePaymentResult, error) {
	result, err := s.completePayment(ctx, paymentID)
	if err != nil {
		return nil, s.fail(ctx, paymentService, "complete payment", err)
	}
	orderID := result.Payment.OrderID
	s.invalidate(paymentID, orderID)
	s.publish(ctx, Event{Type: enum.EventPaymentCompleted, OrderID: orderID, PaymentID: &paymentID, Status: string(result.Payment.Status)})
	if result.OrderCompleted {
		s.publish(ctx, Event{Type: enum.EventOrderCompleted, OrderID: orderID, Status: string(result.OrderStatus)})
	}
	return result, nil
}

func (s *PaymentService) completePayment(ctx context.Context, paymentID uuid.UUID) (*CompletePaymentResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	payment, order, err := lockPaymentAndOrder(ctx, store, paymentID)
	if err != nil {
		return nil, err
	}
	if order.Status == database.OrderStatusCOMPLETED {
		return nil, conflictErr(paymentService, ErrOrderCompleted)
	}
	if order.Status == database.OrderStatusCANCELED {
		return nil, conflictErr(paymentService, fmt.Errorf("%w: %s", ErrOrderClosed, order.Status))
	}
	if payment.Status != database.PaymentStatusPENDING {
		return nil, conflictErr(paymentService, fmt.Errorf("%w: %s", ErrPaymentNotPending, payment.Status))
	}

	now := s.now()
	payment, err = store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
		ID:          payment.ID,
		Status:      database.PaymentStatusPAID,
		CompletedAt: timestamptz(now),
	})
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	foodIDs, drinkIDs, err := setLinkedItemsStatus(ctx, store, payment, database.ItemPaymentStatusPAID)
	if err != nil {
		return nil, err
	}

	paid, err := orderFullyPaid(ctx, store, order.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:          order.ID,
			Status:      database.OrderStatusCOMPLETED,
			CompletedAt: timestamptz(now),
		})
		if err != nil {
			return nil, fmt.Errorf("complete order: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &CompletePaymentResult{
		Payment:        paymentView(payment, foodIDs, drinkIDs),
		OrderCompleted: paid,
		OrderStatus:    order.Status,
	}, nil
}

// orderFullyPaid reports whether the order has at least one item and every
// item is paid.
func orderFullyPaid(ctx context.Context, store PaymentStore, orderID uuid.UUID) (bool, error) {
	count := 0
	for _, kind := range itemKinds {
		statuses, err := store.ListItemPaymentStatuses(ctx, kind, orderID)
		if err != nil {
			return false, fmt.Errorf("list %s payment statuses: %w", strings.ToLower(string(kind)), err)
		}
		for _, st := range statuses {
			if st != database.ItemPaymentStatusPAID {
				return false, nil
			}
		}
		count += len(statuses)
	}
	return count > 0, nil
}

// RefundPayment refunds a paid payment in full and reopens the order for
// payment.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*RefundResult, error) {
	result, err := s.refundPayment(ctx, paymentID, reason)
	if err != nil {
		return nil, s.fail(ctx, paymentService, "refund payment", err)
	}
	orderID := result.Payment.OrderID
	s.invalidate(paymentID, orderID)
	s.publish(ctx, Event{Type: enum.EventPaymentRefunded, OrderID: orderID, PaymentID: &paymentID, Status: string(result.OrderStatus)})
	return result, nil
}

func (s *PaymentService) refundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*RefundResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr(paymentService, ErrEmptyRefundReason)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	payment, order, err := lockPaymentAndOrder(ctx, store, paymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case database.PaymentStatusREFUNDED:
		return nil, conflictErr(paymentService, ErrPaymentAlreadyRefunded)
	case database.PaymentStatusCANCELLED:
		return nil, conflictErr(paymentService, ErrPaymentAlreadyCancelled)
	case database.PaymentStatusPENDING:
		return nil, conflictErr(paymentService, ErrPaymentNotPaid)
	}

	amount := numericToDecimal(payment.TotalAmount).Add(numericToDecimal(payment.Tip))
	refund, err := store.CreateRefund(ctx, database.CreateRefundParams{
		PaymentID: payment.ID,
		Reason:    reason,
		Amount:    decimalToNumeric(amount),
		Status:    database.RefundStatusCOMPLETED,
	})
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	payment, err = store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
		ID:          payment.ID,
		Status:      database.PaymentStatusREFUNDED,
		CompletedAt: payment.CompletedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	foodIDs, drinkIDs, err := setLinkedItemsStatus(ctx, store, payment, database.ItemPaymentStatusREFUNDED)
	if err != nil {
		return nil, err
	}
	order, err = reopenOrder(ctx, store, order)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &RefundResult{
		Payment:     paymentView(payment, foodIDs, drinkIDs),
		Refund:      refundView(refund),
		OrderStatus: order.Status,
	}, nil
}

// CancelPayment abandons a pending payment and releases its items.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentView, error) {
	view, err := s.cancelPayment(ctx, paymentID)
	if err != nil {
		return nil, s.fail(ctx, paymentService, "cancel payment", err)
	}
	s.invalidate(paymentID, view.OrderID)
	s.publish(ctx, Event{Type: enum.EventPaymentCancelled, OrderID: view.OrderID, PaymentID: &paymentID, Status: string(view.Status)})
	return view, nil
}

func (s *PaymentService) cancelPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	payment, order, err := lockPaymentAndOrder(ctx, store, paymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case database.PaymentStatusCANCELLED:
		return nil, conflictErr(paymentService, ErrPaymentAlreadyCancelled)
	case database.PaymentStatusREFUNDED:
		return nil, conflictErr(paymentService, ErrPaymentAlreadyRefunded)
	case database.PaymentStatusPAID:
		return nil, conflictErr(paymentService, ErrPaymentAlreadyPaid)
	}

	payment, err = store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
		ID:     payment.ID,
		Status: database.PaymentStatusCANCELLED,
	})
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	foodIDs, drinkIDs, err := setLinkedItemsStatus(ctx, store, payment, database.ItemPaymentStatusCANCELLED)
	if err != nil {
		return nil, err
	}
	if _, err := reopenOrder(ctx, store, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	view := paymentView(payment, foodIDs, drinkIDs)
	return &view, nil
}

// lockPaymentAndOrder row-locks a payment and then its order.
func lockPaymentAndOrder(ctx context.Context, store PaymentStore, paymentID uuid.UUID) (database.Payment, database.Order, error) {
	payment, err := store.GetPaymentForUpdate(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, database.Order{}, notFoundErr(paymentService, ErrPaymentNotFound)
		}
		return database.Payment{}, database.Order{}, fmt.Errorf("lock payment: %w", err)
	}
	order, err := store.GetOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, database.Order{}, notFoundErr(paymentService, ErrOrderNotFound)
		}
		return database.Payment{}, database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	return payment, order, nil
}

// setLinkedItemsStatus moves every item linked to the payment to status and
// returns the linked food and drink ids.
func setLinkedItemsStatus(ctx context.Context, store PaymentStore, payment database.Payment, status database.ItemPaymentStatus) (food, drink []uuid.UUID, err error) {
	linked := make(map[database.ItemKind][]uuid.UUID, len(itemKinds))
	for _, kind := range itemKinds {
		ids, err := store.ListPaymentItemIDs(ctx, kind, payment.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list %s payment items: %w", strings.ToLower(string(kind)), err)
		}
		linked[kind] = ids
		if len(ids) == 0 {
			continue
		}
		if _, err := store.SetItemsPaymentStatus(ctx, kind, database.SetItemsPaymentStatusParams{
			OrderID: payment.OrderID,
			IDs:     ids,
			Status:  status,
		}); err != nil {
			return nil, nil, fmt.Errorf("set %s items %s: %w", strings.ToLower(string(kind)), status, err)
		}
	}
	return linked[database.ItemKindFood], linked[database.ItemKindDrink], nil
}

// reopenOrder moves the order back to READY_TO_PAY unless it was cancelled.
func reopenOrder(ctx context.Context, store PaymentStore, order database.Order) (database.Order, error) {
	if order.Status == database.OrderStatusCANCELED {
		return order, nil
	}
	order, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:          order.ID,
		Status:      database.OrderStatusREADYTOPAY,
		CompletedAt: pgtype.Timestamptz{},
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("reopen order: %w", err)
	}
	return order, nil
}

// FindPaymentByID returns a payment with its linked item ids.
func (s *PaymentService) FindPaymentByID(ctx context.Context, id uuid.UUID) (*PaymentView, error) {
	if v, ok := s.cache.Get(paymentKey(id)); ok {
		if view, ok := v.(PaymentView); ok {
			return &view, nil
		}
	}

	view, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, paymentService, "find payment", err)
	}
	s.cache.Set(paymentKey(id), *view, s.cacheTTL)
	return view, nil
}

func (s *PaymentService) findPayment(ctx context.Context, id uuid.UUID) (*PaymentView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	payment, err := store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr(paymentService, ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	view, err := loadPaymentView(ctx, store, payment)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListPaymentsByOrder returns every payment of an order, oldest first.
func (s *PaymentService) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]PaymentView, error) {
	if v, ok := s.cache.Get(orderPaymentsKey(orderID)); ok {
		if list, ok := v.([]PaymentView); ok {
			return list, nil
		}
	}

	list, err := s.listPayments(ctx, orderID)
	if err != nil {
		return nil, s.fail(ctx, paymentService, "list payments", err)
	}
	s.cache.Set(orderPaymentsKey(orderID), list, s.cacheTTL)
	return list, nil
}

func (s *PaymentService) listPayments(ctx context.Context, orderID uuid.UUID) ([]PaymentView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if _, err := store.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr(paymentService, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	payments, err := store.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	list := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		view, err := loadPaymentView(ctx, store, p)
		if err != nil {
			return nil, err
		}
		list = append(list, view)
	}
	return list, nil
}

func loadPaymentView(ctx context.Context, store PaymentStore, p database.Payment) (PaymentView, error) {
	food, err := store.ListPaymentItemIDs(ctx, database.ItemKindFood, p.ID)
	if err != nil {
		return PaymentView{}, fmt.Errorf("list food payment items: %w", err)
	}
	drink, err := store.ListPaymentItemIDs(ctx, database.ItemKindDrink, p.ID)
	if err != nil {
		return PaymentView{}, fmt.Errorf("list drink payment items: %w", err)
	}
	return paymentView(p, food, drink), nil
}

// invalidate drops every cached read a payment mutation can change.
func (s *PaymentService) invalidate(paymentID, orderID uuid.UUID) {
	s.cache.Delete(paymentKey(paymentID))
	s.cache.Delete(orderPaymentsKey(orderID))
	s.cache.Delete(orderKey(orderID))
	s.cache.DeleteByPrefix(orderListPrefix)
}
