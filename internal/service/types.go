package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/shopspring/decimal"
)

// OrderSummary is an order without its line items.
type OrderSummary struct {
	ID          uuid.UUID
	TableNumber string
	ServerID    uuid.UUID
	GuestCount  int32
	Status      database.OrderStatus
	Discount    decimal.Decimal
	TotalAmount decimal.Decimal
	Version     int32
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// OrderView is an order with its items grouped by guest.
type OrderView struct {
	OrderSummary
	FoodItems  []GuestItemGroup
	DrinkItems []GuestItemGroup
}

// PaymentView is a payment and the ids of the items it covers.
type PaymentView struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Tax           decimal.Decimal
	ServiceCharge decimal.Decimal
	TotalAmount   decimal.Decimal
	Tip           decimal.Decimal
	Status        database.PaymentStatus
	CreatedAt     time.Time
	CompletedAt   *time.Time
	FoodItemIDs   []uuid.UUID
	DrinkItemIDs  []uuid.UUID
}

// RefundView is an immutable refund record.
type RefundView struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Reason    string
	Amount    decimal.Decimal
	Status    database.RefundStatus
	CreatedAt time.Time
}

// CompletePaymentResult reports whether completing a payment closed the order.
type CompletePaymentResult struct {
	Payment        PaymentView
	OrderCompleted bool
	OrderStatus    database.OrderStatus
}

// RefundResult is the refunded payment with its refund record.
type RefundResult struct {
	Payment     PaymentView
	Refund      RefundView
	OrderStatus database.OrderStatus
}

// CreateOrderRequest is the input for opening an order at a table.
type CreateOrderRequest struct {
	TableNumber string
	ServerID    uuid.UUID
	GuestCount  int32
	Discount    decimal.Decimal
	FoodItems   []GuestItemGroup
	DrinkItems  []GuestItemGroup
}

// UpdateItemsRequest adds items to an order. ExpectedVersion, when non-zero,
// must match the stored order version.
type UpdateItemsRequest struct {
	ExpectedVersion int32
	FoodItems       []GuestItemGroup
	DrinkItems      []GuestItemGroup
}

// UpdateOrderPropertiesRequest is a partial update; nil fields are left as is.
type UpdateOrderPropertiesRequest struct {
	ExpectedVersion int32
	TableNumber     *string
	ServerID        *uuid.UUID
	GuestCount      *int32
	Status          *database.OrderStatus
	Discount        *decimal.Decimal
}

// ItemSelection names food and drink items by id.
type ItemSelection struct {
	FoodItemIDs  []uuid.UUID
	DrinkItemIDs []uuid.UUID
}

func (s ItemSelection) empty() bool {
	return len(s.FoodItemIDs) == 0 && len(s.DrinkItemIDs) == 0
}

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	Status      database.OrderStatus
	ServerID    uuid.UUID
	TableNumber string
	Limit       int32
	Offset      int32
}

// CreatePaymentRequest pays for a subset of an order's items.
type CreatePaymentRequest struct {
	OrderID      uuid.UUID
	FoodItemIDs  []uuid.UUID
	DrinkItemIDs []uuid.UUID
	Tip          decimal.Decimal
}
