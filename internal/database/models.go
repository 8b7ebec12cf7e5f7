package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusRECEIVED   OrderStatus = "RECEIVED"
	OrderStatusINPROGRESS OrderStatus = "IN_PROGRESS"
	OrderStatusSERVED     OrderStatus = "SERVED"
	OrderStatusREADYTOPAY OrderStatus = "READY_TO_PAY"
	OrderStatusCOMPLETED  OrderStatus = "COMPLETED"
	OrderStatusDISPUTED   OrderStatus = "DISPUTED"
	OrderStatusCANCELED   OrderStatus = "CANCELED"
)

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

type NullOrderStatus struct {
	OrderStatus OrderStatus
	Valid       bool
}

type ItemPaymentStatus string

const (
	ItemPaymentStatusNONE      ItemPaymentStatus = "NONE"
	ItemPaymentStatusPENDING   ItemPaymentStatus = "PENDING"
	ItemPaymentStatusPAID      ItemPaymentStatus = "PAID"
	ItemPaymentStatusREFUNDED  ItemPaymentStatus = "REFUNDED"
	ItemPaymentStatusCANCELLED ItemPaymentStatus = "CANCELLED"
)

func (e *ItemPaymentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = ItemPaymentStatus(s)
	case string:
		*e = ItemPaymentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for ItemPaymentStatus: %T", src)
	}
	return nil
}

type PaymentStatus string

const (
	PaymentStatusPENDING   PaymentStatus = "PENDING"
	PaymentStatusPAID      PaymentStatus = "PAID"
	PaymentStatusREFUNDED  PaymentStatus = "REFUNDED"
	PaymentStatusCANCELLED PaymentStatus = "CANCELLED"
)

func (e *PaymentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PaymentStatus(s)
	case string:
		*e = PaymentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for PaymentStatus: %T", src)
	}
	return nil
}

type RefundStatus string

const (
	RefundStatusPENDING   RefundStatus = "PENDING"
	RefundStatusCOMPLETED RefundStatus = "COMPLETED"
)

func (e *RefundStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = RefundStatus(s)
	case string:
		*e = RefundStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for RefundStatus: %T", src)
	}
	return nil
}

// ItemKind selects between the two parallel line-item collections.
type ItemKind string

const (
	ItemKindFood  ItemKind = "FOOD"
	ItemKindDrink ItemKind = "DRINK"
)

type Order struct {
	ID          uuid.UUID          `json:"id"`
	TableNumber string             `json:"table_number"`
	ServerID    uuid.UUID          `json:"server_id"`
	GuestCount  int32              `json:"guest_count"`
	Status      OrderStatus        `json:"status"`
	Discount    pgtype.Numeric     `json:"discount"`
	TotalAmount pgtype.Numeric     `json:"total_amount"`
	Version     int32              `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
}

// OrderItem is a row of order_food_items or order_drink_items. CatalogItemID is
// food_id or drink_id; Name is joined from the catalog on reads.
type OrderItem struct {
	ID             uuid.UUID         `json:"id"`
	OrderID        uuid.UUID         `json:"order_id"`
	CatalogItemID  uuid.UUID         `json:"catalog_item_id"`
	Name           string            `json:"name"`
	Price          pgtype.Numeric    `json:"price"`
	Discount       pgtype.Numeric    `json:"discount"`
	FinalPrice     pgtype.Numeric    `json:"final_price"`
	GuestNumber    int32             `json:"guest_number"`
	SpecialRequest string            `json:"special_request"`
	Allergies      []string          `json:"allergies"`
	Printed        bool              `json:"printed"`
	Fired          bool              `json:"fired"`
	PaymentStatus  ItemPaymentStatus `json:"payment_status"`
	CreatedAt      time.Time         `json:"created_at"`
}

type Payment struct {
	ID            uuid.UUID          `json:"id"`
	OrderID       uuid.UUID          `json:"order_id"`
	Amount        pgtype.Numeric     `json:"amount"`
	Tax           pgtype.Numeric     `json:"tax"`
	ServiceCharge pgtype.Numeric     `json:"service_charge"`
	TotalAmount   pgtype.Numeric     `json:"total_amount"`
	Tip           pgtype.Numeric     `json:"tip"`
	Status        PaymentStatus      `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   pgtype.Timestamptz `json:"completed_at"`
}

type Refund struct {
	ID        uuid.UUID      `json:"id"`
	PaymentID uuid.UUID      `json:"payment_id"`
	Reason    string         `json:"reason"`
	Amount    pgtype.Numeric `json:"amount"`
	Status    RefundStatus   `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

type CatalogPrice struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}

type Staff struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}
