package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// itemTables holds the fixed table layout for each line-item kind.
// Table names are never taken from input.
type itemTable struct {
	items   string
	catalog string
	ref     string
	links   string
}

var itemTables = map[ItemKind]itemTable{
	ItemKindFood:  {items: "order_food_items", catalog: "foods", ref: "food_id", links: "payment_food_items"},
	ItemKindDrink: {items: "order_drink_items", catalog: "drinks", ref: "drink_id", links: "payment_drink_items"},
}

func tableFor(kind ItemKind) (itemTable, error) {
	t, ok := itemTables[kind]
	if !ok {
		return itemTable{}, fmt.Errorf("unknown item kind %q", kind)
	}
	return t, nil
}

func itemColumns(t itemTable) string {
	return `i.id, i.order_id, i.` + t.ref + `, c.name, i.price, i.discount, i.final_price, i.guest_number,
       i.special_request, i.allergies, i.printed, i.fired, i.payment_status, i.created_at`
}

func scanOrderItem(row interface{ Scan(...interface{}) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.CatalogItemID,
		&i.Name,
		&i.Price,
		&i.Discount,
		&i.FinalPrice,
		&i.GuestNumber,
		&i.SpecialRequest,
		&i.Allergies,
		&i.Printed,
		&i.Fired,
		&i.PaymentStatus,
		&i.CreatedAt,
	)
	return i, err
}

type CreateOrderItemParams struct {
	OrderID        uuid.UUID      `json:"order_id"`
	CatalogItemID  uuid.UUID      `json:"catalog_item_id"`
	Price          pgtype.Numeric `json:"price"`
	Discount       pgtype.Numeric `json:"discount"`
	FinalPrice     pgtype.Numeric `json:"final_price"`
	GuestNumber    int32          `json:"guest_number"`
	SpecialRequest string         `json:"special_request"`
	Allergies      []string       `json:"allergies"`
}

// CreateOrderItem inserts a food or drink line item with default flags.
func (q *Queries) CreateOrderItem(ctx context.Context, kind ItemKind, arg CreateOrderItemParams) (OrderItem, error) {
	t, err := tableFor(kind)
	if err != nil {
		return OrderItem{}, err
	}
	allergies := arg.Allergies
	if allergies == nil {
		allergies = []string{}
	}
	query := `WITH i AS (
    INSERT INTO ` + t.items + ` (order_id, ` + t.ref + `, price, discount, final_price, guest_number, special_request, allergies)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    RETURNING *
)
SELECT ` + itemColumns(t) + `
FROM i JOIN ` + t.catalog + ` c ON c.id = i.` + t.ref
	row := q.db.QueryRow(ctx, query,
		arg.OrderID,
		arg.CatalogItemID,
		arg.Price,
		arg.Discount,
		arg.FinalPrice,
		arg.GuestNumber,
		arg.SpecialRequest,
		allergies,
	)
	return scanOrderItem(row)
}

// ListOrderItems returns an order's line items of one kind in insertion order.
func (q *Queries) ListOrderItems(ctx context.Context, kind ItemKind, orderID uuid.UUID) ([]OrderItem, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + itemColumns(t) + `
FROM ` + t.items + ` i JOIN ` + t.catalog + ` c ON c.id = i.` + t.ref + `
WHERE i.order_id = $1
ORDER BY i.guest_number, i.created_at, i.id`
	return q.queryOrderItems(ctx, query, orderID)
}

// GetOrderItemsForUpdate loads and locks the given line items.
func (q *Queries) GetOrderItemsForUpdate(ctx context.Context, kind ItemKind, ids []uuid.UUID) ([]OrderItem, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + itemColumns(t) + `
FROM ` + t.items + ` i JOIN ` + t.catalog + ` c ON c.id = i.` + t.ref + `
WHERE i.id = ANY($1::uuid[])
ORDER BY i.id
FOR UPDATE OF i`
	return q.queryOrderItems(ctx, query, ids)
}

func (q *Queries) queryOrderItems(ctx context.Context, query string, args ...interface{}) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type UpdateOrderItemPriceParams struct {
	ID         uuid.UUID      `json:"id"`
	Price      pgtype.Numeric `json:"price"`
	Discount   pgtype.Numeric `json:"discount"`
	FinalPrice pgtype.Numeric `json:"final_price"`
}

// UpdateOrderItemPrice rewrites the reconciled pricing of an existing item,
// leaving its flags and payment links intact.
func (q *Queries) UpdateOrderItemPrice(ctx context.Context, kind ItemKind, arg UpdateOrderItemPriceParams) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := `UPDATE ` + t.items + ` SET price = $2, discount = $3, final_price = $4 WHERE id = $1`
	result, err := q.db.Exec(ctx, query, arg.ID, arg.Price, arg.Discount, arg.FinalPrice)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// MarkOrderItemsPrinted flags unprinted items as printed.
func (q *Queries) MarkOrderItemsPrinted(ctx context.Context, kind ItemKind, ids []uuid.UUID) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := `UPDATE ` + t.items + ` SET printed = TRUE WHERE id = ANY($1::uuid[]) AND NOT printed`
	result, err := q.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// MarkOrderItemsFired flags printed, unfired items as fired.
func (q *Queries) MarkOrderItemsFired(ctx context.Context, kind ItemKind, ids []uuid.UUID) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := `UPDATE ` + t.items + ` SET fired = TRUE WHERE id = ANY($1::uuid[]) AND printed AND NOT fired`
	result, err := q.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

type SetItemsPaymentStatusParams struct {
	OrderID uuid.UUID         `json:"order_id"`
	IDs     []uuid.UUID       `json:"ids"`
	Status  ItemPaymentStatus `json:"status"`
}

// SetItemsPaymentStatus sets the payment status of the given items of one order.
func (q *Queries) SetItemsPaymentStatus(ctx context.Context, kind ItemKind, arg SetItemsPaymentStatusParams) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := `UPDATE ` + t.items + ` SET payment_status = $3::item_payment_status
WHERE order_id = $1 AND id = ANY($2::uuid[])`
	result, err := q.db.Exec(ctx, query, arg.OrderID, arg.IDs, string(arg.Status))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ClaimItemsForPayment moves unclaimed items (not PENDING or PAID) to PENDING.
// The affected-row count lets callers detect a concurrent claim.
func (q *Queries) ClaimItemsForPayment(ctx context.Context, kind ItemKind, orderID uuid.UUID, ids []uuid.UUID) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := `UPDATE ` + t.items + ` SET payment_status = 'PENDING'
WHERE order_id = $1 AND id = ANY($2::uuid[]) AND payment_status NOT IN ('PENDING', 'PAID')`
	result, err := q.db.Exec(ctx, query, orderID, ids)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListItemPaymentStatuses returns the payment status of every item of one kind on an order.
func (q *Queries) ListItemPaymentStatuses(ctx context.Context, kind ItemKind, orderID uuid.UUID) ([]ItemPaymentStatus, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT payment_status FROM `+t.items+` WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	statuses := []ItemPaymentStatus{}
	for rows.Next() {
		var s ItemPaymentStatus
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// DeleteOrderItems removes every line item of one kind from an order.
func (q *Queries) DeleteOrderItems(ctx context.Context, kind ItemKind, orderID uuid.UUID) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	result, err := q.db.Exec(ctx, `DELETE FROM `+t.items+` WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
