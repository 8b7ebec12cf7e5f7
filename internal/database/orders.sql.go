package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, table_number, server_id, guest_count, status, discount, total_amount, version, created_at, updated_at, completed_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableNumber,
		&i.ServerID,
		&i.GuestCount,
		&i.Status,
		&i.Discount,
		&i.TotalAmount,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createOrder = `INSERT INTO orders (table_number, server_id, guest_count, status, discount, total_amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableNumber string         `json:"table_number"`
	ServerID    uuid.UUID      `json:"server_id"`
	GuestCount  int32          `json:"guest_count"`
	Status      OrderStatus    `json:"status"`
	Discount    pgtype.Numeric `json:"discount"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.TableNumber,
		arg.ServerID,
		arg.GuestCount,
		arg.Status,
		arg.Discount,
		arg.TotalAmount,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

// GetOrderForUpdate locks the order row until the surrounding transaction ends.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `SELECT ` + orderColumns + ` FROM orders
WHERE ($1::order_status IS NULL OR status = $1)
  AND ($2::uuid IS NULL OR server_id = $2)
  AND ($3::text IS NULL OR table_number = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

type ListOrdersParams struct {
	Status      NullOrderStatus `json:"status"`
	ServerID    pgtype.UUID     `json:"server_id"`
	TableNumber pgtype.Text     `json:"table_number"`
	Limit       int32           `json:"limit"`
	Offset      int32           `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	var status pgtype.Text
	if arg.Status.Valid {
		status = pgtype.Text{String: string(arg.Status.OrderStatus), Valid: true}
	}
	rows, err := q.db.Query(ctx, listOrders,
		status,
		arg.ServerID,
		arg.TableNumber,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const updateOrderTotal = `UPDATE orders
SET total_amount = $2, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $3
RETURNING ` + orderColumns

type UpdateOrderTotalParams struct {
	ID          uuid.UUID      `json:"id"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
	Version     int32          `json:"version"`
}

// UpdateOrderTotal returns pgx.ErrNoRows when the stored version differs.
func (q *Queries) UpdateOrderTotal(ctx context.Context, arg UpdateOrderTotalParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotal, arg.ID, arg.TotalAmount, arg.Version))
}

const updateOrderProperties = `UPDATE orders
SET table_number = $2,
    server_id = $3,
    guest_count = $4,
    status = $5,
    discount = $6,
    total_amount = $7,
    completed_at = $8,
    version = version + 1,
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderPropertiesParams struct {
	ID          uuid.UUID          `json:"id"`
	TableNumber string             `json:"table_number"`
	ServerID    uuid.UUID          `json:"server_id"`
	GuestCount  int32              `json:"guest_count"`
	Status      OrderStatus        `json:"status"`
	Discount    pgtype.Numeric     `json:"discount"`
	TotalAmount pgtype.Numeric     `json:"total_amount"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
}

func (q *Queries) UpdateOrderProperties(ctx context.Context, arg UpdateOrderPropertiesParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderProperties,
		arg.ID,
		arg.TableNumber,
		arg.ServerID,
		arg.GuestCount,
		arg.Status,
		arg.Discount,
		arg.TotalAmount,
		arg.CompletedAt,
	)
	return scanOrder(row)
}

const updateOrderStatus = `UPDATE orders
SET status = $2, completed_at = $3, version = version + 1, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID          uuid.UUID          `json:"id"`
	Status      OrderStatus        `json:"status"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.CompletedAt))
}

const deleteOrder = `DELETE FROM orders WHERE id = $1`

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteOrder, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const countPaymentsByOrder = `SELECT COUNT(*) FROM payments WHERE order_id = $1`

func (q *Queries) CountPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countPaymentsByOrder, orderID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
