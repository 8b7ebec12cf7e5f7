package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, amount, tax, service_charge, total_amount, tip, status, created_at, completed_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (Payment, error) {
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Amount,
		&i.Tax,
		&i.ServiceCharge,
		&i.TotalAmount,
		&i.Tip,
		&i.Status,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createPayment = `INSERT INTO payments (order_id, amount, tax, service_charge, total_amount, tip, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID       uuid.UUID      `json:"order_id"`
	Amount        pgtype.Numeric `json:"amount"`
	Tax           pgtype.Numeric `json:"tax"`
	ServiceCharge pgtype.Numeric `json:"service_charge"`
	TotalAmount   pgtype.Numeric `json:"total_amount"`
	Tip           pgtype.Numeric `json:"tip"`
	Status        PaymentStatus  `json:"status"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.Amount,
		arg.Tax,
		arg.ServiceCharge,
		arg.TotalAmount,
		arg.Tip,
		arg.Status,
	)
	return scanPayment(row)
}

const getPayment = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPayment, id))
}

const getPaymentForUpdate = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

func (q *Queries) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentForUpdate, id))
}

const listPaymentsByOrder = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		i, err := scanPayment(rows)
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

const updatePaymentStatus = `UPDATE payments SET status = $2, completed_at = $3
WHERE id = $1
RETURNING ` + paymentColumns

type UpdatePaymentStatusParams struct {
	ID          uuid.UUID          `json:"id"`
	Status      PaymentStatus      `json:"status"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, updatePaymentStatus, arg.ID, arg.Status, arg.CompletedAt))
}

// LinkPaymentItems attaches line items of one kind to a payment.
func (q *Queries) LinkPaymentItems(ctx context.Context, kind ItemKind, paymentID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := `INSERT INTO ` + t.links + ` (payment_id, item_id) SELECT $1, unnest($2::uuid[])`
	result, err := q.db.Exec(ctx, query, paymentID, itemIDs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListPaymentItemIDs returns the ids of the line items of one kind linked to a payment.
func (q *Queries) ListPaymentItemIDs(ctx context.Context, kind ItemKind, paymentID uuid.UUID) ([]uuid.UUID, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT item_id FROM `+t.links+` WHERE payment_id = $1 ORDER BY item_id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const createRefund = `INSERT INTO refunds (payment_id, reason, amount, status)
VALUES ($1, $2, $3, $4)
RETURNING id, payment_id, reason, amount, status, created_at`

type CreateRefundParams struct {
	PaymentID uuid.UUID      `json:"payment_id"`
	Reason    string         `json:"reason"`
	Amount    pgtype.Numeric `json:"amount"`
	Status    RefundStatus   `json:"status"`
}

func (q *Queries) CreateRefund(ctx context.Context, arg CreateRefundParams) (Refund, error) {
	row := q.db.QueryRow(ctx, createRefund, arg.PaymentID, arg.Reason, arg.Amount, arg.Status)
	var i Refund
	err := row.Scan(
		&i.ID,
		&i.PaymentID,
		&i.Reason,
		&i.Amount,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}
