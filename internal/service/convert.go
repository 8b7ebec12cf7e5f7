package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/shopspring/decimal"
)

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func flatItemFromRow(row database.OrderItem) FlatItem {
	allergies := row.Allergies
	if allergies == nil {
		allergies = []string{}
	}
	return FlatItem{
		GuestNumber: row.GuestNumber,
		LineItem: LineItem{
			ID:             row.ID,
			CatalogItemID:  row.CatalogItemID,
			Name:           row.Name,
			Price:          numericToDecimal(row.Price),
			Discount:       numericToDecimal(row.Discount),
			FinalPrice:     numericToDecimal(row.FinalPrice),
			SpecialRequest: row.SpecialRequest,
			Allergies:      allergies,
			Printed:        row.Printed,
			Fired:          row.Fired,
			PaymentStatus:  row.PaymentStatus,
		},
	}
}

func groupRows(rows []database.OrderItem) []GuestItemGroup {
	flat := make([]FlatItem, len(rows))
	for i, row := range rows {
		flat[i] = flatItemFromRow(row)
	}
	return GroupByGuest(flat)
}

func orderSummary(o database.Order) OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		TableNumber: o.TableNumber,
		ServerID:    o.ServerID,
		GuestCount:  o.GuestCount,
		Status:      o.Status,
		Discount:    numericToDecimal(o.Discount),
		TotalAmount: numericToDecimal(o.TotalAmount),
		Version:     o.Version,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		CompletedAt: timePtr(o.CompletedAt),
	}
}

func buildOrderView(o database.Order, food, drink []database.OrderItem) *OrderView {
	return &OrderView{
		OrderSummary: orderSummary(o),
		FoodItems:    groupRows(food),
		DrinkItems:   groupRows(drink),
	}
}

func paymentView(p database.Payment, foodIDs, drinkIDs []uuid.UUID) PaymentView {
	if foodIDs == nil {
		foodIDs = []uuid.UUID{}
	}
	if drinkIDs == nil {
		drinkIDs = []uuid.UUID{}
	}
	return PaymentView{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        numericToDecimal(p.Amount),
		Tax:           numericToDecimal(p.Tax),
		ServiceCharge: numericToDecimal(p.ServiceCharge),
		TotalAmount:   numericToDecimal(p.TotalAmount),
		Tip:           numericToDecimal(p.Tip),
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
		CompletedAt:   timePtr(p.CompletedAt),
		FoodItemIDs:   foodIDs,
		DrinkItemIDs:  drinkIDs,
	}
}

func refundView(r database.Refund) RefundView {
	return RefundView{
		ID:        r.ID,
		PaymentID: r.PaymentID,
		Reason:    r.Reason,
		Amount:    numericToDecimal(r.Amount),
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}
