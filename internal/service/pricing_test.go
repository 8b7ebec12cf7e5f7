package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/shopspring/decimal"
)

type mockCatalogPriceStore struct {
	listCatalogPricesFn func(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.CatalogPrice, error)
}

func (m *mockCatalogPriceStore) ListCatalogPrices(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.CatalogPrice, error) {
	return m.listCatalogPricesFn(ctx, kind, ids)
}

func TestReconcile_UsesCatalogPrice(t *testing.T) {
	burger, cola := uuid.New(), uuid.New()
	r := NewReconciler(&fakeCatalog{
		food:  map[uuid.UUID]decimal.Decimal{burger: dec("12.00")},
		drink: map[uuid.UUID]decimal.Decimal{cola: dec("3.00")},
	})

	food, drink, err := r.Reconcile(context.Background(),
		[]GuestItemGroup{{GuestNumber: 1, Items: []LineItem{{CatalogItemID: burger, Price: dec("0.01"), Discount: dec("25")}}}},
		[]GuestItemGroup{{GuestNumber: 1, Items: []LineItem{{CatalogItemID: cola}}}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := food[0].Items[0]
	if !got.Price.Equal(dec("12.00")) {
		t.Errorf("expected catalog price 12.00, got %s", got.Price)
	}
	if !got.FinalPrice.Equal(dec("9.00")) {
		t.Errorf("expected final price 9.00, got %s", got.FinalPrice)
	}
	if !drink[0].Items[0].FinalPrice.Equal(dec("3.00")) {
		t.Errorf("expected drink final price 3.00, got %s", drink[0].Items[0].FinalPrice)
	}
}

func TestReconcile_UnknownCatalogItem(t *testing.T) {
	r := NewReconciler(&fakeCatalog{})
	_, _, err := r.Reconcile(context.Background(),
		[]GuestItemGroup{{GuestNumber: 1, Items: []LineItem{{CatalogItemID: uuid.New()}}}},
		nil,
	)
	assertKind(t, err, ErrValidation, ErrUnknownCatalogItem)
}

func TestReconcile_InvalidDiscount(t *testing.T) {
	burger := uuid.New()
	r := NewReconciler(&fakeCatalog{food: map[uuid.UUID]decimal.Decimal{burger: dec("10")}})
	_, _, err := r.Reconcile(context.Background(),
		[]GuestItemGroup{{GuestNumber: 1, Items: []LineItem{{CatalogItemID: burger, Discount: dec("101")}}}},
		nil,
	)
	assertKind(t, err, ErrValidation, ErrInvalidDiscount)
}

func TestReconcile_LockedItemsKeepStoredPricing(t *testing.T) {
	burger := uuid.New()
	r := NewReconciler(&fakeCatalog{food: map[uuid.UUID]decimal.Decimal{burger: dec("20.00")}})

	paid := LineItem{
		ID:            uuid.New(),
		CatalogItemID: burger,
		Price:         dec("10.00"),
		FinalPrice:    dec("10.00"),
		PaymentStatus: database.ItemPaymentStatusPAID,
	}
	open := LineItem{ID: uuid.New(), CatalogItemID: burger, Price: dec("10.00"), FinalPrice: dec("10.00")}

	food, _, err := r.Reconcile(context.Background(), []GuestItemGroup{{GuestNumber: 1, Items: []LineItem{paid, open}}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !food[0].Items[0].FinalPrice.Equal(dec("10.00")) {
		t.Errorf("paid item re-priced to %s", food[0].Items[0].FinalPrice)
	}
	if !food[0].Items[1].FinalPrice.Equal(dec("20.00")) {
		t.Errorf("open item not re-priced, got %s", food[0].Items[1].FinalPrice)
	}
}

func TestReconcile_CatalogFailureIsNotValidation(t *testing.T) {
	r := NewReconciler(&fakeCatalog{err: errors.New("connection refused")})
	_, _, err := r.Reconcile(context.Background(),
		[]GuestItemGroup{{GuestNumber: 1, Items: []LineItem{{CatalogItemID: uuid.New()}}}},
		nil,
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrValidation) {
		t.Errorf("catalog outage classified as validation: %v", err)
	}
}

func TestCatalog_Prices(t *testing.T) {
	burger := uuid.New()
	var gotKind database.ItemKind
	c := NewCatalog(&mockCatalogPriceStore{
		listCatalogPricesFn: func(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.CatalogPrice, error) {
			gotKind = kind
			return []database.CatalogPrice{{ID: burger, Name: "Burger", Price: decimalToNumeric(dec("11.50"))}}, nil
		},
	})

	prices, err := c.FoodPrices(context.Background(), []uuid.UUID{burger, uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKind != database.ItemKindFood {
		t.Errorf("expected FOOD lookup, got %s", gotKind)
	}
	if len(prices) != 1 || !prices[burger].Equal(dec("11.50")) {
		t.Errorf("unexpected prices: %v", prices)
	}
}

func TestCatalog_NoIDsSkipsQuery(t *testing.T) {
	c := NewCatalog(&mockCatalogPriceStore{
		listCatalogPricesFn: func(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.CatalogPrice, error) {
			t.Fatal("query should not run")
			return nil, nil
		},
	})
	prices, err := c.DrinkPrices(context.Background(), nil)
	if err != nil || len(prices) != 0 {
		t.Errorf("expected empty result, got %v, %v", prices, err)
	}
}
