package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// CatalogReader resolves current catalog prices. Unknown ids are absent from
// the returned map.
type CatalogReader interface {
	FoodPrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	DrinkPrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

// CatalogPriceStore is the query the catalog adapter needs.
// Satisfied by *database.Queries.
type CatalogPriceStore interface {
	ListCatalogPrices(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) ([]database.CatalogPrice, error)
}

// Catalog reads food and drink prices from the database.
type Catalog struct {
	store CatalogPriceStore
}

// NewCatalog creates a Catalog over the given store.
func NewCatalog(store CatalogPriceStore) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) FoodPrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return c.prices(ctx, database.ItemKindFood, ids)
}

func (c *Catalog) DrinkPrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return c.prices(ctx, database.ItemKindDrink, ids)
}

func (c *Catalog) prices(ctx context.Context, kind database.ItemKind, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	prices := make(map[uuid.UUID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}
	rows, err := c.store.ListCatalogPrices(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("list %s prices: %w", kind, err)
	}
	for _, row := range rows {
		prices[row.ID] = numericToDecimal(row.Price)
	}
	return prices, nil
}

// Reconciler replaces caller-supplied prices with catalog prices and derives
// each item's final price.
type Reconciler struct {
	catalog CatalogReader
}

// NewReconciler creates a Reconciler backed by catalog.
func NewReconciler(catalog CatalogReader) *Reconciler {
	return &Reconciler{catalog: catalog}
}

// Reconcile returns copies of food and drink with authoritative prices. Items
// already committed to a payment keep their stored pricing.
func (r *Reconciler) Reconcile(ctx context.Context, food, drink []GuestItemGroup) ([]GuestItemGroup, []GuestItemGroup, error) {
	var foodPrices, drinkPrices map[uuid.UUID]decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		foodPrices, err = r.catalog.FoodPrices(gctx, catalogIDs(food))
		return err
	})
	g.Go(func() error {
		var err error
		drinkPrices, err = r.catalog.DrinkPrices(gctx, catalogIDs(drink))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load catalog prices: %w", err)
	}

	pricedFood, err := applyPrices(food, foodPrices)
	if err != nil {
		return nil, nil, fmt.Errorf("food: %w", err)
	}
	pricedDrink, err := applyPrices(drink, drinkPrices)
	if err != nil {
		return nil, nil, fmt.Errorf("drink: %w", err)
	}
	return pricedFood, pricedDrink, nil
}

func applyPrices(groups []GuestItemGroup, prices map[uuid.UUID]decimal.Decimal) ([]GuestItemGroup, error) {
	out := make([]GuestItemGroup, len(groups))
	for i, g := range groups {
		items := make([]LineItem, len(g.Items))
		for j, item := range g.Items {
			if item.locked() {
				items[j] = item
				continue
			}
			if !validDiscount(item.Discount) {
				return nil, validationErr("pricing", fmt.Errorf("guest %d item %d: %w", g.GuestNumber, j, ErrInvalidDiscount))
			}
			price, ok := prices[item.CatalogItemID]
			if !ok {
				return nil, validationErr("pricing", fmt.Errorf("%w: %s", ErrUnknownCatalogItem, item.CatalogItemID))
			}
			item.Price = price
			item.FinalPrice = applyDiscount(price, item.Discount)
			items[j] = item
		}
		out[i] = GuestItemGroup{GuestNumber: g.GuestNumber, Items: items}
	}
	return out, nil
}

// catalogIDs collects the distinct catalog ids of unlocked items.
func catalogIDs(groups []GuestItemGroup) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	ids := []uuid.UUID{}
	for _, g := range groups {
		for _, item := range g.Items {
			if item.locked() || seen[item.CatalogItemID] {
				continue
			}
			seen[item.CatalogItemID] = true
			ids = append(ids, item.CatalogItemID)
		}
	}
	return ids
}
