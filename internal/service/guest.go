package service

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/shopspring/decimal"
)

// LineItem is one food or drink entry as seen through a guest group.
// ID is uuid.Nil for items that have not been stored yet.
type LineItem struct {
	ID             uuid.UUID
	CatalogItemID  uuid.UUID
	Name           string
	Price          decimal.Decimal
	Discount       decimal.Decimal
	FinalPrice     decimal.Decimal
	SpecialRequest string
	Allergies      []string
	Printed        bool
	Fired          bool
	PaymentStatus  database.ItemPaymentStatus
}

// locked reports whether the item is committed to a payment, in which case its
// pricing must not change.
func (li LineItem) locked() bool {
	return li.PaymentStatus == database.ItemPaymentStatusPENDING ||
		li.PaymentStatus == database.ItemPaymentStatusPAID
}

// GuestItemGroup is the items ordered by one seated guest.
type GuestItemGroup struct {
	GuestNumber int32
	Items       []LineItem
}

// FlatItem is a line item with its guest number, ready for persistence.
type FlatItem struct {
	GuestNumber int32
	LineItem
}

// GroupByGuest partitions flat items by guest number. Groups come back sorted
// by guest number; items keep their relative order within a guest.
func GroupByGuest(items []FlatItem) []GuestItemGroup {
	index := make(map[int32]int)
	groups := []GuestItemGroup{}
	for _, item := range items {
		i, ok := index[item.GuestNumber]
		if !ok {
			i = len(groups)
			index[item.GuestNumber] = i
			groups = append(groups, GuestItemGroup{GuestNumber: item.GuestNumber})
		}
		groups[i].Items = append(groups[i].Items, item.LineItem)
	}
	slices.SortStableFunc(groups, func(a, b GuestItemGroup) int {
		return cmp.Compare(a.GuestNumber, b.GuestNumber)
	})
	return groups
}

// Flatten is the inverse of GroupByGuest. Missing optional fields get their
// storage defaults.
func Flatten(groups []GuestItemGroup) []FlatItem {
	flat := []FlatItem{}
	for _, g := range groups {
		for _, item := range g.Items {
			if item.Allergies == nil {
				item.Allergies = []string{}
			}
			if item.PaymentStatus == "" {
				item.PaymentStatus = database.ItemPaymentStatusNONE
			}
			flat = append(flat, FlatItem{GuestNumber: g.GuestNumber, LineItem: item})
		}
	}
	return flat
}

// MergeGuests appends incoming items to the matching guest in existing, or adds
// the guest when absent. It never removes or replaces items and does not
// modify its arguments.
func MergeGuests(existing, incoming []GuestItemGroup) []GuestItemGroup {
	merged := make([]GuestItemGroup, len(existing))
	for i, g := range existing {
		merged[i] = GuestItemGroup{GuestNumber: g.GuestNumber, Items: slices.Clone(g.Items)}
	}

	for _, in := range incoming {
		i := slices.IndexFunc(merged, func(g GuestItemGroup) bool {
			return g.GuestNumber == in.GuestNumber
		})
		if i >= 0 {
			merged[i].Items = append(merged[i].Items, in.Items...)
			continue
		}
		merged = append(merged, GuestItemGroup{GuestNumber: in.GuestNumber, Items: slices.Clone(in.Items)})
	}
	return merged
}

// sanitizeIncoming strips everything a caller must not control on new items:
// ids, kitchen flags, payment status, names and prices.
func sanitizeIncoming(groups []GuestItemGroup) []GuestItemGroup {
	out := make([]GuestItemGroup, len(groups))
	for i, g := range groups {
		items := make([]LineItem, len(g.Items))
		for j, item := range g.Items {
			items[j] = LineItem{
				CatalogItemID:  item.CatalogItemID,
				Price:          item.Price,
				Discount:       item.Discount,
				SpecialRequest: item.SpecialRequest,
				Allergies:      slices.Clone(item.Allergies),
				PaymentStatus:  database.ItemPaymentStatusNONE,
			}
		}
		out[i] = GuestItemGroup{GuestNumber: g.GuestNumber, Items: items}
	}
	return out
}

func countItems(groups []GuestItemGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Items)
	}
	return n
}

func maxGuestNumber(groups ...[]GuestItemGroup) int32 {
	var highest int32
	for _, gs := range groups {
		for _, g := range gs {
			if len(g.Items) > 0 && g.GuestNumber > highest {
				highest = g.GuestNumber
			}
		}
	}
	return highest
}
