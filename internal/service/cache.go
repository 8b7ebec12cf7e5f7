package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cache is a read-through cache for order and payment reads.
// Implemented by *cache.Store.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	DeleteByPrefix(prefix string)
}

type nopCache struct{}

func (nopCache) Get(string) (any, bool)          { return nil, false }
func (nopCache) Set(string, any, time.Duration) {}
func (nopCache) Delete(string)                  {}
func (nopCache) DeleteByPrefix(string)          {}

const (
	orderListPrefix = "orders:"
	orderPrefix     = "order:"
	paymentPrefix   = "payment:"
	orderPayPrefix  = "payments:order:"
)

func orderKey(id uuid.UUID) string {
	return orderPrefix + id.String()
}

func orderListKey(f OrderFilter) string {
	return fmt.Sprintf("%sstatus=%s&server=%s&table=%s&limit=%d&offset=%d",
		orderListPrefix, f.Status, f.ServerID, f.TableNumber, f.Limit, f.Offset)
}

func paymentKey(id uuid.UUID) string {
	return paymentPrefix + id.String()
}

func orderPaymentsKey(orderID uuid.UUID) string {
	return orderPayPrefix + orderID.String()
}
