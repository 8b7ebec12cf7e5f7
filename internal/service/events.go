package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a floor notification emitted after a mutation commits.
type Event struct {
	Type       string      `json:"type"`
	OrderID    uuid.UUID   `json:"order_id"`
	PaymentID  *uuid.UUID  `json:"payment_id,omitempty"`
	ItemIDs    []uuid.UUID `json:"item_ids,omitempty"`
	Status     string      `json:"status,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// EventPublisher delivers events on a best-effort basis.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// MultiPublisher fans an event out to every publisher. All publishers are
// tried; the first error is returned.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
