package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// deps holds the collaborators shared by both lifecycle services.
type deps struct {
	cache    Cache
	cacheTTL time.Duration
	events   EventPublisher
	log      *slog.Logger
	now      func() time.Time
}

func newDeps(opts []Option) deps {
	d := deps{
		cache:  nopCache{},
		events: nopPublisher{},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Option configures a lifecycle service.
type Option func(*deps)

// WithCache enables read-through caching. A nil cache or non-positive ttl
// leaves caching disabled.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(d *deps) {
		if c != nil && ttl > 0 {
			d.cache = c
			d.cacheTTL = ttl
		}
	}
}

// WithEvents sets the publisher notified after each committed mutation.
func WithEvents(p EventPublisher) Option {
	return func(d *deps) {
		if p != nil {
			d.events = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}

// publish sends an event and logs delivery failures. A failed publish never
// fails the already committed operation.
func (d deps) publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = d.now().UTC()
	}
	if err := d.events.Publish(ctx, e); err != nil {
		d.log.WarnContext(ctx, "publish event", "type", e.Type, "order_id", e.OrderID, "error", err)
	}
}

// fail classifies err and logs it when it is unexpected.
func (d deps) fail(ctx context.Context, service, op string, err error) error {
	err = wrapErr(service, err)
	var se *Error
	if errors.As(err, &se) && se.Kind == ErrUnexpected {
		d.log.ErrorContext(ctx, op, "service", service, "error", se.Err)
	}
	return err
}
