package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a public service method matches exactly
// one of these with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrUnexpected = errors.New("unexpected error")
)

// Errors returned by the order service.
var (
	ErrEmptyItems          = errors.New("at least one food or drink item is required")
	ErrInvalidGuestCount   = errors.New("guest_count must be >= 1 and cover every guest with items")
	ErrInvalidGuestNumber  = errors.New("guest_number must be between 1 and guest_count")
	ErrInvalidDiscount     = errors.New("discount must be between 0 and 100 with at most 2 decimal places")
	ErrUnknownCatalogItem  = errors.New("catalog item not found")
	ErrMissingServer       = errors.New("server_id is required")
	ErrMissingTable        = errors.New("table_number is required")
	ErrEmptySelection      = errors.New("at least one item id is required")
	ErrOrderNotFound       = errors.New("order not found")
	ErrItemNotFound        = errors.New("order item not found")
	ErrOrderClosed         = errors.New("order is closed")
	ErrVersionMismatch     = errors.New("order was modified concurrently, reload and retry")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidPage         = errors.New("limit and offset must be >= 0")
	ErrAlreadyPrinted      = errors.New("item already printed")
	ErrNotPrinted          = errors.New("item must be printed before it is fired")
	ErrAlreadyFired        = errors.New("item already fired")
	ErrOrderHasPayments    = errors.New("order has payments")
	ErrOrderHasActiveItems = errors.New("order has printed, fired or paid items")
	ErrItemCountMismatch   = errors.New("updated item count does not match request")
	ErrUnknownServer       = errors.New("server_id does not match a staff member")
)

// Errors returned by the payment service.
var (
	ErrNoPaymentItems          = errors.New("at least one item is required for a payment")
	ErrDuplicateItem           = errors.New("item listed more than once")
	ErrItemNotOnOrder          = errors.New("item does not belong to order")
	ErrItemAlreadyCommitted    = errors.New("item is already pending or paid on another payment")
	ErrInvalidTip              = errors.New("tip must be >= 0")
	ErrOrderCompleted          = errors.New("order is already completed")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentNotPending       = errors.New("payment is not pending")
	ErrPaymentNotPaid          = errors.New("pending payments must be cancelled, not refunded")
	ErrPaymentAlreadyPaid      = errors.New("paid payments must be refunded, not cancelled")
	ErrPaymentAlreadyRefunded  = errors.New("payment already refunded")
	ErrPaymentAlreadyCancelled = errors.New("payment already cancelled")
	ErrEmptyRefundReason       = errors.New("refund reason is required")
)

// Error is a classified service failure. Kind is one of ErrValidation,
// ErrNotFound, ErrConflict or ErrUnexpected; Err carries the detail.
type Error struct {
	Kind    error
	Service string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func validationErr(service string, err error) error {
	return &Error{Kind: ErrValidation, Service: service, Err: err}
}

func notFoundErr(service string, err error) error {
	return &Error{Kind: ErrNotFound, Service: service, Err: err}
}

func conflictErr(service string, err error) error {
	return &Error{Kind: ErrConflict, Service: service, Err: err}
}

// wrapErr classifies err at a service boundary. Already classified errors pass
// through; anything else becomes ErrUnexpected with the original preserved.
func wrapErr(service string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: ErrUnexpected, Service: service, Err: err}
}
