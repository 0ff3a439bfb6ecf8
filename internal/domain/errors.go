package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTransientStore       = errors.New("transient store error")
)

// InsufficientStockError names the ticket type that ran dry so callers can
// render "sold out" per type instead of a generic payment failure.
type InsufficientStockError struct {
	VenueID      uuid.UUID
	TicketTypeID uuid.UUID
	Requested    int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for ticket type %s: requested %d", e.TicketTypeID, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
