package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/evertix/ticket-inventory/internal/domain"
)

// InventoryStore is the authoritative remaining-quantity counter. Decrement
// must perform its check-and-subtract as one atomic conditional operation
// against the backing store; callers never read-modify-write the counter.
type InventoryStore interface {
	Decrement(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error
	Increment(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error
	Snapshot(ctx context.Context, venueID uuid.UUID) ([]domain.TicketType, error)
}

// Ledger is the durable record of active holds. Deletes return the removed
// rows so callers know how much inventory to restore; a delete is also the
// claim that makes confirm, release and sweep mutually exclusive per row.
type Ledger interface {
	CreateReservation(ctx context.Context, res domain.Reservation) error
	SumReserved(ctx context.Context, venueID, ticketTypeID uuid.UUID, asOf time.Time) (int64, error)
	FindByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error)
	DeleteByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error)
	ConfirmByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID, orderID string) ([]domain.Reservation, error)
	FindExpired(ctx context.Context, asOf time.Time) ([]domain.Reservation, error)
	DeleteByID(ctx context.Context, id string) (domain.Reservation, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, eventType string, payload any) error
}

type AuditTrail interface {
	RecordReservation(ctx context.Context, action string, res domain.Reservation) error
}
