package domain

import (
	"time"

	"github.com/google/uuid"
)

// StatusReserved is the only persisted reservation state. Confirm, release
// and expiry all remove the row instead of updating it.
const StatusReserved = "reserved"

type TicketType struct {
	ID        uuid.UUID
	VenueID   uuid.UUID
	Label     string
	UnitPrice float64
	Capacity  int64
	Quantity  int64
}

type LineItem struct {
	VenueID      uuid.UUID
	TicketTypeID uuid.UUID
	Quantity     int64
}

type Reservation struct {
	ID           string
	UserID       uuid.UUID
	OrderID      string
	VenueID      uuid.UUID
	TicketTypeID uuid.UUID
	Quantity     int64
	ReservedAt   time.Time
	ExpiresAt    time.Time
	Status       string
}

// Availability is an advisory snapshot for one ticket type. The
// authoritative gate is the conditional decrement, not this view.
type Availability struct {
	TicketTypeID uuid.UUID
	Label        string
	UnitPrice    float64
	Total        int64
	Reserved     int64
	Available    int64
}
