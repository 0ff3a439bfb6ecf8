package domain

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const reservationIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewReservationID returns an opaque, non-sequential token of the form
// RES_<unix millis>_<6 random base36 chars>.
func NewReservationID(now time.Time) string {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(reservationIDAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the process is in far worse
			// trouble than a weak token.
			panic(err)
		}
		suffix[i] = reservationIDAlphabet[n.Int64()]
	}
	return "RES_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}

func NewReservation(userID uuid.UUID, orderID string, item LineItem, ttl time.Duration) Reservation {
	now := time.Now().UTC()
	return Reservation{
		ID:           NewReservationID(now),
		UserID:       userID,
		OrderID:      orderID,
		VenueID:      item.VenueID,
		TicketTypeID: item.TicketTypeID,
		Quantity:     item.Quantity,
		ReservedAt:   now,
		ExpiresAt:    now.Add(ttl),
		Status:       StatusReserved,
	}
}
