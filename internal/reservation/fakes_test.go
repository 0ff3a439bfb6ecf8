package reservation_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evertix/ticket-inventory/internal/domain"
)

type typeKey struct {
	venueID      uuid.UUID
	ticketTypeID uuid.UUID
}

// fakeInventory is a mutex-guarded counter map with the same conditional
// decrement contract as the real store.
type fakeInventory struct {
	mu    sync.Mutex
	types map[typeKey]*domain.TicketType
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{types: make(map[typeKey]*domain.TicketType)}
}

func (f *fakeInventory) seed(tt domain.TicketType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := tt
	f.types[typeKey{tt.VenueID, tt.ID}] = &copied
}

func (f *fakeInventory) quantity(venueID, ticketTypeID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[typeKey{venueID, ticketTypeID}].Quantity
}

func (f *fakeInventory) Decrement(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.types[typeKey{venueID, ticketTypeID}]
	if !ok {
		return domain.ErrNotFound
	}
	if tt.Quantity < quantity {
		return &domain.InsufficientStockError{VenueID: venueID, TicketTypeID: ticketTypeID, Requested: quantity}
	}
	tt.Quantity -= quantity
	return nil
}

func (f *fakeInventory) Increment(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.types[typeKey{venueID, ticketTypeID}]
	if !ok {
		return domain.ErrNotFound
	}
	tt.Quantity += quantity
	return nil
}

func (f *fakeInventory) Snapshot(ctx context.Context, venueID uuid.UUID) ([]domain.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketType
	for key, tt := range f.types {
		if key.venueID == venueID {
			out = append(out, *tt)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]domain.Reservation

	failCreate bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]domain.Reservation)}
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeLedger) CreateReservation(ctx context.Context, res domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return domain.ErrTransientStore
	}
	if _, exists := f.rows[res.ID]; exists {
		return domain.ErrConflict
	}
	f.rows[res.ID] = res
	return nil
}

func (f *fakeLedger) SumReserved(ctx context.Context, venueID, ticketTypeID uuid.UUID, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, res := range f.rows {
		if res.VenueID == venueID && res.TicketTypeID == ticketTypeID && res.ExpiresAt.After(asOf) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (f *fakeLedger) FindByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, res := range f.rows {
		if res.OrderID == orderID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeLedger) DeleteByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for id, res := range f.rows {
		if res.OrderID == orderID {
			out = append(out, res)
			delete(f.rows, id)
		}
	}
	return out, nil
}

func (f *fakeLedger) ConfirmByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return f.DeleteByOrderID(ctx, orderID)
}

func (f *fakeLedger) DeleteByUser(ctx context.Context, userID uuid.UUID, orderID string) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for id, res := range f.rows {
		if res.UserID != userID {
			continue
		}
		if orderID != "" && res.OrderID != orderID {
			continue
		}
		out = append(out, res)
		delete(f.rows, id)
	}
	return out, nil
}

func (f *fakeLedger) FindExpired(ctx context.Context, asOf time.Time) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, res := range f.rows {
		if !res.ExpiresAt.After(asOf) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeLedger) DeleteByID(ctx context.Context, id string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	delete(f.rows, id)
	return res, nil
}

func (f *fakeLedger) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for id, res := range f.rows {
		if res.ExpiresAt.Before(cutoff) {
			delete(f.rows, id)
			purged++
		}
	}
	return purged, nil
}
