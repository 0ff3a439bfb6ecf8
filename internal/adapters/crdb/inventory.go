package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
)

// Decrement performs the authoritative check-and-subtract as one conditional
// update. Zero rows affected means either the counter is too low or the
// ticket type does not exist; a follow-up existence probe tells them apart.
func (r *Repository) Decrement(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	start := time.Now()
	defer func() {
		observability.DBOpDuration.WithLabelValues("inventory_decrement").Observe(time.Since(start).Seconds())
	}()

	result, err := r.pool.Exec(ctx, `
		UPDATE ticket_types SET quantity = quantity - $3
		WHERE venue_id = $1 AND id = $2 AND quantity >= $3
	`, venueID, ticketTypeID, quantity)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ticket_types WHERE venue_id = $1 AND id = $2)
	`, venueID, ticketTypeID).Scan(&exists)
	if err != nil {
		return mapError(err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return &domain.InsufficientStockError{
		VenueID:      venueID,
		TicketTypeID: ticketTypeID,
		Requested:    quantity,
	}
}

// Increment unconditionally restores quantity. Idempotency is the caller's
// job: the ledger row delete is the claim that makes each restore happen
// exactly once.
func (r *Repository) Increment(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	start := time.Now()
	defer func() {
		observability.DBOpDuration.WithLabelValues("inventory_increment").Observe(time.Since(start).Seconds())
	}()

	result, err := r.pool.Exec(ctx, `
		UPDATE ticket_types SET quantity = quantity + $3
		WHERE venue_id = $1 AND id = $2
	`, venueID, ticketTypeID, quantity)
	if err != nil {
		return mapError(err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Snapshot reads remaining quantities without locking. Advisory only.
func (r *Repository) Snapshot(ctx context.Context, venueID uuid.UUID) ([]domain.TicketType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, venue_id, label, unit_price, capacity, quantity
		FROM ticket_types WHERE venue_id = $1 ORDER BY id
	`, venueID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var types []domain.TicketType
	for rows.Next() {
		var tt domain.TicketType
		if err := rows.Scan(&tt.ID, &tt.VenueID, &tt.Label, &tt.UnitPrice, &tt.Capacity, &tt.Quantity); err != nil {
			return nil, mapError(err)
		}
		types = append(types, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if len(types) == 0 {
		return nil, domain.ErrNotFound
	}
	return types, nil
}
