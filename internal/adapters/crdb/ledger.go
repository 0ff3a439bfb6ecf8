package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evertix/ticket-inventory/internal/domain"
)

const reservationColumns = "id, user_id, order_id, venue_id, ticket_type_id, quantity, reserved_at, expires_at, status"

func (r *Repository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, res.ID, res.UserID, res.OrderID, res.VenueID, res.TicketTypeID,
		res.Quantity, res.ReservedAt, res.ExpiresAt, res.Status)
	return mapError(err)
}

// SumReserved totals live holds for one ticket type. Defense-in-depth
// estimate only; the conditional decrement is the gate.
func (r *Repository) SumReserved(ctx context.Context, venueID, ticketTypeID uuid.UUID, asOf time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM reservations
		WHERE venue_id = $1 AND ticket_type_id = $2 AND status = $3 AND expires_at > $4
	`, venueID, ticketTypeID, domain.StatusReserved, asOf).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (r *Repository) FindByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	return scanReservations(rows)
}

// DeleteByOrderID removes all holds of one checkout attempt and returns
// them so the caller knows how much to restore per ticket type. The delete
// is the mutual-exclusion point between confirm, release and sweep.
func (r *Repository) DeleteByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM reservations WHERE order_id = $1 RETURNING `+reservationColumns+`
	`, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	return scanReservations(rows)
}

// DeleteByUser removes all of a user's live holds, optionally scoped to one
// order. Empty orderID means every order of the user.
func (r *Repository) DeleteByUser(ctx context.Context, userID uuid.UUID, orderID string) ([]domain.Reservation, error) {
	query := `DELETE FROM reservations WHERE user_id = $1 RETURNING ` + reservationColumns
	args := []any{userID}
	if orderID != "" {
		query = `DELETE FROM reservations WHERE user_id = $1 AND order_id = $2 RETURNING ` + reservationColumns
		args = append(args, orderID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return scanReservations(rows)
}

func (r *Repository) FindExpired(ctx context.Context, asOf time.Time) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = $1 AND expires_at <= $2
	`, domain.StatusReserved, asOf)
	if err != nil {
		return nil, mapError(err)
	}
	return scanReservations(rows)
}

// DeleteByID claims a single reservation. Exactly one concurrent caller
// gets the row back; the rest see ErrNotFound and must not restore.
func (r *Repository) DeleteByID(ctx context.Context, id string) (domain.Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM reservations WHERE id = $1 RETURNING `+reservationColumns, id)
	var res domain.Reservation
	err := row.Scan(&res.ID, &res.UserID, &res.OrderID, &res.VenueID, &res.TicketTypeID,
		&res.Quantity, &res.ReservedAt, &res.ExpiresAt, &res.Status)
	if err != nil {
		return domain.Reservation{}, mapError(err)
	}
	return res, nil
}

// DeleteExpiredBefore is the bloat safety net past the grace period. It
// restores nothing, so it must only run on rows the sweeper already had a
// full grace window to process.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM reservations WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected(), nil
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var reservations []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.OrderID, &res.VenueID, &res.TicketTypeID,
			&res.Quantity, &res.ReservedAt, &res.ExpiresAt, &res.Status); err != nil {
			return nil, mapError(err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return reservations, nil
}
