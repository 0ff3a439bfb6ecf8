package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evertix/ticket-inventory/internal/domain"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return mapError(err)
}

// ConfirmByOrderID drops the order's holds and records the confirmed sale
// in the outbox within one transaction, so the hand-off to ticket issuance
// survives a broker outage. Zero deleted rows is an idempotent no-op and
// writes no outbox record.
func (r *Repository) ConfirmByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	var reservations []domain.Reservation
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM reservations WHERE order_id = $1 RETURNING `+reservationColumns, orderID)
		if err != nil {
			return mapError(err)
		}
		reservations, err = scanReservations(rows)
		if err != nil {
			return err
		}
		if len(reservations) == 0 {
			return nil
		}

		payload, err := json.Marshal(confirmedPayload(orderID, reservations))
		if err != nil {
			return err
		}
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     "reservation.confirmed",
			Payload:       payload,
			DedupeKey:     "confirm:" + orderID,
		})
	})
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func confirmedPayload(orderID string, reservations []domain.Reservation) map[string]any {
	items := make([]map[string]any, len(reservations))
	for i, res := range reservations {
		items[i] = map[string]any{
			"reservation_id": res.ID,
			"user_id":        res.UserID,
			"venue_id":       res.VenueID,
			"ticket_type_id": res.TicketTypeID,
			"quantity":       res.Quantity,
		}
	}
	return map[string]any{"order_id": orderID, "items": items}
}

func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, mapError(err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time, dedupeKey string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2, dedupe_key = $3 WHERE id = $1
	`, id, publishedAt, dedupeKey)
	return mapError(err)
}
