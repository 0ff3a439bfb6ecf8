package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
)

// AuditTrail records reservation lifecycle actions. The reservation row
// itself is deleted on confirm/release, so this collection is the only
// per-user history that survives; that is why the user id is denormalized
// onto reservations in the first place.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("reservation_audit"),
		logger: logger,
	}
}

type AuditEntry struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	OrderID   string    `bson:"order_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditTrail) Record(ctx context.Context, action string, userID uuid.UUID, orderID string, data map[string]interface{}) error {
	entry := AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit entry")
		return err
	}
	return nil
}

func (a *AuditTrail) RecordReservation(ctx context.Context, action string, res domain.Reservation) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"venue_id":       res.VenueID,
		"ticket_type_id": res.TicketTypeID,
		"quantity":       res.Quantity,
		"expires_at":     res.ExpiresAt.Format(time.RFC3339),
	}
	return a.Record(ctx, action, res.UserID, res.OrderID, data)
}
