package rabbit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher emits reservation lifecycle events. These are advisory
// telemetry: callers treat publish failures as fire-and-forget and never
// roll back inventory because of them.
type EventPublisher struct {
	pub *Publisher
}

func NewEventPublisher(pub *Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (e *EventPublisher) PublishReservationEvent(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return e.pub.Publish(ctx, eventType, amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        body,
	})
}
