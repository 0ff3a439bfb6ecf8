package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/evertix/ticket-inventory/internal/adapters/crdb"
	"github.com/evertix/ticket-inventory/internal/adapters/rabbit"
	"github.com/evertix/ticket-inventory/internal/observability"
)

// Publisher relays confirmed-sale records from the outbox table to the
// broker. Ticket issuance and notifications hang off these events, so they
// must survive a broker outage; everything else publishes directly.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.logger.WithError(err).Error("outbox batch failed")
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, 50)
	if err != nil {
		return err
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			// Leave the record NEW; the next pass retries it. Consumers
			// dedupe on MessageId if we end up publishing twice.
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).
				Warn("outbox publish failed")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).
				Warn("failed to mark outbox record published")
			continue
		}
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
	}
	return nil
}
