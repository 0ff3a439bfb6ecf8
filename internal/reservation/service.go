package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
)

const (
	EventReserved  = "reservation.reserved"
	EventConfirmed = "reservation.confirmed"
	EventReleased  = "reservation.released"
	EventExpired   = "reservation.expired"
)

// Service implements the hold protocol: decrement-then-record on reserve,
// delete-only on confirm, delete-then-restore on release. The conditional
// decrement is the single oversell gate; the ledger is bookkeeping for what
// must be restored and when.
type Service struct {
	inv     InventoryStore
	ledger  Ledger
	events  EventPublisher
	audit   AuditTrail
	logger  observability.Logger
	holdTTL time.Duration
}

func NewService(inv InventoryStore, ledger Ledger, events EventPublisher, audit AuditTrail, logger observability.Logger, holdTTL time.Duration) *Service {
	return &Service{
		inv:     inv,
		ledger:  ledger,
		events:  events,
		audit:   audit,
		logger:  logger,
		holdTTL: holdTTL,
	}
}

// Reserve places time-bounded holds for every line item or none at all.
// Items are processed in ticket-type order so overlapping checkouts contend
// in the same sequence. On any failure every decrement already performed in
// this call is rolled back before the error is returned.
func (s *Service) Reserve(ctx context.Context, userID uuid.UUID, orderID string, items []domain.LineItem, ttl time.Duration) ([]domain.Reservation, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := domain.ValidateLineItems(items); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.holdTTL
	}

	sorted := domain.SortLineItems(items)
	created := make([]domain.Reservation, 0, len(sorted))

	for _, item := range sorted {
		if err := s.inv.Decrement(ctx, item.VenueID, item.TicketTypeID, item.Quantity); err != nil {
			s.rollback(ctx, created)
			if errors.Is(err, domain.ErrInsufficientStock) {
				observability.InsufficientStockTotal.Inc()
			}
			return nil, err
		}

		res := domain.NewReservation(userID, orderID, item, ttl)
		if err := s.ledger.CreateReservation(ctx, res); err != nil {
			// This item's decrement has no ledger row yet, so nothing
			// else will ever restore it. Do it here.
			if incErr := s.inv.Increment(ctx, item.VenueID, item.TicketTypeID, item.Quantity); incErr != nil {
				s.logger.WithError(incErr).
					WithField("ticket_type_id", item.TicketTypeID.String()).
					Error("failed to restore inventory after ledger write failure")
				observability.RestoreFailures.WithLabelValues("rollback").Inc()
			}
			s.rollback(ctx, created)
			return nil, err
		}
		created = append(created, res)
	}

	observability.ReservationsCreated.Add(float64(len(created)))
	s.publish(ctx, EventReserved, orderPayload(orderID, created))
	s.recordAudit(ctx, EventReserved, created)
	return created, nil
}

// rollback undoes holds created earlier in a failed Reserve call. Each row
// is claimed by delete before its inventory is restored, the same ordering
// the sweeper uses, so a concurrently-running sweep cannot double-restore.
func (s *Service) rollback(ctx context.Context, created []domain.Reservation) {
	for _, res := range created {
		claimed, err := s.ledger.DeleteByID(ctx, res.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Already claimed by a sweep; its restore is not ours.
				continue
			}
			// Row survives; the sweeper restores it at expiry.
			s.logger.WithError(err).WithField("reservation_id", res.ID).
				Warn("rollback could not claim hold, leaving it for the sweeper")
			continue
		}
		if err := s.inv.Increment(ctx, claimed.VenueID, claimed.TicketTypeID, claimed.Quantity); err != nil {
			s.logger.WithError(err).WithField("reservation_id", res.ID).
				Error("failed to restore inventory during rollback")
			observability.RestoreFailures.WithLabelValues("rollback").Inc()
			continue
		}
		observability.ReservationsReleased.WithLabelValues("rollback").Inc()
	}
}

// Confirm converts an order's holds into a permanent sale: the ledger rows
// are dropped and the decrement from Reserve stands. Confirming an order
// with no remaining rows is a no-op success.
func (s *Service) Confirm(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	confirmed, err := s.ledger.ConfirmByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(confirmed) == 0 {
		return nil, nil
	}
	// The confirmed event itself travels through the outbox written by
	// ConfirmByOrderID; only the audit record is emitted here.
	observability.ReservationsConfirmed.Add(float64(len(confirmed)))
	s.recordAudit(ctx, EventConfirmed, confirmed)
	return confirmed, nil
}

// Release drops an order's holds and restores their inventory. Idempotent:
// a second call finds zero rows and restores nothing.
func (s *Service) Release(ctx context.Context, orderID string) (int, error) {
	released, err := s.ledger.DeleteByOrderID(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if len(released) == 0 {
		return 0, nil
	}
	s.restore(ctx, released, "release")
	s.publish(ctx, EventReleased, orderPayload(orderID, released))
	s.recordAudit(ctx, EventReleased, released)
	return len(released), nil
}

// ReleaseByUser drops every live hold a user has, optionally scoped to one
// order, and restores the inventory. Admin/cleanup surface.
func (s *Service) ReleaseByUser(ctx context.Context, userID uuid.UUID, orderID string) (int, error) {
	released, err := s.ledger.DeleteByUser(ctx, userID, orderID)
	if err != nil {
		return 0, err
	}
	if len(released) == 0 {
		return 0, nil
	}
	s.restore(ctx, released, "release")
	s.recordAudit(ctx, EventReleased, released)
	return len(released), nil
}

// restore puts deleted holds' quantities back, one goroutine per row. The
// rows are already deleted, so a failed increment here cannot be retried by
// a later sweep; it is logged and counted, never propagated, because
// under-restoring loses sellable inventory temporarily but can never
// oversell.
func (s *Service) restore(ctx context.Context, released []domain.Reservation, path string) {
	g, gctx := errgroup.WithContext(ctx)
	for _, res := range released {
		res := res
		g.Go(func() error {
			if err := incrementWithRetry(gctx, s.inv, res); err != nil {
				s.logger.WithError(err).WithField("reservation_id", res.ID).
					Error("failed to restore inventory")
				observability.RestoreFailures.WithLabelValues(path).Inc()
				return nil
			}
			observability.ReservationsReleased.WithLabelValues(path).Inc()
			return nil
		})
	}
	g.Wait()
}

func incrementWithRetry(ctx context.Context, inv InventoryStore, res domain.Reservation) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = inv.Increment(ctx, res.VenueID, res.TicketTypeID, res.Quantity)
		if err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

// ReservationsForOrder lists the live holds of one checkout attempt.
func (s *Service) ReservationsForOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return s.ledger.FindByOrderID(ctx, orderID)
}

// Availability returns the advisory per-ticket-type view for display. The
// remaining counter already excludes live holds, so Available is the
// counter itself; Reserved is reported alongside for transparency.
func (s *Service) Availability(ctx context.Context, venueID uuid.UUID) ([]domain.Availability, error) {
	types, err := s.inv.Snapshot(ctx, venueID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]domain.Availability, 0, len(types))
	for _, tt := range types {
		reserved, err := s.ledger.SumReserved(ctx, venueID, tt.ID, now)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Availability{
			TicketTypeID: tt.ID,
			Label:        tt.Label,
			UnitPrice:    tt.UnitPrice,
			Total:        tt.Capacity,
			Reserved:     reserved,
			Available:    tt.Quantity,
		})
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReservationEvent(ctx, eventType, payload); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("failed to publish event")
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, reservations []domain.Reservation) {
	if s.audit == nil {
		return
	}
	for _, res := range reservations {
		if err := s.audit.RecordReservation(ctx, action, res); err != nil {
			s.logger.WithError(err).WithField("reservation_id", res.ID).Warn("failed to write audit entry")
		}
	}
}

func orderPayload(orderID string, reservations []domain.Reservation) map[string]any {
	ids := make([]string, len(reservations))
	var total int64
	for i, res := range reservations {
		ids[i] = res.ID
		total += res.Quantity
	}
	return map[string]any{
		"order_id":        orderID,
		"reservation_ids": ids,
		"total_quantity":  total,
	}
}
