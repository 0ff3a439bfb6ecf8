package sweeper

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
	"github.com/evertix/ticket-inventory/internal/reservation"
)

// Locker elects a sweep leader across instances. Optional: sweeping without
// it is still correct because each row is claimed by delete, it just wastes
// duplicate scans.
type Locker interface {
	AcquireSweepLock(ctx context.Context, instanceID string, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context, instanceID string) error
}

// Sweeper releases holds nobody confirmed in time. Ordering per row is
// delete-first, then-increment: a crash in between under-restores for the
// grace window, which is the failure direction that can never oversell.
type Sweeper struct {
	ledger     reservation.Ledger
	inv        reservation.InventoryStore
	events     reservation.EventPublisher
	audit      reservation.AuditTrail
	locker     Locker
	logger     observability.Logger
	grace      time.Duration
	instanceID string
}

func New(ledger reservation.Ledger, inv reservation.InventoryStore, events reservation.EventPublisher, audit reservation.AuditTrail, locker Locker, logger observability.Logger, grace time.Duration, instanceID string) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		inv:        inv,
		events:     events,
		audit:      audit,
		locker:     locker,
		logger:     logger,
		grace:      grace,
		instanceID: instanceID,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Drift up
// to one interval is acceptable; expiry is a soft deadline.
func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := w.SweepOnce(ctx, now.UTC()); err != nil {
				w.logger.WithError(err).Error("sweep failed")
			}
		}
	}
}

// SweepOnce processes every reservation past its expiry and returns how
// many had their inventory restored. Safe to run concurrently from several
// instances: the single-row delete claim makes each restore happen at most
// once, and whichever of confirm, release or sweep deletes a row first wins.
func (w *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if w.locker != nil {
		ok, err := w.locker.AcquireSweepLock(ctx, w.instanceID, w.grace)
		if err != nil {
			w.logger.WithError(err).Warn("sweep lock unavailable, proceeding unlocked")
		} else if !ok {
			return 0, nil
		} else {
			defer w.locker.ReleaseSweepLock(ctx, w.instanceID)
		}
	}

	expired, err := w.ledger.FindExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	restored := 0
	byOrder := make(map[string][]domain.Reservation)
	for _, res := range expired {
		claimed, err := w.ledger.DeleteByID(ctx, res.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Confirmed, released or swept elsewhere since we read it.
				continue
			}
			// Row survives; the next sweep retries it.
			w.logger.WithError(err).WithField("reservation_id", res.ID).
				Warn("failed to claim expired hold")
			continue
		}

		if err := w.restoreWithRetry(ctx, claimed); err != nil {
			w.logger.WithError(err).WithField("reservation_id", claimed.ID).
				Error("failed to restore inventory for expired hold")
			observability.RestoreFailures.WithLabelValues("sweep").Inc()
			continue
		}
		observability.ReservationsReleased.WithLabelValues("expiry").Inc()
		restored++
		byOrder[claimed.OrderID] = append(byOrder[claimed.OrderID], claimed)
	}

	for orderID, reservations := range byOrder {
		w.publishExpired(ctx, orderID, reservations)
		w.recordAudit(ctx, reservations)
	}

	// Bloat safety net: rows the sweeper failed to process for a full grace
	// window are dropped without restore, mirroring a storage-level TTL.
	purged, err := w.ledger.DeleteExpiredBefore(ctx, now.Add(-w.grace))
	if err != nil {
		w.logger.WithError(err).Warn("grace-period purge failed")
	} else if purged > 0 {
		w.logger.WithField("purged", purged).Warn("dropped stale holds past grace period without restore")
	}

	observability.SweepRuns.Inc()
	if restored > 0 {
		w.logger.WithField("restored", restored).Info("expired holds released")
	}
	return restored, nil
}

func (w *Sweeper) restoreWithRetry(ctx context.Context, res domain.Reservation) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = w.inv.Increment(ctx, res.VenueID, res.TicketTypeID, res.Quantity)
		if err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func (w *Sweeper) publishExpired(ctx context.Context, orderID string, reservations []domain.Reservation) {
	if w.events == nil {
		return
	}
	ids := make([]string, len(reservations))
	for i, res := range reservations {
		ids[i] = res.ID
	}
	payload := map[string]any{"order_id": orderID, "reservation_ids": ids}
	if err := w.events.PublishReservationEvent(ctx, reservation.EventExpired, payload); err != nil {
		w.logger.WithError(err).Warn("failed to publish expiry event")
	}
}

func (w *Sweeper) recordAudit(ctx context.Context, reservations []domain.Reservation) {
	if w.audit == nil {
		return
	}
	for _, res := range reservations {
		if err := w.audit.RecordReservation(ctx, reservation.EventExpired, res); err != nil {
			w.logger.WithError(err).WithField("reservation_id", res.ID).Warn("failed to write audit entry")
		}
	}
}
