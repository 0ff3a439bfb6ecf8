package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
	"github.com/evertix/ticket-inventory/internal/payment"
	"github.com/evertix/ticket-inventory/internal/reservation"
)

// Reserver is the slice of the reservation service the orchestrator drives.
type Reserver interface {
	Reserve(ctx context.Context, userID uuid.UUID, orderID string, items []domain.LineItem, ttl time.Duration) ([]domain.Reservation, error)
	Confirm(ctx context.Context, orderID string) ([]domain.Reservation, error)
	Release(ctx context.Context, orderID string) (int, error)
}

// Orchestrator sequences reserve, collect payment, confirm-or-release. It
// holds no locks of its own; correctness is delegated entirely to the
// reservation service's atomic primitives.
type Orchestrator struct {
	reservations Reserver
	inv          reservation.InventoryStore
	gateway      payment.Gateway
	logger       observability.Logger
	returnURL    string
	notifyURL    string
}

func NewOrchestrator(reservations Reserver, inv reservation.InventoryStore, gateway payment.Gateway, logger observability.Logger, returnURL, notifyURL string) *Orchestrator {
	return &Orchestrator{
		reservations: reservations,
		inv:          inv,
		gateway:      gateway,
		logger:       logger,
		returnURL:    returnURL,
		notifyURL:    notifyURL,
	}
}

type Customer struct {
	ID    string
	Phone string
	Email string
}

type Result struct {
	OrderID           string
	PaymentSessionRef string
	Total             float64
	ExpiresAt         time.Time
}

// Checkout reserves the cart and opens a payment order for its total. On
// insufficient stock the caller gets the typed error without any payment
// attempt; if the gateway call fails the fresh holds are released so the
// inventory is not tied up waiting for the sweeper.
func (o *Orchestrator) Checkout(ctx context.Context, userID uuid.UUID, items []domain.LineItem, customer Customer) (*Result, error) {
	orderID := payment.GenerateOrderID()

	reservations, err := o.reservations.Reserve(ctx, userID, orderID, items, 0)
	if err != nil {
		return nil, err
	}

	total, err := o.priceOrder(ctx, items)
	if err != nil {
		o.releaseAfterFailure(ctx, orderID)
		return nil, err
	}

	order, err := o.gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		OrderID:       orderID,
		Amount:        total,
		Currency:      "INR",
		CustomerID:    customer.ID,
		CustomerPhone: customer.Phone,
		CustomerEmail: customer.Email,
		ReturnURL:     o.returnURL,
		NotifyURL:     o.notifyURL,
	})
	if err != nil {
		o.releaseAfterFailure(ctx, orderID)
		return nil, err
	}

	return &Result{
		OrderID:           order.OrderRef,
		PaymentSessionRef: order.PaymentSessionRef,
		Total:             total,
		ExpiresAt:         reservations[0].ExpiresAt,
	}, nil
}

// Settle resolves an order after a webhook or a verification poll. Paid
// orders confirm; terminally failed ones release. Anything still pending is
// left for the next poll or, worst case, the sweeper.
func (o *Orchestrator) Settle(ctx context.Context, orderID string) error {
	status, err := o.gateway.Verify(ctx, orderID)
	if err != nil {
		return err
	}
	return o.apply(ctx, orderID, status)
}

// ApplyPaymentStatus is the webhook entry point: the caller has already
// verified the signature and parsed the gateway's status string.
func (o *Orchestrator) ApplyPaymentStatus(ctx context.Context, orderID, gatewayStatus string) error {
	return o.apply(ctx, orderID, &payment.Status{
		IsPaid: gatewayStatus == "PAID" || gatewayStatus == "SUCCESS",
		Status: gatewayStatus,
	})
}

func (o *Orchestrator) apply(ctx context.Context, orderID string, status *payment.Status) error {
	if status.IsPaid {
		confirmed, err := o.reservations.Confirm(ctx, orderID)
		if err != nil {
			return err
		}
		if len(confirmed) == 0 {
			o.logger.WithField("order_id", orderID).Info("confirm no-op, holds already settled")
		}
		observability.CheckoutsSettled.WithLabelValues("confirmed").Inc()
		return nil
	}

	switch status.Status {
	case "EXPIRED", "TERMINATED", "CANCELLED", "FAILED", "USER_DROPPED":
		if _, err := o.reservations.Release(ctx, orderID); err != nil {
			return err
		}
		observability.CheckoutsSettled.WithLabelValues("released").Inc()
		return nil
	}
	// Still pending at the gateway; the hold's expiry bounds the wait.
	return nil
}

func (o *Orchestrator) priceOrder(ctx context.Context, items []domain.LineItem) (float64, error) {
	prices := make(map[uuid.UUID]map[uuid.UUID]float64)
	var total float64
	for _, item := range items {
		venue, ok := prices[item.VenueID]
		if !ok {
			types, err := o.inv.Snapshot(ctx, item.VenueID)
			if err != nil {
				return 0, err
			}
			venue = make(map[uuid.UUID]float64, len(types))
			for _, tt := range types {
				venue[tt.ID] = tt.UnitPrice
			}
			prices[item.VenueID] = venue
		}
		price, ok := venue[item.TicketTypeID]
		if !ok {
			return 0, domain.ErrNotFound
		}
		total += price * float64(item.Quantity)
	}
	return total, nil
}

func (o *Orchestrator) releaseAfterFailure(ctx context.Context, orderID string) {
	if _, err := o.reservations.Release(ctx, orderID); err != nil {
		// The sweeper reclaims the holds at expiry either way.
		o.logger.WithError(err).WithField("order_id", orderID).
			Warn("failed to release holds after checkout failure")
	}
}
