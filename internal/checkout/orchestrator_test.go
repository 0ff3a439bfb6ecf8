package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evertix/ticket-inventory/internal/checkout"
	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/observability"
	"github.com/evertix/ticket-inventory/internal/payment"
)

type fakeReserver struct {
	reserveErr error

	reservedOrder  string
	confirmedOrder string
	releasedOrder  string
}

func (f *fakeReserver) Reserve(ctx context.Context, userID uuid.UUID, orderID string, items []domain.LineItem, ttl time.Duration) ([]domain.Reservation, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	f.reservedOrder = orderID
	out := make([]domain.Reservation, len(items))
	for i, item := range items {
		out[i] = domain.NewReservation(userID, orderID, item, 5*time.Minute)
	}
	return out, nil
}

func (f *fakeReserver) Confirm(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	f.confirmedOrder = orderID
	return []domain.Reservation{{ID: "RES_1", OrderID: orderID}}, nil
}

func (f *fakeReserver) Release(ctx context.Context, orderID string) (int, error) {
	f.releasedOrder = orderID
	return 1, nil
}

type fakeInventory struct {
	types []domain.TicketType
}

func (f *fakeInventory) Decrement(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	return nil
}

func (f *fakeInventory) Increment(ctx context.Context, venueID, ticketTypeID uuid.UUID, quantity int64) error {
	return nil
}

func (f *fakeInventory) Snapshot(ctx context.Context, venueID uuid.UUID) ([]domain.TicketType, error) {
	return f.types, nil
}

type fakeGateway struct {
	createErr error
	status    *payment.Status

	created *payment.CreateOrderRequest
}

func (f *fakeGateway) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &req
	return &payment.Order{OrderRef: req.OrderID, PaymentSessionRef: "session_1"}, nil
}

func (f *fakeGateway) Verify(ctx context.Context, orderRef string) (*payment.Status, error) {
	return f.status, nil
}

func newTestOrchestrator(rsv *fakeReserver, inv *fakeInventory, gw *fakeGateway) *checkout.Orchestrator {
	return checkout.NewOrchestrator(rsv, inv, gw, observability.NewLogger(), "http://return", "http://notify")
}

func TestCheckoutOpensPaymentForCartTotal(t *testing.T) {
	venueID := uuid.New()
	typeID := uuid.New()
	rsv := &fakeReserver{}
	inv := &fakeInventory{types: []domain.TicketType{
		{ID: typeID, VenueID: venueID, UnitPrice: 250, Quantity: 10},
	}}
	gw := &fakeGateway{}
	orch := newTestOrchestrator(rsv, inv, gw)

	result, err := orch.Checkout(context.Background(), uuid.New(),
		[]domain.LineItem{{VenueID: venueID, TicketTypeID: typeID, Quantity: 3}},
		checkout.Customer{ID: "cust_1", Phone: "9999999999", Email: "a@b.c"})
	require.NoError(t, err)

	assert.Equal(t, rsv.reservedOrder, result.OrderID)
	assert.Equal(t, "session_1", result.PaymentSessionRef)
	assert.Equal(t, float64(750), result.Total)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	require.NotNil(t, gw.created)
	assert.Equal(t, float64(750), gw.created.Amount)
	assert.Equal(t, "INR", gw.created.Currency)
	assert.Equal(t, "http://return", gw.created.ReturnURL)
	assert.Equal(t, "http://notify", gw.created.NotifyURL)
	assert.Empty(t, rsv.releasedOrder)
}

func TestCheckoutSoldOutSkipsPayment(t *testing.T) {
	rsv := &fakeReserver{reserveErr: &domain.InsufficientStockError{TicketTypeID: uuid.New(), Requested: 2}}
	gw := &fakeGateway{}
	orch := newTestOrchestrator(rsv, &fakeInventory{}, gw)

	_, err := orch.Checkout(context.Background(), uuid.New(),
		[]domain.LineItem{{VenueID: uuid.New(), TicketTypeID: uuid.New(), Quantity: 2}},
		checkout.Customer{})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Nil(t, gw.created)
	assert.Empty(t, rsv.releasedOrder)
}

func TestCheckoutGatewayFailureReleasesHolds(t *testing.T) {
	venueID := uuid.New()
	typeID := uuid.New()
	rsv := &fakeReserver{}
	inv := &fakeInventory{types: []domain.TicketType{{ID: typeID, VenueID: venueID, UnitPrice: 100}}}
	gw := &fakeGateway{createErr: errors.New("gateway down")}
	orch := newTestOrchestrator(rsv, inv, gw)

	_, err := orch.Checkout(context.Background(), uuid.New(),
		[]domain.LineItem{{VenueID: venueID, TicketTypeID: typeID, Quantity: 1}},
		checkout.Customer{})
	require.Error(t, err)
	assert.Equal(t, rsv.reservedOrder, rsv.releasedOrder)
}

func TestSettlePaidConfirms(t *testing.T) {
	rsv := &fakeReserver{}
	gw := &fakeGateway{status: &payment.Status{IsPaid: true, Status: "PAID"}}
	orch := newTestOrchestrator(rsv, &fakeInventory{}, gw)

	require.NoError(t, orch.Settle(context.Background(), "order_1"))
	assert.Equal(t, "order_1", rsv.confirmedOrder)
	assert.Empty(t, rsv.releasedOrder)
}

func TestSettleTerminalFailureReleases(t *testing.T) {
	for _, status := range []string{"EXPIRED", "TERMINATED", "CANCELLED", "FAILED", "USER_DROPPED"} {
		rsv := &fakeReserver{}
		gw := &fakeGateway{status: &payment.Status{Status: status}}
		orch := newTestOrchestrator(rsv, &fakeInventory{}, gw)

		require.NoError(t, orch.Settle(context.Background(), "order_1"))
		assert.Empty(t, rsv.confirmedOrder, status)
		assert.Equal(t, "order_1", rsv.releasedOrder, status)
	}
}

func TestSettlePendingLeavesHolds(t *testing.T) {
	rsv := &fakeReserver{}
	gw := &fakeGateway{status: &payment.Status{Status: "ACTIVE"}}
	orch := newTestOrchestrator(rsv, &fakeInventory{}, gw)

	require.NoError(t, orch.Settle(context.Background(), "order_1"))
	assert.Empty(t, rsv.confirmedOrder)
	assert.Empty(t, rsv.releasedOrder)
}

func TestApplyPaymentStatusFromWebhook(t *testing.T) {
	rsv := &fakeReserver{}
	orch := newTestOrchestrator(rsv, &fakeInventory{}, &fakeGateway{})

	require.NoError(t, orch.ApplyPaymentStatus(context.Background(), "order_1", "SUCCESS"))
	assert.Equal(t, "order_1", rsv.confirmedOrder)

	rsv = &fakeReserver{}
	orch = newTestOrchestrator(rsv, &fakeInventory{}, &fakeGateway{})
	require.NoError(t, orch.ApplyPaymentStatus(context.Background(), "order_1", "FAILED"))
	assert.Equal(t, "order_1", rsv.releasedOrder)
}
