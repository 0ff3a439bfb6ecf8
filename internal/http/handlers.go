package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evertix/ticket-inventory/internal/adapters/mongo"
	redisadapter "github.com/evertix/ticket-inventory/internal/adapters/redis"
	"github.com/evertix/ticket-inventory/internal/checkout"
	"github.com/evertix/ticket-inventory/internal/config"
	"github.com/evertix/ticket-inventory/internal/domain"
	"github.com/evertix/ticket-inventory/internal/idempotency"
	"github.com/evertix/ticket-inventory/internal/payment"
	"github.com/evertix/ticket-inventory/internal/reservation"
)

const availabilityCacheTTL = 5 * time.Second

type Handlers struct {
	cfg     *config.Config
	svc     *reservation.Service
	orch    *checkout.Orchestrator
	gateway *payment.CashfreeClient
	catalog *mongo.VenueCatalog
	redis   *redisadapter.Cache
	idemp   *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, svc *reservation.Service, orch *checkout.Orchestrator, gateway *payment.CashfreeClient, catalog *mongo.VenueCatalog, redis *redisadapter.Cache, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:     cfg,
		svc:     svc,
		orch:    orch,
		gateway: gateway,
		catalog: catalog,
		redis:   redis,
		idemp:   idemp,
	}
}

type lineItemReq struct {
	VenueID      uuid.UUID `json:"venue_id"`
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Quantity     int64     `json:"quantity"`
}

func toLineItems(items []lineItemReq) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	for i, item := range items {
		out[i] = domain.LineItem{VenueID: item.VenueID, TicketTypeID: item.TicketTypeID, Quantity: item.Quantity}
	}
	return out
}

// writeError maps the domain taxonomy to status codes. Insufficient stock
// gets a dedicated shape so clients can render "sold out" instead of
// "retry payment".
func writeError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":          "sold_out",
			"ticket_type_id": stockErr.TicketTypeID,
			"requested":      stockErr.Requested,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		http.Error(w, "sold out", http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	case errors.Is(err, domain.ErrTransientStore):
		http.Error(w, "temporarily unavailable, retry with the same order id", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) []byte {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		UserID      uuid.UUID     `json:"user_id"`
		OrderID     string        `json:"order_id"`
		HoldMinutes int           `json:"hold_minutes"`
		LineItems   []lineItemReq `json:"line_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, item := range req.LineItems {
		if _, err := h.catalog.GetVenue(r.Context(), item.VenueID); err != nil {
			http.Error(w, "venue not found", http.StatusNotFound)
			return
		}
	}

	reservations, err := h.svc.Reserve(r.Context(), req.UserID, req.OrderID,
		toLineItems(req.LineItems), time.Duration(req.HoldMinutes)*time.Minute)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, item := range req.LineItems {
		h.redis.InvalidateAvailability(r.Context(), item.VenueID.String())
	}

	resp := map[string]any{
		"order_id":     req.OrderID,
		"reservations": reservationViews(reservations),
		"expires_at":   reservations[0].ExpiresAt.Format(time.RFC3339),
	}
	data := writeJSON(w, http.StatusCreated, resp)
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	confirmed, err := h.svc.Confirm(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":  orderID,
		"confirmed": len(confirmed),
	})
}

func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	released, err := h.svc.Release(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": orderID,
		"released": released,
	})
}

func (h *Handlers) OrderReservations(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	reservations, err := h.svc.ReservationsForOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":     orderID,
		"reservations": reservationViews(reservations),
	})
}

func (h *Handlers) ReleaseByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	released, err := h.svc.ReleaseByUser(r.Context(), userID, r.URL.Query().Get("order_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"released": released,
	})
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	venueID, err := uuid.Parse(chi.URLParam(r, "venueID"))
	if err != nil {
		http.Error(w, "invalid venue id", http.StatusBadRequest)
		return
	}

	if cached, err := h.redis.GetAvailability(r.Context(), venueID.String()); err == nil && cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	availability, err := h.svc.Availability(r.Context(), venueID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"venue_id":     venueID,
		"ticket_types": availabilityViews(availability),
	}
	if venue, err := h.catalog.GetVenue(r.Context(), venueID); err == nil {
		resp["venue"] = venue.Venue
		resp["event_name"] = venue.EventName
		resp["date"] = venue.Date.Format(time.RFC3339)
	}

	data := writeJSON(w, http.StatusOK, resp)
	h.redis.SetAvailability(r.Context(), venueID.String(), data, availabilityCacheTTL)
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		UserID    uuid.UUID     `json:"user_id"`
		LineItems []lineItemReq `json:"line_items"`
		Customer  struct {
			Phone string `json:"phone"`
			Email string `json:"email"`
		} `json:"customer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.orch.Checkout(r.Context(), req.UserID, toLineItems(req.LineItems), checkout.Customer{
		ID:    req.UserID.String(),
		Phone: req.Customer.Phone,
		Email: req.Customer.Email,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"order_id":            result.OrderID,
		"payment_session_ref": result.PaymentSessionRef,
		"total":               result.Total,
		"expires_at":          result.ExpiresAt.Format(time.RFC3339),
	}
	data := writeJSON(w, http.StatusAccepted, resp)
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusAccepted, Result: data})
}

// PaymentWebhook settles an order from the gateway's asynchronous status.
// The signature is verified over the raw body before any field is trusted.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("x-webhook-signature")
	timestamp := r.Header.Get("x-webhook-timestamp")
	if !h.gateway.VerifyWebhookSignature(rawBody, signature, timestamp) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event struct {
		Data struct {
			Order struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
			Payment struct {
				PaymentStatus string `json:"payment_status"`
			} `json:"payment"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &event); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if event.Data.Order.OrderID == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	if err := h.orch.ApplyPaymentStatus(r.Context(), event.Data.Order.OrderID, event.Data.Payment.PaymentStatus); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func availabilityViews(availability []domain.Availability) []map[string]any {
	views := make([]map[string]any, len(availability))
	for i, av := range availability {
		views[i] = map[string]any{
			"ticket_type_id": av.TicketTypeID,
			"label":          av.Label,
			"unit_price":     av.UnitPrice,
			"total":          av.Total,
			"reserved":       av.Reserved,
			"available":      av.Available,
			"can_reserve":    av.Available > 0,
		}
	}
	return views
}

func reservationViews(reservations []domain.Reservation) []map[string]any {
	views := make([]map[string]any, len(reservations))
	for i, res := range reservations {
		views[i] = map[string]any{
			"reservation_id": res.ID,
			"venue_id":       res.VenueID,
			"ticket_type_id": res.TicketTypeID,
			"quantity":       res.Quantity,
			"expires_at":     res.ExpiresAt.Format(time.RFC3339),
		}
	}
	return views
}
