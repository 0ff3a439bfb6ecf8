package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evertix/ticket-inventory/internal/observability"
	"github.com/evertix/ticket-inventory/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/reservations", h.Reserve)
	r.Post("/v1/orders/{orderID}/confirm", h.Confirm)
	r.Post("/v1/orders/{orderID}/release", h.Release)
	r.Get("/v1/orders/{orderID}/reservations", h.OrderReservations)
	r.Post("/v1/users/{userID}/reservations/release", h.ReleaseByUser)
	r.Get("/v1/venues/{venueID}/availability", h.Availability)
	r.Post("/v1/checkout", h.Checkout)
	r.Post("/v1/payments/webhook", h.PaymentWebhook)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
