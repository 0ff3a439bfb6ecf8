package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	ReservationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_reservations_created_total",
			Help: "Total holds created",
		},
	)

	ReservationsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_reservations_confirmed_total",
			Help: "Total holds converted to sales",
		},
	)

	ReservationsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_reservations_released_total",
			Help: "Total holds released with inventory restored",
		},
		[]string{"reason"}, // release, expiry, rollback
	)

	InsufficientStockTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_insufficient_stock_total",
			Help: "Reserve attempts rejected for lack of inventory",
		},
	)

	SweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_sweep_runs_total",
			Help: "Expiry sweeper passes completed",
		},
	)

	RestoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_restore_failures_total",
			Help: "Inventory restores that failed after a hold was claimed",
		},
		[]string{"path"}, // release, sweep, rollback
	)

	DBOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tix_db_op_seconds",
			Help:    "Duration of inventory store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tix_outbox_lag_seconds",
			Help: "Age of the most recently relayed outbox record",
		},
	)

	CheckoutsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tix_checkouts_settled_total",
			Help: "Checkout attempts resolved by payment outcome",
		},
		[]string{"outcome"},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tix_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
