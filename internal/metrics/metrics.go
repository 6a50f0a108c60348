package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transitions_total",
		Help: "Checkout step transitions by source step and outcome",
	}, []string{"step", "outcome"})

	BookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Booking commit attempts by outcome",
	}, []string{"outcome"})

	PaymentIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Payment intent requests by outcome (created, reused, superseded, error)",
	}, []string{"outcome"})

	PaymentConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Payment confirmations by resulting status",
	}, []string{"status"})

	BookingsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_released_total",
		Help: "Pending bookings expired by the release job",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route", "method"})
)
