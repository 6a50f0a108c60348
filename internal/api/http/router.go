package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/security"
	"rentcar-backend/internal/service"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// RouterConfig carries everything the HTTP layer needs
type RouterConfig struct {
	Checkout     service.CheckoutService
	Bookings     service.BookingService
	Payments     service.PaymentService
	Tokens       security.TokenManager
	Idempotency  IdempotencyStore
	HealthChecks map[string]HealthCheck
}

// NewRouter registers every API route
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(Recovery, Metrics)

	checkoutHandler := NewCheckoutHandler(cfg.Checkout)
	bookingHandler := NewBookingHandler(cfg.Checkout, cfg.Bookings, cfg.Payments)
	webhookHandler := NewWebhookHandler(cfg.Payments)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Public
	api.HandleFunc("/checkout", checkoutHandler.Start).Methods("POST")
	api.HandleFunc("/vehicles/{id:[0-9]+}/blocked-dates", bookingHandler.BlockedDates).Methods("GET")
	api.HandleFunc("/quotes", bookingHandler.Quote).Methods("POST")
	api.HandleFunc("/bookings/{number}", bookingHandler.GetBooking).Methods("GET")
	api.HandleFunc("/webhooks/stripe", webhookHandler.Stripe).Methods("POST")

	// Checkout session (Bearer checkout token)
	session := api.PathPrefix("/checkout").Subrouter()
	session.Use(CheckoutAuth(cfg.Tokens))
	session.HandleFunc("", checkoutHandler.Get).Methods("GET")
	session.HandleFunc("/next", checkoutHandler.Next).Methods("POST")
	session.HandleFunc("/back", checkoutHandler.Back).Methods("POST")
	session.HandleFunc("/confirm-payment", checkoutHandler.ConfirmPayment).Methods("POST")
	session.HandleFunc("/{section}", checkoutHandler.Update).Methods("PUT")

	// Payments (replayable with Idempotency-Key)
	payments := api.PathPrefix("/bookings/{id:[0-9]+}").Subrouter()
	if cfg.Idempotency != nil {
		payments.Use(Idempotency(cfg.Idempotency))
	}
	payments.HandleFunc("/payment-intents", bookingHandler.CreatePaymentIntent).Methods("POST")
	payments.HandleFunc("/confirm", bookingHandler.ConfirmPayment).Methods("POST")

	// Operations
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", healthz(cfg.HealthChecks)).Methods("GET")

	return router
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("Health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
