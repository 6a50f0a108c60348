package http

import (
	"errors"
	"io"
	"net/http"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/service"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	paymentSvc service.PaymentService
}

func NewWebhookHandler(paymentSvc service.PaymentService) *WebhookHandler {
	return &WebhookHandler{paymentSvc: paymentSvc}
}

// Stripe receives provider events. Any non-2xx answer makes the provider redeliver.
// POST /api/v1/webhooks/stripe
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		badRequest(w, "Failed to read body")
		return
	}

	err = h.paymentSvc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrValidation):
		badRequest(w, domain.UserMessage(err))
	default:
		writeError(w, r, err)
	}
}
