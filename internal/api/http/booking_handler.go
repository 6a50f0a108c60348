package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/service"
	"rentcar-backend/internal/utils"
)

// BookingHandler serves quotes, availability and the booking payment endpoints
type BookingHandler struct {
	checkoutSvc service.CheckoutService
	bookingSvc  service.BookingService
	paymentSvc  service.PaymentService
}

func NewBookingHandler(checkoutSvc service.CheckoutService, bookingSvc service.BookingService, paymentSvc service.PaymentService) *BookingHandler {
	return &BookingHandler{
		checkoutSvc: checkoutSvc,
		bookingSvc:  bookingSvc,
		paymentSvc:  paymentSvc,
	}
}

func pathID(r *http.Request, name string) (int32, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 32)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int32(id), true
}

type blockedDatesResponse struct {
	VehicleID    int32    `json:"vehicle_id"`
	BlockedDates []string `json:"blocked_dates"`
}

// BlockedDates lists the calendar days a date picker must disable
// GET /api/v1/vehicles/{id}/blocked-dates
func (h *BookingHandler) BlockedDates(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "Invalid vehicle id")
		return
	}
	dates, err := h.checkoutSvc.BlockedDates(r.Context(), vehicleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, blockedDatesResponse{VehicleID: vehicleID, BlockedDates: dates})
}

type quoteRequest struct {
	VehicleID     int32                   `json:"vehicle_id"`
	Start         string                  `json:"start"`
	End           string                  `json:"end"`
	Insurance     domain.InsuranceKey     `json:"insurance"`
	Extras        []domain.ExtraSelection `json:"extras"`
	PaymentOption domain.PaymentOption    `json:"payment_option"`
}

// Quote prices a selection without opening a session
// POST /api/v1/quotes
func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID <= 0 {
		badRequest(w, "Invalid request body")
		return
	}
	rng, err := utils.ParseDateRange(req.Start, req.End)
	if err != nil {
		badRequest(w, "Dates must use the yyyy-mm-dd format")
		return
	}

	price, err := h.checkoutSvc.Quote(r.Context(), service.QuoteRequest{
		VehicleID:     req.VehicleID,
		Start:         rng.Start,
		End:           rng.End,
		Insurance:     req.Insurance,
		Extras:        req.Extras,
		PaymentOption: req.PaymentOption,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

type createIntentRequest struct {
	Amount        domain.Money         `json:"amount"`
	PaymentOption domain.PaymentOption `json:"payment_option"`
}

// CreatePaymentIntent starts or reuses the charge of a booking's online amount
// POST /api/v1/bookings/{id}/payment-intents
func (h *BookingHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "Invalid booking id")
		return
	}
	req := createIntentRequest{Amount: domain.Zero}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid request body")
			return
		}
	}

	intent, err := h.paymentSvc.CreatePaymentIntent(r.Context(), bookingID, req.Amount, req.PaymentOption)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// ConfirmPayment records the provider's outcome for a booking
// POST /api/v1/bookings/{id}/confirm
func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "Invalid booking id")
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentIntentID == "" {
		badRequest(w, "payment_intent_id is required")
		return
	}

	booking, err := h.paymentSvc.ConfirmPayment(r.Context(), req.PaymentIntentID, bookingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// GetBooking looks a booking up by its customer-facing number
// GET /api/v1/bookings/{number}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookingSvc.GetBookingByNumber(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}
