package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/service"
	"rentcar-backend/internal/utils"
)

// CheckoutHandler serves the step-by-step checkout of one session
type CheckoutHandler struct {
	checkoutSvc service.CheckoutService
}

func NewCheckoutHandler(checkoutSvc service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutSvc: checkoutSvc}
}

type startCheckoutRequest struct {
	VehicleID int32 `json:"vehicle_id"`
}

type startCheckoutResponse struct {
	Token string        `json:"token"`
	View  *service.View `json:"checkout"`
}

// Start opens a checkout session
// POST /api/v1/checkout
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID <= 0 {
		badRequest(w, "Invalid request body")
		return
	}

	view, token, err := h.checkoutSvc.Start(r.Context(), req.VehicleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startCheckoutResponse{Token: token, View: view})
}

// Get returns the current draft
// GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, _ := SessionFromContext(r.Context())
	view, err := h.checkoutSvc.Get(r.Context(), claims.SessionID)
	h.respond(w, r, view, err)
}

type datesRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type insuranceRequest struct {
	Key domain.InsuranceKey `json:"key"`
}

type extrasRequest struct {
	Extras []domain.ExtraSelection `json:"extras"`
}

type paymentOptionRequest struct {
	Option domain.PaymentOption `json:"option"`
}

type termsRequest struct {
	Accepted bool `json:"accepted"`
}

// decodeAction turns the body of a section update into a reducer action
func decodeAction(section string, dec *json.Decoder) (checkout.Action, string) {
	switch section {
	case "dates":
		var req datesRequest
		if err := dec.Decode(&req); err != nil {
			return nil, "Invalid request body"
		}
		rng, err := utils.ParseDateRange(req.Start, req.End)
		if err != nil {
			return nil, "Dates must use the yyyy-mm-dd format"
		}
		return checkout.SetDates{Range: rng}, ""
	case "guest":
		var guest domain.GuestInfo
		if err := dec.Decode(&guest); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.SetGuest{Guest: guest}, ""
	case "driver":
		var driver domain.DriverInfo
		if err := dec.Decode(&driver); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.SetDriver{Driver: driver}, ""
	case "contact":
		var contact domain.ContactInfo
		if err := dec.Decode(&contact); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.SetContact{Contact: contact}, ""
	case "insurance":
		var req insuranceRequest
		if err := dec.Decode(&req); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.SelectInsurance{Key: req.Key}, ""
	case "extras":
		var req extrasRequest
		if err := dec.Decode(&req); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.SetExtras{Selection: req.Extras}, ""
	case "payment-option":
		var req paymentOptionRequest
		if err := dec.Decode(&req); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.SelectPaymentOption{Option: req.Option}, ""
	case "terms":
		var req termsRequest
		if err := dec.Decode(&req); err != nil {
			return nil, "Invalid request body"
		}
		return checkout.AcceptTerms{Accepted: req.Accepted}, ""
	}
	return nil, "Unknown checkout section"
}

// Update applies one section of customer input
// PUT /api/v1/checkout/{section}
func (h *CheckoutHandler) Update(w http.ResponseWriter, r *http.Request) {
	section := mux.Vars(r)["section"]
	action, problem := decodeAction(section, json.NewDecoder(r.Body))
	if problem != "" {
		badRequest(w, problem)
		return
	}

	claims, _ := SessionFromContext(r.Context())
	view, err := h.checkoutSvc.Apply(r.Context(), claims.SessionID, action)
	h.respond(w, r, view, err)
}

// Next advances to the following step, committing the booking when leaving the payment option step
// POST /api/v1/checkout/next
func (h *CheckoutHandler) Next(w http.ResponseWriter, r *http.Request) {
	claims, _ := SessionFromContext(r.Context())
	view, err := h.checkoutSvc.Next(r.Context(), claims.SessionID)
	h.respond(w, r, view, err)
}

// POST /api/v1/checkout/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	claims, _ := SessionFromContext(r.Context())
	view, err := h.checkoutSvc.Back(r.Context(), claims.SessionID)
	h.respond(w, r, view, err)
}

// ConfirmPayment is called by the client after the provider's payment sheet closes
// POST /api/v1/checkout/confirm-payment
func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	claims, _ := SessionFromContext(r.Context())
	view, err := h.checkoutSvc.ConfirmPayment(r.Context(), claims.SessionID)
	h.respond(w, r, view, err)
}

func (h *CheckoutHandler) respond(w http.ResponseWriter, r *http.Request, view *service.View, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
