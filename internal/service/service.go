package service

import (
	"context"
	"time"

	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/pricing"
)

// CheckoutService drives one customer's draft through the checkout steps.
// Guard failures are reported in View.Message rather than returned as errors.
type CheckoutService interface {
	Start(ctx context.Context, vehicleID int32) (*View, string, error) // view, session token
	Get(ctx context.Context, sessionID string) (*View, error)
	Apply(ctx context.Context, sessionID string, action checkout.Action) (*View, error)
	Next(ctx context.Context, sessionID string) (*View, error)
	Back(ctx context.Context, sessionID string) (*View, error)
	ConfirmPayment(ctx context.Context, sessionID string) (*View, error)
	BlockedDates(ctx context.Context, vehicleID int32) ([]string, error)
	Quote(ctx context.Context, req QuoteRequest) (*domain.PriceBreakdown, error)
}

type BookingService interface {
	// CreateBooking persists the draft after the authoritative availability check.
	// A retry from the same session returns the booking created the first time.
	CreateBooking(ctx context.Context, draft checkout.Draft) (*domain.Booking, error)
	GetBooking(ctx context.Context, id int32) (*domain.Booking, error)
	GetBookingByNumber(ctx context.Context, number string) (*domain.Booking, error)
}

type PaymentService interface {
	// CreatePaymentIntent charges the server-side online amount. A zero amount means "use the computed one".
	CreatePaymentIntent(ctx context.Context, bookingID int32, amount domain.Money, option domain.PaymentOption) (*domain.PaymentIntentRef, error)
	// ConfirmPayment is idempotent for the same (paymentIntentID, bookingID) pair
	ConfirmPayment(ctx context.Context, paymentIntentID string, bookingID int32) (*domain.Booking, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	// ReleaseStalePending expires bookings left unpaid for longer than olderThan and returns how many were released
	ReleaseStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// DocumentService hands confirmed bookings to the invoice/contract generator
type DocumentService interface {
	RequestDocuments(ctx context.Context, req DocumentRequest) error
}

type EmailService interface {
	SendBookingConfirmation(ctx context.Context, booking *domain.Booking, vehicleName string) error
	SendPaymentFailedNotification(ctx context.Context, booking *domain.Booking, reason string) error
}

// DraftStore keeps checkout drafts between requests
type DraftStore interface {
	Save(ctx context.Context, d checkout.Draft) error
	Load(ctx context.Context, sessionID string) (checkout.Draft, error)
}

// Locker serializes work on one key across instances
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Catalog bundles the pricing configuration shared by the services
type Catalog struct {
	Engine    *pricing.Engine
	Insurance domain.InsuranceCatalog
	Extras    domain.ExtrasCatalog
	Currency  string
}

// View is what the customer sees of a checkout session
type View struct {
	Draft        checkout.Draft `json:"draft"`
	Message      string         `json:"message,omitempty"`
	BlockedDates []string       `json:"blocked_dates,omitempty"`
}

type QuoteRequest struct {
	VehicleID     int32
	Start, End    time.Time
	Insurance     domain.InsuranceKey
	Extras        []domain.ExtraSelection
	PaymentOption domain.PaymentOption
}

// DocumentRequest carries only what the document generator needs
type DocumentRequest struct {
	BookingID     int32                 `json:"booking_id"`
	BookingNumber string                `json:"booking_number"`
	VehicleID     int32                 `json:"vehicle_id"`
	Start         string                `json:"start"`
	End           string                `json:"end"`
	Customer      domain.GuestInfo      `json:"customer"`
	Price         domain.PriceBreakdown `json:"price"`
}
