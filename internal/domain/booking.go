package domain

import (
	"time"

	"rentcar-backend/internal/utils"
)

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusExpired        BookingStatus = "expired"
	BookingStatusCancelled      BookingStatus = "cancelled"
)

type GuestInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type DriverInfo struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	LicenseNumber string `json:"license_number"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
}

type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Booking is the persisted reservation. BookingNumber, VehicleID and Range never change after insert.
type Booking struct {
	ID              int32           `json:"id"`
	BookingNumber   string          `json:"booking_number"`
	SessionID       string          `json:"-"`
	VehicleID       int32           `json:"vehicle_id"`
	Range           utils.DateRange `json:"range"`
	Guest           GuestInfo       `json:"guest"`
	Driver          DriverInfo      `json:"driver"`
	Contact         ContactInfo     `json:"contact"`
	Insurance       InsuranceKey    `json:"insurance"`
	Extras          []Extra         `json:"extras"`
	PaymentOption   PaymentOption   `json:"payment_option"`
	Price           PriceBreakdown  `json:"price"`
	Deposit         Money           `json:"deposit"`
	Status          BookingStatus   `json:"status"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedOn       time.Time       `json:"created_on"`
	UpdatedOn       time.Time       `json:"updated_on"`
}

// PaidWith reports whether the booking was confirmed by the given provider intent
func (b *Booking) PaidWith(externalID string) bool {
	return b.Status == BookingStatusConfirmed && b.PaymentIntentID != nil && *b.PaymentIntentID == externalID
}
