package repository

import (
	"context"
	"time"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/utils"
)

type VehicleRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Vehicle, error)
	// ListReservedRanges returns the ranges of bookings that currently hold the vehicle
	ListReservedRanges(ctx context.Context, vehicleID int32) ([]utils.DateRange, error)
}

type BookingRepository interface {
	// Insert performs the authoritative availability check and the insert in one
	// transaction serialized per vehicle. Returns domain.ErrAvailabilityConflict on overlap.
	Insert(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int32) (*domain.Booking, error)
	GetByNumber(ctx context.Context, number string) (*domain.Booking, error)
	// GetBySession returns nil, nil when the session has not committed a booking
	GetBySession(ctx context.Context, sessionID string) (*domain.Booking, error)
	UpdatePricing(ctx context.Context, id int32, option domain.PaymentOption, price domain.PriceBreakdown) error
	// MarkPaid confirms a pending booking. Returns false when the booking was not pending.
	MarkPaid(ctx context.Context, id int32, paymentIntentID string, paidAt time.Time) (bool, error)
	// Reinstate re-runs the availability check for an expired booking and confirms it
	Reinstate(ctx context.Context, id int32, paymentIntentID string, paidAt time.Time) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Booking, error)
	// MarkExpired releases a booking still pending payment. Returns false when it was not pending.
	MarkExpired(ctx context.Context, id int32) (bool, error)
}

type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *domain.PaymentIntentRef) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentIntentRef, error)
	// GetLatestByBooking returns nil, nil when the booking has no intent yet
	GetLatestByBooking(ctx context.Context, bookingID int32) (*domain.PaymentIntentRef, error)
	ListByBooking(ctx context.Context, bookingID int32) ([]domain.PaymentIntentRef, error)
	CountByBooking(ctx context.Context, bookingID int32) (int, error)
	UpdateStatus(ctx context.Context, id int32, status domain.PaymentStatus) error
}
