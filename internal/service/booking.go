package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/metrics"
	"rentcar-backend/internal/repository"
	"rentcar-backend/internal/utils"

	"github.com/google/uuid"
)

type bookingService struct {
	bookingRepo repository.BookingRepository
	vehicleRepo repository.VehicleRepository
	catalog     Catalog
	now         func() time.Time
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	vehicleRepo repository.VehicleRepository,
	catalog Catalog,
) BookingService {
	return &bookingService{
		bookingRepo: bookingRepo,
		vehicleRepo: vehicleRepo,
		catalog:     catalog,
		now:         time.Now,
	}
}

func (c Catalog) env(v *domain.Vehicle, reserved []utils.DateRange) checkout.Env {
	return checkout.Env{
		Vehicle:   *v,
		Reserved:  reserved,
		Engine:    c.Engine,
		Insurance: c.Insurance,
		Extras:    c.Extras,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, draft checkout.Draft) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CreateBooking", "sessionID", draft.SessionID, "vehicleID", draft.VehicleID, "range", draft.Range.String())

	existing, err := s.bookingRepo.GetBySession(ctx, draft.SessionID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "session lookup failed")
		return nil, err
	}
	if existing != nil {
		if !reservedAs(existing, draft) {
			err := domain.NewValidationError("session", fmt.Sprintf("This checkout already reserved booking %s for different selections. Please start a new checkout.", existing.BookingNumber))
			logger.ExitMethodWithError("bookingService.CreateBooking", err, "bookingID", existing.ID, "sessionID", draft.SessionID)
			return nil, err
		}
		logger.Info("Session already committed a booking", "sessionID", draft.SessionID, "bookingNumber", existing.BookingNumber)
		logger.ExitMethod("bookingService.CreateBooking", "bookingID", existing.ID, "replayed", true)
		return existing, nil
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, draft.VehicleID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "vehicleID", draft.VehicleID)
		return nil, err
	}
	if vehicle.Status != domain.VehicleStatusActive {
		err := domain.NewValidationError("vehicle", "This vehicle is not available for booking")
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "vehicleID", vehicle.ID)
		return nil, err
	}
	reserved, err := s.vehicleRepo.ListReservedRanges(ctx, vehicle.ID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "failed to load reservations")
		return nil, err
	}

	env := s.catalog.env(vehicle, reserved)
	if err := checkout.ValidateForCommit(draft, env); err != nil {
		metrics.BookingsCreated.WithLabelValues(outcome(err)).Inc()
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "sessionID", draft.SessionID)
		return nil, err
	}

	// never trust the draft's cached price
	price := checkout.Price(draft, env)
	if err := price.Verify(); err != nil {
		logger.InvariantViolation(ctx, "bookingService.CreateBooking", err, "sessionID", draft.SessionID)
		return nil, err
	}

	now := s.now()
	booking := &domain.Booking{
		BookingNumber: newBookingNumber(now),
		SessionID:     draft.SessionID,
		VehicleID:     vehicle.ID,
		Range:         draft.Range,
		Guest:         draft.Guest,
		Driver:        draft.Driver,
		Contact:       draft.Contact,
		Insurance:     draft.EffectiveInsurance(),
		Extras:        draft.Extras,
		PaymentOption: draft.PaymentOption,
		Price:         price,
		Deposit:       vehicle.Deposit,
		Status:        domain.BookingStatusPendingPayment,
	}

	if err := s.bookingRepo.Insert(ctx, booking); err != nil {
		metrics.BookingsCreated.WithLabelValues(outcome(err)).Inc()
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "vehicleID", vehicle.ID, "range", draft.Range.String())
		return nil, err
	}

	metrics.BookingsCreated.WithLabelValues("created").Inc()
	logger.WithBooking(booking.ID, booking.BookingNumber).Info("Booking created", "vehicleID", vehicle.ID, "range", booking.Range.String(), "total", price.TotalAmount.StringFixed(2))
	logger.ExitMethod("bookingService.CreateBooking", "bookingID", booking.ID)
	return booking, nil
}

// reservedAs reports whether b was persisted from the same selections as d. The payment
// option may differ; the payment step reprices for it.
func reservedAs(b *domain.Booking, d checkout.Draft) bool {
	if b.VehicleID != d.VehicleID || !b.Range.Start.Equal(d.Range.Start) || !b.Range.End.Equal(d.Range.End) {
		return false
	}
	if b.Insurance != d.EffectiveInsurance() || len(b.Extras) != len(d.Extras) {
		return false
	}
	quantities := make(map[string]int, len(b.Extras))
	for _, e := range b.Extras {
		quantities[e.Key] += e.Quantity
	}
	for _, e := range d.Extras {
		quantities[e.Key] -= e.Quantity
	}
	for _, q := range quantities {
		if q != 0 {
			return false
		}
	}
	return true
}

func (s *bookingService) GetBooking(ctx context.Context, id int32) (*domain.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

func (s *bookingService) GetBookingByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	return s.bookingRepo.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
}

func newBookingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("RC-%s-%s", now.UTC().Format("060102"), suffix)
}

// outcome labels an error for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAvailabilityConflict):
		return "conflict"
	case errors.Is(err, domain.ErrPaymentProvider):
		return "provider_error"
	case errors.Is(err, domain.ErrPaymentPending):
		return "pending"
	default:
		return "error"
	}
}
