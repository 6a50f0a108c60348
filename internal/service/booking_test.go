package service_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/service"
	"rentcar-backend/internal/utils"
)

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	setup := func() (*MockBookingRepo, *MockVehicleRepo, service.BookingService) {
		bookingRepo := new(MockBookingRepo)
		vehicleRepo := new(MockVehicleRepo)
		return bookingRepo, vehicleRepo, service.NewBookingService(bookingRepo, vehicleRepo, testCatalog())
	}

	t.Run("Success", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		draft := readyDraft(t, "session-1")
		bookingRepo.On("GetBySession", ctx, "session-1").Return(nil, nil)
		vehicleRepo.On("GetByID", ctx, int32(7)).Return(testVehicle(), nil)
		vehicleRepo.On("ListReservedRanges", ctx, int32(7)).Return([]utils.DateRange{utils.NewDateRange(day(10), day(15))}, nil)
		bookingRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Booking")).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Booking).ID = 42
		}).Return(nil)

		b, err := svc.CreateBooking(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, int32(42), b.ID)
		assert.Regexp(t, regexp.MustCompile(`^RC-\d{6}-[0-9A-F]{6}$`), b.BookingNumber)
		assert.Equal(t, domain.BookingStatusPendingPayment, b.Status)
		assert.Equal(t, domain.InsuranceStandard, b.Insurance)
		assert.Equal(t, "840.44", b.Price.TotalAmount.StringFixed(2))
		assert.Equal(t, "420.22", b.Price.OnlineAmount.StringFixed(2))
		assert.NoError(t, b.Price.Verify())
	})

	t.Run("Ignores a tampered draft price", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		draft := readyDraft(t, "session-1")
		draft.Price.TotalAmount = domain.Cents(100)
		draft.Price.OnlineAmount = domain.Cents(50)
		bookingRepo.On("GetBySession", ctx, "session-1").Return(nil, nil)
		vehicleRepo.On("GetByID", ctx, int32(7)).Return(testVehicle(), nil)
		vehicleRepo.On("ListReservedRanges", ctx, int32(7)).Return([]utils.DateRange{}, nil)
		bookingRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Booking")).Return(nil)

		b, err := svc.CreateBooking(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, "840.44", b.Price.TotalAmount.StringFixed(2))
	})

	t.Run("Replays the session's booking", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		existing := pendingBooking(t)
		bookingRepo.On("GetBySession", ctx, "session-1").Return(existing, nil)

		b, err := svc.CreateBooking(ctx, readyDraft(t, "session-1"))
		require.NoError(t, err)
		assert.Equal(t, existing, b)
		vehicleRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		bookingRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("Replay keeps a changed payment option", func(t *testing.T) {
		bookingRepo, _, svc := setup()
		existing := pendingBooking(t)
		bookingRepo.On("GetBySession", ctx, "session-1").Return(existing, nil)
		draft := readyDraft(t, "session-1")
		draft.PaymentOption = domain.PaymentOptionFull

		b, err := svc.CreateBooking(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, existing, b)
	})

	t.Run("Replay with different selections is rejected", func(t *testing.T) {
		tests := []struct {
			name   string
			change func(d *checkout.Draft)
		}{
			{"dates", func(d *checkout.Draft) { d.Range = utils.NewDateRange(day(20), day(27)) }},
			{"insurance", func(d *checkout.Draft) { d.Insurance = domain.InsurancePremium }},
			{"extras", func(d *checkout.Draft) { d.Extras = []domain.Extra{{Key: "gps", Quantity: 1}} }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				bookingRepo, vehicleRepo, svc := setup()
				bookingRepo.On("GetBySession", ctx, "session-1").Return(pendingBooking(t), nil)
				draft := readyDraft(t, "session-1")
				tt.change(&draft)

				b, err := svc.CreateBooking(ctx, draft)
				assert.Nil(t, b)
				assert.ErrorIs(t, err, domain.ErrValidation)
				assert.Contains(t, domain.UserMessage(err), "RC-300501-ABC123")
				vehicleRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
				bookingRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("Lost the race for the dates", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		bookingRepo.On("GetBySession", ctx, "session-1").Return(nil, nil)
		vehicleRepo.On("GetByID", ctx, int32(7)).Return(testVehicle(), nil)
		vehicleRepo.On("ListReservedRanges", ctx, int32(7)).Return([]utils.DateRange{}, nil)
		bookingRepo.On("Insert", ctx, mock.AnythingOfType("*domain.Booking")).
			Return(domain.NewConflictError("Selected dates are no longer available. Please choose different dates."))

		b, err := svc.CreateBooking(ctx, readyDraft(t, "session-1"))
		assert.Nil(t, b)
		assert.ErrorIs(t, err, domain.ErrAvailabilityConflict)
	})

	t.Run("Overlapping reservation fails before insert", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		bookingRepo.On("GetBySession", ctx, "session-1").Return(nil, nil)
		vehicleRepo.On("GetByID", ctx, int32(7)).Return(testVehicle(), nil)
		// a return day equal to the other pickup day still overlaps
		vehicleRepo.On("ListReservedRanges", ctx, int32(7)).Return([]utils.DateRange{utils.NewDateRange(day(6), day(9))}, nil)

		_, err := svc.CreateBooking(ctx, readyDraft(t, "session-1"))
		assert.ErrorIs(t, err, domain.ErrAvailabilityConflict)
		bookingRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("Terms not accepted", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		draft := readyDraft(t, "session-1")
		draft.AcceptedTerms = false
		bookingRepo.On("GetBySession", ctx, "session-1").Return(nil, nil)
		vehicleRepo.On("GetByID", ctx, int32(7)).Return(testVehicle(), nil)
		vehicleRepo.On("ListReservedRanges", ctx, int32(7)).Return([]utils.DateRange{}, nil)

		_, err := svc.CreateBooking(ctx, draft)
		assert.ErrorIs(t, err, domain.ErrValidation)
		bookingRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("Inactive vehicle", func(t *testing.T) {
		bookingRepo, vehicleRepo, svc := setup()
		vehicle := testVehicle()
		vehicle.Status = domain.VehicleStatusInactive
		bookingRepo.On("GetBySession", ctx, "session-1").Return(nil, nil)
		vehicleRepo.On("GetByID", ctx, int32(7)).Return(vehicle, nil)

		_, err := svc.CreateBooking(ctx, readyDraft(t, "session-1"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestBookingService_GetBookingByNumber(t *testing.T) {
	ctx := context.Background()
	bookingRepo := new(MockBookingRepo)
	svc := service.NewBookingService(bookingRepo, new(MockVehicleRepo), testCatalog())
	bookingRepo.On("GetByNumber", ctx, "RC-300501-ABC123").Return(pendingBooking(t), nil)

	b, err := svc.GetBookingByNumber(ctx, "  rc-300501-abc123 ")
	require.NoError(t, err)
	assert.Equal(t, int32(42), b.ID)
}
