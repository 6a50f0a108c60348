package http

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/service"
)

// MockCheckoutService
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Start(ctx context.Context, vehicleID int32) (*service.View, string, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*service.View), args.String(1), args.Error(2)
}
func (m *MockCheckoutService) view(args mock.Arguments) (*service.View, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.View), args.Error(1)
}
func (m *MockCheckoutService) Get(ctx context.Context, sessionID string) (*service.View, error) {
	return m.view(m.Called(ctx, sessionID))
}
func (m *MockCheckoutService) Apply(ctx context.Context, sessionID string, action checkout.Action) (*service.View, error) {
	return m.view(m.Called(ctx, sessionID, action))
}
func (m *MockCheckoutService) Next(ctx context.Context, sessionID string) (*service.View, error) {
	return m.view(m.Called(ctx, sessionID))
}
func (m *MockCheckoutService) Back(ctx context.Context, sessionID string) (*service.View, error) {
	return m.view(m.Called(ctx, sessionID))
}
func (m *MockCheckoutService) ConfirmPayment(ctx context.Context, sessionID string) (*service.View, error) {
	return m.view(m.Called(ctx, sessionID))
}
func (m *MockCheckoutService) BlockedDates(ctx context.Context, vehicleID int32) ([]string, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockCheckoutService) Quote(ctx context.Context, req service.QuoteRequest) (*domain.PriceBreakdown, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceBreakdown), args.Error(1)
}

// MockBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) CreateBooking(ctx context.Context, draft checkout.Draft) (*domain.Booking, error) {
	args := m.Called(ctx, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingService) GetBooking(ctx context.Context, id int32) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingService) GetBookingByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

// MockPaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreatePaymentIntent(ctx context.Context, bookingID int32, amount domain.Money, option domain.PaymentOption) (*domain.PaymentIntentRef, error) {
	args := m.Called(ctx, bookingID, amount, option)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntentRef), args.Error(1)
}
func (m *MockPaymentService) ConfirmPayment(ctx context.Context, paymentIntentID string, bookingID int32) (*domain.Booking, error) {
	args := m.Called(ctx, paymentIntentID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}
func (m *MockPaymentService) ReleaseStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}
