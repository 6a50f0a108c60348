package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentcar-backend/internal/cache"
	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/payment"
	"rentcar-backend/internal/pricing"
	"rentcar-backend/internal/service"
	"rentcar-backend/internal/utils"
)

// MockVehicleRepo
type MockVehicleRepo struct {
	mock.Mock
}

func (m *MockVehicleRepo) GetByID(ctx context.Context, id int32) (*domain.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vehicle), args.Error(1)
}
func (m *MockVehicleRepo) ListReservedRanges(ctx context.Context, vehicleID int32) ([]utils.DateRange, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]utils.DateRange), args.Error(1)
}

// MockBookingRepo
type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) Insert(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}
func (m *MockBookingRepo) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) GetByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) GetBySession(ctx context.Context, sessionID string) (*domain.Booking, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) UpdatePricing(ctx context.Context, id int32, option domain.PaymentOption, price domain.PriceBreakdown) error {
	args := m.Called(ctx, id, option, price)
	return args.Error(0)
}
func (m *MockBookingRepo) MarkPaid(ctx context.Context, id int32, paymentIntentID string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, id, paymentIntentID, paidAt)
	return args.Bool(0), args.Error(1)
}
func (m *MockBookingRepo) Reinstate(ctx context.Context, id int32, paymentIntentID string, paidAt time.Time) error {
	args := m.Called(ctx, id, paymentIntentID, paidAt)
	return args.Error(0)
}
func (m *MockBookingRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Booking, error) {
	args := m.Called(ctx, createdBefore, limit)
	return args.Get(0).([]domain.Booking), args.Error(1)
}
func (m *MockBookingRepo) MarkExpired(ctx context.Context, id int32) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockIntentRepo
type MockIntentRepo struct {
	mock.Mock
}

func (m *MockIntentRepo) Create(ctx context.Context, intent *domain.PaymentIntentRef) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}
func (m *MockIntentRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentIntentRef, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntentRef), args.Error(1)
}
func (m *MockIntentRepo) GetLatestByBooking(ctx context.Context, bookingID int32) (*domain.PaymentIntentRef, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntentRef), args.Error(1)
}
func (m *MockIntentRepo) ListByBooking(ctx context.Context, bookingID int32) ([]domain.PaymentIntentRef, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.PaymentIntentRef), args.Error(1)
}
func (m *MockIntentRepo) CountByBooking(ctx context.Context, bookingID int32) (int, error) {
	args := m.Called(ctx, bookingID)
	return args.Int(0), args.Error(1)
}
func (m *MockIntentRepo) UpdateStatus(ctx context.Context, id int32, status domain.PaymentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendBookingConfirmation(ctx context.Context, booking *domain.Booking, vehicleName string) error {
	args := m.Called(ctx, booking, vehicleName)
	return args.Error(0)
}
func (m *MockEmailService) SendPaymentFailedNotification(ctx context.Context, booking *domain.Booking, reason string) error {
	args := m.Called(ctx, booking, reason)
	return args.Error(0)
}

// MockDocumentService
type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) RequestDocuments(ctx context.Context, req service.DocumentRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func day(d int) time.Time {
	return time.Date(2030, 5, d, 0, 0, 0, 0, time.UTC)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testVehicle() *domain.Vehicle {
	return &domain.Vehicle{
		ID:            7,
		Name:          "VW Golf",
		DailyRate:     decimal.NewFromInt(100),
		CleaningFee:   decimal.NewFromInt(50),
		Deposit:       decimal.NewFromInt(500),
		MinRentalDays: 2,
		Status:        domain.VehicleStatusActive,
	}
}

func testCatalog() service.Catalog {
	return service.Catalog{
		Engine: pricing.NewEngine(pricing.DefaultPolicy()),
		Insurance: domain.InsuranceCatalog{
			domain.InsuranceBasic:    {Key: domain.InsuranceBasic, PricePerDay: decimal.NewFromInt(10)},
			domain.InsuranceStandard: {Key: domain.InsuranceStandard, PricePerDay: decimal.NewFromInt(25)},
			domain.InsurancePremium:  {Key: domain.InsurancePremium, PricePerDay: decimal.NewFromInt(45)},
		},
		Extras: domain.ExtrasCatalog{
			"gps": {Key: "gps", Name: "Navigation system", Price: decimal.RequireFromString("12.50"), MaxQuantity: 1},
		},
		Currency: "eur",
	}
}

func testEnv(reserved ...utils.DateRange) checkout.Env {
	c := testCatalog()
	return checkout.Env{
		Vehicle:   *testVehicle(),
		Reserved:  reserved,
		Engine:    c.Engine,
		Insurance: c.Insurance,
		Extras:    c.Extras,
	}
}

// readyDraft is a draft on the payment option step that passes every commit guard
func readyDraft(t *testing.T, sessionID string) checkout.Draft {
	t.Helper()
	env := testEnv()
	d := checkout.NewDraft(sessionID, env.Vehicle.ID)
	for _, a := range []checkout.Action{
		checkout.SetDates{Range: utils.NewDateRange(day(1), day(6))},
		checkout.SetGuest{Guest: domain.GuestInfo{FirstName: "Anna", LastName: "Berg"}},
		checkout.SetDriver{Driver: domain.DriverInfo{FirstName: "Anna", LastName: "Berg", LicenseNumber: "B123456"}},
		checkout.SetContact{Contact: domain.ContactInfo{Email: "anna@example.com", Phone: "+4915112345678"}},
		checkout.SelectPaymentOption{Option: domain.PaymentOptionSplit},
		checkout.AcceptTerms{Accepted: true},
	} {
		next, err := checkout.Reduce(d, a, env)
		require.NoError(t, err)
		d = next
	}
	d.Step = checkout.StepPaymentOption
	return d
}

// pendingBooking mirrors what CreateBooking persists for readyDraft
func pendingBooking(t *testing.T) *domain.Booking {
	t.Helper()
	d := readyDraft(t, "session-1")
	return &domain.Booking{
		ID:            42,
		BookingNumber: "RC-300501-ABC123",
		SessionID:     d.SessionID,
		VehicleID:     d.VehicleID,
		Range:         d.Range,
		Guest:         d.Guest,
		Driver:        d.Driver,
		Contact:       d.Contact,
		Insurance:     d.EffectiveInsurance(),
		PaymentOption: d.PaymentOption,
		Price:         checkout.Price(d, testEnv()),
		Deposit:       decimal.NewFromInt(500),
		Status:        domain.BookingStatusPendingPayment,
		CreatedOn:     day(1).Add(-48 * time.Hour),
	}
}

type paymentFixture struct {
	bookingRepo *MockBookingRepo
	intentRepo  *MockIntentRepo
	vehicleRepo *MockVehicleRepo
	provider    *payment.MockProvider
	locker      *cache.Locker
	docs        *MockDocumentService
	email       *MockEmailService
	svc         service.PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	_, rdb := newRedis(t)
	f := &paymentFixture{
		bookingRepo: new(MockBookingRepo),
		intentRepo:  new(MockIntentRepo),
		vehicleRepo: new(MockVehicleRepo),
		provider:    payment.NewMockProvider("whsec_test", false),
		locker:      cache.NewLocker(rdb, 10*time.Second),
		docs:        new(MockDocumentService),
		email:       new(MockEmailService),
	}
	f.svc = service.NewPaymentService(f.bookingRepo, f.intentRepo, f.vehicleRepo, f.provider, f.locker, f.docs, f.email, testCatalog())
	return f
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
