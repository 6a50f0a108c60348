package service

import (
	"context"
	"errors"

	"rentcar-backend/internal/availability"
	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/metrics"
	"rentcar-backend/internal/repository"
	"rentcar-backend/internal/security"
	"rentcar-backend/internal/utils"
)

type checkoutService struct {
	drafts      DraftStore
	tokens      security.TokenManager
	vehicleRepo repository.VehicleRepository
	bookings    BookingService
	payments    PaymentService
	catalog     Catalog
}

func NewCheckoutService(
	drafts DraftStore,
	tokens security.TokenManager,
	vehicleRepo repository.VehicleRepository,
	bookings BookingService,
	payments PaymentService,
	catalog Catalog,
) CheckoutService {
	return &checkoutService{
		drafts:      drafts,
		tokens:      tokens,
		vehicleRepo: vehicleRepo,
		bookings:    bookings,
		payments:    payments,
		catalog:     catalog,
	}
}

// userFacing reports whether err carries a reason meant for the customer
func userFacing(err error) bool {
	var ue *domain.UserError
	return errors.As(err, &ue) && !errors.Is(err, domain.ErrInvariantViolation)
}

func (s *checkoutService) loadEnv(ctx context.Context, vehicleID int32) (checkout.Env, error) {
	vehicle, err := s.vehicleRepo.GetByID(ctx, vehicleID)
	if err != nil {
		return checkout.Env{}, err
	}
	reserved, err := s.vehicleRepo.ListReservedRanges(ctx, vehicleID)
	if err != nil {
		return checkout.Env{}, err
	}
	return s.catalog.env(vehicle, reserved), nil
}

func (s *checkoutService) load(ctx context.Context, sessionID string) (checkout.Draft, checkout.Env, error) {
	d, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return d, checkout.Env{}, err
	}
	env, err := s.loadEnv(ctx, d.VehicleID)
	return d, env, err
}

func (s *checkoutService) view(d checkout.Draft, message string, env checkout.Env) *View {
	v := &View{Draft: d, Message: message}
	if d.Step == checkout.StepDates {
		v.BlockedDates = availability.ExpandBlockedDates(env.Reserved).Sorted()
	}
	return v
}

// save persists d and renders it. The draft TTL slides on every save.
func (s *checkoutService) save(ctx context.Context, d checkout.Draft, message string, env checkout.Env) (*View, error) {
	if err := s.drafts.Save(ctx, d); err != nil {
		return nil, err
	}
	return s.view(d, message, env), nil
}

func (s *checkoutService) Start(ctx context.Context, vehicleID int32) (*View, string, error) {
	logger.EnterMethod("checkoutService.Start", "vehicleID", vehicleID)

	env, err := s.loadEnv(ctx, vehicleID)
	if err != nil {
		logger.ExitMethodWithError("checkoutService.Start", err, "vehicleID", vehicleID)
		return nil, "", err
	}
	if env.Vehicle.Status != domain.VehicleStatusActive {
		err := domain.NewValidationError("vehicle", "This vehicle is not available for booking")
		logger.ExitMethodWithError("checkoutService.Start", err, "vehicleID", vehicleID)
		return nil, "", err
	}

	sessionID, token, err := s.tokens.GenerateCheckoutToken(vehicleID)
	if err != nil {
		logger.ExitMethodWithError("checkoutService.Start", err, "reason", "failed to sign session token")
		return nil, "", err
	}
	view, err := s.save(ctx, checkout.NewDraft(sessionID, vehicleID), "", env)
	if err != nil {
		logger.ExitMethodWithError("checkoutService.Start", err, "sessionID", sessionID)
		return nil, "", err
	}
	logger.ExitMethod("checkoutService.Start", "sessionID", sessionID)
	return view, token, nil
}

func (s *checkoutService) Get(ctx context.Context, sessionID string) (*View, error) {
	d, env, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, d, "", env)
}

func (s *checkoutService) Apply(ctx context.Context, sessionID string, action checkout.Action) (*View, error) {
	d, env, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := checkout.Reduce(d, action, env)
	if err != nil {
		if userFacing(err) {
			logger.WithSession(sessionID).Debug("Checkout action rejected", "action", actionName(action), "error", err)
			return s.view(d, domain.UserMessage(err), env), nil
		}
		return nil, err
	}
	return s.save(ctx, next, "", env)
}

func (s *checkoutService) Next(ctx context.Context, sessionID string) (*View, error) {
	d, env, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	log := logger.WithSession(sessionID)
	from := d.Step

	if d.Step == checkout.StepPayment && d.PaymentStatus != domain.PaymentStatusSucceeded {
		synced, message, err := s.syncPayment(ctx, d, env)
		if err != nil {
			return nil, err
		}
		if synced.PaymentStatus != domain.PaymentStatusSucceeded {
			metrics.CheckoutTransitions.WithLabelValues(from.String(), "blocked").Inc()
			return s.save(ctx, synced, message, env)
		}
		d = synced
	}

	next, effect, err := checkout.Advance(d, env)
	if err != nil {
		metrics.CheckoutTransitions.WithLabelValues(from.String(), outcome(err)).Inc()
		if userFacing(err) {
			log.Debug("Checkout step blocked", "step", from.String(), "error", err)
			return s.save(ctx, d, domain.UserMessage(err), env)
		}
		return nil, err
	}
	if effect == checkout.EffectCommit {
		return s.commit(ctx, next, env)
	}

	metrics.CheckoutTransitions.WithLabelValues(from.String(), "ok").Inc()
	log.Debug("Checkout step advanced", "from", from.String(), "to", next.Step.String())
	return s.save(ctx, next, "", env)
}

// commit runs the side effects of leaving the payment option step
func (s *checkoutService) commit(ctx context.Context, d checkout.Draft, env checkout.Env) (*View, error) {
	log := logger.WithSession(d.SessionID)
	from := d.Step.String()

	booking, err := s.bookings.CreateBooking(ctx, d)
	if err != nil {
		metrics.CheckoutTransitions.WithLabelValues(from, outcome(err)).Inc()
		switch {
		case errors.Is(err, domain.ErrAvailabilityConflict):
			log.Info("Commit lost the race for the dates", "vehicleID", d.VehicleID, "range", d.Range.String())
			back, _ := checkout.Reduce(d, checkout.ReturnToDates{}, env)
			if fresh, envErr := s.loadEnv(ctx, d.VehicleID); envErr == nil {
				env = fresh
			}
			return s.save(ctx, back, domain.UserMessage(err), env)
		case userFacing(err):
			return s.save(ctx, d, domain.UserMessage(err), env)
		}
		return nil, err
	}

	reserved, err := checkout.Reduce(d, checkout.BookingReserved{Booking: booking}, env)
	if err != nil {
		return nil, err
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, booking.ID, domain.Zero, reserved.PaymentOption)
	if err != nil {
		metrics.CheckoutTransitions.WithLabelValues(from, outcome(err)).Inc()
		if userFacing(err) {
			// the booking holds the dates and its fields are frozen on the draft; the next attempt reuses it
			log.Warn("Payment intent creation failed", "bookingID", booking.ID, "error", err)
			return s.save(ctx, reserved, domain.UserMessage(err), env)
		}
		return nil, err
	}

	if booking.PaymentOption != reserved.PaymentOption {
		// the intent repriced the reserved booking for the newly chosen option
		if booking, err = s.bookings.GetBooking(ctx, booking.ID); err != nil {
			return nil, err
		}
	}

	next, err := checkout.Reduce(reserved, checkout.BookingCommitted{Booking: booking, Intent: intent}, env)
	if err != nil {
		return nil, err
	}
	if intent.Status == domain.PaymentStatusSucceeded {
		next, _ = checkout.Reduce(next, checkout.PaymentResolved{Status: domain.PaymentStatusSucceeded}, env)
	}
	metrics.CheckoutTransitions.WithLabelValues(from, "ok").Inc()
	log.Info("Checkout committed", "bookingID", booking.ID, "bookingNumber", booking.BookingNumber, "paymentIntentID", intent.ExternalID)
	return s.save(ctx, next, "", env)
}

// syncPayment asks the orchestrator for the current payment outcome and records it on the draft
func (s *checkoutService) syncPayment(ctx context.Context, d checkout.Draft, env checkout.Env) (checkout.Draft, string, error) {
	booking, err := s.payments.ConfirmPayment(ctx, d.PaymentIntentID, d.BookingID)
	switch {
	case err == nil:
		status := domain.PaymentStatusRequiresAction
		if booking.Status == domain.BookingStatusConfirmed {
			status = domain.PaymentStatusSucceeded
		}
		next, _ := checkout.Reduce(d, checkout.PaymentResolved{Status: status}, env)
		return next, "", nil
	case errors.Is(err, domain.ErrPaymentPending):
		return d, domain.UserMessage(err), nil
	case errors.Is(err, domain.ErrPaymentProvider):
		next, _ := checkout.Reduce(d, checkout.PaymentResolved{Status: domain.PaymentStatusFailed}, env)
		return next, domain.UserMessage(err), nil
	case userFacing(err):
		return d, domain.UserMessage(err), nil
	}
	return d, "", err
}

func (s *checkoutService) Back(ctx context.Context, sessionID string) (*View, error) {
	d, env, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, checkout.Back(d), "", env)
}

func (s *checkoutService) ConfirmPayment(ctx context.Context, sessionID string) (*View, error) {
	logger.EnterMethod("checkoutService.ConfirmPayment", "sessionID", sessionID)

	d, env, err := s.load(ctx, sessionID)
	if err != nil {
		logger.ExitMethodWithError("checkoutService.ConfirmPayment", err, "sessionID", sessionID)
		return nil, err
	}
	if !d.Committed() || d.PaymentIntentID == "" {
		return s.view(d, "Please complete the previous steps first", env), nil
	}

	synced, message, err := s.syncPayment(ctx, d, env)
	if err != nil {
		logger.ExitMethodWithError("checkoutService.ConfirmPayment", err, "sessionID", sessionID)
		return nil, err
	}
	if synced.PaymentStatus == domain.PaymentStatusSucceeded && synced.Step == checkout.StepPayment {
		if next, _, err := checkout.Advance(synced, env); err == nil {
			synced = next
		}
	}
	logger.ExitMethod("checkoutService.ConfirmPayment", "sessionID", sessionID, "paymentStatus", synced.PaymentStatus, "step", synced.Step.String())
	return s.save(ctx, synced, message, env)
}

func (s *checkoutService) BlockedDates(ctx context.Context, vehicleID int32) ([]string, error) {
	reserved, err := s.vehicleRepo.ListReservedRanges(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return availability.ExpandBlockedDates(reserved).Sorted(), nil
}

func (s *checkoutService) Quote(ctx context.Context, req QuoteRequest) (*domain.PriceBreakdown, error) {
	vehicle, err := s.vehicleRepo.GetByID(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	rng := utils.NewDateRange(req.Start, req.End)
	if err := rng.Validate(); err != nil {
		return nil, domain.NewValidationError("dates", "The return date must be after the pickup date")
	}
	extras, err := s.catalog.Extras.Resolve(req.Extras)
	if err != nil {
		return nil, &domain.UserError{Kind: domain.ErrValidation, Field: "extras", Reason: "One of the selected extras is not available", Err: err}
	}
	insurance := req.Insurance
	if insurance == "" {
		insurance = domain.InsuranceStandard
	}
	option := req.PaymentOption
	if option == "" {
		option = domain.PaymentOptionFull
	}
	if !option.Valid() {
		return nil, domain.NewValidationError("payment_option", "Please choose to pay in full or split the payment")
	}

	price := s.catalog.Engine.Compute(rng, s.catalog.Engine.RateCard(*vehicle), s.catalog.Insurance.Lookup(insurance), extras, option)
	if err := price.Verify(); err != nil {
		logger.InvariantViolation(ctx, "checkoutService.Quote", err, "vehicleID", req.VehicleID)
		return nil, err
	}
	return &price, nil
}

func actionName(a checkout.Action) string {
	switch a.(type) {
	case checkout.SetDates:
		return "set_dates"
	case checkout.SetGuest:
		return "set_guest"
	case checkout.SetDriver:
		return "set_driver"
	case checkout.SetContact:
		return "set_contact"
	case checkout.SelectInsurance:
		return "select_insurance"
	case checkout.SetExtras:
		return "set_extras"
	case checkout.SelectPaymentOption:
		return "select_payment_option"
	case checkout.AcceptTerms:
		return "accept_terms"
	}
	return "other"
}
