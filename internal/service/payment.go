package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rentcar-backend/internal/cache"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/metrics"
	"rentcar-backend/internal/payment"
	"rentcar-backend/internal/repository"
	"rentcar-backend/internal/utils"
)

type paymentService struct {
	bookingRepo repository.BookingRepository
	intentRepo  repository.PaymentIntentRepository
	vehicleRepo repository.VehicleRepository
	provider    payment.Provider
	locker      Locker
	docs        DocumentService
	email       EmailService
	catalog     Catalog
	now         func() time.Time
}

func NewPaymentService(
	bookingRepo repository.BookingRepository,
	intentRepo repository.PaymentIntentRepository,
	vehicleRepo repository.VehicleRepository,
	provider payment.Provider,
	locker Locker,
	docs DocumentService,
	email EmailService,
	catalog Catalog,
) PaymentService {
	return &paymentService{
		bookingRepo: bookingRepo,
		intentRepo:  intentRepo,
		vehicleRepo: vehicleRepo,
		provider:    provider,
		locker:      locker,
		docs:        docs,
		email:       email,
		catalog:     catalog,
		now:         time.Now,
	}
}

func (s *paymentService) lockBooking(ctx context.Context, bookingID int32) (func(), error) {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf("booking:%d", bookingID))
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, &domain.UserError{Kind: domain.ErrPaymentPending, Reason: "This payment is already being processed, please wait a moment", Err: err}
	}
	return release, err
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, bookingID int32, amount domain.Money, option domain.PaymentOption) (*domain.PaymentIntentRef, error) {
	logger.EnterMethod("paymentService.CreatePaymentIntent", "bookingID", bookingID, "amount", amount.StringFixed(2), "option", option)

	release, err := s.lockBooking(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.CreatePaymentIntent", err, "bookingID", bookingID)
		return nil, err
	}
	defer release()

	ref, err := s.createIntentLocked(ctx, bookingID, amount, option)
	if err != nil {
		metrics.PaymentIntents.WithLabelValues(outcome(err)).Inc()
		logger.ExitMethodWithError("paymentService.CreatePaymentIntent", err, "bookingID", bookingID)
		return nil, err
	}
	logger.ExitMethod("paymentService.CreatePaymentIntent", "bookingID", bookingID, "paymentIntentID", ref.ExternalID, "status", ref.Status)
	return ref, nil
}

func (s *paymentService) createIntentLocked(ctx context.Context, bookingID int32, amount domain.Money, option domain.PaymentOption) (*domain.PaymentIntentRef, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	log := logger.WithBooking(booking.ID, booking.BookingNumber)

	switch booking.Status {
	case domain.BookingStatusPendingPayment:
	case domain.BookingStatusConfirmed:
		if booking.PaymentIntentID == nil {
			return nil, domain.NewValidationError("booking", "This booking has already been paid")
		}
		return s.intentRepo.GetByExternalID(ctx, *booking.PaymentIntentID)
	default:
		return nil, domain.NewValidationError("booking", "This booking has expired, please start a new checkout")
	}

	if option == "" {
		option = booking.PaymentOption
	}
	if !option.Valid() {
		return nil, domain.NewValidationError("payment_option", "Please choose to pay in full or split the payment")
	}
	price := s.catalog.Engine.Split(booking.Price, option)
	if err := price.Verify(); err != nil {
		logger.InvariantViolation(ctx, "paymentService.CreatePaymentIntent", err, "bookingID", booking.ID)
		return nil, err
	}
	if !amount.IsZero() && !amount.Equal(price.OnlineAmount) {
		log.Warn("Client amount differs from server amount", "clientAmount", amount.StringFixed(2), "serverAmount", price.OnlineAmount.StringFixed(2))
		return nil, domain.NewValidationError("amount", "The price changed, please review the updated total")
	}

	latest, err := s.intentRepo.GetLatestByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && (latest.Status == domain.PaymentStatusRequiresAction || latest.Status == domain.PaymentStatusFailed) {
		if latest.Status == domain.PaymentStatusRequiresAction && latest.Amount.Equal(price.OnlineAmount) {
			log.Info("Reusing live payment intent", "paymentIntentID", latest.ExternalID)
			metrics.PaymentIntents.WithLabelValues("reused").Inc()
			return latest, nil
		}
		settled, err := s.supersede(ctx, booking, latest)
		if err != nil {
			return nil, err
		}
		if settled {
			return latest, nil
		}
	}

	if option != booking.PaymentOption {
		if err := s.bookingRepo.UpdatePricing(ctx, booking.ID, option, price); err != nil {
			return nil, err
		}
		booking.PaymentOption, booking.Price = option, price
	}

	attempts, err := s.intentRepo.CountByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	minor := domain.MinorUnits(price.OnlineAmount)
	// stable across retries of the same attempt so the provider replays instead of charging twice
	key := fmt.Sprintf("%s-%d-%d", booking.BookingNumber, minor, attempts+1)

	in, err := s.provider.CreateIntent(ctx, payment.CreateIntentRequest{
		AmountMinor:    minor,
		Currency:       s.catalog.Currency,
		IdempotencyKey: key,
		Description:    fmt.Sprintf("Booking %s (%s)", booking.BookingNumber, booking.Range.String()),
		Metadata: map[string]string{
			"booking_id":     strconv.Itoa(int(booking.ID)),
			"booking_number": booking.BookingNumber,
			"payment_option": string(option),
		},
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentProvider) {
			err = domain.NewProviderError("Could not start the payment, please try again", err)
		}
		return nil, err
	}

	ref := &domain.PaymentIntentRef{
		BookingID:      booking.ID,
		ExternalID:     in.ID,
		ClientSecret:   in.ClientSecret,
		Amount:         price.OnlineAmount,
		Currency:       s.catalog.Currency,
		Status:         in.Status,
		IdempotencyKey: key,
	}
	if err := s.intentRepo.Create(ctx, ref); err != nil {
		return nil, err
	}
	metrics.PaymentIntents.WithLabelValues("created").Inc()
	log.Info("Payment intent created", "paymentIntentID", ref.ExternalID, "amount", ref.Amount.StringFixed(2), "attempt", attempts+1)
	return ref, nil
}

// supersede cancels the previous attempt before a new one is opened: a live intent whose amount
// no longer matches, or a failed one whose client secret could still be used. When the provider
// reports the intent already succeeded, the booking is confirmed with it instead and settled is true.
func (s *paymentService) supersede(ctx context.Context, booking *domain.Booking, live *domain.PaymentIntentRef) (settled bool, err error) {
	in, err := s.provider.RetrieveIntent(ctx, live.ExternalID)
	if err != nil {
		return false, err
	}
	if in.Status == domain.PaymentStatusSucceeded {
		return true, s.settle(ctx, booking, live)
	}
	if err := s.provider.CancelIntent(ctx, live.ExternalID); err != nil {
		if errors.Is(err, payment.ErrIntentSucceeded) {
			// paid between the retrieve and the cancel
			return true, s.settle(ctx, booking, live)
		}
		return false, err
	}
	if err := s.intentRepo.UpdateStatus(ctx, live.ID, domain.PaymentStatusCanceled); err != nil {
		return false, err
	}
	metrics.PaymentIntents.WithLabelValues("superseded").Inc()
	logger.WithBooking(booking.ID, booking.BookingNumber).Info("Superseded payment intent", "paymentIntentID", live.ExternalID, "amount", live.Amount.StringFixed(2))
	return false, nil
}

// settle confirms the booking with an intent the provider reports as succeeded
func (s *paymentService) settle(ctx context.Context, booking *domain.Booking, ref *domain.PaymentIntentRef) error {
	if _, err := s.applyIntentStatus(ctx, booking, ref, domain.PaymentStatusSucceeded); err != nil {
		return err
	}
	ref.Status = domain.PaymentStatusSucceeded
	return nil
}

func (s *paymentService) ConfirmPayment(ctx context.Context, paymentIntentID string, bookingID int32) (*domain.Booking, error) {
	logger.EnterMethod("paymentService.ConfirmPayment", "bookingID", bookingID, "paymentIntentID", paymentIntentID)

	release, err := s.lockBooking(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.ConfirmPayment", err, "bookingID", bookingID)
		return nil, err
	}
	defer release()

	booking, err := s.confirmLocked(ctx, paymentIntentID, bookingID)
	if err != nil {
		metrics.PaymentConfirmations.WithLabelValues(outcome(err)).Inc()
		logger.ExitMethodWithError("paymentService.ConfirmPayment", err, "bookingID", bookingID)
		return nil, err
	}
	logger.ExitMethod("paymentService.ConfirmPayment", "bookingID", bookingID, "status", booking.Status)
	return booking, nil
}

func (s *paymentService) confirmLocked(ctx context.Context, paymentIntentID string, bookingID int32) (*domain.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.PaidWith(paymentIntentID) {
		metrics.PaymentConfirmations.WithLabelValues("already_confirmed").Inc()
		return booking, nil
	}

	ref, err := s.intentRepo.GetByExternalID(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if ref.BookingID != booking.ID {
		return nil, domain.NewValidationError("payment_intent", "This payment does not belong to the booking")
	}
	if ref.Status == domain.PaymentStatusCanceled {
		return nil, domain.NewValidationError("payment_intent", "This payment attempt was replaced, please use the current payment")
	}
	switch booking.Status {
	case domain.BookingStatusConfirmed:
		logger.WithBooking(booking.ID, booking.BookingNumber).Error("Booking already paid with another intent, refund may be required",
			"paidWith", *booking.PaymentIntentID, "paymentIntentID", paymentIntentID)
		return booking, nil
	case domain.BookingStatusCancelled:
		return nil, domain.NewValidationError("booking", "This booking has been cancelled")
	}

	in, err := s.provider.RetrieveIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	return s.applyIntentStatus(ctx, booking, ref, in.Status)
}

// applyIntentStatus records the provider's verdict. Caller holds the booking lock.
func (s *paymentService) applyIntentStatus(ctx context.Context, booking *domain.Booking, ref *domain.PaymentIntentRef, status domain.PaymentStatus) (*domain.Booking, error) {
	log := logger.WithBooking(booking.ID, booking.BookingNumber)

	switch status {
	case domain.PaymentStatusSucceeded:
		if ref.Status != domain.PaymentStatusSucceeded {
			if err := s.intentRepo.UpdateStatus(ctx, ref.ID, domain.PaymentStatusSucceeded); err != nil {
				return nil, err
			}
			ref.Status = domain.PaymentStatusSucceeded
		}
		paidAt := s.now().UTC()
		if booking.Status == domain.BookingStatusExpired {
			if err := s.bookingRepo.Reinstate(ctx, booking.ID, ref.ExternalID, paidAt); err != nil {
				if errors.Is(err, domain.ErrAvailabilityConflict) {
					log.Error("Late payment for a released booking whose dates were taken, refund required",
						"paymentIntentID", ref.ExternalID, "amount", ref.Amount.StringFixed(2))
				}
				return nil, err
			}
		} else {
			ok, err := s.bookingRepo.MarkPaid(ctx, booking.ID, ref.ExternalID, paidAt)
			if err != nil {
				return nil, err
			}
			if !ok {
				// someone else moved the booking first
				return s.bookingRepo.GetByID(ctx, booking.ID)
			}
		}
		booking.Status = domain.BookingStatusConfirmed
		booking.PaymentIntentID = &ref.ExternalID
		booking.PaidAt = &paidAt
		metrics.PaymentConfirmations.WithLabelValues(string(domain.PaymentStatusSucceeded)).Inc()
		log.Info("Booking confirmed", "paymentIntentID", ref.ExternalID)
		s.afterConfirmed(ctx, booking)
		return booking, nil

	case domain.PaymentStatusFailed, domain.PaymentStatusCanceled:
		if ref.Status != domain.PaymentStatusFailed {
			if err := s.intentRepo.UpdateStatus(ctx, ref.ID, domain.PaymentStatusFailed); err != nil {
				return nil, err
			}
			ref.Status = domain.PaymentStatusFailed
		}
		metrics.PaymentConfirmations.WithLabelValues(string(domain.PaymentStatusFailed)).Inc()
		log.Info("Payment failed, booking stays pending", "paymentIntentID", ref.ExternalID)
		if err := s.email.SendPaymentFailedNotification(ctx, booking, "The card payment was not completed"); err != nil {
			log.Warn("Failed to send payment failure email", "error", err)
		}
		return nil, domain.NewProviderError("The payment was declined. Please try again or use a different card", nil)

	default:
		return nil, domain.NewPendingError("The payment is still being processed")
	}
}

func (s *paymentService) afterConfirmed(ctx context.Context, b *domain.Booking) {
	log := logger.WithBooking(b.ID, b.BookingNumber)
	err := s.docs.RequestDocuments(ctx, DocumentRequest{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		VehicleID:     b.VehicleID,
		Start:         b.Range.Start.Format(utils.DateLayout),
		End:           b.Range.End.Format(utils.DateLayout),
		Customer:      b.Guest,
		Price:         b.Price,
	})
	if err != nil {
		log.Warn("Failed to request booking documents", "error", err)
	}

	vehicleName := "your vehicle"
	if v, err := s.vehicleRepo.GetByID(ctx, b.VehicleID); err == nil {
		vehicleName = v.Name
	}
	if err := s.email.SendBookingConfirmation(ctx, b, vehicleName); err != nil {
		log.Warn("Failed to send booking confirmation email", "error", err)
	}
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		logger.Warn("Rejected payment webhook", "error", err)
		return err
	}
	if ev == nil {
		return nil
	}
	logger.Info("Payment webhook received", "eventID", ev.ID, "type", ev.Type, "paymentIntentID", ev.Intent.ID, "status", ev.Intent.Status)

	if ev.Intent.Status != domain.PaymentStatusSucceeded && ev.Intent.Status != domain.PaymentStatusFailed {
		return nil
	}
	ref, err := s.intentRepo.GetByExternalID(ctx, ev.Intent.ID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Webhook for unknown payment intent", "paymentIntentID", ev.Intent.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if ref.Status == domain.PaymentStatusCanceled && ev.Intent.Status != domain.PaymentStatusSucceeded {
		logger.Debug("Ignoring event for a replaced payment intent", "paymentIntentID", ref.ExternalID)
		return nil
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("booking:%d", ref.BookingID))
	if err != nil {
		// the provider retries non-2xx deliveries
		return fmt.Errorf("booking %d busy: %w", ref.BookingID, err)
	}
	defer release()

	booking, err := s.bookingRepo.GetByID(ctx, ref.BookingID)
	if err != nil {
		return err
	}
	if booking.PaidWith(ref.ExternalID) || booking.Status == domain.BookingStatusCancelled {
		return nil
	}
	if booking.Status == domain.BookingStatusConfirmed {
		logger.WithBooking(booking.ID, booking.BookingNumber).Error("Booking already paid with another intent, refund may be required",
			"paymentIntentID", ref.ExternalID)
		return nil
	}

	_, err = s.applyIntentStatus(ctx, booking, ref, ev.Intent.Status)
	switch {
	case err == nil,
		errors.Is(err, domain.ErrPaymentProvider),
		errors.Is(err, domain.ErrAvailabilityConflict):
		// recorded; nothing for the provider to retry
		return nil
	}
	return err
}

func (s *paymentService) ReleaseStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	logger.EnterMethod("paymentService.ReleaseStalePending", "olderThan", olderThan.String(), "limit", limit)

	cutoff := s.now().Add(-olderThan)
	stale, err := s.bookingRepo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		logger.ExitMethodWithError("paymentService.ReleaseStalePending", err)
		return 0, err
	}

	released := 0
	for i := range stale {
		b := &stale[i]
		ok, err := s.releaseOne(ctx, b)
		if err != nil {
			logger.WithBooking(b.ID, b.BookingNumber).Error("Failed to release pending booking", "error", err)
			continue
		}
		if ok {
			released++
		}
	}
	metrics.BookingsReleased.Add(float64(released))
	logger.ExitMethod("paymentService.ReleaseStalePending", "candidates", len(stale), "released", released)
	return released, nil
}

func (s *paymentService) releaseOne(ctx context.Context, b *domain.Booking) (bool, error) {
	release, err := s.lockBooking(ctx, b.ID)
	if err != nil {
		return false, err
	}
	defer release()

	intents, err := s.intentRepo.ListByBooking(ctx, b.ID)
	if err != nil {
		return false, err
	}
	for i := range intents {
		pi := &intents[i]
		if pi.Status == domain.PaymentStatusCanceled || pi.Status == domain.PaymentStatusSucceeded {
			continue
		}
		in, err := s.provider.RetrieveIntent(ctx, pi.ExternalID)
		if err != nil {
			return false, err
		}
		if in.Status == domain.PaymentStatusSucceeded {
			// paid but never confirmed; confirm instead of releasing
			_, err := s.applyIntentStatus(ctx, b, pi, in.Status)
			return false, err
		}
		// a failed intent can still be retried client-side, so it is canceled too
		if err := s.provider.CancelIntent(ctx, pi.ExternalID); err != nil {
			if errors.Is(err, payment.ErrIntentSucceeded) {
				return false, s.settle(ctx, b, pi)
			}
			return false, err
		}
		if err := s.intentRepo.UpdateStatus(ctx, pi.ID, domain.PaymentStatusCanceled); err != nil {
			return false, err
		}
	}

	ok, err := s.bookingRepo.MarkExpired(ctx, b.ID)
	if err != nil {
		return false, err
	}
	if ok {
		logger.WithBooking(b.ID, b.BookingNumber).Info("Released unpaid booking", "vehicleID", b.VehicleID, "range", b.Range.String(), "createdOn", b.CreatedOn)
	}
	return ok, nil
}
