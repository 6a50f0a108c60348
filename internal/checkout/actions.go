package checkout

import (
	"strings"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/utils"
)

// Action is one customer or system event applied to a draft
type Action interface {
	apply(d Draft, env Env) (Draft, error)
	// reprices is true when the action touches a pricing input
	reprices() bool
}

// Reduce applies a to d and returns the new draft. On error d is returned unchanged.
// The price is re-derived on every pricing input change, independent of the step.
func Reduce(d Draft, a Action, env Env) (Draft, error) {
	next, err := a.apply(d.clone(), env)
	if err != nil {
		return d, err
	}
	if a.reprices() {
		next.Price = Price(next, env)
	}
	return next, nil
}

type SetDates struct {
	Range utils.DateRange
}

// lockedAfterCommit rejects edits to fields already persisted with the booking
func lockedAfterCommit(d Draft, field, what string) error {
	if d.Committed() {
		return domain.NewValidationError(field, what+" cannot be changed once the booking has been created")
	}
	return nil
}

func (a SetDates) apply(d Draft, _ Env) (Draft, error) {
	if err := lockedAfterCommit(d, "dates", "Dates"); err != nil {
		return d, err
	}
	r := utils.NewDateRange(a.Range.Start, a.Range.End)
	if err := r.Validate(); err != nil {
		return d, domain.NewValidationError("dates", "The return date must be after the pickup date")
	}
	d.Range = r
	return d, nil
}

func (SetDates) reprices() bool { return true }

type SetGuest struct {
	Guest domain.GuestInfo
}

func (a SetGuest) apply(d Draft, _ Env) (Draft, error) {
	if err := lockedAfterCommit(d, "guest", "Guest details"); err != nil {
		return d, err
	}
	d.Guest = domain.GuestInfo{
		FirstName: strings.TrimSpace(a.Guest.FirstName),
		LastName:  strings.TrimSpace(a.Guest.LastName),
	}
	return d, nil
}

func (SetGuest) reprices() bool { return false }

type SetDriver struct {
	Driver domain.DriverInfo
}

func (a SetDriver) apply(d Draft, _ Env) (Draft, error) {
	if err := lockedAfterCommit(d, "driver", "Driver details"); err != nil {
		return d, err
	}
	d.Driver = domain.DriverInfo{
		FirstName:     strings.TrimSpace(a.Driver.FirstName),
		LastName:      strings.TrimSpace(a.Driver.LastName),
		LicenseNumber: strings.TrimSpace(a.Driver.LicenseNumber),
		DateOfBirth:   strings.TrimSpace(a.Driver.DateOfBirth),
	}
	return d, nil
}

func (SetDriver) reprices() bool { return false }

type SetContact struct {
	Contact domain.ContactInfo
}

func (a SetContact) apply(d Draft, _ Env) (Draft, error) {
	if err := lockedAfterCommit(d, "contact", "Contact details"); err != nil {
		return d, err
	}
	d.Contact = domain.ContactInfo{
		Email: strings.TrimSpace(a.Contact.Email),
		Phone: strings.TrimSpace(a.Contact.Phone),
	}
	return d, nil
}

func (SetContact) reprices() bool { return false }

type SelectInsurance struct {
	Key domain.InsuranceKey
}

func (a SelectInsurance) apply(d Draft, env Env) (Draft, error) {
	if err := lockedAfterCommit(d, "insurance", "Insurance"); err != nil {
		return d, err
	}
	if _, ok := env.Insurance[a.Key]; !ok || !a.Key.Valid() {
		return d, domain.NewValidationError("insurance", "Please choose one of the offered insurance packages")
	}
	d.Insurance = a.Key
	return d, nil
}

func (SelectInsurance) reprices() bool { return true }

type SetExtras struct {
	Selection []domain.ExtraSelection
}

func (a SetExtras) apply(d Draft, env Env) (Draft, error) {
	if err := lockedAfterCommit(d, "extras", "Extras"); err != nil {
		return d, err
	}
	extras, err := env.Extras.Resolve(a.Selection)
	if err != nil {
		return d, &domain.UserError{Kind: domain.ErrValidation, Field: "extras", Reason: "One of the selected extras is not available", Err: err}
	}
	d.Extras = extras
	return d, nil
}

func (SetExtras) reprices() bool { return true }

type SelectPaymentOption struct {
	Option domain.PaymentOption
}

func (a SelectPaymentOption) apply(d Draft, _ Env) (Draft, error) {
	if d.Step >= StepPayment {
		return d, domain.NewValidationError("payment_option", "Go back to the payment option step to change how you pay")
	}
	if !a.Option.Valid() {
		return d, domain.NewValidationError("payment_option", "Please choose to pay in full or split the payment")
	}
	d.PaymentOption = a.Option
	return d, nil
}

func (SelectPaymentOption) reprices() bool { return true }

type AcceptTerms struct {
	Accepted bool
}

func (a AcceptTerms) apply(d Draft, _ Env) (Draft, error) {
	d.AcceptedTerms = a.Accepted
	return d, nil
}

func (AcceptTerms) reprices() bool { return false }

// BookingReserved records the persisted booking before its payment intent exists, freezing
// the booking fields even if opening the intent fails. The step and payment option are unchanged.
type BookingReserved struct {
	Booking *domain.Booking
}

func (a BookingReserved) apply(d Draft, _ Env) (Draft, error) {
	d.BookingID = a.Booking.ID
	d.BookingNumber = a.Booking.BookingNumber
	return d, nil
}

func (BookingReserved) reprices() bool { return false }

// BookingCommitted records the persisted booking and its intent and enters the payment step.
// From here on the booking's price is authoritative.
type BookingCommitted struct {
	Booking *domain.Booking
	Intent  *domain.PaymentIntentRef
}

func (a BookingCommitted) apply(d Draft, _ Env) (Draft, error) {
	d.BookingID = a.Booking.ID
	d.BookingNumber = a.Booking.BookingNumber
	d.PaymentOption = a.Booking.PaymentOption
	d.Price = a.Booking.Price
	d.PaymentIntentID = a.Intent.ExternalID
	d.ClientSecret = a.Intent.ClientSecret
	d.PaymentStatus = a.Intent.Status
	d.Step = StepPayment
	return d, nil
}

func (BookingCommitted) reprices() bool { return false }

// PaymentResolved records the provider's answer for the current intent
type PaymentResolved struct {
	Status domain.PaymentStatus
}

func (a PaymentResolved) apply(d Draft, _ Env) (Draft, error) {
	d.PaymentStatus = a.Status
	return d, nil
}

func (PaymentResolved) reprices() bool { return false }

// ReturnToDates sends the customer back after the authoritative check rejected the range
type ReturnToDates struct{}

func (ReturnToDates) apply(d Draft, _ Env) (Draft, error) {
	d.Step = StepDates
	return d, nil
}

func (ReturnToDates) reprices() bool { return false }
