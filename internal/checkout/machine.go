package checkout

import (
	"net/mail"

	"rentcar-backend/internal/availability"
	"rentcar-backend/internal/domain"
)

// Effect tells the caller which side effect a transition requires before it can complete
type Effect int

const (
	EffectNone Effect = iota
	// EffectCommit: persist the booking and create the payment intent, then dispatch BookingCommitted
	EffectCommit
)

// Guard returns nil when the draft may leave step. Failures are validation UserErrors
// (or an availability conflict on the dates step).
func Guard(step Step, d Draft, env Env) error {
	switch step {
	case StepDates:
		if d.Range.IsZero() {
			return domain.NewValidationError("dates", "Please select pickup and return dates")
		}
		if d.Committed() {
			// the committed booking itself holds the range
			return nil
		}
		return availability.Check(env.Vehicle, d.Range, env.Reserved)
	case StepDetails:
		return guardDetails(d)
	case StepInsurance:
		key := d.EffectiveInsurance()
		if _, ok := env.Insurance[key]; !ok || !key.Valid() {
			return domain.NewValidationError("insurance", "Please choose one of the offered insurance packages")
		}
		return nil
	case StepPaymentOption:
		if !d.PaymentOption.Valid() {
			return domain.NewValidationError("payment_option", "Please choose to pay in full or split the payment")
		}
		if !d.AcceptedTerms {
			return domain.NewValidationError("accepted_terms", "Please accept the rental terms to continue")
		}
		return nil
	case StepPayment:
		if d.PaymentStatus != domain.PaymentStatusSucceeded {
			return domain.NewValidationError("payment", "The payment has not been completed yet")
		}
		return nil
	case StepConfirmation:
		return nil
	}
	return domain.NewValidationError("step", "Unknown checkout step")
}

func guardDetails(d Draft) error {
	required := []struct {
		field, value, label string
	}{
		{"guest.first_name", d.Guest.FirstName, "first name"},
		{"guest.last_name", d.Guest.LastName, "last name"},
		{"driver.license_number", d.Driver.LicenseNumber, "driver's license number"},
		{"contact.email", d.Contact.Email, "email address"},
		{"contact.phone", d.Contact.Phone, "phone number"},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.NewValidationError(r.field, "Please enter your "+r.label)
		}
	}
	if _, err := mail.ParseAddress(d.Contact.Email); err != nil {
		return domain.NewValidationError("contact.email", "Please enter a valid email address")
	}
	return nil
}

// Advance moves one step forward when the current step's guard holds. Leaving the payment
// option step does not move the draft; it returns EffectCommit and the move happens when the
// caller dispatches BookingCommitted. Confirmation is terminal and advancing it is a no-op.
func Advance(d Draft, env Env) (Draft, Effect, error) {
	if d.Step == StepConfirmation {
		return d, EffectNone, nil
	}
	if err := Guard(d.Step, d, env); err != nil {
		return d, EffectNone, err
	}
	if d.Step == StepPaymentOption {
		return d, EffectCommit, nil
	}
	next := d.clone()
	next.Step++
	return next, EffectNone, nil
}

// Back moves one step backward. It never clears entered data. Dates is the first step and
// confirmation cannot be left.
func Back(d Draft) Draft {
	if d.Step <= StepDates || d.Step == StepConfirmation {
		return d
	}
	next := d.clone()
	next.Step--
	return next
}

// ValidateForCommit re-runs every guard that precedes the payment step
func ValidateForCommit(d Draft, env Env) error {
	for step := StepDates; step <= StepPaymentOption; step++ {
		if err := Guard(step, d, env); err != nil {
			return err
		}
	}
	return nil
}
