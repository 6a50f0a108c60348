package checkout

import (
	"fmt"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/pricing"
	"rentcar-backend/internal/utils"
)

type Step int

const (
	StepDates Step = iota + 1
	StepDetails
	StepInsurance
	StepPaymentOption
	StepPayment
	StepConfirmation
)

var stepNames = map[Step]string{
	StepDates:         "dates",
	StepDetails:       "details",
	StepInsurance:     "insurance",
	StepPaymentOption: "payment_option",
	StepPayment:       "payment",
	StepConfirmation:  "confirmation",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	for step, name := range stepNames {
		if name == string(text) {
			*s = step
			return nil
		}
	}
	return fmt.Errorf("unknown checkout step %q", text)
}

// Draft is the booking in progress. It is treated as a value: reducers return a new Draft.
type Draft struct {
	SessionID     string                `json:"session_id"`
	VehicleID     int32                 `json:"vehicle_id"`
	Range         utils.DateRange       `json:"range"`
	Guest         domain.GuestInfo      `json:"guest"`
	Driver        domain.DriverInfo     `json:"driver"`
	Contact       domain.ContactInfo    `json:"contact"`
	Insurance     domain.InsuranceKey   `json:"insurance,omitempty"`
	Extras        []domain.Extra        `json:"extras"`
	PaymentOption domain.PaymentOption  `json:"payment_option"`
	AcceptedTerms bool                  `json:"accepted_terms"`
	Step          Step                  `json:"step"`
	Price         domain.PriceBreakdown `json:"price"`

	BookingID       int32                `json:"booking_id,omitempty"`
	BookingNumber   string               `json:"booking_number,omitempty"`
	PaymentIntentID string               `json:"payment_intent_id,omitempty"`
	ClientSecret    string               `json:"client_secret,omitempty"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status,omitempty"`
}

// NewDraft starts a checkout on the dates step with the full payment option preselected
func NewDraft(sessionID string, vehicleID int32) Draft {
	return Draft{
		SessionID:     sessionID,
		VehicleID:     vehicleID,
		PaymentOption: domain.PaymentOptionFull,
		Step:          StepDates,
		Price:         domain.ZeroBreakdown(),
	}
}

// EffectiveInsurance returns the selected tier, or standard when the step was never visited
func (d Draft) EffectiveInsurance() domain.InsuranceKey {
	if d.Insurance == "" {
		return domain.InsuranceStandard
	}
	return d.Insurance
}

// Committed reports whether the draft has been promoted to a persisted booking
func (d Draft) Committed() bool {
	return d.BookingID != 0
}

func (d Draft) clone() Draft {
	if d.Extras != nil {
		extras := make([]domain.Extra, len(d.Extras))
		copy(extras, d.Extras)
		d.Extras = extras
	}
	return d
}

// Env is the read-only context the reducer and guards evaluate against
type Env struct {
	Vehicle   domain.Vehicle
	Reserved  []utils.DateRange
	Engine    *pricing.Engine
	Insurance domain.InsuranceCatalog
	Extras    domain.ExtrasCatalog
}

// Price derives the breakdown for the draft's current selections
func Price(d Draft, env Env) domain.PriceBreakdown {
	return env.Engine.Compute(
		d.Range,
		env.Engine.RateCard(env.Vehicle),
		env.Insurance.Lookup(d.EffectiveInsurance()),
		d.Extras,
		d.PaymentOption,
	)
}
