package checkout

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/pricing"
	"rentcar-backend/internal/utils"
)

func testEnv() Env {
	return Env{
		Vehicle: domain.Vehicle{
			ID:            7,
			DailyRate:     decimal.NewFromInt(100),
			CleaningFee:   decimal.NewFromInt(50),
			Deposit:       decimal.NewFromInt(500),
			MinRentalDays: 2,
		},
		Reserved: []utils.DateRange{
			utils.NewDateRange(day(10), day(15)),
		},
		Engine: pricing.NewEngine(pricing.DefaultPolicy()),
		Insurance: domain.InsuranceCatalog{
			domain.InsuranceBasic:    {Key: domain.InsuranceBasic, PricePerDay: decimal.NewFromInt(10)},
			domain.InsuranceStandard: {Key: domain.InsuranceStandard, PricePerDay: decimal.NewFromInt(25)},
			domain.InsurancePremium:  {Key: domain.InsurancePremium, PricePerDay: decimal.NewFromInt(45)},
		},
		Extras: domain.ExtrasCatalog{
			"child_seat": {Key: "child_seat", Name: "Child seat", Price: decimal.NewFromInt(8), MaxQuantity: 3},
		},
	}
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func mustReduce(t *testing.T, d Draft, a Action, env Env) Draft {
	t.Helper()
	next, err := Reduce(d, a, env)
	require.NoError(t, err)
	return next
}

func filledDraft(t *testing.T, env Env) Draft {
	d := NewDraft("session-1", env.Vehicle.ID)
	d = mustReduce(t, d, SetDates{Range: utils.NewDateRange(day(1), day(6))}, env)
	d = mustReduce(t, d, SetGuest{Guest: domain.GuestInfo{FirstName: "Anna", LastName: "Berg"}}, env)
	d = mustReduce(t, d, SetDriver{Driver: domain.DriverInfo{FirstName: "Anna", LastName: "Berg", LicenseNumber: "B123456"}}, env)
	d = mustReduce(t, d, SetContact{Contact: domain.ContactInfo{Email: "anna@example.com", Phone: "+4915112345678"}}, env)
	return d
}

func TestAdvance_DatesGuard(t *testing.T) {
	env := testEnv()

	t.Run("Blocks without dates", func(t *testing.T) {
		d := NewDraft("s", env.Vehicle.ID)
		next, effect, err := Advance(d, env)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Equal(t, "Please select pickup and return dates", domain.UserMessage(err))
		assert.Equal(t, StepDates, next.Step)
		assert.Equal(t, EffectNone, effect)
	})

	t.Run("Blocks overlapping dates", func(t *testing.T) {
		d := mustReduce(t, NewDraft("s", env.Vehicle.ID), SetDates{Range: utils.NewDateRange(day(15), day(18))}, env)
		next, _, err := Advance(d, env)
		assert.True(t, errors.Is(err, domain.ErrAvailabilityConflict))
		assert.Equal(t, StepDates, next.Step)
	})

	t.Run("Blocks below minimum duration", func(t *testing.T) {
		d := mustReduce(t, NewDraft("s", env.Vehicle.ID), SetDates{Range: utils.NewDateRange(day(1), day(2))}, env)
		_, _, err := Advance(d, env)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("Moves to details", func(t *testing.T) {
		d := mustReduce(t, NewDraft("s", env.Vehicle.ID), SetDates{Range: utils.NewDateRange(day(1), day(6))}, env)
		next, effect, err := Advance(d, env)
		require.NoError(t, err)
		assert.Equal(t, StepDetails, next.Step)
		assert.Equal(t, EffectNone, effect)
		assert.Equal(t, StepDates, d.Step, "input draft must not be mutated")
	})
}

func TestReduce_RejectsInvalidInput(t *testing.T) {
	env := testEnv()
	d := NewDraft("s", env.Vehicle.ID)

	_, err := Reduce(d, SetDates{Range: utils.NewDateRange(day(5), day(5))}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Reduce(d, SelectInsurance{Key: "platinum"}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Reduce(d, SelectPaymentOption{Option: "later"}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Reduce(d, SetExtras{Selection: []domain.ExtraSelection{{Key: "jetpack", Quantity: 1}}}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Reduce(d, SetExtras{Selection: []domain.ExtraSelection{{Key: "child_seat", Quantity: 4}}}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestReduce_RepricesOnEveryStep(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	// five days with standard insurance by default
	assert.True(t, decimal.RequireFromString("840.44").Equal(d.Price.TotalAmount), d.Price.TotalAmount.String())

	d = mustReduce(t, d, SelectInsurance{Key: domain.InsuranceBasic}, env)
	assert.True(t, decimal.NewFromInt(50).Equal(d.Price.InsurancePrice))

	d = mustReduce(t, d, SetExtras{Selection: []domain.ExtraSelection{{Key: "child_seat", Quantity: 2}}}, env)
	assert.True(t, decimal.NewFromInt(16).Equal(d.Price.ExtrasPrice))

	d = mustReduce(t, d, SelectPaymentOption{Option: domain.PaymentOptionSplit}, env)
	assert.True(t, d.Price.OnlineAmount.Add(d.Price.CashAmount).Equal(d.Price.TotalAmount))
	assert.False(t, d.Price.CashAmount.IsZero())
	assert.Equal(t, StepDates, d.Step)
}

func TestAdvance_FullFlow(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)

	d, _, err := Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, StepDetails, d.Step)

	d, _, err = Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, StepInsurance, d.Step)

	// insurance defaults to standard when never selected
	d, _, err = Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, StepPaymentOption, d.Step)

	_, _, err = Advance(d, env)
	assert.Equal(t, "Please accept the rental terms to continue", domain.UserMessage(err))

	d = mustReduce(t, d, AcceptTerms{Accepted: true}, env)
	same, effect, err := Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, EffectCommit, effect)
	assert.Equal(t, StepPaymentOption, same.Step)

	booking := &domain.Booking{ID: 42, BookingNumber: "BK-1", PaymentOption: domain.PaymentOptionFull}
	intent := &domain.PaymentIntentRef{ExternalID: "pi_1", ClientSecret: "secret", Status: domain.PaymentStatusRequiresAction}
	d = mustReduce(t, d, BookingCommitted{Booking: booking, Intent: intent}, env)
	assert.Equal(t, StepPayment, d.Step)
	assert.True(t, d.Committed())

	_, _, err = Advance(d, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	d = mustReduce(t, d, PaymentResolved{Status: domain.PaymentStatusSucceeded}, env)
	d, _, err = Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, d.Step)

	again, effect, err := Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, EffectNone, effect)
	assert.Equal(t, d, again)
	assert.Equal(t, StepConfirmation, Back(d).Step)
}

func TestBack_KeepsData(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d, _, err := Advance(d, env)
	require.NoError(t, err)
	d, _, err = Advance(d, env)
	require.NoError(t, err)
	d = mustReduce(t, d, SelectInsurance{Key: domain.InsurancePremium}, env)

	back := Back(Back(d))
	assert.Equal(t, StepDates, back.Step)
	assert.Equal(t, "Anna", back.Guest.FirstName)
	assert.Equal(t, domain.InsurancePremium, back.Insurance)
	assert.True(t, d.Price.TotalAmount.Equal(back.Price.TotalAmount))
	assert.Equal(t, StepDates, Back(back).Step)
}

func TestGuard_Details(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	require.NoError(t, Guard(StepDetails, d, env))

	missing := mustReduce(t, d, SetDriver{Driver: domain.DriverInfo{FirstName: "Anna"}}, env)
	err := Guard(StepDetails, missing, env)
	var ue *domain.UserError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "driver.license_number", ue.Field)

	badEmail := mustReduce(t, d, SetContact{Contact: domain.ContactInfo{Email: "not-an-email", Phone: "1"}}, env)
	assert.Error(t, Guard(StepDetails, badEmail, env))
}

func TestCommittedDraft(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d.BookingID = 9
	// the booking's own range is part of the reserved set once persisted
	env.Reserved = append(env.Reserved, d.Range)

	assert.NoError(t, Guard(StepDates, d, env))
	_, err := Reduce(d, SetDates{Range: utils.NewDateRange(day(20), day(25))}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestReturnToDates(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d.Step = StepPaymentOption
	d = mustReduce(t, d, ReturnToDates{}, env)
	assert.Equal(t, StepDates, d.Step)
	assert.Equal(t, "anna@example.com", d.Contact.Email)
}

func TestCommittedDraft_LocksBookingFields(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d.BookingID = 9

	locked := []Action{
		SetGuest{Guest: domain.GuestInfo{FirstName: "Other", LastName: "Person"}},
		SetDriver{Driver: domain.DriverInfo{LicenseNumber: "X"}},
		SetContact{Contact: domain.ContactInfo{Email: "x@example.com", Phone: "2"}},
		SelectInsurance{Key: domain.InsurancePremium},
		SetExtras{Selection: nil},
	}
	for _, a := range locked {
		got, err := Reduce(d, a, env)
		assert.True(t, errors.Is(err, domain.ErrValidation), "%T", a)
		assert.Equal(t, d, got)
	}

	// the payment option may still change; the booking is re-split on the next intent
	changed, err := Reduce(d, SelectPaymentOption{Option: domain.PaymentOptionSplit}, env)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentOptionSplit, changed.PaymentOption)
}

func TestSelectPaymentOption_FixedFromThePaymentStep(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d = mustReduce(t, d, SelectPaymentOption{Option: domain.PaymentOptionFull}, env)

	for _, step := range []Step{StepPayment, StepConfirmation} {
		d.Step = step
		got, err := Reduce(d, SelectPaymentOption{Option: domain.PaymentOptionSplit}, env)
		var ue *domain.UserError
		require.True(t, errors.As(err, &ue), step.String())
		assert.Equal(t, "payment_option", ue.Field)
		assert.Equal(t, domain.PaymentOptionFull, got.PaymentOption)
		assert.True(t, d.Price.OnlineAmount.Equal(got.Price.OnlineAmount))
	}

	d.Step = StepPaymentOption
	changed, err := Reduce(d, SelectPaymentOption{Option: domain.PaymentOptionSplit}, env)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentOptionSplit, changed.PaymentOption)
}

func TestBookingReserved_FreezesWithoutEnteringPayment(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d = mustReduce(t, d, SelectPaymentOption{Option: domain.PaymentOptionSplit}, env)
	d.Step = StepPaymentOption

	booking := &domain.Booking{ID: 42, BookingNumber: "RC-1", PaymentOption: domain.PaymentOptionSplit, Price: d.Price}
	d = mustReduce(t, d, BookingReserved{Booking: booking}, env)
	assert.True(t, d.Committed())
	assert.Equal(t, "RC-1", d.BookingNumber)
	assert.Equal(t, StepPaymentOption, d.Step)
	assert.Empty(t, d.PaymentIntentID)

	_, err := Reduce(d, SetDates{Range: utils.NewDateRange(day(20), day(27))}, env)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	// the retry still commits from the payment option step
	d = mustReduce(t, d, AcceptTerms{Accepted: true}, env)
	_, effect, err := Advance(d, env)
	require.NoError(t, err)
	assert.Equal(t, EffectCommit, effect)
}

func TestBookingCommitted_TakesBookingPrice(t *testing.T) {
	env := testEnv()
	d := filledDraft(t, env)
	d.Step = StepPaymentOption

	price := Price(d, env)
	price.TotalAmount = price.TotalAmount.Add(decimal.NewFromInt(1))
	booking := &domain.Booking{ID: 1, BookingNumber: "RC-1", PaymentOption: domain.PaymentOptionFull, Price: price}
	intent := &domain.PaymentIntentRef{ExternalID: "pi_1", Status: domain.PaymentStatusRequiresAction}

	d = mustReduce(t, d, BookingCommitted{Booking: booking, Intent: intent}, env)
	assert.True(t, price.TotalAmount.Equal(d.Price.TotalAmount))
	assert.Equal(t, "pi_1", d.PaymentIntentID)
}

func TestStepJSON(t *testing.T) {
	d := NewDraft("s1", 7)
	d.Step = StepPaymentOption

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"step":"payment_option"`)

	var back Draft
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, StepPaymentOption, back.Step)

	var s Step
	assert.Error(t, json.Unmarshal([]byte(`"checkout"`), &s))
}
