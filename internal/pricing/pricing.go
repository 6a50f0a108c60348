package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/utils"
)

// DiscountTier grants Rate off the base price for rentals of at least MinDays
type DiscountTier struct {
	MinDays int
	Rate    domain.Money
}

// Policy holds the configurable fee and discount rules
type Policy struct {
	DiscountTiers    []DiscountTier
	ServiceFeeRate   domain.Money
	TaxRate          domain.Money
	SplitOnlineRatio domain.Money
	Rounding         domain.RoundingMode
}

// DefaultPolicy returns 7/30 day tiers at 10%/20%, 5% service fee, 19% tax and a 50/50 split
func DefaultPolicy() Policy {
	return Policy{
		DiscountTiers: []DiscountTier{
			{MinDays: 30, Rate: decimal.RequireFromString("0.20")},
			{MinDays: 7, Rate: decimal.RequireFromString("0.10")},
		},
		ServiceFeeRate:   decimal.RequireFromString("0.05"),
		TaxRate:          decimal.RequireFromString("0.19"),
		SplitOnlineRatio: decimal.RequireFromString("0.5"),
		Rounding:         domain.RoundHalfUp,
	}
}

// Engine computes price breakdowns. It has no I/O and is safe for concurrent use.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	tiers := make([]DiscountTier, len(policy.DiscountTiers))
	copy(tiers, policy.DiscountTiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinDays > tiers[j].MinDays })
	policy.DiscountTiers = tiers
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// RateCard merges the vehicle's own amounts with the configured rates
func (e *Engine) RateCard(v domain.Vehicle) domain.RateCard {
	return domain.RateCard{
		DailyRate:      v.DailyRate,
		CleaningFee:    v.CleaningFee,
		ServiceFeeRate: e.policy.ServiceFeeRate,
		TaxRate:        e.policy.TaxRate,
		Deposit:        v.Deposit,
	}
}

// DiscountRate returns the rate of the first tier (by descending threshold) that days reaches
func (e *Engine) DiscountRate(days int) domain.Money {
	for _, t := range e.policy.DiscountTiers {
		if days >= t.MinDays {
			return t.Rate
		}
	}
	return domain.Zero
}

// Compute maps the checkout selections to an itemized breakdown.
//
// Intermediate products stay exact. Each reported line item is rounded to cents once; the
// subtotal is the sum of the reported items and the tax is rounded from that subtotal, so the
// sum invariants hold to the cent.
func (e *Engine) Compute(rng utils.DateRange, card domain.RateCard, tier domain.InsuranceTier, extras []domain.Extra, option domain.PaymentOption) domain.PriceBreakdown {
	days := rng.NumberOfDays()
	if days <= 0 {
		return domain.ZeroBreakdown()
	}
	round := func(m domain.Money) domain.Money { return domain.Round2(m, e.policy.Rounding) }
	n := decimal.NewFromInt(int64(days))

	base := card.DailyRate.Mul(n)
	discount := base.Mul(e.DiscountRate(days))
	insurance := tier.PricePerDay.Mul(n)
	extrasTotal := domain.Zero
	for _, x := range extras {
		extrasTotal = extrasTotal.Add(x.Price.Mul(decimal.NewFromInt(int64(x.Quantity))))
	}
	// cleaning fee and tax are outside the service fee base
	serviceFee := base.Sub(discount).Add(insurance).Add(extrasTotal).Mul(card.ServiceFeeRate)

	b := domain.PriceBreakdown{
		NumberOfDays:   days,
		BasePrice:      round(base),
		Discount:       round(discount),
		InsurancePrice: round(insurance),
		ExtrasPrice:    round(extrasTotal),
		ServiceFee:     round(serviceFee),
		CleaningFee:    round(card.CleaningFee),
	}
	b.Subtotal = b.BasePrice.Sub(b.Discount).Add(b.InsurancePrice).Add(b.ExtrasPrice).Add(b.ServiceFee).Add(b.CleaningFee)
	b.TaxAmount = round(b.Subtotal.Mul(card.TaxRate))
	b.TotalAmount = b.Subtotal.Add(b.TaxAmount)
	return e.Split(b, option)
}

// Split assigns the online and cash shares of b.TotalAmount for option. The cash share
// absorbs the rounding remainder.
func (e *Engine) Split(b domain.PriceBreakdown, option domain.PaymentOption) domain.PriceBreakdown {
	if option == domain.PaymentOptionSplit {
		b.OnlineAmount = domain.Round2(b.TotalAmount.Mul(e.policy.SplitOnlineRatio), e.policy.Rounding)
		b.CashAmount = b.TotalAmount.Sub(b.OnlineAmount)
	} else {
		b.OnlineAmount = b.TotalAmount
		b.CashAmount = domain.Zero
	}
	return b
}
