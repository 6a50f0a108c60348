package domain

import "fmt"

// PriceBreakdown is derived on every pricing input change. It becomes the source of truth
// only when the booking is confirmed.
type PriceBreakdown struct {
	NumberOfDays   int   `json:"number_of_days"`
	BasePrice      Money `json:"base_price"`
	Discount       Money `json:"discount"`
	InsurancePrice Money `json:"insurance_price"`
	ExtrasPrice    Money `json:"extras_price"`
	ServiceFee     Money `json:"service_fee"`
	CleaningFee    Money `json:"cleaning_fee"`
	Subtotal       Money `json:"subtotal"`
	TaxAmount      Money `json:"tax_amount"`
	TotalAmount    Money `json:"total_amount"`
	OnlineAmount   Money `json:"online_amount"`
	CashAmount     Money `json:"cash_amount"`
}

// ZeroBreakdown represents "dates not yet selected"
func ZeroBreakdown() PriceBreakdown {
	return PriceBreakdown{
		BasePrice:      Zero,
		Discount:       Zero,
		InsurancePrice: Zero,
		ExtrasPrice:    Zero,
		ServiceFee:     Zero,
		CleaningFee:    Zero,
		Subtotal:       Zero,
		TaxAmount:      Zero,
		TotalAmount:    Zero,
		OnlineAmount:   Zero,
		CashAmount:     Zero,
	}
}

// Verify checks the sum invariants. A failure is a programming error and must abort the request.
func (p PriceBreakdown) Verify() error {
	subtotal := p.BasePrice.Sub(p.Discount).Add(p.InsurancePrice).Add(p.ExtrasPrice).Add(p.ServiceFee).Add(p.CleaningFee)
	if !subtotal.Equal(p.Subtotal) {
		return fmt.Errorf("%w: subtotal %s != components %s", ErrInvariantViolation, p.Subtotal, subtotal)
	}
	if !p.Subtotal.Add(p.TaxAmount).Equal(p.TotalAmount) {
		return fmt.Errorf("%w: total %s != subtotal %s + tax %s", ErrInvariantViolation, p.TotalAmount, p.Subtotal, p.TaxAmount)
	}
	if !p.OnlineAmount.Add(p.CashAmount).Equal(p.TotalAmount) {
		return fmt.Errorf("%w: online %s + cash %s != total %s", ErrInvariantViolation, p.OnlineAmount, p.CashAmount, p.TotalAmount)
	}
	return nil
}
