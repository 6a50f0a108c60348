package domain

import (
	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount in the booking currency
type Money = decimal.Decimal

// RoundingMode selects how amounts are rounded to cents
type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "half_up"
	RoundHalfEven RoundingMode = "bankers"
)

// Zero is the zero amount
var Zero = decimal.Zero

// Cents builds an amount from minor units
func Cents(c int64) Money {
	return decimal.New(c, -2)
}

// Amount builds an amount from a whole-unit integer
func Amount(units int64) Money {
	return decimal.NewFromInt(units)
}

// Round2 rounds to two decimals using the given mode
func Round2(m Money, mode RoundingMode) Money {
	if mode == RoundHalfEven {
		return m.RoundBank(2)
	}
	return m.Round(2)
}

// MinorUnits converts an amount already rounded to cents into integer minor units
func MinorUnits(m Money) int64 {
	return m.Shift(2).Round(0).IntPart()
}
