package services

import "github.com/shopspring/decimal"

// FormatAmount renders minor currency units with two decimal places.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// SplitFee computes the platform's share of amount at rate, rounded half-up
// to the nearest minor unit. The organizer receives the rest.
func SplitFee(amount int64, rate decimal.Decimal) (platformFee, organizerAmount int64) {
	fee := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}
	return fee, amount - fee
}
