package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money amounts are stored and transported as decimal strings with two
// fractional digits ("499.00"). The gateway works in integer paise.

// ErrInvalidAmount indicates a money string could not be parsed or is negative.
var ErrInvalidAmount = fmt.Errorf("domain: invalid amount")

// ParseAmount parses a decimal money string and rejects negative values.
func ParseAmount(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, trimmed)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, trimmed)
	}
	return amount, nil
}

// AmountString renders the amount with exactly two fractional digits.
func AmountString(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// ToPaise converts a rupee amount to integer paise for the gateway.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromPaise converts integer paise back to a rupee amount.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Div(decimal.NewFromInt(100))
}
