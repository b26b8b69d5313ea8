// Package money holds amount and fee arithmetic in integer minor units.
package money

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// ErrCurrencyInvalid indicates a currency that is not an ISO 4217 code.
var ErrCurrencyInvalid = errors.New("currency must be an ISO 4217 code")

// Amount is a monetary value in minor units (cents for USD).
type Amount int64

// String renders the amount with two decimal places.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// NormalizeCurrency validates code against ISO 4217 and returns its canonical form.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrCurrencyInvalid
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCurrencyInvalid, code)
	}
	return unit.String(), nil
}

// FeePolicy is the settlement fee schedule: a proportional rate plus a fixed fee.
type FeePolicy struct {
	// RateBasisPoints is the proportional fee in hundredths of a percent (290 = 2.9%).
	RateBasisPoints int64
	// Fixed is added to every settlement.
	Fixed Amount
}

// Apply returns fee = amount*rate + fixed and net = amount - fee. The
// proportional part is rounded half-up to the nearest minor unit.
func (p FeePolicy) Apply(amount Amount) (fee Amount, net Amount) {
	proportional := (int64(amount)*p.RateBasisPoints + 5000) / 10000
	fee = Amount(proportional) + p.Fixed
	return fee, amount - fee
}

// Validate rejects negative schedules.
func (p FeePolicy) Validate() error {
	if p.RateBasisPoints < 0 || p.RateBasisPoints > 10000 {
		return fmt.Errorf("fee rate must be between 0 and 10000 basis points, got %d", p.RateBasisPoints)
	}
	if p.Fixed < 0 {
		return fmt.Errorf("fixed fee must not be negative, got %s", p.Fixed)
	}
	return nil
}
