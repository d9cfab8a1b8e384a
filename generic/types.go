/*
Package generic provides the domain-agnostic primitives of the depreciation engine.

PURPOSE:
  Identifiers, currency rounding, calendar dates and accounting periods.
  Nothing in this package knows what an asset or a depreciation method is;
  the depreciation package builds on top of these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: TenantID, AssetID, EntryID, RunID
  - RoundingMode: how currency amounts are rounded to cents
  - Cents: the currency precision (2 decimal places)

DESIGN PRINCIPLES:
  1. Precision: every currency amount is a decimal.Decimal, never a float64
  2. Type Safety: typed IDs keep tenant and asset identifiers apart
  3. One rounding rule: the same RoundingMode is applied to every stored amount

SEE ALSO:
  - time.go: TimePoint (calendar dates)
  - period.go: Period and the monthly period resolver
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type AssetID string
type EntryID string
type RunID string

// =============================================================================
// CURRENCY ROUNDING
// =============================================================================

// CurrencyPlaces is the number of decimal places kept for currency amounts.
const CurrencyPlaces int32 = 2

// RoundingMode selects how amounts are rounded to CurrencyPlaces.
type RoundingMode string

const (
	// RoundHalfAwayFromZero rounds 0.005 to 0.01 and -0.005 to -0.01.
	RoundHalfAwayFromZero RoundingMode = "half_away_from_zero"
	// RoundHalfEven is banker's rounding: 0.005 to 0.00, 0.015 to 0.02.
	RoundHalfEven RoundingMode = "half_even"
)

// ParseRoundingMode converts a configuration string into a RoundingMode.
// An empty string selects RoundHalfAwayFromZero.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch RoundingMode(s) {
	case "", RoundHalfAwayFromZero:
		return RoundHalfAwayFromZero, nil
	case RoundHalfEven:
		return RoundHalfEven, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Round rounds d to currency precision using the mode.
func (m RoundingMode) Round(d decimal.Decimal) decimal.Decimal {
	if m == RoundHalfEven {
		return d.RoundBank(CurrencyPlaces)
	}
	return d.Round(CurrencyPlaces)
}

// OneCent is the smallest postable currency amount.
var OneCent = decimal.New(1, -CurrencyPlaces)

// ParseAmount parses a stored amount. Malformed input is an error, never zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed amount %q", s)
	}
	return d, nil
}

// FormatCents renders d with exactly CurrencyPlaces decimals ("11800.00").
func FormatCents(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}
