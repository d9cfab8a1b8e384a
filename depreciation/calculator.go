package depreciation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// CALCULATOR - Pure per-period depreciation
// =============================================================================

// Result is the outcome of one period's calculation.
type Result struct {
	Method      MethodName // strategy actually applied
	Fallback    bool       // true when the asset's method was unknown
	Opening     decimal.Decimal
	Amount      decimal.Decimal
	Closing     decimal.Decimal
	Accumulated decimal.Decimal
}

// Calculator applies a method, clamps to salvage and rounds to cents.
// Inputs must have passed Validate; Compute never fails.
type Calculator struct {
	Methods  *Registry
	Rounding generic.RoundingMode

	// MinimumCent posts one cent when a period's amount rounds to 0.00 while
	// the asset is still above salvage. Off, such a period posts 0.00.
	MinimumCent bool
}

// NewCalculator returns a calculator over the built-in methods.
func NewCalculator(rounding generic.RoundingMode) *Calculator {
	return &Calculator{Methods: NewRegistry(), Rounding: rounding}
}

// Compute returns the depreciation for one period.
//
//	amount      = round(min(method(in), opening - salvage))
//	closing     = round(opening - amount)
//	accumulated = round(purchase - closing)
//
// With MinimumCent set, an amount that rounds to 0.00 while the asset is
// still above salvage becomes one cent, bounded by what remains.
func (c *Calculator) Compute(method MethodName, in Input) Result {
	m, ok := c.Methods.Resolve(method)

	remaining := in.Opening.Sub(in.Salvage)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	raw := m.MonthlyAmount(in)
	if raw.GreaterThan(remaining) {
		raw = remaining
	}
	if raw.IsNegative() {
		raw = decimal.Zero
	}

	amount := c.Rounding.Round(raw)
	if c.MinimumCent && !amount.IsPositive() && remaining.IsPositive() {
		amount = decimal.Min(generic.OneCent, remaining)
	}

	closing := c.Rounding.Round(in.Opening.Sub(amount))
	return Result{
		Method:      m.Name(),
		Fallback:    !ok,
		Opening:     in.Opening,
		Amount:      amount,
		Closing:     closing,
		Accumulated: c.Rounding.Round(in.PurchasePrice.Sub(closing)),
	}
}

// InputFor builds the calculator input from an asset's current state.
func InputFor(a Asset) Input {
	return Input{
		Opening:         a.CurrentBookValue,
		PurchasePrice:   a.Purchase(),
		Salvage:         a.SalvageValue,
		UsefulLifeYears: a.UsefulLifeYears,
		RatePct:         a.RatePct,
	}
}

// =============================================================================
// CONFIGURATION VALIDATION
// =============================================================================

// Validate rejects assets whose parameters cannot produce a positive,
// salvage-bounded depreciation amount. Errors are *generic.ConfigError.
func Validate(a Asset) error {
	fail := func(field, reason string) error {
		return &generic.ConfigError{AssetID: a.ID, Field: field, Reason: reason}
	}

	if a.DecodeErr != nil {
		return a.DecodeErr
	}

	if !a.PurchasePrice.Valid || !a.PurchasePrice.Decimal.IsPositive() {
		return fail("purchase_price", "must be set and greater than zero")
	}
	if a.UsefulLifeYears <= 0 {
		return fail("useful_life_years", "must be a positive number of years")
	}
	if a.SalvageValue.IsNegative() {
		return fail("salvage_value", "must not be negative")
	}
	if a.SalvageValue.GreaterThanOrEqual(a.PurchasePrice.Decimal) {
		return fail("salvage_value", "must be below purchase price")
	}
	if a.CurrentBookValue.GreaterThan(a.PurchasePrice.Decimal) {
		return fail("current_book_value", "must not exceed purchase price")
	}
	if a.Method == "" {
		return fail("depreciation_method", "must be set")
	}
	if a.Method == MethodDecliningBalance && a.RatePct.Valid {
		r := a.RatePct.Decimal
		if !r.IsPositive() || r.GreaterThan(hundred) {
			return fail("depreciation_rate", "must be in (0, 100] percent")
		}
	}
	return nil
}
