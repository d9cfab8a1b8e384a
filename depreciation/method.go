/*
method.go - Depreciation method strategies

PURPOSE:
  Each depreciation method is a Method implementation that maps an asset's
  financial parameters to an unclamped, unrounded monthly amount. Clamping to
  salvage and rounding are applied once, by the Calculator, for every method.

METHODS:
  straight_line:
    (purchase - salvage) / (useful_life_years * 12)
    Constant every period.

  declining_balance:
    opening * rate_pct / 100 / 12, or opening / (useful_life_years * 12)
    when no rate is configured. Shrinks every period because it is based on
    the current opening value.

FALLBACK:
  An unknown method name resolves to straight_line so a method string that
  appears before its strategy is registered still posts.

ADDING A METHOD:
  Implement Method and register it:

    registry.Register(sumOfYearsDigits{})

SEE ALSO:
  - calculator.go: Clamp, rounding and ledger arithmetic
*/
package depreciation

import (
	"sync"

	"github.com/shopspring/decimal"
)

var monthsPerYear = decimal.NewFromInt(12)
var hundred = decimal.NewFromInt(100)

// Input carries one asset's parameters for one period.
type Input struct {
	Opening         decimal.Decimal
	PurchasePrice   decimal.Decimal
	Salvage         decimal.Decimal
	UsefulLifeYears int
	RatePct         decimal.NullDecimal
}

// DepreciableAmount is purchase price minus salvage value.
func (in Input) DepreciableAmount() decimal.Decimal {
	return in.PurchasePrice.Sub(in.Salvage)
}

func (in Input) lifeMonths() decimal.Decimal {
	return decimal.NewFromInt(int64(in.UsefulLifeYears)).Mul(monthsPerYear)
}

// Method computes the raw monthly depreciation amount for one period.
type Method interface {
	Name() MethodName
	MonthlyAmount(in Input) decimal.Decimal
}

// =============================================================================
// STRATEGIES
// =============================================================================

// StraightLine spreads the depreciable amount evenly over the useful life.
type StraightLine struct{}

func (StraightLine) Name() MethodName { return MethodStraightLine }

func (StraightLine) MonthlyAmount(in Input) decimal.Decimal {
	return in.DepreciableAmount().Div(in.lifeMonths())
}

// DecliningBalance applies a fixed monthly rate to the current opening value.
type DecliningBalance struct{}

func (DecliningBalance) Name() MethodName { return MethodDecliningBalance }

func (DecliningBalance) MonthlyAmount(in Input) decimal.Decimal {
	if in.RatePct.Valid {
		return in.Opening.Mul(in.RatePct.Decimal).Div(hundred).Div(monthsPerYear)
	}
	return in.Opening.Div(in.lifeMonths())
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry resolves method names to strategies.
type Registry struct {
	mu       sync.RWMutex
	methods  map[MethodName]Method
	fallback Method
}

// NewRegistry returns a registry with the built-in methods and straight_line
// as the fallback.
func NewRegistry() *Registry {
	r := &Registry{
		methods:  make(map[MethodName]Method),
		fallback: StraightLine{},
	}
	r.Register(StraightLine{})
	r.Register(DecliningBalance{})
	return r
}

// Register adds or replaces a method.
func (r *Registry) Register(m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Name()] = m
}

// Resolve returns the strategy for name. ok is false when the fallback was used.
func (r *Registry) Resolve(name MethodName) (m Method, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, found := r.methods[name]; found {
		return m, true
	}
	return r.fallback, false
}

// Known reports whether name has a registered strategy.
func (r *Registry) Known(name MethodName) bool {
	_, ok := r.Resolve(name)
	return ok
}
