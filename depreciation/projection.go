/*
projection.go - Forward schedule projection

PURPOSE:
  Answers "what will this asset's schedule look like if every coming period
  is posted?" without writing anything. The projection repeats the same
  per-period calculation the engine uses, feeding each closing value back
  in as the next opening value.

RULES:
  - Periods before the in-service date produce no entry but count toward
    the horizon.
  - Projection stops at salvage (or at the horizon, whichever comes first).
  - Entries have no ID and no creation time.

SEE ALSO:
  - calculator.go: Per-period calculation
  - engine.go: The posting path the projection mirrors
*/
package depreciation

import (
	"fmt"

	"github.com/warp/depreciation-engine/generic"
)

// MaxProjectionPeriods bounds a single projection.
const MaxProjectionPeriods = 600

// Projection is an asset's expected future schedule.
type Projection struct {
	AssetID generic.AssetID
	From    generic.Period
	Entries []ScheduleEntry

	// FullyDepreciatedIn is the period whose posting reaches salvage, nil
	// when salvage is not reached within the horizon.
	FullyDepreciatedIn *generic.Period
}

// Project simulates up to periods postings starting at from.
func (c *Calculator) Project(a Asset, from generic.Period, periods int) (Projection, error) {
	if periods <= 0 || periods > MaxProjectionPeriods {
		return Projection{}, fmt.Errorf("%w: periods must be in [1, %d]", generic.ErrInvalidPeriod, MaxProjectionPeriods)
	}
	if err := from.Validate(); err != nil {
		return Projection{}, err
	}

	if err := Validate(a); err != nil {
		return Projection{}, err
	}

	proj := Projection{AssetID: a.ID, From: from}
	if a.FullyDepreciated() {
		return proj, nil
	}

	period := from
	for i := 0; i < periods; i++ {
		if !a.InServiceDate.IsZero() && a.InServiceDate.After(period.End) {
			period = period.NextPeriod()
			continue
		}

		res := c.Compute(a.Method, InputFor(a))
		proj.Entries = append(proj.Entries, ScheduleEntry{
			AssetID:                 a.ID,
			TenantID:                a.TenantID,
			PeriodType:              period.Type,
			PeriodStart:             period.Start,
			PeriodEnd:               period.End,
			OpeningValue:            res.Opening,
			DepreciationAmount:      res.Amount,
			AccumulatedDepreciation: res.Accumulated,
			ClosingValue:            res.Closing,
			Method:                  res.Method,
		})
		a.CurrentBookValue = res.Closing

		if a.FullyDepreciated() {
			p := period
			proj.FullyDepreciatedIn = &p
			break
		}
		period = period.NextPeriod()
	}
	return proj, nil
}
