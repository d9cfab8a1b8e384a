package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The accounting interval a posting belongs to
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
//
// Examples:
//   - January 2025: 2025-01-01 - 2025-01-31
//   - February 2024: 2024-02-01 - 2024-02-29
type Period struct {
	Type  PeriodType
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Key identifies the period for idempotency: "monthly:2025-01-01".
// Two periods with the same type and start always produce the same key.
func (p Period) Key() string {
	return string(p.Type) + ":" + p.Start.String()
}

// Validate rejects periods whose end is before their start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodMonthly PeriodType = "monthly" // 1st - last day of the calendar month
)

// PeriodConfig resolves invocation times into periods.
type PeriodConfig struct {
	Type PeriodType

	// Location the invocation time is converted to before the calendar month
	// is taken. Nil means UTC.
	Location *time.Location
}

// MonthlyPeriods is the resolver used for depreciation postings.
var MonthlyPeriods = PeriodConfig{Type: PeriodMonthly}

// =============================================================================
// PERIOD RESOLVER - Determines which period an invocation falls into
// =============================================================================

// Resolve returns the period containing the invocation time at.
// Any two instants in the same calendar month resolve to the same Key.
func (pc PeriodConfig) Resolve(at time.Time) Period {
	loc := pc.Location
	if loc == nil {
		loc = time.UTC
	}
	return pc.PeriodFor(DayOf(at.In(loc)))
}

// PeriodFor returns the period that contains the given date
func (pc PeriodConfig) PeriodFor(date TimePoint) Period {
	switch pc.Type {
	case PeriodMonthly:
		return monthOf(date)
	default:
		return monthOf(date)
	}
}

func monthOf(date TimePoint) Period {
	return Period{
		Type:  PeriodMonthly,
		Start: StartOfMonth(date.Year(), date.Month()),
		End:   EndOfMonth(date.Year(), date.Month()),
	}
}

// NextPeriod returns the period following this one
func (p Period) NextPeriod() Period {
	return MonthlyPeriods.PeriodFor(p.End.AddDays(1))
}

// PreviousPeriod returns the period before this one
func (p Period) PreviousPeriod() Period {
	return MonthlyPeriods.PeriodFor(p.Start.AddDays(-1))
}
