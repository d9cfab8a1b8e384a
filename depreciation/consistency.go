package depreciation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// CONSISTENCY CHECKS - Ledger invariants observable from outside the engine
// =============================================================================

// Violation describes one broken invariant.
type Violation struct {
	Code    string // ledger_consistency, floor, synchronization, monotonicity, continuity
	EntryID generic.EntryID
	Message string
}

func (v Violation) String() string {
	if v.EntryID == "" {
		return v.Code + ": " + v.Message
	}
	return fmt.Sprintf("%s (%s): %s", v.Code, v.EntryID, v.Message)
}

// tolerance is one cent: amounts are compared "within currency rounding".
var tolerance = generic.OneCent

func within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// CheckAsset verifies an asset against its live schedule entries.
// Entries may be given in any order.
func CheckAsset(a Asset, entries []ScheduleEntry) []Violation {
	live := make([]ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if e.DeletedAt == nil {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].PeriodStart.Before(live[j].PeriodStart)
	})

	var out []Violation
	purchase := a.Purchase()

	for i, e := range live {
		if !e.ClosingValue.Equal(e.OpeningValue.Sub(e.DepreciationAmount)) {
			out = append(out, Violation{Code: "ledger_consistency", EntryID: e.ID,
				Message: fmt.Sprintf("closing %s != opening %s - amount %s", e.ClosingValue, e.OpeningValue, e.DepreciationAmount)})
		}
		if !within(e.ClosingValue.Add(e.AccumulatedDepreciation), purchase) {
			out = append(out, Violation{Code: "ledger_consistency", EntryID: e.ID,
				Message: fmt.Sprintf("closing %s + accumulated %s != purchase %s", e.ClosingValue, e.AccumulatedDepreciation, purchase)})
		}
		if e.ClosingValue.LessThan(a.SalvageValue) {
			out = append(out, Violation{Code: "floor", EntryID: e.ID,
				Message: fmt.Sprintf("closing %s below salvage %s", e.ClosingValue, a.SalvageValue)})
		}
		if i > 0 && !e.OpeningValue.Equal(live[i-1].ClosingValue) {
			out = append(out, Violation{Code: "continuity", EntryID: e.ID,
				Message: fmt.Sprintf("opening %s != previous closing %s", e.OpeningValue, live[i-1].ClosingValue)})
		}
		if i > 0 && e.ClosingValue.GreaterThan(live[i-1].ClosingValue) {
			out = append(out, Violation{Code: "monotonicity", EntryID: e.ID,
				Message: fmt.Sprintf("closing %s above previous closing %s", e.ClosingValue, live[i-1].ClosingValue)})
		}
	}

	if n := len(live); n > 0 && !a.CurrentBookValue.Equal(live[n-1].ClosingValue) {
		out = append(out, Violation{Code: "synchronization", EntryID: live[n-1].ID,
			Message: fmt.Sprintf("book value %s != latest closing %s", a.CurrentBookValue, live[n-1].ClosingValue)})
	}
	return out
}
