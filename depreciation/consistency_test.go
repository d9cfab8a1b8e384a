package depreciation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

func entry(id string, month time.Month, opening, amount, closing, accumulated string) depreciation.ScheduleEntry {
	p := generic.MonthlyPeriods.PeriodFor(generic.NewTimePoint(2025, month, 1))
	return depreciation.ScheduleEntry{
		ID:                      generic.EntryID(id),
		AssetID:                 "asset-1",
		PeriodType:              p.Type,
		PeriodStart:             p.Start,
		PeriodEnd:               p.End,
		OpeningValue:            dec(opening),
		DepreciationAmount:      dec(amount),
		ClosingValue:            dec(closing),
		AccumulatedDepreciation: dec(accumulated),
		Method:                  depreciation.MethodStraightLine,
	}
}

func TestCheckAsset_ConsistentHistory(t *testing.T) {
	a := validAsset()
	a.CurrentBookValue = dec("11600")

	// Out of order on purpose.
	entries := []depreciation.ScheduleEntry{
		entry("e2", time.February, "11800", "200", "11600", "400"),
		entry("e1", time.January, "12000", "200", "11800", "200"),
	}

	assert.Empty(t, depreciation.CheckAsset(a, entries))
}

func TestCheckAsset_DetectsViolations(t *testing.T) {
	a := validAsset()
	a.SalvageValue = dec("11500")
	a.CurrentBookValue = dec("11800")

	entries := []depreciation.ScheduleEntry{
		entry("e1", time.January, "12000", "200", "11800", "200"),
		entry("e2", time.February, "11800", "200", "11700", "300"), // wrong closing
		entry("e3", time.March, "11700", "300", "11400", "600"),    // below salvage
		entry("e4", time.April, "11400", "0", "11400", "500"),      // accumulated off
	}

	codes := map[string][]generic.EntryID{}
	for _, v := range depreciation.CheckAsset(a, entries) {
		codes[v.Code] = append(codes[v.Code], v.EntryID)
	}

	assert.Equal(t, []generic.EntryID{"e2", "e4"}, codes["ledger_consistency"])
	assert.Equal(t, []generic.EntryID{"e3", "e4"}, codes["floor"])
	assert.Equal(t, []generic.EntryID{"e4"}, codes["synchronization"])
	assert.Empty(t, codes["monotonicity"])
	assert.Empty(t, codes["continuity"])
}

func TestCheckAsset_IgnoresVoidedEntries(t *testing.T) {
	a := validAsset()
	a.CurrentBookValue = dec("11800")

	voided := entry("e2", time.February, "11800", "200", "11600", "400")
	deletedAt := time.Now()
	voided.DeletedAt = &deletedAt

	violations := depreciation.CheckAsset(a, []depreciation.ScheduleEntry{
		entry("e1", time.January, "12000", "200", "11800", "200"),
		voided,
	})

	require.Empty(t, violations)
}

func TestCheckAsset_Monotonicity(t *testing.T) {
	a := validAsset()
	a.CurrentBookValue = dec("11900")

	violations := depreciation.CheckAsset(a, []depreciation.ScheduleEntry{
		entry("e1", time.January, "12000", "200", "11800", "200"),
		entry("e2", time.February, "11800", "-100", "11900", "100"),
	})

	require.Len(t, violations, 1)
	assert.Equal(t, "monotonicity", violations[0].Code)
	assert.Contains(t, violations[0].String(), "e2")
}

func TestCheckAsset_Continuity(t *testing.T) {
	// GIVEN: February opens at the purchase price instead of January's closing
	a := validAsset()
	a.CurrentBookValue = dec("11800")

	// WHEN: The chain is checked
	violations := depreciation.CheckAsset(a, []depreciation.ScheduleEntry{
		entry("e1", time.January, "12000", "200", "11800", "200"),
		entry("e2", time.February, "12000", "200", "11800", "200"),
	})

	// THEN: Only the broken link is reported
	require.Len(t, violations, 1)
	assert.Equal(t, "continuity", violations[0].Code)
	assert.Equal(t, generic.EntryID("e2"), violations[0].EntryID)
}
