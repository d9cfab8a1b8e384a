package depreciation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

var january = generic.MonthlyPeriods.Resolve(time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC))

func TestIsCandidate(t *testing.T) {
	deletedAt := time.Now()

	cases := []struct {
		name   string
		mutate func(*depreciation.Asset)
		want   bool
	}{
		{"active asset", func(a *depreciation.Asset) {}, true},
		{"inactive", func(a *depreciation.Asset) { a.Status = depreciation.StatusInactive }, false},
		{"disposed", func(a *depreciation.Asset) { a.Status = depreciation.StatusDisposed }, false},
		{"soft deleted", func(a *depreciation.Asset) { a.DeletedAt = &deletedAt }, false},
		{"no method", func(a *depreciation.Asset) { a.Method = "" }, false},
		{"unknown method still a candidate", func(a *depreciation.Asset) { a.Method = "units_of_production" }, true},
		{"null price", func(a *depreciation.Asset) { a.PurchasePrice = decimal.NullDecimal{} }, false},
		{"zero price", func(a *depreciation.Asset) { a.PurchasePrice = nullDec("0") }, false},
		{"undecodable row", func(a *depreciation.Asset) {
			a.PurchasePrice = decimal.NullDecimal{}
			a.DecodeErr = &generic.ConfigError{AssetID: a.ID, Field: "purchase_price", Reason: "malformed"}
		}, true},
		{"undecodable but inactive", func(a *depreciation.Asset) {
			a.Status = depreciation.StatusInactive
			a.DecodeErr = &generic.ConfigError{AssetID: a.ID, Field: "purchase_price", Reason: "malformed"}
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAsset()
			tc.mutate(&a)
			assert.Equal(t, tc.want, depreciation.IsCandidate(a))
		})
	}
}

func TestGuard(t *testing.T) {
	// GIVEN: One asset of each kind
	ready := validAsset()
	ready.ID = "ready"

	posted := validAsset()
	posted.ID = "posted"

	future := validAsset()
	future.ID = "future"
	future.InServiceDate = generic.NewTimePoint(2025, time.February, 28)

	startsInPeriod := validAsset()
	startsInPeriod.ID = "starts-in-period"
	startsInPeriod.InServiceDate = generic.NewTimePoint(2025, time.January, 31)

	exhausted := validAsset()
	exhausted.ID = "exhausted"
	exhausted.SalvageValue = dec("100")
	exhausted.CurrentBookValue = dec("100")

	// WHEN: Guarding January
	eligible, skipped := depreciation.Guard(
		[]depreciation.Asset{ready, posted, future, startsInPeriod, exhausted},
		map[generic.AssetID]bool{"posted": true},
		january,
	)

	// THEN: Only ready assets pass, each skip carries its reason
	var ids []generic.AssetID
	for _, a := range eligible {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []generic.AssetID{"ready", "starts-in-period"}, ids)
	assert.ElementsMatch(t, []depreciation.Skip{
		{AssetID: "posted", Reason: depreciation.SkipAlreadyPosted},
		{AssetID: "future", Reason: depreciation.SkipNotInService},
		{AssetID: "exhausted", Reason: depreciation.SkipFullyDepreciated},
	}, skipped)
}

func TestGuard_AlreadyPostedWinsOverOtherReasons(t *testing.T) {
	a := validAsset()
	a.CurrentBookValue = a.SalvageValue

	_, skipped := depreciation.Guard([]depreciation.Asset{a}, map[generic.AssetID]bool{a.ID: true}, january)

	assert.Equal(t, []depreciation.Skip{{AssetID: a.ID, Reason: depreciation.SkipAlreadyPosted}}, skipped)
}

func TestGuard_SalvageAbovePriceIsFullyDepreciated(t *testing.T) {
	// Misconfigured salvage never reaches validation: the asset is at its floor.
	a := validAsset()
	a.SalvageValue = dec("15000")

	eligible, skipped := depreciation.Guard([]depreciation.Asset{a}, nil, january)

	assert.Empty(t, eligible)
	assert.Equal(t, depreciation.SkipFullyDepreciated, skipped[0].Reason)
}
