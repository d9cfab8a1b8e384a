package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

func TestParseAsset_StraightLinePreset(t *testing.T) {
	f := NewAssetFactory()

	a, err := f.ParseAsset(StraightLineJSON("acme", "truck-01", "Truck", "12000", "0", 5, "2024-06-01"))
	require.NoError(t, err)

	assert.Equal(t, generic.AssetID("truck-01"), a.ID)
	assert.Equal(t, generic.TenantID("acme"), a.TenantID)
	assert.Equal(t, depreciation.MethodStraightLine, a.Method)
	assert.Equal(t, depreciation.StatusActive, a.Status)
	assert.Equal(t, 5, a.UsefulLifeYears)
	require.True(t, a.PurchasePrice.Valid)
	assert.Equal(t, "12000.00", generic.FormatCents(a.PurchasePrice.Decimal))
	assert.Equal(t, "12000.00", generic.FormatCents(a.CurrentBookValue), "book value defaults to purchase price")
	assert.Equal(t, generic.NewTimePoint(2024, time.June, 1).String(), a.InServiceDate.String())
	assert.False(t, a.RatePct.Valid)
}

func TestParseAsset_DecliningBalanceRate(t *testing.T) {
	f := NewAssetFactory()

	withRate, err := f.ParseAsset(DecliningBalanceJSON("acme", "press", "Press", "10000", "500", 5, "20", "2024-01-01"))
	require.NoError(t, err)
	require.True(t, withRate.RatePct.Valid)
	assert.Equal(t, "20", withRate.RatePct.Decimal.String())

	noRate, err := f.ParseAsset(DecliningBalanceJSON("acme", "press", "Press", "10000", "500", 5, "", "2024-01-01"))
	require.NoError(t, err)
	assert.False(t, noRate.RatePct.Valid)
}

func TestParseAsset_NumbersAndRounding(t *testing.T) {
	f := NewAssetFactory()

	a, err := f.ParseAsset(`{
		"id": "a1", "tenant_id": "acme",
		"purchase_price": 1000.005, "salvage_value": 10.004,
		"useful_life_years": 3, "depreciation_method": "Straight-Line",
		"current_book_value": "900.125"
	}`)
	require.NoError(t, err)

	assert.Equal(t, "1000.01", generic.FormatCents(a.PurchasePrice.Decimal))
	assert.Equal(t, "10.00", generic.FormatCents(a.SalvageValue))
	assert.Equal(t, "900.13", generic.FormatCents(a.CurrentBookValue))
	assert.Equal(t, depreciation.MethodStraightLine, a.Method)
	assert.True(t, a.InServiceDate.IsZero())
}

func TestParseAsset_UnknownMethodKept(t *testing.T) {
	a, err := NewAssetFactory().ParseAsset(`{"id":"a1","tenant_id":"acme","purchase_price":"100","useful_life_years":1,"depreciation_method":"units_of_production"}`)
	require.NoError(t, err)
	assert.Equal(t, depreciation.MethodName("units_of_production"), a.Method)
}

func TestParseAsset_MissingPriceIsNull(t *testing.T) {
	a, err := NewAssetFactory().ParseAsset(`{"id":"a1","tenant_id":"acme","useful_life_years":1}`)
	require.NoError(t, err)
	assert.False(t, a.PurchasePrice.Valid)
	assert.True(t, a.CurrentBookValue.IsZero())
	assert.False(t, depreciation.IsCandidate(a))
}

func TestParseAsset_Errors(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"malformed", `{"id":`},
		{"missing id", `{"tenant_id":"acme"}`},
		{"missing tenant", `{"id":"a1"}`},
		{"bad status", `{"id":"a1","tenant_id":"acme","status":"sold"}`},
		{"bad date", `{"id":"a1","tenant_id":"acme","in_service_date":"01/06/2024"}`},
		{"bad amount", `{"id":"a1","tenant_id":"acme","purchase_price":"twelve"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAssetFactory().ParseAsset(tc.json)
			assert.Error(t, err)
		})
	}
}

func TestParseAssets_ReportsIndex(t *testing.T) {
	_, err := NewAssetFactory().ParseAssets(`[{"id":"a1","tenant_id":"acme"},{"id":"a2"}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset 1")
	assert.ErrorIs(t, err, generic.ErrTenantRequired)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := NewAssetFactory()
	original, err := f.ParseAsset(WithBookValueJSON("acme", "laptop", "Laptop", "3700", "100", 1, "straight_line", "105"))
	require.NoError(t, err)

	again, err := f.FromJSON(f.ToJSON(original))
	require.NoError(t, err)

	assert.Equal(t, original.ID, again.ID)
	assert.True(t, original.PurchasePrice.Decimal.Equal(again.PurchasePrice.Decimal))
	assert.True(t, original.CurrentBookValue.Equal(again.CurrentBookValue))
	assert.Equal(t, "105.00", generic.FormatCents(again.CurrentBookValue))
	assert.Equal(t, original.Method, again.Method)
}
