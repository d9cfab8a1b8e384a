/*
Package factory provides JSON to Go asset conversion.

PURPOSE:
  Converts JSON asset definitions into depreciation.Asset values. Demo
  scenarios, seeding scripts and tests describe assets in JSON and the
  factory produces normalized Go structs (amounts rounded to cents, dates
  parsed, defaults applied).

JSON SCHEMA:
  {
    "id": "truck-01",
    "tenant_id": "acme",
    "name": "Delivery truck",
    "purchase_price": "12000.00",
    "salvage_value": "0",
    "useful_life_years": 5,
    "depreciation_method": "straight_line",
    "depreciation_rate": 20,
    "in_service_date": "2024-06-01",
    "status": "active",
    "current_book_value": "12000.00"
  }

  Amounts may be JSON numbers or strings. purchase_price,
  depreciation_rate, depreciation_method and in_service_date are optional.

DEFAULTS:
  - status: active
  - salvage_value: 0
  - current_book_value: purchase_price (a freshly acquired asset)

USAGE:
  f := NewAssetFactory()
  asset, err := f.ParseAsset(jsonString)

SEE ALSO:
  - depreciation/types.go: Asset type definition
  - factory/presets.go: Ready-made asset definitions
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// AssetJSON is the JSON representation of an asset.
type AssetJSON struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	Name             string           `json:"name,omitempty"`
	PurchasePrice    *decimal.Decimal `json:"purchase_price,omitempty"`
	SalvageValue     *decimal.Decimal `json:"salvage_value,omitempty"`
	UsefulLifeYears  int              `json:"useful_life_years"`
	Method           string           `json:"depreciation_method,omitempty"`
	RatePct          *decimal.Decimal `json:"depreciation_rate,omitempty"`
	InServiceDate    string           `json:"in_service_date,omitempty"`
	Status           string           `json:"status,omitempty"`
	CurrentBookValue *decimal.Decimal `json:"current_book_value,omitempty"`
}

// =============================================================================
// ASSET FACTORY
// =============================================================================

// AssetFactory converts JSON assets to Go structs.
type AssetFactory struct {
	// Rounding applied to every currency amount read from JSON.
	Rounding generic.RoundingMode
}

// NewAssetFactory creates a new asset factory.
func NewAssetFactory() *AssetFactory {
	return &AssetFactory{Rounding: generic.RoundHalfAwayFromZero}
}

// ParseAsset parses a JSON object into an Asset.
func (f *AssetFactory) ParseAsset(jsonStr string) (depreciation.Asset, error) {
	var aj AssetJSON
	if err := json.Unmarshal([]byte(jsonStr), &aj); err != nil {
		return depreciation.Asset{}, fmt.Errorf("failed to parse asset JSON: %w", err)
	}
	return f.FromJSON(aj)
}

// ParseAssets parses a JSON array of assets.
func (f *AssetFactory) ParseAssets(jsonStr string) ([]depreciation.Asset, error) {
	var list []AssetJSON
	if err := json.Unmarshal([]byte(jsonStr), &list); err != nil {
		return nil, fmt.Errorf("failed to parse assets JSON: %w", err)
	}

	assets := make([]depreciation.Asset, 0, len(list))
	for i, aj := range list {
		a, err := f.FromJSON(aj)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// FromJSON converts AssetJSON to depreciation.Asset.
func (f *AssetFactory) FromJSON(aj AssetJSON) (depreciation.Asset, error) {
	if aj.ID == "" {
		return depreciation.Asset{}, fmt.Errorf("asset id is required")
	}
	if aj.TenantID == "" {
		return depreciation.Asset{}, fmt.Errorf("asset %s: %w", aj.ID, generic.ErrTenantRequired)
	}

	status, err := parseStatus(aj.Status)
	if err != nil {
		return depreciation.Asset{}, fmt.Errorf("asset %s: %w", aj.ID, err)
	}

	a := depreciation.Asset{
		ID:              generic.AssetID(aj.ID),
		TenantID:        generic.TenantID(aj.TenantID),
		Name:            aj.Name,
		UsefulLifeYears: aj.UsefulLifeYears,
		Method:          parseMethod(aj.Method),
		Status:          status,
		SalvageValue:    decimal.Zero,
	}

	if aj.PurchasePrice != nil {
		a.PurchasePrice = decimal.NewNullDecimal(f.Rounding.Round(*aj.PurchasePrice))
	}
	if aj.SalvageValue != nil {
		a.SalvageValue = f.Rounding.Round(*aj.SalvageValue)
	}
	if aj.RatePct != nil {
		a.RatePct = decimal.NewNullDecimal(*aj.RatePct)
	}

	switch {
	case aj.CurrentBookValue != nil:
		a.CurrentBookValue = f.Rounding.Round(*aj.CurrentBookValue)
	case a.PurchasePrice.Valid:
		a.CurrentBookValue = a.PurchasePrice.Decimal
	}

	if aj.InServiceDate != "" {
		d, err := generic.ParseDate(aj.InServiceDate)
		if err != nil {
			return depreciation.Asset{}, fmt.Errorf("asset %s: invalid in_service_date: %w", aj.ID, err)
		}
		a.InServiceDate = d
	}

	return a, nil
}

// ToJSON converts an Asset to AssetJSON.
func (f *AssetFactory) ToJSON(a depreciation.Asset) AssetJSON {
	salvage := a.SalvageValue
	book := a.CurrentBookValue
	aj := AssetJSON{
		ID:               string(a.ID),
		TenantID:         string(a.TenantID),
		Name:             a.Name,
		SalvageValue:     &salvage,
		UsefulLifeYears:  a.UsefulLifeYears,
		Method:           string(a.Method),
		InServiceDate:    a.InServiceDate.String(),
		Status:           string(a.Status),
		CurrentBookValue: &book,
	}
	if a.PurchasePrice.Valid {
		p := a.PurchasePrice.Decimal
		aj.PurchasePrice = &p
	}
	if a.RatePct.Valid {
		r := a.RatePct.Decimal
		aj.RatePct = &r
	}
	return aj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseStatus(s string) (depreciation.AssetStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return depreciation.StatusActive, nil
	case "inactive":
		return depreciation.StatusInactive, nil
	case "disposed":
		return depreciation.StatusDisposed, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// parseMethod normalizes the method name. Unknown names are kept so the
// engine can apply (and report) its straight-line fallback.
func parseMethod(s string) depreciation.MethodName {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "straight-line", "straightline", "sl":
		return depreciation.MethodStraightLine
	case "declining-balance", "decliningbalance", "db":
		return depreciation.MethodDecliningBalance
	default:
		return depreciation.MethodName(s)
	}
}
