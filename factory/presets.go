package factory

import "fmt"

// =============================================================================
// PRESET ASSETS
// =============================================================================
//
// JSON builders for common asset shapes. They return JSON rather than
// structs so the same definitions can be posted to the API or stored as
// seed files.

// StraightLineJSON returns a straight-line asset bought at price with no
// depreciation posted yet.
func StraightLineJSON(tenant, id, name, price, salvage string, lifeYears int, inService string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"tenant_id": %q,
		"name": %q,
		"purchase_price": %q,
		"salvage_value": %q,
		"useful_life_years": %d,
		"depreciation_method": "straight_line",
		"in_service_date": %q
	}`, id, tenant, name, price, salvage, lifeYears, inService)
}

// DecliningBalanceJSON returns a declining-balance asset with an annual rate
// in percent. An empty rate leaves the rate unset (the life-based rate applies).
func DecliningBalanceJSON(tenant, id, name, price, salvage string, lifeYears int, ratePct, inService string) string {
	rate := ""
	if ratePct != "" {
		rate = fmt.Sprintf(`"depreciation_rate": %q,`, ratePct)
	}
	return fmt.Sprintf(`{
		"id": %q,
		"tenant_id": %q,
		"name": %q,
		"purchase_price": %q,
		"salvage_value": %q,
		"useful_life_years": %d,
		"depreciation_method": "declining_balance",
		%s
		"in_service_date": %q
	}`, id, tenant, name, price, salvage, lifeYears, rate, inService)
}

// WithBookValueJSON returns an asset whose book value has already been
// partially depreciated.
func WithBookValueJSON(tenant, id, name, price, salvage string, lifeYears int, method, bookValue string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"tenant_id": %q,
		"name": %q,
		"purchase_price": %q,
		"salvage_value": %q,
		"useful_life_years": %d,
		"depreciation_method": %q,
		"current_book_value": %q
	}`, id, tenant, name, price, salvage, lifeYears, method, bookValue)
}
