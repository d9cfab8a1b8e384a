package depreciation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/generic"
)

// AssetDecoder converts stored asset columns, keeping the first column that
// failed as a *generic.ConfigError. Stores assign Err to Asset.DecodeErr.
type AssetDecoder struct {
	ID  generic.AssetID
	Err error
}

func (d *AssetDecoder) fail(field string, err error) {
	if d.Err == nil {
		d.Err = &generic.ConfigError{AssetID: d.ID, Field: field, Reason: err.Error()}
	}
}

// Amount decodes a required amount column.
func (d *AssetDecoder) Amount(field, s string) decimal.Decimal {
	v, err := generic.ParseAmount(s)
	if err != nil {
		d.fail(field, err)
	}
	return v
}

// NullAmount decodes a nullable amount column.
func (d *AssetDecoder) NullAmount(field, s string, valid bool) decimal.NullDecimal {
	if !valid {
		return decimal.NullDecimal{}
	}
	v, err := generic.ParseAmount(s)
	if err != nil {
		d.fail(field, err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}

// Date decodes a nullable YYYY-MM-DD column.
func (d *AssetDecoder) Date(field, s string, valid bool) generic.TimePoint {
	if !valid {
		return generic.TimePoint{}
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		d.fail(field, err)
	}
	return tp
}
