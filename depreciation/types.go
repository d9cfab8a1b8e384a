/*
Package depreciation posts periodic depreciation for fixed assets.

PURPOSE:
  Once per accounting period the engine selects the tenant's depreciable
  assets, drops the ones already posted for the period, computes each
  remaining asset's depreciation, appends one immutable schedule entry per
  asset and advances the asset's running book value.

KEY CONCEPTS IN THIS FILE (types.go):
  - Asset: the financial parameters read (and the book value written)
  - ScheduleEntry: one append-only ledger row per asset per period
  - RunSummary / RunRecord: what a run did, returned and persisted

INVARIANTS:
  - salvage_value <= current_book_value <= purchase_price
  - closing_value = opening_value - depreciation_amount
  - accumulated_depreciation = purchase_price - closing_value
  - asset.current_book_value = closing_value of its latest live entry

SEE ALSO:
  - calculator.go: Per-method depreciation amount
  - guard.go: Idempotency guard and per-asset skips
  - engine.go: Run controller
*/
package depreciation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// ASSET
// =============================================================================

// AssetStatus is the lifecycle status owned by the asset-management subsystem.
type AssetStatus string

const (
	StatusActive   AssetStatus = "active"
	StatusInactive AssetStatus = "inactive"
	StatusDisposed AssetStatus = "disposed"
)

// MethodName identifies a depreciation method. Empty means "not set".
type MethodName string

const (
	MethodStraightLine     MethodName = "straight_line"
	MethodDecliningBalance MethodName = "declining_balance"
)

// Asset is a fixed asset as seen by the engine.
type Asset struct {
	ID       generic.AssetID
	TenantID generic.TenantID
	Name     string

	// PurchasePrice is nullable in the asset store; unset assets are never
	// candidates.
	PurchasePrice   decimal.NullDecimal
	SalvageValue    decimal.Decimal
	UsefulLifeYears int
	Method          MethodName

	// RatePct is the annual declining-balance rate in percent (20 = 20%/year).
	RatePct decimal.NullDecimal

	// InServiceDate zero value means the asset has been in service since
	// acquisition.
	InServiceDate generic.TimePoint

	Status           AssetStatus
	CurrentBookValue decimal.Decimal

	DeletedAt *time.Time
	CreatedAt time.Time

	// DecodeErr is set by a store when a stored column could not be decoded.
	// The affected fields hold zero values and must not be used.
	DecodeErr error
}

// Purchase returns the purchase price, zero when unset.
func (a Asset) Purchase() decimal.Decimal {
	if !a.PurchasePrice.Valid {
		return decimal.Zero
	}
	return a.PurchasePrice.Decimal
}

// FullyDepreciated reports whether the book value has reached salvage.
func (a Asset) FullyDepreciated() bool {
	return a.CurrentBookValue.LessThanOrEqual(a.SalvageValue)
}

// =============================================================================
// SCHEDULE ENTRY - Append-only ledger row
// =============================================================================

// ScheduleEntry records one posting. Created exactly once per
// (AssetID, PeriodType, PeriodStart) and never mutated.
type ScheduleEntry struct {
	ID          generic.EntryID
	AssetID     generic.AssetID
	TenantID    generic.TenantID
	PeriodType  generic.PeriodType
	PeriodStart generic.TimePoint
	PeriodEnd   generic.TimePoint

	OpeningValue            decimal.Decimal
	DepreciationAmount      decimal.Decimal
	AccumulatedDepreciation decimal.Decimal
	ClosingValue            decimal.Decimal
	Method                  MethodName

	CreatedAt time.Time
	DeletedAt *time.Time // set only by the out-of-band correction process
}

// Period returns the period this entry was posted for.
func (e ScheduleEntry) Period() generic.Period {
	return generic.Period{Type: e.PeriodType, Start: e.PeriodStart, End: e.PeriodEnd}
}

// =============================================================================
// RUN SUMMARY - Returned to the invoker
// =============================================================================

// SkipReason explains why a candidate was not processed.
type SkipReason string

const (
	SkipAlreadyPosted    SkipReason = "already_posted"
	SkipNotInService     SkipReason = "not_in_service"
	SkipFullyDepreciated SkipReason = "fully_depreciated"
)

// AssetFailure is a per-asset error surfaced in the run summary. The asset
// stays eligible for the next run.
type AssetFailure struct {
	AssetID generic.AssetID
	Err     error
}

// RunSummary describes one invocation of the engine.
type RunSummary struct {
	RunID      generic.RunID
	TenantID   generic.TenantID
	Period     generic.Period
	Considered int
	Processed  int
	Skipped    map[SkipReason]int
	Failed     []AssetFailure
	Entries    []ScheduleEntry
}

// SkippedTotal returns the number of skipped candidates across all reasons.
func (s RunSummary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// =============================================================================
// RUN RECORD - Persisted audit of each invocation
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the stored form of a run.
type RunRecord struct {
	ID          generic.RunID
	TenantID    generic.TenantID
	PeriodType  generic.PeriodType
	PeriodStart generic.TimePoint
	PeriodEnd   generic.TimePoint
	Status      RunStatus
	Considered  int
	Processed   int
	Skipped     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
