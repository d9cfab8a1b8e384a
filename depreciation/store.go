/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the read/write contracts the engine needs from the asset store and
  the ledger store. Implementations live under store/ (memory, sqlite,
  postgres).

KEY INTERFACES:
  Store:        What a run needs (candidate read, idempotency read, posting tx)
  Tx:           Writes allowed inside one asset's posting transaction
  TenantLocker: Optional per-tenant exclusion for the duration of a run
  RunRecorder:  Optional audit of run outcomes
  Reader:       Read-only views for API consumers

POSTING CONTRACT:
  One asset = one transaction:
    1. AppendEntry (fails with generic.ErrAlreadyPosted on the unique key)
    2. UpdateBookValue (compare-and-set from the entry's opening value)
  Either both are committed or neither is. No partial ledger rows.

APPEND-ONLY CONTRACT:
  Schedule entries are never updated or deleted by this engine.

SEE ALSO:
  - engine.go: Uses these interfaces
  - store/sqlite/sqlite.go: SQLite implementation
*/
package depreciation

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/generic"
)

// Store is the persistence needed by a depreciation run.
type Store interface {
	// ListActiveAssets returns the tenant's active, non-deleted assets.
	ListActiveAssets(ctx context.Context, tenantID generic.TenantID) ([]Asset, error)

	// PostedAssetIDs returns the assets that have a live entry for the period.
	PostedAssetIDs(ctx context.Context, tenantID generic.TenantID, period generic.Period) (map[generic.AssetID]bool, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write surface inside a posting transaction.
type Tx interface {
	// AppendEntry persists a schedule entry. Returns generic.ErrAlreadyPosted
	// if a live entry exists for the same asset, period type and start.
	AppendEntry(ctx context.Context, e ScheduleEntry) error

	// UpdateBookValue sets the asset's book value to next if it still equals
	// expected. Returns generic.ErrConcurrentModification otherwise.
	UpdateBookValue(ctx context.Context, assetID generic.AssetID, expected, next decimal.Decimal) error
}

// TenantLocker serializes runs for one tenant.
type TenantLocker interface {
	// LockTenant blocks until the tenant lock is held. The returned func
	// releases it.
	LockTenant(ctx context.Context, tenantID generic.TenantID) (unlock func(), err error)
}

// RunRecorder persists run records.
type RunRecorder interface {
	SaveRun(ctx context.Context, run RunRecord) error
}

// Reader exposes the ledger and asset store to observers.
type Reader interface {
	GetAsset(ctx context.Context, id generic.AssetID) (*Asset, error)
	ListAssets(ctx context.Context, tenantID generic.TenantID) ([]Asset, error)
	ListTenants(ctx context.Context) ([]generic.TenantID, error)
	ListEntries(ctx context.Context, assetID generic.AssetID) ([]ScheduleEntry, error)
	ListRuns(ctx context.Context, tenantID generic.TenantID) ([]RunRecord, error)
}

// AssetWriter is used by seeding and tests; asset CRUD is owned elsewhere.
type AssetWriter interface {
	SaveAsset(ctx context.Context, a Asset) error
}
