/*
Package sqlite provides a SQLite-backed implementation of the depreciation
store interfaces.

PURPOSE:
  Implements depreciation.Store, Tx, TenantLocker, RunRecorder, Reader and
  AssetWriter using SQLite. store/postgres implements the same contracts for
  PostgreSQL with dialect differences only.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on depreciation_schedules except VoidEntry, which
    stamps deleted_at for the correction process
  - No DELETE statements on depreciation_schedules outside Reset

KEY TABLES:
  assets:                 Asset parameters and the running book value
  depreciation_schedules: Immutable ledger, one row per asset per period
  depreciation_runs:      Audit of each engine invocation

INDEXES:
  - idx_schedules_unique_period: Enforces one live entry per
    (asset_id, period_type, period_start). Partial on deleted_at IS NULL so
    a voided entry can be re-posted.
  - idx_assets_tenant_status: Candidate read (hot path)

AMOUNTS:
  Currency amounts are stored as TEXT with exactly two decimals
  (generic.FormatCents), so the book value compare-and-set compares the
  canonical representation.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Tenant locks are held in process;
  the unique index still turns a lost race into generic.ErrAlreadyPosted.

USAGE:
  store, err := sqlite.New("./data/depreciation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := depreciation.NewEngine(store, calc)

SEE ALSO:
  - depreciation/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

// Store implements the depreciation storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	locksMu sync.Mutex
	locks   map[generic.TenantID]chan struct{}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, locks: make(map[generic.TenantID]chan struct{})}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Assets (owned by asset management; the engine writes current_book_value only)
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		purchase_price TEXT,
		salvage_value TEXT NOT NULL DEFAULT '0.00',
		useful_life_years INTEGER NOT NULL DEFAULT 0,
		depreciation_method TEXT,
		depreciation_rate TEXT,
		in_service_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		current_book_value TEXT NOT NULL,
		deleted_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_tenant_status
		ON assets(tenant_id, status) WHERE deleted_at IS NULL;

	-- Depreciation schedules (append-only ledger)
	CREATE TABLE IF NOT EXISTS depreciation_schedules (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		tenant_id TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		opening_value TEXT NOT NULL,
		depreciation_amount TEXT NOT NULL,
		accumulated_depreciation TEXT NOT NULL,
		closing_value TEXT NOT NULL,
		method TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- CRITICAL: one live entry per asset per period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_unique_period
		ON depreciation_schedules(asset_id, period_type, period_start)
		WHERE deleted_at IS NULL;

	-- Idempotency read for a whole tenant
	CREATE INDEX IF NOT EXISTS idx_schedules_tenant_period
		ON depreciation_schedules(tenant_id, period_type, period_start);

	-- Run audit
	CREATE TABLE IF NOT EXISTS depreciation_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		considered INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_tenant_started
		ON depreciation_runs(tenant_id, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ASSETS
// =============================================================================

const assetColumns = `id, tenant_id, name, purchase_price, salvage_value, useful_life_years,
	depreciation_method, depreciation_rate, in_service_date, status,
	current_book_value, deleted_at, created_at`

// SaveAsset inserts or replaces an asset. Once the asset has a live ledger
// entry its current_book_value belongs to the engine and is left unchanged.
func (s *Store) SaveAsset(ctx context.Context, a depreciation.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			purchase_price = excluded.purchase_price,
			salvage_value = excluded.salvage_value,
			useful_life_years = excluded.useful_life_years,
			depreciation_method = excluded.depreciation_method,
			depreciation_rate = excluded.depreciation_rate,
			in_service_date = excluded.in_service_date,
			status = excluded.status,
			current_book_value = CASE
				WHEN EXISTS (
					SELECT 1 FROM depreciation_schedules
					WHERE asset_id = excluded.id AND deleted_at IS NULL
				) THEN assets.current_book_value
				ELSE excluded.current_book_value
			END,
			deleted_at = excluded.deleted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.TenantID,
		a.Name,
		nullCents(a.PurchasePrice),
		generic.FormatCents(a.SalvageValue),
		a.UsefulLifeYears,
		nullString(string(a.Method)),
		nullDecimal(a.RatePct),
		nullString(a.InServiceDate.String()),
		a.Status,
		generic.FormatCents(a.CurrentBookValue),
		nullTime(a.DeletedAt),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

// GetAsset returns the asset or nil when it does not exist.
func (s *Store) GetAsset(ctx context.Context, id generic.AssetID) (*depreciation.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssets returns every asset of a tenant, including inactive ones.
func (s *Store) ListAssets(ctx context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets WHERE tenant_id = ? ORDER BY id`, tenantID)
}

// ListActiveAssets returns the tenant's active, non-deleted assets.
func (s *Store) ListActiveAssets(ctx context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE tenant_id = ? AND status = ? AND deleted_at IS NULL
		ORDER BY id
	`, tenantID, depreciation.StatusActive)
}

// ListTenants returns every tenant that owns at least one asset.
func (s *Store) ListTenants(ctx context.Context) ([]generic.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM assets ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []generic.TenantID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, generic.TenantID(id))
	}
	return out, rows.Err()
}

func (s *Store) queryAssets(ctx context.Context, query string, args ...any) ([]depreciation.Asset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var out []depreciation.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanAsset decodes one row. A column that does not parse is recorded in
// Asset.DecodeErr so the run can fail that asset alone.
func scanAsset(row scanner) (depreciation.Asset, error) {
	var (
		a                                   depreciation.Asset
		id, tenantID, status, salvage, book string
		createdAt                           string
		price, method, rate, inService, dAt sql.NullString
	)
	err := row.Scan(&id, &tenantID, &a.Name, &price, &salvage, &a.UsefulLifeYears,
		&method, &rate, &inService, &status, &book, &dAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan asset: %w", err)
	}

	a.ID = generic.AssetID(id)
	a.TenantID = generic.TenantID(tenantID)
	dec := depreciation.AssetDecoder{ID: a.ID}
	a.PurchasePrice = dec.NullAmount("purchase_price", price.String, price.Valid)
	a.SalvageValue = dec.Amount("salvage_value", salvage)
	a.Method = depreciation.MethodName(method.String)
	a.RatePct = dec.NullAmount("depreciation_rate", rate.String, rate.Valid)
	a.InServiceDate = dec.Date("in_service_date", inService.String, inService.Valid)
	a.Status = depreciation.AssetStatus(status)
	a.CurrentBookValue = dec.Amount("current_book_value", book)
	a.DeletedAt = parseNullTime(dAt)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.DecodeErr = dec.Err
	return a, nil
}

// =============================================================================
// LEDGER
// =============================================================================

const entryColumns = `id, asset_id, tenant_id, period_type, period_start, period_end,
	opening_value, depreciation_amount, accumulated_depreciation, closing_value,
	method, created_at, deleted_at`

// PostedAssetIDs returns the assets with a live entry for the period.
func (s *Store) PostedAssetIDs(ctx context.Context, tenantID generic.TenantID, period generic.Period) (map[generic.AssetID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id FROM depreciation_schedules
		WHERE tenant_id = ? AND period_type = ? AND period_start = ? AND deleted_at IS NULL
	`, tenantID, period.Type, period.Start.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query posted entries: %w", err)
	}
	defer rows.Close()

	out := make(map[generic.AssetID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[generic.AssetID(id)] = true
	}
	return out, rows.Err()
}

// ListEntries returns all entries of an asset, voided ones included, ordered
// by period.
func (s *Store) ListEntries(ctx context.Context, assetID generic.AssetID) ([]depreciation.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM depreciation_schedules
		WHERE asset_id = ?
		ORDER BY period_start, created_at
	`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []depreciation.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VoidEntry soft-deletes an entry, as the out-of-band correction process does.
func (s *Store) VoidEntry(ctx context.Context, assetID generic.AssetID, id generic.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE depreciation_schedules SET deleted_at = ?
		WHERE id = ? AND asset_id = ? AND deleted_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339), id, assetID)
	if err != nil {
		return fmt.Errorf("failed to void entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrAssetNotFound
	}
	return nil
}

func scanEntry(row scanner) (depreciation.ScheduleEntry, error) {
	var (
		e                                                  depreciation.ScheduleEntry
		id, assetID, tenantID, periodType, start, end      string
		opening, amount, accumulated, closing, method, cAt string
		dAt                                                sql.NullString
	)
	err := row.Scan(&id, &assetID, &tenantID, &periodType, &start, &end,
		&opening, &amount, &accumulated, &closing, &method, &cAt, &dAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ID = generic.EntryID(id)
	e.AssetID = generic.AssetID(assetID)
	e.TenantID = generic.TenantID(tenantID)
	e.PeriodType = generic.PeriodType(periodType)
	if e.PeriodStart, err = generic.ParseDate(start); err != nil {
		return e, fmt.Errorf("entry %s: period_start: %w", id, err)
	}
	if e.PeriodEnd, err = generic.ParseDate(end); err != nil {
		return e, fmt.Errorf("entry %s: period_end: %w", id, err)
	}
	amounts := []struct {
		field string
		raw   string
		dst   *decimal.Decimal
	}{
		{"opening_value", opening, &e.OpeningValue},
		{"depreciation_amount", amount, &e.DepreciationAmount},
		{"accumulated_depreciation", accumulated, &e.AccumulatedDepreciation},
		{"closing_value", closing, &e.ClosingValue},
	}
	for _, f := range amounts {
		if *f.dst, err = generic.ParseAmount(f.raw); err != nil {
			return e, fmt.Errorf("entry %s: %s: %w", id, f.field, err)
		}
	}
	e.Method = depreciation.MethodName(method)
	e.CreatedAt, _ = time.Parse(time.RFC3339, cAt)
	e.DeletedAt = parseNullTime(dAt)
	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (depreciation.Tx interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(depreciation.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendEntry(ctx context.Context, e depreciation.ScheduleEntry) error {
	query := `
		INSERT INTO depreciation_schedules (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := ts.tx.ExecContext(ctx, query,
		e.ID,
		e.AssetID,
		e.TenantID,
		e.PeriodType,
		e.PeriodStart.String(),
		e.PeriodEnd.String(),
		generic.FormatCents(e.OpeningValue),
		generic.FormatCents(e.DepreciationAmount),
		generic.FormatCents(e.AccumulatedDepreciation),
		generic.FormatCents(e.ClosingValue),
		e.Method,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrAlreadyPosted
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateBookValue(ctx context.Context, assetID generic.AssetID, expected, next decimal.Decimal) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE assets SET current_book_value = ?
		WHERE id = ? AND current_book_value = ?
	`, generic.FormatCents(next), assetID, generic.FormatCents(expected))
	if err != nil {
		return fmt.Errorf("failed to update book value: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = ts.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE id = ?`, assetID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return generic.ErrAssetNotFound
	}
	return generic.ErrConcurrentModification
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(ctx context.Context, run depreciation.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO depreciation_runs
		(id, tenant_id, period_type, period_start, period_end, status,
		 considered, processed, skipped, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			considered = excluded.considered,
			processed = excluded.processed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.TenantID,
		run.PeriodType,
		run.PeriodStart.String(),
		run.PeriodEnd.String(),
		run.Status,
		run.Considered,
		run.Processed,
		run.Skipped,
		run.Failed,
		nullString(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339),
		nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first. An empty tenant returns all runs.
func (s *Store) ListRuns(ctx context.Context, tenantID generic.TenantID) ([]depreciation.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, period_type, period_start, period_end, status,
		       considered, processed, skipped, failed, error, started_at, completed_at
		FROM depreciation_runs
	`
	var args []any
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY started_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []depreciation.RunRecord
	for rows.Next() {
		var (
			r                                          depreciation.RunRecord
			id, tenant, periodType, start, end, status string
			startedAt                                  string
			runErr, completedAt                        sql.NullString
		)
		if err := rows.Scan(&id, &tenant, &periodType, &start, &end, &status,
			&r.Considered, &r.Processed, &r.Skipped, &r.Failed, &runErr, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.ID = generic.RunID(id)
		r.TenantID = generic.TenantID(tenant)
		r.PeriodType = generic.PeriodType(periodType)
		if r.PeriodStart, err = generic.ParseDate(start); err != nil {
			return nil, fmt.Errorf("run %s: period_start: %w", id, err)
		}
		if r.PeriodEnd, err = generic.ParseDate(end); err != nil {
			return nil, fmt.Errorf("run %s: period_end: %w", id, err)
		}
		r.Status = depreciation.RunStatus(status)
		r.Error = runErr.String
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.CompletedAt = parseNullTime(completedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// TENANT LOCKS
// =============================================================================

// LockTenant holds an in-process per-tenant lock until unlock is called.
// SQLite serializes writers anyway; this keeps overlapping runs from
// interleaving their guard reads.
func (s *Store) LockTenant(ctx context.Context, tenantID generic.TenantID) (func(), error) {
	s.locksMu.Lock()
	sem, ok := s.locks[tenantID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[tenantID] = sem
	}
	s.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"depreciation_schedules", "depreciation_runs", "assets"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullCents(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: generic.FormatCents(d.Decimal), Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
