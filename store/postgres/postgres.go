/*
Package postgres provides a PostgreSQL-backed implementation of the
depreciation store interfaces.

PURPOSE:
  Production counterpart of store/sqlite. Same contracts, same tables; the
  differences are the dialect ($n placeholders, NUMERIC and DATE columns)
  and how cross-process exclusion is obtained.

CONCURRENCY:
  - LockTenant takes a session-level advisory lock keyed by the tenant, so
    runs from several engine processes against one database serialize.
  - The partial unique index on depreciation_schedules is still the
    authoritative guard; a violation (SQLSTATE 23505) maps to
    generic.ErrAlreadyPosted.
  - The book value update is a compare-and-set on the opening value.

USAGE:
  db, err := postgres.NewDB("host=localhost port=5432 user=postgres dbname=assets sslmode=disable")
  if err != nil {
      log.Fatal(err)
  }
  store, err := postgres.NewStore(ctx, db)
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=assets sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Store implements the depreciation storage interfaces on PostgreSQL.
type Store struct {
	db *DB
}

// NewStore creates the schema if needed and returns a store.
func NewStore(ctx context.Context, db *DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		purchase_price NUMERIC(18,2),
		salvage_value NUMERIC(18,2) NOT NULL DEFAULT 0,
		useful_life_years INTEGER NOT NULL DEFAULT 0,
		depreciation_method TEXT,
		depreciation_rate NUMERIC,
		in_service_date DATE,
		status TEXT NOT NULL DEFAULT 'active',
		current_book_value NUMERIC(18,2) NOT NULL,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	-- rates keep every stored digit
	ALTER TABLE assets ALTER COLUMN depreciation_rate TYPE NUMERIC;

	CREATE INDEX IF NOT EXISTS idx_assets_tenant_status
		ON assets(tenant_id, status) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS depreciation_schedules (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		tenant_id TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		opening_value NUMERIC(18,2) NOT NULL,
		depreciation_amount NUMERIC(18,2) NOT NULL,
		accumulated_depreciation NUMERIC(18,2) NOT NULL,
		closing_value NUMERIC(18,2) NOT NULL,
		method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_unique_period
		ON depreciation_schedules(asset_id, period_type, period_start)
		WHERE deleted_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_schedules_tenant_period
		ON depreciation_schedules(tenant_id, period_type, period_start);

	CREATE TABLE IF NOT EXISTS depreciation_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		status TEXT NOT NULL,
		considered INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_runs_tenant_started
		ON depreciation_runs(tenant_id, started_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// ASSETS
// =============================================================================

const assetColumns = `id, tenant_id, name, purchase_price, salvage_value, useful_life_years,
	depreciation_method, depreciation_rate, in_service_date, status,
	current_book_value, deleted_at, created_at`

// SaveAsset inserts or updates an asset. An asset with a live ledger entry
// keeps its current_book_value; only the engine moves it.
func (s *Store) SaveAsset(ctx context.Context, a depreciation.Asset) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			purchase_price = EXCLUDED.purchase_price,
			salvage_value = EXCLUDED.salvage_value,
			useful_life_years = EXCLUDED.useful_life_years,
			depreciation_method = EXCLUDED.depreciation_method,
			depreciation_rate = EXCLUDED.depreciation_rate,
			in_service_date = EXCLUDED.in_service_date,
			status = EXCLUDED.status,
			current_book_value = CASE
				WHEN EXISTS (
					SELECT 1 FROM depreciation_schedules
					WHERE asset_id = EXCLUDED.id AND deleted_at IS NULL
				) THEN assets.current_book_value
				ELSE EXCLUDED.current_book_value
			END,
			deleted_at = EXCLUDED.deleted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(a.ID),
		string(a.TenantID),
		a.Name,
		nullCents(a.PurchasePrice),
		generic.FormatCents(a.SalvageValue),
		a.UsefulLifeYears,
		nullString(string(a.Method)),
		nullDecimal(a.RatePct),
		nullDate(a.InServiceDate),
		string(a.Status),
		generic.FormatCents(a.CurrentBookValue),
		nullTime(a.DeletedAt),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

// GetAsset returns the asset or nil when it does not exist.
func (s *Store) GetAsset(ctx context.Context, id generic.AssetID) (*depreciation.Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, string(id))
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssets returns every asset of a tenant.
func (s *Store) ListAssets(ctx context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	return s.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets WHERE tenant_id = $1 ORDER BY id`, string(tenantID))
}

// ListActiveAssets returns the tenant's active, non-deleted assets.
func (s *Store) ListActiveAssets(ctx context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	return s.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE tenant_id = $1 AND status = $2 AND deleted_at IS NULL
		ORDER BY id
	`, string(tenantID), string(depreciation.StatusActive))
}

// ListTenants returns every tenant that owns at least one asset.
func (s *Store) ListTenants(ctx context.Context) ([]generic.TenantID, error) {
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

func scanAsset(row scanner) (depreciation.Asset, error) {
	var (
		a                                   depreciation.Asset
		id, tenantID, status, salvage, book string
		price, method, rate                 sql.NullString
		inService, deletedAt                sql.NullTime
	)
	err := row.Scan(&id, &tenantID, &a.Name, &price, &salvage, &a.UsefulLifeYears,
		&method, &rate, &inService, &status, &book, &deletedAt, &a.CreatedAt)
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
	if inService.Valid {
		a.InServiceDate = generic.DayOf(inService.Time)
	}
	a.Status = depreciation.AssetStatus(status)
	a.CurrentBookValue = dec.Amount("current_book_value", book)
	a.DecodeErr = dec.Err
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id FROM depreciation_schedules
		WHERE tenant_id = $1 AND period_type = $2 AND period_start = $3 AND deleted_at IS NULL
	`, string(tenantID), string(period.Type), period.Start.String())
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

// ListEntries returns all entries of an asset ordered by period.
func (s *Store) ListEntries(ctx context.Context, assetID generic.AssetID) ([]depreciation.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM depreciation_schedules
		WHERE asset_id = $1
		ORDER BY period_start, created_at
	`, string(assetID))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []depreciation.ScheduleEntry
	for rows.Next() {
		var (
			e                                     depreciation.ScheduleEntry
			id, aID, tID, periodType, method      string
			opening, amount, accumulated, closing string
			start, end                            time.Time
			deletedAt                             sql.NullTime
		)
		if err := rows.Scan(&id, &aID, &tID, &periodType, &start, &end,
			&opening, &amount, &accumulated, &closing, &method, &e.CreatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.ID = generic.EntryID(id)
		e.AssetID = generic.AssetID(aID)
		e.TenantID = generic.TenantID(tID)
		e.PeriodType = generic.PeriodType(periodType)
		e.PeriodStart = generic.DayOf(start)
		e.PeriodEnd = generic.DayOf(end)
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
				return nil, fmt.Errorf("entry %s: %s: %w", id, f.field, err)
			}
		}
		e.Method = depreciation.MethodName(method)
		if deletedAt.Valid {
			e.DeletedAt = &deletedAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VoidEntry soft-deletes an entry.
func (s *Store) VoidEntry(ctx context.Context, assetID generic.AssetID, id generic.EntryID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE depreciation_schedules SET deleted_at = now()
		WHERE id = $1 AND asset_id = $2 AND deleted_at IS NULL
	`, string(id), string(assetID))
	if err != nil {
		return fmt.Errorf("failed to void entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrAssetNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(depreciation.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&txStore{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendEntry(ctx context.Context, e depreciation.ScheduleEntry) error {
	query := `
		INSERT INTO depreciation_schedules (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL)
	`
	_, err := ts.tx.ExecContext(ctx, query,
		string(e.ID),
		string(e.AssetID),
		string(e.TenantID),
		string(e.PeriodType),
		e.PeriodStart.String(),
		e.PeriodEnd.String(),
		e.OpeningValue.String(),
		e.DepreciationAmount.String(),
		e.AccumulatedDepreciation.String(),
		e.ClosingValue.String(),
		string(e.Method),
		e.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return generic.ErrAlreadyPosted
		}
		return fmt.Errorf("failed to insert schedule entry: %w", err)
	}
	return nil
}

func (ts *txStore) UpdateBookValue(ctx context.Context, assetID generic.AssetID, expected, next decimal.Decimal) error {
	var id string
	err := ts.tx.QueryRowContext(ctx, `
		UPDATE assets SET current_book_value = $1
		WHERE id = $2 AND current_book_value = $3
		RETURNING id
	`, next.String(), string(assetID), expected.String()).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update book value: %w", err)
	}

	var exists bool
	if err := ts.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE id = $1)`, string(assetID)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return generic.ErrAssetNotFound
	}
	return generic.ErrConcurrentModification
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(ctx context.Context, run depreciation.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO depreciation_runs
		(id, tenant_id, period_type, period_start, period_end, status,
		 considered, processed, skipped, failed, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			considered = EXCLUDED.considered,
			processed = EXCLUDED.processed,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`,
		string(run.ID),
		string(run.TenantID),
		string(run.PeriodType),
		run.PeriodStart.String(),
		run.PeriodEnd.String(),
		string(run.Status),
		run.Considered,
		run.Processed,
		run.Skipped,
		run.Failed,
		nullString(run.Error),
		run.StartedAt.UTC(),
		nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first. An empty tenant returns all runs.
func (s *Store) ListRuns(ctx context.Context, tenantID generic.TenantID) ([]depreciation.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, period_type, period_start, period_end, status,
		       considered, processed, skipped, failed, error, started_at, completed_at
		FROM depreciation_runs
		WHERE $1 = '' OR tenant_id = $1
		ORDER BY started_at DESC, id
	`, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []depreciation.RunRecord
	for rows.Next() {
		var (
			r                              depreciation.RunRecord
			id, tenant, periodType, status string
			start, end                     time.Time
			runErr                         sql.NullString
			completedAt                    sql.NullTime
		)
		if err := rows.Scan(&id, &tenant, &periodType, &start, &end, &status,
			&r.Considered, &r.Processed, &r.Skipped, &r.Failed, &runErr, &r.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.ID = generic.RunID(id)
		r.TenantID = generic.TenantID(tenant)
		r.PeriodType = generic.PeriodType(periodType)
		r.PeriodStart = generic.DayOf(start)
		r.PeriodEnd = generic.DayOf(end)
		r.Status = depreciation.RunStatus(status)
		r.Error = runErr.String
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// TENANT LOCKS
// =============================================================================

// LockTenant takes a session advisory lock for the tenant on a dedicated
// connection. The returned func releases the lock and the connection.
func (s *Store) LockTenant(ctx context.Context, tenantID generic.TenantID) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, string(tenantID)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to lock tenant: %w", err)
	}

	return func() {
		conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, string(tenantID))
		conn.Close()
	}, nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE depreciation_schedules, depreciation_runs, assets`)
	return err
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

func nullDate(tp generic.TimePoint) sql.NullString {
	return nullString(tp.String())
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
