package depreciation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
	"github.com/warp/depreciation-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const tenant generic.TenantID = "tenant-1"

var jan15 = time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, at time.Time) (*depreciation.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := depreciation.NewEngine(store, newCalc())
	engine.WithNow(func() time.Time { return at })
	return engine, store
}

func straightLineAsset(id string, price, salvage string, life int) depreciation.Asset {
	return depreciation.Asset{
		ID:               generic.AssetID(id),
		TenantID:         tenant,
		Name:             id,
		PurchasePrice:    nullDec(price),
		SalvageValue:     dec(salvage),
		UsefulLifeYears:  life,
		Method:           depreciation.MethodStraightLine,
		Status:           depreciation.StatusActive,
		CurrentBookValue: dec(price),
		InServiceDate:    generic.NewTimePoint(2024, time.June, 1),
	}
}

func save(t *testing.T, store *memory.Store, assets ...depreciation.Asset) {
	t.Helper()
	for _, a := range assets {
		require.NoError(t, store.SaveAsset(context.Background(), a))
	}
}

func bookValue(t *testing.T, store *memory.Store, id string) string {
	t.Helper()
	a, err := store.GetAsset(context.Background(), generic.AssetID(id))
	require.NoError(t, err)
	require.NotNil(t, a)
	return cents(a.CurrentBookValue)
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestRun_StraightLine_PostsEntryAndUpdatesBookValue(t *testing.T) {
	// GIVEN: purchase 12000, salvage 0, 5 years
	// WHEN: Running for January 2025
	// THEN: One 200.00 entry, book value 11800.00
	engine, store := newTestEngine(t, jan15)
	save(t, store, straightLineAsset("truck", "12000", "0", 5))
	ctx := context.Background()

	summary, err := engine.Run(ctx, tenant)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Considered)
	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, "2025-01-01", summary.Period.Start.String())
	assert.Equal(t, "2025-01-31", summary.Period.End.String())

	entries, err := store.ListEntries(ctx, "truck")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "12000.00", cents(e.OpeningValue))
	assert.Equal(t, "200.00", cents(e.DepreciationAmount))
	assert.Equal(t, "11800.00", cents(e.ClosingValue))
	assert.Equal(t, "200.00", cents(e.AccumulatedDepreciation))
	assert.Equal(t, generic.PeriodMonthly, e.PeriodType)
	assert.Equal(t, depreciation.MethodStraightLine, e.Method)
	assert.Equal(t, tenant, e.TenantID)
	assert.NotEmpty(t, e.ID)

	assert.Equal(t, "11800.00", bookValue(t, store, "truck"))
}

func TestRun_DecliningBalance(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	a := straightLineAsset("press", "10000", "0", 5)
	a.Method = depreciation.MethodDecliningBalance
	a.RatePct = nullDec("20")
	save(t, store, a)

	_, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)

	entries, _ := store.ListEntries(context.Background(), "press")
	require.Len(t, entries, 1)
	assert.Equal(t, "166.67", cents(entries[0].DepreciationAmount))
	assert.Equal(t, "9833.33", cents(entries[0].ClosingValue))
	assert.Equal(t, "9833.33", bookValue(t, store, "press"))
}

func TestRun_ClampNearSalvage_ThenIneligible(t *testing.T) {
	// GIVEN: opening 105, salvage 100, unclamped amount 300
	// THEN: 5.00 posted, closing 100.00, skipped as fully depreciated next month
	engine, store := newTestEngine(t, jan15)
	a := straightLineAsset("laptop", "3700", "100", 1)
	a.CurrentBookValue = dec("105")
	save(t, store, a)
	ctx := context.Background()

	summary, err := engine.Run(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "5.00", cents(summary.Entries[0].DepreciationAmount))
	assert.Equal(t, "100.00", bookValue(t, store, "laptop"))

	engine.WithNow(func() time.Time { return jan15.AddDate(0, 1, 0) })
	next, err := engine.Run(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, next.Processed)
	assert.Equal(t, 1, next.Skipped[depreciation.SkipFullyDepreciated])
}

// =============================================================================
// SKIPS AND IDEMPOTENCE
// =============================================================================

func TestRun_NotYetInService_Skipped(t *testing.T) {
	// GIVEN: in-service date one month after the period end
	engine, store := newTestEngine(t, jan15)
	a := straightLineAsset("crane", "50000", "5000", 10)
	a.InServiceDate = generic.NewTimePoint(2025, time.February, 28)
	save(t, store, a, straightLineAsset("truck", "12000", "0", 5))

	summary, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Considered)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped[depreciation.SkipNotInService])

	entries, _ := store.ListEntries(context.Background(), "crane")
	assert.Empty(t, entries)
	assert.Equal(t, "50000.00", bookValue(t, store, "crane"))
}

func TestRun_InServiceOnLastDayOfPeriod_Posted(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	a := straightLineAsset("crane", "12000", "0", 5)
	a.InServiceDate = generic.NewTimePoint(2025, time.January, 31)
	save(t, store, a)

	summary, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
}

func TestRun_DoubleRun_OneEntryPerAsset(t *testing.T) {
	// GIVEN: Two assets processed in January
	// WHEN: The engine runs again later in January
	// THEN: No additional entries and book values unchanged
	engine, store := newTestEngine(t, jan15)
	save(t, store,
		straightLineAsset("truck", "12000", "0", 5),
		straightLineAsset("van", "24000", "0", 5),
	)
	ctx := context.Background()

	first, err := engine.Run(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 2, first.Processed)

	engine.WithNow(func() time.Time { return jan15.AddDate(0, 0, 10) })
	second, err := engine.Run(ctx, tenant)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Skipped[depreciation.SkipAlreadyPosted])
	for _, id := range []string{"truck", "van"} {
		entries, _ := store.ListEntries(ctx, generic.AssetID(id))
		assert.Len(t, entries, 1, "asset %s", id)
	}
	assert.Equal(t, "11800.00", bookValue(t, store, "truck"))
	assert.Equal(t, "23600.00", bookValue(t, store, "van"))
}

func TestRun_ConcurrentRuns_NoDuplicateEntries(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	save(t, store,
		straightLineAsset("a1", "12000", "0", 5),
		straightLineAsset("a2", "6000", "0", 5),
		straightLineAsset("a3", "3000", "0", 5),
	)
	ctx := context.Background()

	var wg sync.WaitGroup
	processed := make([]int, 4)
	for i := range processed {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := engine.Run(ctx, tenant)
			assert.NoError(t, err)
			processed[i] = s.Processed
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range processed {
		total += n
	}
	assert.Equal(t, 3, total, "each asset posted exactly once across all runs")
	for _, id := range []string{"a1", "a2", "a3"} {
		entries, _ := store.ListEntries(ctx, generic.AssetID(id))
		assert.Len(t, entries, 1, "asset %s", id)
	}
}

func TestRun_IneligibleAssetsNotConsidered(t *testing.T) {
	engine, store := newTestEngine(t, jan15)

	inactive := straightLineAsset("inactive", "1000", "0", 1)
	inactive.Status = depreciation.StatusInactive
	deleted := straightLineAsset("deleted", "1000", "0", 1)
	now := jan15
	deleted.DeletedAt = &now
	noMethod := straightLineAsset("no-method", "1000", "0", 1)
	noMethod.Method = ""
	noPrice := straightLineAsset("no-price", "1000", "0", 1)
	noPrice.PurchasePrice = decimal.NullDecimal{}
	otherTenant := straightLineAsset("other", "1000", "0", 1)
	otherTenant.TenantID = "tenant-2"

	save(t, store, inactive, deleted, noMethod, noPrice, otherTenant)

	summary, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Considered)
	assert.Equal(t, 0, summary.Processed)
}

// =============================================================================
// MULTI-PERIOD BEHAVIOUR
// =============================================================================

func TestRun_SuccessivePeriods_MonotonicAndSynchronized(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	a := straightLineAsset("server", "1000", "100", 1)
	b := straightLineAsset("router", "800", "80", 2)
	b.Method = depreciation.MethodDecliningBalance
	b.RatePct = nullDec("60")
	save(t, store, a, b)
	ctx := context.Background()

	for month := 0; month < 36; month++ {
		at := jan15.AddDate(0, month, 0)
		engine.WithNow(func() time.Time { return at })
		_, err := engine.Run(ctx, tenant)
		require.NoError(t, err)
	}

	for _, id := range []generic.AssetID{"server", "router"} {
		asset, err := store.GetAsset(ctx, id)
		require.NoError(t, err)
		entries, err := store.ListEntries(ctx, id)
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		assert.Empty(t, depreciation.CheckAsset(*asset, entries), "asset %s", id)
	}

	server, _ := store.GetAsset(ctx, "server")
	assert.Equal(t, "100.00", cents(server.CurrentBookValue), "straight line exhausted after 12 months")
	entries, _ := store.ListEntries(ctx, "server")
	assert.Len(t, entries, 12)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestRun_ConfigError_ReportedPerAsset(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	broken := straightLineAsset("broken", "1000", "0", 0)
	save(t, store, broken, straightLineAsset("truck", "12000", "0", 5))

	summary, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, generic.AssetID("broken"), summary.Failed[0].AssetID)
	assert.ErrorIs(t, summary.Failed[0].Err, generic.ErrInvalidAssetConfig)

	entries, _ := store.ListEntries(context.Background(), "broken")
	assert.Empty(t, entries)
	assert.Equal(t, "1000.00", bookValue(t, store, "broken"))
}

// failingStore wraps the memory store and fails writes for chosen assets.
type failingStore struct {
	*memory.Store
	failAppend map[generic.AssetID]error
	failUpdate map[generic.AssetID]error
}

func (f *failingStore) WithTx(ctx context.Context, fn func(depreciation.Tx) error) error {
	return f.Store.WithTx(ctx, func(tx depreciation.Tx) error {
		return fn(&failingTx{Tx: tx, parent: f})
	})
}

type failingTx struct {
	depreciation.Tx
	parent *failingStore
}

func (t *failingTx) AppendEntry(ctx context.Context, e depreciation.ScheduleEntry) error {
	if err := t.parent.failAppend[e.AssetID]; err != nil {
		return err
	}
	return t.Tx.AppendEntry(ctx, e)
}

func (t *failingTx) UpdateBookValue(ctx context.Context, id generic.AssetID, expected, next decimal.Decimal) error {
	if err := t.parent.failUpdate[id]; err != nil {
		return err
	}
	return t.Tx.UpdateBookValue(ctx, id, expected, next)
}

func TestRun_WriteFailure_IsolatedAndRolledBack(t *testing.T) {
	// GIVEN: Three assets; the ledger insert fails for one, the book value
	// update fails for another
	// THEN: The third is posted, the other two have no entry and keep their
	// book value, and both failures are in the summary
	mem := memory.New()
	store := &failingStore{
		Store:      mem,
		failAppend: map[generic.AssetID]error{"bad-insert": errors.New("disk full")},
		failUpdate: map[generic.AssetID]error{"bad-update": errors.New("row locked")},
	}
	engine := depreciation.NewEngine(store, newCalc())
	engine.WithNow(func() time.Time { return jan15 })
	save(t, mem,
		straightLineAsset("bad-insert", "1200", "0", 1),
		straightLineAsset("bad-update", "2400", "0", 1),
		straightLineAsset("good", "3600", "0", 1),
	)
	ctx := context.Background()

	summary, err := engine.Run(ctx, tenant)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Considered)
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Failed, 2)

	for _, id := range []generic.AssetID{"bad-insert", "bad-update"} {
		entries, _ := mem.ListEntries(ctx, id)
		assert.Empty(t, entries, "no partial ledger row for %s", id)
	}
	assert.Equal(t, "1200.00", bookValue(t, mem, "bad-insert"))
	assert.Equal(t, "2400.00", bookValue(t, mem, "bad-update"))
	assert.Equal(t, "3300.00", bookValue(t, mem, "good"))

	// The failed assets remain eligible for the next attempt.
	store.failAppend = nil
	store.failUpdate = nil
	retry, err := engine.Run(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Processed)
	assert.Equal(t, 1, retry.Skipped[depreciation.SkipAlreadyPosted])
}

func TestRun_LostRace_CountedAsAlreadyPosted(t *testing.T) {
	// The fast-path read misses a concurrent posting; the unique key catches it.
	mem := memory.New()
	store := &failingStore{
		Store:      mem,
		failAppend: map[generic.AssetID]error{"truck": generic.ErrAlreadyPosted},
	}
	engine := depreciation.NewEngine(store, newCalc())
	engine.WithNow(func() time.Time { return jan15 })
	save(t, mem, straightLineAsset("truck", "12000", "0", 5))

	summary, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, 1, summary.Skipped[depreciation.SkipAlreadyPosted])
}

// MockStore is a testify mock of depreciation.Store for fatal error paths.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListActiveAssets(ctx context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]depreciation.Asset), args.Error(1)
}

func (m *MockStore) PostedAssetIDs(ctx context.Context, tenantID generic.TenantID, period generic.Period) (map[generic.AssetID]bool, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[generic.AssetID]bool), args.Error(1)
}

func (m *MockStore) WithTx(ctx context.Context, fn func(depreciation.Tx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func TestRun_CandidateReadFails_FatalNothingWritten(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("ListActiveAssets", ctx, tenant).Return(nil, errors.New("connection refused"))

	engine := depreciation.NewEngine(store, newCalc())
	engine.WithNow(func() time.Time { return jan15 })

	_, err := engine.Run(ctx, tenant)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	store.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestRun_IdempotencyReadFails_FatalNothingWritten(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("ListActiveAssets", ctx, tenant).Return([]depreciation.Asset{straightLineAsset("truck", "12000", "0", 5)}, nil)
	store.On("PostedAssetIDs", ctx, tenant, mock.AnythingOfType("generic.Period")).Return(nil, errors.New("malformed query"))

	engine := depreciation.NewEngine(store, newCalc())
	engine.WithNow(func() time.Time { return jan15 })

	summary, err := engine.Run(ctx, tenant)

	require.Error(t, err)
	assert.Equal(t, 0, summary.Processed)
	store.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestRun_TenantRequired(t *testing.T) {
	engine, _ := newTestEngine(t, jan15)

	_, err := engine.Run(context.Background(), "")

	assert.ErrorIs(t, err, generic.ErrTenantRequired)
}

func TestRun_RecordsRun(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	save(t, store, straightLineAsset("truck", "12000", "0", 5))
	ctx := context.Background()

	summary, err := engine.Run(ctx, tenant)
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.Equal(t, depreciation.RunCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Processed)
	assert.Equal(t, "2025-01-01", runs[0].PeriodStart.String())
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestRun_VoidedEntryCanBeReposted(t *testing.T) {
	engine, store := newTestEngine(t, jan15)
	save(t, store, straightLineAsset("truck", "12000", "0", 5))
	ctx := context.Background()

	first, err := engine.Run(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	// Correction process: void the entry and restore the book value.
	require.NoError(t, store.VoidEntry(ctx, "truck", first.Entries[0].ID))
	require.NoError(t, store.WithTx(ctx, func(tx depreciation.Tx) error {
		return tx.UpdateBookValue(ctx, "truck", dec("11800"), dec("12000"))
	}))

	second, err := engine.Run(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
}

func TestRun_ResavedDefinitionKeepsBookValue(t *testing.T) {
	// GIVEN: An asset posted for January
	engine, store := newTestEngine(t, jan15)
	save(t, store, straightLineAsset("truck", "12000", "0", 5))
	ctx := context.Background()
	_, err := engine.Run(ctx, tenant)
	require.NoError(t, err)

	// WHEN: Its registration (book value 12000) is saved again and February runs
	save(t, store, straightLineAsset("truck", "12000", "0", 5))
	engine.WithNow(func() time.Time { return jan15.AddDate(0, 1, 0) })
	_, err = engine.Run(ctx, tenant)
	require.NoError(t, err)

	// THEN: February continues from 11800
	entries, err := store.ListEntries(ctx, "truck")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "11800.00", cents(entries[1].OpeningValue))
	assert.Equal(t, "11600.00", bookValue(t, store, "truck"))
}

func TestRun_UndecodableAssetFails(t *testing.T) {
	// GIVEN: An asset whose stored salvage could not be read
	engine, store := newTestEngine(t, jan15)
	broken := straightLineAsset("broken", "1200", "0", 1)
	broken.DecodeErr = &generic.ConfigError{AssetID: "broken", Field: "salvage_value", Reason: `malformed amount "1,000.00"`}
	save(t, store, broken, straightLineAsset("truck", "12000", "0", 5))

	// WHEN: A run is made
	summary, err := engine.Run(context.Background(), tenant)
	require.NoError(t, err)

	// THEN: The asset is reported as failed, never posted
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, generic.AssetID("broken"), summary.Failed[0].AssetID)
	assert.ErrorIs(t, summary.Failed[0].Err, generic.ErrInvalidAssetConfig)
	assert.Equal(t, "1200.00", bookValue(t, store, "broken"))
}
