// Package memory provides an in-memory implementation of the depreciation
// store interfaces (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu      sync.RWMutex
	assets  map[generic.AssetID]depreciation.Asset
	entries map[generic.AssetID][]depreciation.ScheduleEntry
	posted  map[postKey]generic.EntryID
	runs    map[generic.RunID]depreciation.RunRecord

	locksMu sync.Mutex
	locks   map[generic.TenantID]chan struct{}
}

// postKey mirrors the ledger's unique index.
type postKey struct {
	AssetID     generic.AssetID
	PeriodType  generic.PeriodType
	PeriodStart string
}

func keyOf(e depreciation.ScheduleEntry) postKey {
	return postKey{AssetID: e.AssetID, PeriodType: e.PeriodType, PeriodStart: e.PeriodStart.String()}
}

func New() *Store {
	return &Store{
		assets:  make(map[generic.AssetID]depreciation.Asset),
		entries: make(map[generic.AssetID][]depreciation.ScheduleEntry),
		posted:  make(map[postKey]generic.EntryID),
		runs:    make(map[generic.RunID]depreciation.RunRecord),
		locks:   make(map[generic.TenantID]chan struct{}),
	}
}

// =============================================================================
// ASSETS
// =============================================================================

// SaveAsset inserts or replaces an asset. The book value of an asset with a
// live ledger entry is kept.
func (m *Store) SaveAsset(_ context.Context, a depreciation.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.assets[a.ID]; ok && m.hasLiveEntry(a.ID) {
		a.CurrentBookValue = prev.CurrentBookValue
	}
	m.assets[a.ID] = a
	return nil
}

func (m *Store) hasLiveEntry(id generic.AssetID) bool {
	for _, e := range m.entries[id] {
		if e.DeletedAt == nil {
			return true
		}
	}
	return false
}

func (m *Store) GetAsset(_ context.Context, id generic.AssetID) (*depreciation.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Store) ListAssets(_ context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssets(func(a depreciation.Asset) bool { return a.TenantID == tenantID }), nil
}

func (m *Store) ListActiveAssets(_ context.Context, tenantID generic.TenantID) ([]depreciation.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssets(func(a depreciation.Asset) bool {
		return a.TenantID == tenantID && a.Status == depreciation.StatusActive && a.DeletedAt == nil
	}), nil
}

func (m *Store) filterAssets(keep func(depreciation.Asset) bool) []depreciation.Asset {
	var out []depreciation.Asset
	for _, a := range m.assets {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Store) ListTenants(_ context.Context) ([]generic.TenantID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[generic.TenantID]bool)
	var out []generic.TenantID
	for _, a := range m.assets {
		if !seen[a.TenantID] {
			seen[a.TenantID] = true
			out = append(out, a.TenantID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Store) PostedAssetIDs(_ context.Context, tenantID generic.TenantID, period generic.Period) (map[generic.AssetID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[generic.AssetID]bool)
	for assetID, entries := range m.entries {
		for _, e := range entries {
			if e.TenantID == tenantID && e.DeletedAt == nil &&
				e.PeriodType == period.Type && e.PeriodStart.Equal(period.Start) {
				out[assetID] = true
			}
		}
	}
	return out, nil
}

func (m *Store) ListEntries(_ context.Context, assetID generic.AssetID) ([]depreciation.ScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]depreciation.ScheduleEntry, len(m.entries[assetID]))
	copy(result, m.entries[assetID])
	return result, nil
}

// VoidEntry soft-deletes an entry, as the out-of-band correction process does.
func (m *Store) VoidEntry(_ context.Context, assetID generic.AssetID, id generic.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries[assetID] {
		if e.ID == id && e.DeletedAt == nil {
			now := time.Now().UTC()
			m.entries[assetID][i].DeletedAt = &now
			delete(m.posted, keyOf(e))
			return nil
		}
	}
	return generic.ErrAssetNotFound
}

func (m *Store) appendLocked(e depreciation.ScheduleEntry) error {
	k := keyOf(e)
	if _, exists := m.posted[k]; exists {
		return generic.ErrAlreadyPosted
	}

	entries := m.entries[e.AssetID]
	// Binary search for insertion point, entries stay ordered by period.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].PeriodStart.After(e.PeriodStart)
	})
	entries = append(entries, depreciation.ScheduleEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.AssetID] = entries
	m.posted[k] = e.ID
	return nil
}

func (m *Store) updateBookValueLocked(id generic.AssetID, expected, next decimal.Decimal) error {
	a, ok := m.assets[id]
	if !ok {
		return generic.ErrAssetNotFound
	}
	if !a.CurrentBookValue.Equal(expected) {
		return generic.ErrConcurrentModification
	}
	a.CurrentBookValue = next
	m.assets[id] = a
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Store) WithTx(ctx context.Context, fn func(depreciation.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	assets  map[generic.AssetID]depreciation.Asset
	entries map[generic.AssetID][]depreciation.ScheduleEntry
	posted  map[postKey]generic.EntryID
}

func (m *Store) snapshot() memorySnapshot {
	s := memorySnapshot{
		assets:  make(map[generic.AssetID]depreciation.Asset, len(m.assets)),
		entries: make(map[generic.AssetID][]depreciation.ScheduleEntry, len(m.entries)),
		posted:  make(map[postKey]generic.EntryID, len(m.posted)),
	}
	for k, v := range m.assets {
		s.assets[k] = v
	}
	for k, v := range m.entries {
		s.entries[k] = append([]depreciation.ScheduleEntry{}, v...)
	}
	for k, v := range m.posted {
		s.posted[k] = v
	}
	return s
}

func (m *Store) restore(s memorySnapshot) {
	m.assets = s.assets
	m.entries = s.entries
	m.posted = s.posted
}

type txView struct {
	parent *Store
}

func (tv *txView) AppendEntry(_ context.Context, e depreciation.ScheduleEntry) error {
	return tv.parent.appendLocked(e)
}

func (tv *txView) UpdateBookValue(_ context.Context, id generic.AssetID, expected, next decimal.Decimal) error {
	return tv.parent.updateBookValueLocked(id, expected, next)
}

// =============================================================================
// RUNS AND LOCKS
// =============================================================================

func (m *Store) SaveRun(_ context.Context, run depreciation.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Store) ListRuns(_ context.Context, tenantID generic.TenantID) ([]depreciation.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []depreciation.RunRecord
	for _, r := range m.runs {
		if tenantID == "" || r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// LockTenant holds a per-tenant semaphore until unlock is called.
func (m *Store) LockTenant(ctx context.Context, tenantID generic.TenantID) (func(), error) {
	m.locksMu.Lock()
	sem, ok := m.locks[tenantID]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[tenantID] = sem
	}
	m.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset clears all data.
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = make(map[generic.AssetID]depreciation.Asset)
	m.entries = make(map[generic.AssetID][]depreciation.ScheduleEntry)
	m.posted = make(map[postKey]generic.EntryID)
	m.runs = make(map[generic.RunID]depreciation.RunRecord)
	return nil
}
