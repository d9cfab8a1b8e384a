/*
engine.go - Depreciation run controller

PURPOSE:
  Runs one depreciation posting for one tenant and one period:
  resolve period -> select candidates -> idempotency guard -> per asset
  (validate, calculate, post in one transaction) -> summary.

FAILURE MODEL:
  Fatal (returned error, nothing written by this run):
    - tenant lock, candidate read or idempotency read fails
  Per-asset skip (counted, not an error):
    - already posted, not yet in service, fully depreciated
  Per-asset failure (recorded in RunSummary.Failed, run continues):
    - configuration error, ledger insert or book value update fails
    The asset's transaction is rolled back, so it stays eligible next run.

CONCURRENCY:
  A run is sequential. Overlapping runs for a tenant are serialized by the
  store's TenantLocker when it has one; otherwise the ledger's unique key
  turns a lost race into generic.ErrAlreadyPosted, which is a skip.

USAGE:
  engine := depreciation.NewEngine(store, depreciation.NewCalculator(generic.RoundHalfAwayFromZero))
  summary, err := engine.Run(ctx, "tenant-1")

SEE ALSO:
  - guard.go: Candidate selection and idempotency guard
  - calculator.go: Per-method calculation
  - api/scheduler.go: Periodic invocation
*/
package depreciation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/depreciation-engine/generic"
)

// Engine orchestrates depreciation runs.
type Engine struct {
	Store      Store
	Calculator *Calculator
	Periods    generic.PeriodConfig

	now func() time.Time
}

// NewEngine creates an engine posting monthly periods.
func NewEngine(store Store, calc *Calculator) *Engine {
	return &Engine{
		Store:      store,
		Calculator: calc,
		Periods:    generic.MonthlyPeriods,
		now:        time.Now,
	}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Run posts depreciation for the period containing the current time.
func (e *Engine) Run(ctx context.Context, tenantID generic.TenantID) (RunSummary, error) {
	return e.RunAt(ctx, tenantID, e.now())
}

// RunAt posts depreciation for the period containing at.
func (e *Engine) RunAt(ctx context.Context, tenantID generic.TenantID, at time.Time) (RunSummary, error) {
	if tenantID == "" {
		return RunSummary{}, generic.ErrTenantRequired
	}

	period := e.Periods.Resolve(at)
	summary := RunSummary{
		RunID:    generic.RunID(uuid.NewString()),
		TenantID: tenantID,
		Period:   period,
		Skipped:  make(map[SkipReason]int),
	}

	if locker, ok := e.Store.(TenantLocker); ok {
		unlock, err := locker.LockTenant(ctx, tenantID)
		if err != nil {
			return summary, fmt.Errorf("lock tenant %s: %w", tenantID, err)
		}
		defer unlock()
	}

	startedAt := e.now()
	if err := e.saveRun(ctx, summary, RunRunning, startedAt, nil); err != nil {
		return summary, fmt.Errorf("record run start: %w", err)
	}

	err := e.process(ctx, &summary)

	status := RunCompleted
	if err != nil {
		status = RunFailed
	}
	if saveErr := e.saveRun(ctx, summary, status, startedAt, err); saveErr != nil {
		log.Printf("[Engine] Failed to record run %s: %v", summary.RunID, saveErr)
	}

	if err != nil {
		log.Printf("[Engine] Run %s for %s %s failed: %v", summary.RunID, tenantID, period.Key(), err)
		return summary, err
	}

	log.Printf("[Engine] Run %s for %s %s: %d considered, %d processed, %d skipped, %d failed",
		summary.RunID, tenantID, period.Key(),
		summary.Considered, summary.Processed, summary.SkippedTotal(), len(summary.Failed))
	return summary, nil
}

func (e *Engine) process(ctx context.Context, summary *RunSummary) error {
	assets, err := e.Store.ListActiveAssets(ctx, summary.TenantID)
	if err != nil {
		return fmt.Errorf("read candidate assets: %w", err)
	}
	candidates := SelectCandidates(assets)
	summary.Considered = len(candidates)

	posted, err := e.Store.PostedAssetIDs(ctx, summary.TenantID, summary.Period)
	if err != nil {
		return fmt.Errorf("read posted entries: %w", err)
	}

	eligible, skipped := Guard(candidates, posted, summary.Period)
	for _, s := range skipped {
		summary.Skipped[s.Reason]++
	}

	for _, a := range eligible {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted after %d assets: %w", summary.Processed, err)
		}

		entry, err := e.post(ctx, a, summary.Period)
		switch {
		case errors.Is(err, generic.ErrAlreadyPosted):
			summary.Skipped[SkipAlreadyPosted]++
		case err != nil:
			log.Printf("[Engine] Asset %s not posted for %s: %v", a.ID, summary.Period.Key(), err)
			summary.Failed = append(summary.Failed, AssetFailure{AssetID: a.ID, Err: err})
		default:
			summary.Processed++
			summary.Entries = append(summary.Entries, entry)
		}
	}
	return nil
}

// post validates, calculates and writes one asset's entry and book value in
// a single transaction.
func (e *Engine) post(ctx context.Context, a Asset, period generic.Period) (ScheduleEntry, error) {
	if err := Validate(a); err != nil {
		return ScheduleEntry{}, err
	}

	res := e.Calculator.Compute(a.Method, InputFor(a))
	if res.Fallback {
		log.Printf("[Engine] Asset %s: unknown method %q, using %s", a.ID, a.Method, res.Method)
	}

	entry := ScheduleEntry{
		ID:                      generic.EntryID(uuid.NewString()),
		AssetID:                 a.ID,
		TenantID:                a.TenantID,
		PeriodType:              period.Type,
		PeriodStart:             period.Start,
		PeriodEnd:               period.End,
		OpeningValue:            res.Opening,
		DepreciationAmount:      res.Amount,
		AccumulatedDepreciation: res.Accumulated,
		ClosingValue:            res.Closing,
		Method:                  res.Method,
		CreatedAt:               e.now().UTC(),
	}

	err := e.Store.WithTx(ctx, func(tx Tx) error {
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return tx.UpdateBookValue(ctx, a.ID, res.Opening, res.Closing)
	})
	if err != nil {
		return ScheduleEntry{}, err
	}
	return entry, nil
}

func (e *Engine) saveRun(ctx context.Context, s RunSummary, status RunStatus, startedAt time.Time, runErr error) error {
	rec, ok := e.Store.(RunRecorder)
	if !ok {
		return nil
	}

	run := RunRecord{
		ID:          s.RunID,
		TenantID:    s.TenantID,
		PeriodType:  s.Period.Type,
		PeriodStart: s.Period.Start,
		PeriodEnd:   s.Period.End,
		Status:      status,
		Considered:  s.Considered,
		Processed:   s.Processed,
		Skipped:     s.SkippedTotal(),
		Failed:      len(s.Failed),
		StartedAt:   startedAt.UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if status != RunRunning {
		done := e.now().UTC()
		run.CompletedAt = &done
	}
	return rec.SaveRun(ctx, run)
}
