/*
scheduler.go - Periodic depreciation scheduler

PURPOSE:
  Invokes the depreciation engine on an interval for every configured
  tenant, standing in for an external cron trigger. Because posting is
  idempotent per (asset, period), running every hour is safe: only the
  first run in a period posts, later runs count every asset as
  already_posted.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Tenants come from the configuration, or from the asset store when none
    are configured
  - One tenant's failure is logged and does not stop the others

USAGE:
  scheduler := NewDepreciationScheduler(engine, store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunDepreciation endpoint (manual trigger)
  - depreciation/engine.go: Run controller
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

// TenantLister lists tenants with at least one asset.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]generic.TenantID, error)
}

// DepreciationScheduler runs the engine on a fixed interval.
type DepreciationScheduler struct {
	Engine        *depreciation.Engine
	Store         TenantLister
	Tenants       []generic.TenantID
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

// NewDepreciationScheduler creates a new scheduler.
func NewDepreciationScheduler(engine *depreciation.Engine, store TenantLister) *DepreciationScheduler {
	return &DepreciationScheduler{
		Engine:        engine,
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. A stopped scheduler can be started again.
func (ds *DepreciationScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if ds.ticker != nil {
		return
	}

	ds.ticker = time.NewTicker(ds.CheckInterval)
	ds.stop = make(chan struct{})
	ds.wg.Add(1)

	go ds.run(ds.ticker, ds.stop)

	log.Printf("[Scheduler] Started with check interval: %v", ds.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight tick to finish.
func (ds *DepreciationScheduler) Stop() {
	ds.mu.Lock()
	ticker, stop := ds.ticker, ds.stop
	ds.ticker, ds.stop = nil, nil
	ds.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		ds.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ds *DepreciationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ds.wg.Done()

	// Run immediately on start
	ds.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			ds.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow runs the engine once for every tenant and returns the summaries of
// the runs that completed.
func (ds *DepreciationScheduler) RunNow(ctx context.Context) []depreciation.RunSummary {
	tenants, err := ds.tenants(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing tenants: %v", err)
		return nil
	}

	var summaries []depreciation.RunSummary
	for _, tenant := range tenants {
		summary, err := ds.Engine.Run(ctx, tenant)
		if err != nil {
			log.Printf("[Scheduler] Run for tenant %s failed: %v", tenant, err)
			continue
		}
		summaries = append(summaries, summary)
		if summary.Processed > 0 || len(summary.Failed) > 0 {
			log.Printf("[Scheduler] Tenant %s %s: %d processed, %d skipped, %d failed",
				tenant, summary.Period, summary.Processed, summary.SkippedTotal(), len(summary.Failed))
		}
	}

	ds.mu.Lock()
	ds.lastRun = ds.Engine.Now()
	ds.mu.Unlock()

	return summaries
}

func (ds *DepreciationScheduler) tenants(ctx context.Context) ([]generic.TenantID, error) {
	if len(ds.Tenants) > 0 {
		return ds.Tenants, nil
	}
	return ds.Store.ListTenants(ctx)
}

// GetNextRunTime returns when the next tick is due, or the zero time when
// the scheduler has not run yet.
func (ds *DepreciationScheduler) GetNextRunTime() time.Time {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.lastRun.IsZero() {
		return time.Time{}
	}
	return ds.lastRun.Add(ds.CheckInterval)
}
