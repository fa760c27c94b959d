/*
scheduler.go - Periodic balance reconciliation

PURPOSE:
  Periodically replays the ledger and compares the result with the
  balance projection. Divergence means a purchase or sale failed part way
  or a balances document was lost; the scheduler reports it, and repairs
  it only when AutoRepair is set.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Records the last run for GET /api/reports/reconciliation/last

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - AutoRepair: Rebuild the projection when it diverges (default: false).
    A rebuild holds every stock lock at once and stalls trading meanwhile.

USAGE:
  scheduler := NewReconciliationScheduler(inv, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/stock-ledger/inventory"
)

// ReconciliationScheduler checks the balance projection against the ledger.
type ReconciliationScheduler struct {
	Inventory     *inventory.Inventory
	CheckInterval time.Duration
	Enabled       bool
	AutoRepair    bool

	// OnResult is called after every check, e.g. to export a gauge.
	OnResult func(inventory.Reconciliation)

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.RWMutex
	last   *inventory.Reconciliation
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(inv *inventory.Inventory, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Inventory:     inv,
		CheckInterval: time.Hour,
		Enabled:       true,
		log:           log.With().Str("component", "reconciler").Logger(),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("started")
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info().Msg("stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one check synchronously.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) (inventory.Reconciliation, error) {
	rec, err := rs.Inventory.Reconcile(ctx)
	if err != nil {
		rs.log.Error().Err(err).Msg("reconciliation failed")
		return inventory.Reconciliation{}, err
	}

	rs.lastMu.Lock()
	rs.last = &rec
	rs.lastMu.Unlock()

	if rs.OnResult != nil {
		rs.OnResult(rec)
	}

	if rec.Consistent() {
		rs.log.Debug().Int("entries", rec.Entries).Msg("balances consistent with ledger")
		return rec, nil
	}

	for _, d := range rec.Divergences {
		rs.log.Warn().
			Str("product_id", string(d.ProductID)).
			Str("warehouse_id", string(d.WarehouseID)).
			Str("projected", d.Projected.String()).
			Str("replayed", d.Replayed.String()).
			Msg("balance diverges from ledger")
	}

	if rs.AutoRepair {
		if _, err := rs.Inventory.RebuildBalances(ctx); err != nil {
			rs.log.Error().Err(err).Msg("balance rebuild failed")
			return rec, err
		}
		rs.log.Info().Int("divergences", len(rec.Divergences)).Msg("balance projection rebuilt")
	}
	return rec, nil
}

// Last returns the most recent result, or nil before the first run.
func (rs *ReconciliationScheduler) Last() *inventory.Reconciliation {
	rs.lastMu.RLock()
	defer rs.lastMu.RUnlock()
	return rs.last
}
