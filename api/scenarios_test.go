package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/inventory"
)

func TestScenario_AllLoadIntoEmptyLedger(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": sc.ID})

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			rec2, err := s.inv.Reconcile(context.Background())
			require.NoError(t, err)
			assert.True(t, rec2.Consistent())
		})
	}
}

func TestScenario_EveryListedScenarioHasLoader(t *testing.T) {
	require.Len(t, scenarioLoaders, len(scenarios))
	for _, sc := range scenarios {
		assert.Contains(t, scenarioLoaders, sc.ID)
	}
}

func TestScenario_FIFOCosting(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, LoadScenario(ctx, s.inv, loadFIFOScenario))

	txs, err := s.inv.ListRecentTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].COGS.Equal(decimal.NewFromInt(28)))

	lots, err := s.inv.Ledger.Lots(ctx, inventory.StockKey{ProductID: "widget", WarehouseID: "main"})
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.True(t, lots[0].Available().IsZero())
	assert.True(t, lots[1].Available().Equal(decimal.NewFromInt(3)))
}

func TestScenario_AverageCosting(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, LoadScenario(ctx, s.inv, loadAverageScenario))

	txs, err := s.inv.ListRecentTransactions(ctx, 1)
	require.NoError(t, err)
	assert.True(t, txs[0].COGS.Equal(decimal.NewFromInt(32)))
}

func TestScenario_PayablesClampOverpayment(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, LoadScenario(ctx, s.inv, loadPayablesScenario))

	payables, err := s.inv.GetPayables(ctx)
	require.NoError(t, err)
	require.Len(t, payables, 2)
	assert.Equal(t, inventory.SupplierID("acme"), payables[0].SupplierID)
	assert.True(t, payables[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, payables[1].Amount.IsZero())
	assert.True(t, payables[1].Payments[0].Applied.Equal(decimal.NewFromInt(250)))
}

func TestScenario_RefusesNonEmptyLedger(t *testing.T) {
	s := newTestServer(t)
	s.seedStock()

	rec := s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": "fifo-costing"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestScheduler_RunNowDetectsAndRepairs(t *testing.T) {
	s := newTestServer(t)
	s.seedStock()
	ctx := context.Background()
	key := inventory.StockKey{ProductID: "widget", WarehouseID: "main"}
	require.NoError(t, s.inv.Balances.Increase(ctx, key, decimal.NewFromInt(2)))

	sched := NewReconciliationScheduler(s.inv, zerolog.Nop())
	var results []inventory.Reconciliation
	sched.OnResult = func(r inventory.Reconciliation) { results = append(results, r) }

	// Report only
	rec, err := sched.RunNow(ctx)
	require.NoError(t, err)
	assert.False(t, rec.Consistent())
	require.NotNil(t, sched.Last())
	assert.Len(t, results, 1)
	qty, err := s.inv.Balances.Available(ctx, key)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(17)))

	// Repair
	sched.AutoRepair = true
	_, err = sched.RunNow(ctx)
	require.NoError(t, err)
	qty, err = s.inv.Balances.Available(ctx, key)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(15)))
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestServer(t)
	sched := NewReconciliationScheduler(s.inv, zerolog.Nop())
	done := make(chan struct{}, 1)
	sched.OnResult = func(inventory.Reconciliation) {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	sched.Start()
	<-done
	sched.Stop()
	sched.Stop()

	assert.NotNil(t, sched.Last())
}

func TestScheduler_DisabledDoesNotRun(t *testing.T) {
	s := newTestServer(t)
	sched := NewReconciliationScheduler(s.inv, zerolog.Nop())
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.Nil(t, sched.Last())
}

func TestLastReconciliation_Endpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/api/reports/reconciliation/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}
