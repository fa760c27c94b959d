package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/lock"
)

func newTestStore(t *testing.T) (*Store, *[]string) {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	var corrupted []string
	s.OnCorrupt = func(key string, _ error) { corrupted = append(corrupted, key) }
	return s, &corrupted
}

func purchase(id string, at time.Time, qty int64) inventory.Transaction {
	q := decimal.NewFromInt(qty)
	return inventory.Transaction{
		ID:          inventory.TransactionID(id),
		Type:        inventory.TxPurchase,
		ProductID:   "widget",
		WarehouseID: "main",
		Timestamp:   at,
		Quantity:    q,
		UnitCost:    decimal.NewFromInt(2),
		Remaining:   &q,
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestDocument_MissingReadsEmpty(t *testing.T) {
	s, corrupted := newTestStore(t)

	var products []inventory.Product
	require.NoError(t, s.ReadDocument(context.Background(), inventory.DocProducts, &products))

	assert.Nil(t, products)
	assert.Empty(t, *corrupted)
}

func TestDocument_WriteThenRead(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := inventory.BalanceDocument{"widget": {"main": decimal.RequireFromString("3.5")}}

	require.NoError(t, s.WriteDocument(ctx, inventory.DocBalances, doc))

	got := inventory.BalanceDocument{}
	require.NoError(t, s.ReadDocument(ctx, inventory.DocBalances, &got))
	assert.True(t, got.Get(inventory.StockKey{ProductID: "widget", WarehouseID: "main"}).Equal(decimal.RequireFromString("3.5")))

	// No temp files left behind
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestDocument_CorruptReadsEmptyAndReports(t *testing.T) {
	s, corrupted := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "payables.json"), []byte(`{"acme": {"amount": `), 0o644))

	doc := inventory.PayableDocument{}
	err := s.ReadDocument(context.Background(), inventory.DocPayables, &doc)

	require.NoError(t, err)
	assert.Empty(t, doc)
	assert.Equal(t, []string{inventory.DocPayables}, *corrupted)
}

func TestDocument_WhitespaceOnlyReadsEmpty(t *testing.T) {
	s, corrupted := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "products.json"), []byte("  \n"), 0o644))

	var products []inventory.Product
	require.NoError(t, s.ReadDocument(context.Background(), inventory.DocProducts, &products))

	assert.Empty(t, products)
	assert.Empty(t, *corrupted)
}

func TestDocument_ReadFailureIsReturnedNotDegraded(t *testing.T) {
	s, corrupted := newTestStore(t)
	ctx := context.Background()
	inv := inventory.New(inventory.Options{Store: s, Locker: lock.NewLocal(lock.DefaultPolicy())})
	// A directory in place of the file fails the read with an I/O error
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "products.json"), 0o755))

	var products []inventory.Product
	err := s.ReadDocument(ctx, inventory.DocProducts, &products)
	assert.Error(t, err)
	assert.Empty(t, *corrupted)

	_, err = inv.CreateProduct(ctx, inventory.ProductInput{ID: "widget", Name: "Widget"})
	assert.Error(t, err)
	info, statErr := os.Stat(filepath.Join(s.Dir(), "products.json"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestTransactions_ReadFailureIsReturned(t *testing.T) {
	s, corrupted := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendTransaction(ctx, purchase("a", time.Now(), 1)))
	// A symlink to a directory lists as a file but cannot be read as one
	target := t.TempDir()
	link := filepath.Join(s.Dir(), transactionsDir, "00000000000000000001-link.json")
	require.NoError(t, os.Symlink(target, link))

	_, err := s.LoadTransactions(ctx)

	assert.Error(t, err)
	assert.Empty(t, *corrupted)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestFileName_SortsByCreation(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	early := FileName(purchase("zzz", base, 1))
	late := FileName(purchase("aaa", base.Add(time.Nanosecond), 1))

	assert.Less(t, early, late)
	assert.Equal(t, "-zzz.json", early[20:])
	assert.Len(t, early, 20+len("-zzz.json"))
}

func TestTransactions_LoadInCreationOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Appended out of order on purpose
	require.NoError(t, s.AppendTransaction(ctx, purchase("c", base.Add(2*time.Second), 3)))
	require.NoError(t, s.AppendTransaction(ctx, purchase("a", base, 1)))
	require.NoError(t, s.AppendTransaction(ctx, purchase("b", base.Add(time.Second), 2)))

	txs, err := s.LoadTransactions(ctx)

	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, inventory.TransactionID("a"), txs[0].ID)
	assert.Equal(t, inventory.TransactionID("b"), txs[1].ID)
	assert.Equal(t, inventory.TransactionID("c"), txs[2].ID)
	assert.True(t, txs[0].Timestamp.Equal(base))
}

func TestTransactions_AppendRefusesDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tx := purchase("a", time.Now(), 1)

	require.NoError(t, s.AppendTransaction(ctx, tx))
	assert.Error(t, s.AppendTransaction(ctx, tx))
}

func TestTransactions_UpdateRewritesRemaining(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tx := purchase("a", time.Now(), 10)
	require.NoError(t, s.AppendTransaction(ctx, tx))

	remaining := decimal.NewFromInt(4)
	tx.Remaining = &remaining
	require.NoError(t, s.UpdateTransaction(ctx, tx))

	txs, err := s.LoadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].Remaining)
	assert.True(t, txs[0].Remaining.Equal(remaining))
	assert.True(t, txs[0].Quantity.Equal(decimal.NewFromInt(10)))
}

func TestTransactions_UpdateRefusesAnythingButLoweringRemaining(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tx := purchase("a", time.Now(), 10)
	require.NoError(t, s.AppendTransaction(ctx, tx))

	raised := decimal.NewFromInt(11)
	up := tx
	up.Remaining = &raised
	assert.ErrorIs(t, s.UpdateTransaction(ctx, up), inventory.ErrImmutableTransaction)

	repriced := tx
	repriced.UnitCost = decimal.NewFromInt(9)
	assert.ErrorIs(t, s.UpdateTransaction(ctx, repriced), inventory.ErrImmutableTransaction)

	txs, err := s.LoadTransactions(ctx)
	require.NoError(t, err)
	assert.True(t, txs[0].Available().Equal(decimal.NewFromInt(10)))
	assert.True(t, txs[0].UnitCost.Equal(decimal.NewFromInt(2)))
}

func TestTransactions_UpdateMissingIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateTransaction(context.Background(), purchase("ghost", time.Now(), 1))

	assert.True(t, inventory.IsNotFound(err))
}

func TestTransactions_CorruptFileSkippedAndReported(t *testing.T) {
	s, corrupted := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendTransaction(ctx, purchase("a", base, 1)))

	dir := filepath.Join(s.Dir(), transactionsDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000000000000000001-bad.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".in-flight.tmp-123"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("notes"), 0o644))

	txs, err := s.LoadTransactions(ctx)

	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, inventory.TransactionID("a"), txs[0].ID)
	assert.Equal(t, []string{"00000000000000000001-bad.json"}, *corrupted)
}

func TestStore_RespectsCancelledContext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.WriteDocument(ctx, inventory.DocProducts, []inventory.Product{}), context.Canceled)
	assert.ErrorIs(t, s.AppendTransaction(ctx, purchase("a", time.Now(), 1)), context.Canceled)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestInventory_ConcurrentWritesAcrossPairsLoseNoUpdates(t *testing.T) {
	s, corrupted := newTestStore(t)
	ctx := context.Background()
	inv := inventory.New(inventory.Options{
		Store:  s,
		Locker: lock.NewLocal(lock.Policy{MaxAttempts: 5000, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
	})
	products := []string{"p0", "p1", "p2", "p3"}
	warehouses := []string{"north", "south", "east"}
	for _, p := range products {
		_, err := inv.CreateProduct(ctx, inventory.ProductInput{ID: p, Name: p})
		require.NoError(t, err)
	}
	_, err := inv.CreateSupplier(ctx, inventory.SupplierInput{ID: "acme", Name: "Acme"})
	require.NoError(t, err)

	// Each worker buys 3 and sells 1 on its own pair; pairs repeat across workers
	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			product := products[i%len(products)]
			warehouse := warehouses[i%len(warehouses)]
			_, err := inv.RecordPurchase(ctx, inventory.PurchaseInput{
				ProductID: product, SupplierID: "acme", WarehouseID: warehouse,
				Quantity: decimal.NewFromInt(3), UnitCost: decimal.NewFromInt(1),
				Reference: fmt.Sprintf("inv-%d", i),
			})
			if !assert.NoError(t, err) {
				return
			}
			_, err = inv.RecordSale(ctx, inventory.SaleInput{
				ProductID: product, WarehouseID: warehouse,
				Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(2),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := inv.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, rec.Divergences)

	txs, err := s.LoadTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2*workers)

	// Every pair nets 2 per worker that touched it
	perPair := map[inventory.StockKey]int64{}
	for i := 0; i < workers; i++ {
		key := inventory.StockKey{
			ProductID:   inventory.ProductID(products[i%len(products)]),
			WarehouseID: inventory.WarehouseID(warehouses[i%len(warehouses)]),
		}
		perPair[key] += 2
	}
	for key, want := range perPair {
		got, err := inv.Balances.Available(ctx, key)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "%s: got %s want %d", key, got, want)
	}

	payables, err := inv.GetPayables(ctx)
	require.NoError(t, err)
	require.Len(t, payables, 1)
	assert.True(t, payables[0].Amount.Equal(decimal.NewFromInt(3*workers)), "payable %s", payables[0].Amount)
	assert.Len(t, payables[0].Invoices, workers)
	assert.Empty(t, *corrupted)
}
