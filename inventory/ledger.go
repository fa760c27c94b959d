/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the record of truth for stock movement, revenue and cost.
  Balances and payables are derived from it; a full scan of the ledger
  answers every aggregate question.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never deleted or reordered.
  2. IMMUTABLE: once written, only a purchase's Remaining may change, only
     downward, and never below zero.
  3. ORDERED: timestamps are strictly increasing in creation order, so the
     store's load order, timestamp order and file name order all agree.

QUERY PATTERNS:
  Lots:       purchases for one (product, warehouse), oldest first (costing)
  ForProduct: every entry for a product (movement report)
  InRange:    every entry with timestamp in [from, to] (profit and loss)
  Recent:     newest entries first

SEE ALSO:
  - costing.go: Reads Lots and lowers Remaining through ConsumeLot
  - balance.go: Replays the ledger into balances
*/
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store Store
	Clock func() time.Time

	mu     sync.Mutex
	primed bool
	last   time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, Clock: time.Now}
}

// Append assigns the entry its id and timestamp and persists it.
// Purchases start with Remaining equal to Quantity.
func (l *Ledger) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := checkEntry(tx); err != nil {
		return Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.primed {
		if err := l.primeLocked(ctx); err != nil {
			return Transaction{}, err
		}
	}

	if tx.ID == "" {
		tx.ID = TransactionID(uuid.NewString())
	}
	tx.Timestamp = l.nextTimestampLocked()
	if tx.IsPurchase() {
		remaining := tx.Quantity
		tx.Remaining = &remaining
	}

	if err := l.Store.AppendTransaction(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("append %s transaction: %w", tx.Type, err)
	}
	return tx, nil
}

// primeLocked seeds the monotonic clock from the newest persisted entry so
// ordering survives restarts and clock steps backwards.
func (l *Ledger) primeLocked(ctx context.Context) error {
	txs, err := l.Store.LoadTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	for _, tx := range txs {
		if tx.Timestamp.After(l.last) {
			l.last = tx.Timestamp
		}
	}
	l.primed = true
	return nil
}

func (l *Ledger) nextTimestampLocked() time.Time {
	now := l.Clock().UTC()
	if !now.After(l.last) {
		now = l.last.Add(time.Nanosecond)
	}
	l.last = now
	return now
}

func checkEntry(tx Transaction) error {
	if tx.Type != TxPurchase && tx.Type != TxSale {
		return invalid("type", fmt.Sprintf("unknown transaction type %q", tx.Type))
	}
	if tx.ProductID == "" {
		return invalid("productId", "is required")
	}
	if tx.WarehouseID == "" {
		return invalid("warehouseId", "is required")
	}
	if !tx.Quantity.IsPositive() {
		return invalid("quantity", "must be positive")
	}
	return nil
}

// =============================================================================
// QUERIES - Full scans, read-only, lock-free
// =============================================================================

func (l *Ledger) All(ctx context.Context) ([]Transaction, error) {
	txs, err := l.Store.LoadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	sortByCreation(txs)
	return txs, nil
}

// Lots returns the purchases for key, oldest first.
func (l *Ledger) Lots(ctx context.Context, key StockKey) ([]Transaction, error) {
	return l.filter(ctx, func(tx Transaction) bool {
		return tx.IsPurchase() && tx.Key() == key
	})
}

func (l *Ledger) ForProduct(ctx context.Context, productID ProductID) ([]Transaction, error) {
	return l.filter(ctx, func(tx Transaction) bool {
		return tx.ProductID == productID
	})
}

// InRange returns entries with timestamps in [from, to]. Both bounds are inclusive.
func (l *Ledger) InRange(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	return l.filter(ctx, func(tx Transaction) bool {
		return !tx.Timestamp.Before(from) && !tx.Timestamp.After(to)
	})
}

// Recent returns at most limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		return []Transaction{}, nil
	}
	txs, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	recent := make([]Transaction, 0, min(limit, len(txs)))
	for i := len(txs) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, txs[i])
	}
	return recent, nil
}

func (l *Ledger) filter(ctx context.Context, keep func(Transaction) bool) ([]Transaction, error) {
	txs, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0)
	for _, tx := range txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func sortByCreation(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}

// =============================================================================
// LOT CONSUMPTION - The only mutation an entry ever sees
// =============================================================================

// ConsumeLot lowers lot.Remaining by qty and persists the entry.
// Callers must hold the stock lock for the lot's key.
func (l *Ledger) ConsumeLot(ctx context.Context, lot Transaction, qty decimal.Decimal) (Transaction, error) {
	if !lot.IsPurchase() {
		return Transaction{}, fmt.Errorf("consume %s entry %s: %w", lot.Type, lot.ID, ErrImmutableTransaction)
	}
	if !qty.IsPositive() {
		return Transaction{}, fmt.Errorf("consume %s from lot %s: %w", qty, lot.ID, ErrImmutableTransaction)
	}
	remaining := lot.Available().Sub(qty)
	if remaining.IsNegative() {
		return Transaction{}, &CostingInvariantError{
			Method:      CostingFIFO,
			ProductID:   lot.ProductID,
			WarehouseID: lot.WarehouseID,
			Available:   lot.Available(),
			Requested:   qty,
		}
	}
	lot.Remaining = &remaining
	if err := l.Store.UpdateTransaction(ctx, lot); err != nil {
		return Transaction{}, fmt.Errorf("update lot %s: %w", lot.ID, err)
	}
	return lot, nil
}
