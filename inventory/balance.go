/*
balance.go - Balance projection

PURPOSE:
  Keeps on-hand quantity per (product, warehouse) so a sale can be admitted
  without scanning the ledger. The projection is a cache: ReplayBalances
  recomputes it from the ledger at any time, and Reconcile compares the two.

INVARIANT:
  balance(p, w) = Σ purchase quantities − Σ sale quantities for (p, w) >= 0

CONCURRENCY:
  The balances document is rewritten under its document lock. The check that
  admits a sale and the decrement that follows run under the stock lock for
  the pair (see service.go), so no other writer can move that pair's balance
  in between.
*/
package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// BalanceDocument is the persisted shape: product -> warehouse -> quantity.
type BalanceDocument map[ProductID]map[WarehouseID]decimal.Decimal

func (d BalanceDocument) Get(key StockKey) decimal.Decimal {
	return d[key.ProductID][key.WarehouseID]
}

func (d BalanceDocument) add(key StockKey, delta decimal.Decimal) {
	byWarehouse, ok := d[key.ProductID]
	if !ok {
		byWarehouse = make(map[WarehouseID]decimal.Decimal)
		d[key.ProductID] = byWarehouse
	}
	byWarehouse[key.WarehouseID] = byWarehouse[key.WarehouseID].Add(delta)
}

// Balance is one row of the projection.
type Balance struct {
	ProductID   ProductID       `json:"productId"`
	WarehouseID WarehouseID     `json:"warehouseId"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// Rows flattens the document, ordered by product then warehouse.
func (d BalanceDocument) Rows() []Balance {
	rows := make([]Balance, 0)
	for p, byWarehouse := range d {
		for w, qty := range byWarehouse {
			rows = append(rows, Balance{ProductID: p, WarehouseID: w, Quantity: qty})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductID != rows[j].ProductID {
			return rows[i].ProductID < rows[j].ProductID
		}
		return rows[i].WarehouseID < rows[j].WarehouseID
	})
	return rows
}

// =============================================================================
// PROJECTION
// =============================================================================

type BalanceProjection struct {
	Store  Store
	Locker Locker
}

func (p *BalanceProjection) Snapshot(ctx context.Context) (BalanceDocument, error) {
	doc := BalanceDocument{}
	if err := p.Store.ReadDocument(ctx, DocBalances, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = BalanceDocument{}
	}
	return doc, nil
}

// Available returns the on-hand quantity, zero for a pair never seen.
func (p *BalanceProjection) Available(ctx context.Context, key StockKey) (decimal.Decimal, error) {
	doc, err := p.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return doc.Get(key), nil
}

func (p *BalanceProjection) Increase(ctx context.Context, key StockKey, qty decimal.Decimal) error {
	return p.apply(ctx, key, qty)
}

// Decrease refuses to take the pair below zero.
func (p *BalanceProjection) Decrease(ctx context.Context, key StockKey, qty decimal.Decimal) error {
	return p.apply(ctx, key, qty.Neg())
}

func (p *BalanceProjection) apply(ctx context.Context, key StockKey, delta decimal.Decimal) error {
	return mutateDocument(ctx, p.Store, p.Locker, DocBalances, func(doc *BalanceDocument) error {
		if *doc == nil {
			*doc = BalanceDocument{}
		}
		current := doc.Get(key)
		if current.Add(delta).IsNegative() {
			return &InsufficientStockError{
				ProductID:   key.ProductID,
				WarehouseID: key.WarehouseID,
				Available:   current,
				Requested:   delta.Neg(),
			}
		}
		doc.add(key, delta)
		return nil
	})
}

// Reset sets the listed pairs to their value in doc, zero when absent, and
// leaves every other pair as it is. Used when rebuilding from the ledger.
func (p *BalanceProjection) Reset(ctx context.Context, keys []StockKey, doc BalanceDocument) error {
	return mutateDocument(ctx, p.Store, p.Locker, DocBalances, func(current *BalanceDocument) error {
		if *current == nil {
			*current = BalanceDocument{}
		}
		for _, key := range keys {
			current.add(key, doc.Get(key).Sub(current.Get(key)))
		}
		return nil
	})
}

// Keys lists every pair the document holds.
func (d BalanceDocument) Keys() []StockKey {
	rows := d.Rows()
	keys := make([]StockKey, len(rows))
	for i, r := range rows {
		keys[i] = StockKey{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
	}
	return keys
}

// =============================================================================
// REPLAY
// =============================================================================

// ReplayBalances recomputes every balance from ledger entries.
func ReplayBalances(txs []Transaction) BalanceDocument {
	doc := BalanceDocument{}
	for _, tx := range txs {
		doc.add(tx.Key(), tx.Delta())
	}
	return doc
}

// Divergence is a pair whose projected balance disagrees with the ledger.
type Divergence struct {
	ProductID   ProductID       `json:"productId"`
	WarehouseID WarehouseID     `json:"warehouseId"`
	Projected   decimal.Decimal `json:"projected"`
	Replayed    decimal.Decimal `json:"replayed"`
}

// Diverging lists pairs present in either document whose quantities differ.
func Diverging(projected, replayed BalanceDocument) []Divergence {
	keys := make(map[StockKey]struct{})
	for _, doc := range []BalanceDocument{projected, replayed} {
		for p, byWarehouse := range doc {
			for w := range byWarehouse {
				keys[StockKey{ProductID: p, WarehouseID: w}] = struct{}{}
			}
		}
	}

	out := make([]Divergence, 0)
	for key := range keys {
		proj, repl := projected.Get(key), replayed.Get(key)
		if !proj.Equal(repl) {
			out = append(out, Divergence{
				ProductID:   key.ProductID,
				WarehouseID: key.WarehouseID,
				Projected:   proj,
				Replayed:    repl,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out
}
