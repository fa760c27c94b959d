/*
reports.go - Read-only queries over the ledger

Reports scan the ledger without taking locks. A report running while a
purchase or sale is being written may or may not include it; reports are
advisory, not transactional.
*/
package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROFIT AND LOSS
// =============================================================================

type ProfitAndLoss struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	Purchases   decimal.Decimal `json:"purchases"`
	GrossProfit decimal.Decimal `json:"grossProfit"`
}

// ReportProfitAndLoss sums entries with timestamps in [from, to].
func (inv *Inventory) ReportProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	if to.Before(from) {
		return ProfitAndLoss{}, invalid("to", "must not be before from")
	}
	txs, err := inv.Ledger.InRange(ctx, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}

	report := ProfitAndLoss{From: from, To: to}
	for _, tx := range txs {
		switch tx.Type {
		case TxSale:
			report.Revenue = report.Revenue.Add(tx.TotalRevenue)
			report.COGS = report.COGS.Add(tx.COGS)
		case TxPurchase:
			report.Purchases = report.Purchases.Add(tx.TotalCost)
		}
	}
	report.GrossProfit = report.Revenue.Sub(report.COGS)
	return report, nil
}

// ReportProductMovements returns every entry for a product, oldest first.
// The product need not still exist in the catalog.
func (inv *Inventory) ReportProductMovements(ctx context.Context, productID ProductID) ([]Transaction, error) {
	if productID == "" {
		return nil, invalid("productId", "is required")
	}
	return inv.Ledger.ForProduct(ctx, productID)
}

// =============================================================================
// VALUATION
// =============================================================================

type StockValue struct {
	ProductID   ProductID       `json:"productId"`
	WarehouseID WarehouseID     `json:"warehouseId"`
	Quantity    decimal.Decimal `json:"quantity"`
	Value       decimal.Decimal `json:"value"`
}

// StockValuation values the unconsumed lot quantities at their purchase
// cost. Sales costed by average do not consume lots, so pairs sold that way
// are overstated here.
func (inv *Inventory) StockValuation(ctx context.Context) ([]StockValue, error) {
	txs, err := inv.Ledger.All(ctx)
	if err != nil {
		return nil, err
	}

	byKey := make(map[StockKey]*StockValue)
	for _, tx := range txs {
		if !tx.IsPurchase() || !tx.Available().IsPositive() {
			continue
		}
		v, ok := byKey[tx.Key()]
		if !ok {
			v = &StockValue{ProductID: tx.ProductID, WarehouseID: tx.WarehouseID}
			byKey[tx.Key()] = v
		}
		v.Quantity = v.Quantity.Add(tx.Available())
		v.Value = v.Value.Add(tx.Available().Mul(tx.UnitCost))
	}

	out := make([]StockValue, 0, len(byKey))
	for _, v := range byKey {
		v.Value = roundMoney(v.Value)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type Reconciliation struct {
	CheckedAt   time.Time    `json:"checkedAt"`
	Entries     int          `json:"entries"`
	Divergences []Divergence `json:"divergences"`
}

func (r Reconciliation) Consistent() bool { return len(r.Divergences) == 0 }

// Reconcile replays the full ledger and compares it to the balance projection.
func (inv *Inventory) Reconcile(ctx context.Context) (Reconciliation, error) {
	txs, err := inv.Ledger.All(ctx)
	if err != nil {
		return Reconciliation{}, err
	}
	projected, err := inv.Balances.Snapshot(ctx)
	if err != nil {
		return Reconciliation{}, err
	}

	result := Reconciliation{
		CheckedAt:   time.Now().UTC(),
		Entries:     len(txs),
		Divergences: Diverging(projected, ReplayBalances(txs)),
	}
	for _, d := range result.Divergences {
		inv.log.Warn().
			Str("product_id", string(d.ProductID)).
			Str("warehouse_id", string(d.WarehouseID)).
			Str("projected", d.Projected.String()).
			Str("replayed", d.Replayed.String()).
			Msg("balance projection diverges from ledger")
	}
	return result, nil
}

// RebuildBalances overwrites the projection with a ledger replay. It holds
// the stock lock of every pair known to the ledger or the projection, so no
// purchase or sale on those pairs runs between the replay and the rewrite.
// Pairs first seen after the locks are taken keep their projected value.
func (inv *Inventory) RebuildBalances(ctx context.Context) ([]Balance, error) {
	keys, err := inv.knownPairs(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		release, err := inv.acquire(ctx, stockLock(key))
		if err != nil {
			return nil, err
		}
		defer release()
	}

	txs, err := inv.Ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	if err := inv.Balances.Reset(ctx, keys, ReplayBalances(txs)); err != nil {
		return nil, err
	}
	inv.log.Info().Int("entries", len(txs)).Int("pairs", len(keys)).Msg("balance projection rebuilt from ledger")

	doc, err := inv.Balances.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Rows(), nil
}

// knownPairs returns every pair in the ledger or the projection, sorted so
// that lock acquisition order is stable.
func (inv *Inventory) knownPairs(ctx context.Context) ([]StockKey, error) {
	txs, err := inv.Ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	projected, err := inv.Balances.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := ReplayBalances(txs)
	for _, key := range projected.Keys() {
		seen.add(key, decimal.Zero)
	}
	return seen.Keys(), nil
}
