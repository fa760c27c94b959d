/*
costing.go - Cost of goods sold

PURPOSE:
  Assigns a cost to the units a sale takes out of stock, from the purchase
  lots recorded in the ledger for the sale's (product, warehouse).

METHODS:
  FIFO:
    Walk lots oldest first. Take min(available, still needed) from each at
    that lot's unit cost until the need is met. The consumed quantities are
    written back to each lot's Remaining after the sale is committed, in the
    same oldest-first order.

  Weighted average:
    avg = Σ(available × unitCost) / Σ available over all lots
    cogs = qty × Σ(available × unitCost) / Σ available
    Lots are not consumed: Remaining is left untouched.

EXAMPLE:
  Lot A: 10 @ 2, Lot B: 5 @ 4, sell 12
    FIFO:    10×2 + 2×4 = 28, A.remaining = 0, B.remaining = 3
    Average: 12 × 40 / 15 = 32.00, no lot changes

INVARIANT CHECK:
  If the lots hold less than the requested quantity the computation fails
  with *CostingInvariantError. The balance check runs first, so reaching it
  means the ledger and the balance projection have diverged.

KNOWN LIMITATION:
  Average sales do not lower Remaining, so a later FIFO sale on the same pair
  still sees that capacity.
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type CostingMethod string

const (
	CostingFIFO    CostingMethod = "fifo"
	CostingAverage CostingMethod = "average"
)

// ParseCostingMethod accepts "", "fifo" and "average" (plus a few aliases).
// Empty means FIFO.
func ParseCostingMethod(s string) (CostingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return CostingFIFO, nil
	case "average", "avg", "weighted_average", "weighted-average":
		return CostingAverage, nil
	default:
		return "", invalid("costingMethod", fmt.Sprintf("unknown costing method %q", s))
	}
}

// LotDraw is the quantity a FIFO sale takes from one lot.
type LotDraw struct {
	Lot      Transaction
	Quantity decimal.Decimal
	Cost     decimal.Decimal
}

type CostResult struct {
	Method   CostingMethod
	COGS     decimal.Decimal
	UnitCost decimal.Decimal
	Draws    []LotDraw // FIFO only
}

// =============================================================================
// PURE ALGORITHMS
// =============================================================================

// FIFOCost costs qty against lots, which must be ordered oldest first.
func FIFOCost(lots []Transaction, qty decimal.Decimal) (CostResult, error) {
	result := CostResult{Method: CostingFIFO}
	need := qty

	for _, lot := range lots {
		if !need.IsPositive() {
			break
		}
		available := lot.Available()
		if !available.IsPositive() {
			continue
		}
		take := decimal.Min(available, need)
		cost := take.Mul(lot.UnitCost)
		result.Draws = append(result.Draws, LotDraw{Lot: lot, Quantity: take, Cost: cost})
		result.COGS = result.COGS.Add(cost)
		need = need.Sub(take)
	}

	if need.IsPositive() {
		return CostResult{}, &CostingInvariantError{
			Method:    CostingFIFO,
			Available: qty.Sub(need),
			Requested: qty,
		}
	}

	result.COGS = roundMoney(result.COGS)
	result.UnitCost = result.COGS.Div(qty).Round(UnitCostPlaces)
	return result, nil
}

// AverageCost costs qty at the weighted average unit cost of all lots.
func AverageCost(lots []Transaction, qty decimal.Decimal) (CostResult, error) {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, lot := range lots {
		available := lot.Available()
		if !available.IsPositive() {
			continue
		}
		totalQty = totalQty.Add(available)
		totalValue = totalValue.Add(available.Mul(lot.UnitCost))
	}

	if totalQty.LessThan(qty) || totalQty.IsZero() {
		return CostResult{}, &CostingInvariantError{
			Method:    CostingAverage,
			Available: totalQty,
			Requested: qty,
		}
	}

	return CostResult{
		Method:   CostingAverage,
		COGS:     roundMoney(qty.Mul(totalValue).Div(totalQty)),
		UnitCost: totalValue.Div(totalQty).Round(UnitCostPlaces),
	}, nil
}

// =============================================================================
// ENGINE - Binds the algorithms to the ledger
// =============================================================================

type CostingEngine struct {
	Ledger *Ledger
}

// Cost computes the cost of selling qty from key. It does not mutate lots.
func (e *CostingEngine) Cost(ctx context.Context, key StockKey, qty decimal.Decimal, method CostingMethod) (CostResult, error) {
	lots, err := e.Ledger.Lots(ctx, key)
	if err != nil {
		return CostResult{}, err
	}

	var result CostResult
	switch method {
	case CostingFIFO:
		result, err = FIFOCost(lots, qty)
	case CostingAverage:
		result, err = AverageCost(lots, qty)
	default:
		return CostResult{}, invalid("costingMethod", fmt.Sprintf("unknown costing method %q", method))
	}
	if err != nil {
		var inv *CostingInvariantError
		if errors.As(err, &inv) {
			inv.ProductID = key.ProductID
			inv.WarehouseID = key.WarehouseID
		}
		return CostResult{}, err
	}
	return result, nil
}

// Commit writes a FIFO result's draws back to the lots, oldest first.
// Average results have no draws and leave the ledger untouched.
func (e *CostingEngine) Commit(ctx context.Context, result CostResult) error {
	for _, draw := range result.Draws {
		if _, err := e.Ledger.ConsumeLot(ctx, draw.Lot, draw.Quantity); err != nil {
			return err
		}
	}
	return nil
}
