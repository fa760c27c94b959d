/*
service.go - Operations exposed to the request layer

PURPOSE:
  Inventory is the single entry point the HTTP layer calls. It owns one
  Store and one Locker, handed in at construction, and wires the ledger,
  balance projection, costing engine, payables ledger and catalog on top.

OPERATION FLOWS:
  RecordPurchase:
    lock stock:{p}:{w} → append PURCHASE → balance += qty → payable += total
  RecordSale:
    lock stock:{p}:{w} → check balance → compute cost → append SALE
    → balance -= qty → (FIFO) lower Remaining on drawn lots

  The stock lock is held from the availability check to the last write, so
  two sales on the same pair cannot both pass the check against the same
  balance. Different pairs never contend on it; they only serialize briefly
  on the shared balances document while it is rewritten.

PARTIAL FAILURE:
  The store has no multi-document transactions. If a step after the ledger
  append fails, the error is returned and the projection can be repaired
  with RebuildBalances; Reconcile reports the divergence.

SEE ALSO:
  - reports.go: Read-only queries and reconciliation
*/
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultWarehouse   WarehouseID = "main"
	DefaultRecentLimit             = 50
	MaxRecentLimit                 = 1000
)

// Observer is notified of every committed ledger entry.
type Observer interface {
	Committed(tx Transaction)
}

type Options struct {
	Store            Store
	Locker           Locker
	Logger           *zerolog.Logger
	Observer         Observer
	Clock            func() time.Time
	DefaultWarehouse WarehouseID
}

type Inventory struct {
	Ledger   *Ledger
	Balances *BalanceProjection
	Costing  *CostingEngine
	Payables *PayablesLedger
	Catalog  *Catalog

	locker           Locker
	log              zerolog.Logger
	observer         Observer
	defaultWarehouse WarehouseID
}

func New(opts Options) *Inventory {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	warehouse := opts.DefaultWarehouse
	if warehouse == "" {
		warehouse = DefaultWarehouse
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ledger := NewLedger(opts.Store)
	ledger.Clock = clock

	return &Inventory{
		Ledger:           ledger,
		Balances:         &BalanceProjection{Store: opts.Store, Locker: opts.Locker},
		Costing:          &CostingEngine{Ledger: ledger},
		Payables:         &PayablesLedger{Store: opts.Store, Locker: opts.Locker, Clock: clock},
		Catalog:          &Catalog{Store: opts.Store, Locker: opts.Locker, Clock: clock},
		locker:           opts.Locker,
		log:              logger,
		observer:         opts.Observer,
		defaultWarehouse: warehouse,
	}
}

// =============================================================================
// INPUTS
// =============================================================================

type PurchaseInput struct {
	ProductID   string          `json:"productId" validate:"required"`
	SupplierID  string          `json:"supplierId" validate:"required"`
	WarehouseID string          `json:"warehouseId"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost    decimal.Decimal `json:"unitCost" validate:"gte=0"`
	Reference   string          `json:"reference" validate:"max=200"`
}

type SaleInput struct {
	ProductID     string          `json:"productId" validate:"required"`
	WarehouseID   string          `json:"warehouseId"`
	Quantity      decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice     decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	CostingMethod string          `json:"costingMethod"`
}

type PaymentInput struct {
	SupplierID string          `json:"supplierId" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Reference  string          `json:"reference" validate:"max=200"`
}

func (inv *Inventory) warehouse(id string) WarehouseID {
	if id == "" {
		return inv.defaultWarehouse
	}
	return WarehouseID(id)
}

// =============================================================================
// CATALOG
// =============================================================================

func (inv *Inventory) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	return inv.Catalog.CreateProduct(ctx, in)
}

func (inv *Inventory) UpdateProduct(ctx context.Context, id ProductID, in ProductInput) (Product, error) {
	return inv.Catalog.UpdateProduct(ctx, id, in)
}

func (inv *Inventory) DeleteProduct(ctx context.Context, id ProductID) error {
	return inv.Catalog.DeleteProduct(ctx, id)
}

func (inv *Inventory) GetProduct(ctx context.Context, id ProductID) (Product, error) {
	return inv.Catalog.GetProduct(ctx, id)
}

func (inv *Inventory) ListProducts(ctx context.Context) ([]Product, error) {
	return inv.Catalog.ListProducts(ctx)
}

func (inv *Inventory) CreateSupplier(ctx context.Context, in SupplierInput) (Supplier, error) {
	return inv.Catalog.CreateSupplier(ctx, in)
}

func (inv *Inventory) UpdateSupplier(ctx context.Context, id SupplierID, in SupplierInput) (Supplier, error) {
	return inv.Catalog.UpdateSupplier(ctx, id, in)
}

func (inv *Inventory) DeleteSupplier(ctx context.Context, id SupplierID) error {
	return inv.Catalog.DeleteSupplier(ctx, id)
}

func (inv *Inventory) GetSupplier(ctx context.Context, id SupplierID) (Supplier, error) {
	return inv.Catalog.GetSupplier(ctx, id)
}

func (inv *Inventory) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return inv.Catalog.ListSuppliers(ctx)
}

// =============================================================================
// PURCHASE
// =============================================================================

func (inv *Inventory) RecordPurchase(ctx context.Context, in PurchaseInput) (Transaction, error) {
	if err := validateInput(in); err != nil {
		return Transaction{}, err
	}
	if _, err := inv.Catalog.GetProduct(ctx, ProductID(in.ProductID)); err != nil {
		return Transaction{}, err
	}
	if _, err := inv.Catalog.GetSupplier(ctx, SupplierID(in.SupplierID)); err != nil {
		return Transaction{}, err
	}

	key := StockKey{ProductID: ProductID(in.ProductID), WarehouseID: inv.warehouse(in.WarehouseID)}
	release, err := inv.acquire(ctx, stockLock(key))
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	tx, err := inv.Ledger.Append(ctx, Transaction{
		Type:        TxPurchase,
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		SupplierID:  SupplierID(in.SupplierID),
		Quantity:    in.Quantity,
		UnitCost:    in.UnitCost,
		TotalCost:   roundMoney(in.Quantity.Mul(in.UnitCost)),
		Reference:   in.Reference,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := inv.Balances.Increase(ctx, key, tx.Quantity); err != nil {
		return Transaction{}, inv.partial(tx, "balance increase", err)
	}
	if _, err := inv.Payables.RecordPurchase(ctx, tx.SupplierID, tx.TotalCost, tx.Reference, tx.ID); err != nil {
		return Transaction{}, inv.partial(tx, "payable update", err)
	}

	inv.committed(tx)
	return tx, nil
}

// =============================================================================
// SALE
// =============================================================================

func (inv *Inventory) RecordSale(ctx context.Context, in SaleInput) (Transaction, error) {
	if err := validateInput(in); err != nil {
		return Transaction{}, err
	}
	method, err := ParseCostingMethod(in.CostingMethod)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := inv.Catalog.GetProduct(ctx, ProductID(in.ProductID)); err != nil {
		return Transaction{}, err
	}

	key := StockKey{ProductID: ProductID(in.ProductID), WarehouseID: inv.warehouse(in.WarehouseID)}
	release, err := inv.acquire(ctx, stockLock(key))
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	available, err := inv.Balances.Available(ctx, key)
	if err != nil {
		return Transaction{}, err
	}
	if in.Quantity.GreaterThan(available) {
		return Transaction{}, &InsufficientStockError{
			ProductID:   key.ProductID,
			WarehouseID: key.WarehouseID,
			Available:   available,
			Requested:   in.Quantity,
		}
	}

	cost, err := inv.Costing.Cost(ctx, key, in.Quantity, method)
	if err != nil {
		if errors.Is(err, ErrCostingInvariant) {
			inv.log.Error().Err(err).
				Str("product_id", string(key.ProductID)).
				Str("warehouse_id", string(key.WarehouseID)).
				Str("projected", available.String()).
				Msg("lots disagree with balance projection")
		}
		return Transaction{}, err
	}

	tx, err := inv.Ledger.Append(ctx, Transaction{
		Type:          TxSale,
		ProductID:     key.ProductID,
		WarehouseID:   key.WarehouseID,
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		TotalRevenue:  roundMoney(in.Quantity.Mul(in.UnitPrice)),
		COGS:          cost.COGS,
		UnitCOGS:      cost.UnitCost,
		CostingMethod: cost.Method,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := inv.Balances.Decrease(ctx, key, tx.Quantity); err != nil {
		return Transaction{}, inv.partial(tx, "balance decrease", err)
	}
	if err := inv.Costing.Commit(ctx, cost); err != nil {
		return Transaction{}, inv.partial(tx, "lot consumption", err)
	}

	inv.committed(tx)
	return tx, nil
}

// =============================================================================
// PAYABLES
// =============================================================================

func (inv *Inventory) PayPayable(ctx context.Context, in PaymentInput) (Payable, error) {
	if err := validateInput(in); err != nil {
		return Payable{}, err
	}
	payable, err := inv.Payables.RecordPayment(ctx, SupplierID(in.SupplierID), in.Amount, in.Reference)
	if err != nil {
		return Payable{}, err
	}
	inv.log.Info().
		Str("supplier_id", in.SupplierID).
		Str("amount", in.Amount.String()).
		Str("outstanding", payable.Amount.String()).
		Msg("payment recorded")
	return payable, nil
}

func (inv *Inventory) GetPayables(ctx context.Context) ([]Payable, error) {
	return inv.Payables.List(ctx)
}

// =============================================================================
// BALANCES & LEDGER READS
// =============================================================================

func (inv *Inventory) GetBalances(ctx context.Context) ([]Balance, error) {
	doc, err := inv.Balances.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Rows(), nil
}

// ListRecentTransactions returns the newest entries first. A non-positive
// limit means DefaultRecentLimit.
func (inv *Inventory) ListRecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return inv.Ledger.Recent(ctx, limit)
}

// =============================================================================
// HELPERS
// =============================================================================

func (inv *Inventory) acquire(ctx context.Context, resource string) (ReleaseFunc, error) {
	release, err := inv.locker.Acquire(ctx, resource)
	if err != nil {
		inv.log.Warn().Err(err).Str("resource", resource).Msg("lock not acquired")
		return nil, err
	}
	return release, nil
}

func (inv *Inventory) partial(tx Transaction, step string, err error) error {
	inv.log.Error().Err(err).
		Str("transaction_id", string(tx.ID)).
		Str("type", string(tx.Type)).
		Str("step", step).
		Msg("ledger entry written but derived state not updated")
	return err
}

func (inv *Inventory) committed(tx Transaction) {
	evt := inv.log.Info().
		Str("transaction_id", string(tx.ID)).
		Str("type", string(tx.Type)).
		Str("product_id", string(tx.ProductID)).
		Str("warehouse_id", string(tx.WarehouseID)).
		Str("quantity", tx.Quantity.String())
	if tx.IsSale() {
		evt = evt.Str("cogs", tx.COGS.String()).Str("costing", string(tx.CostingMethod))
	}
	evt.Msg("transaction committed")

	if inv.observer != nil {
		inv.observer.Committed(tx)
	}
}
