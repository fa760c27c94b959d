/*
Package inventory provides the stock ledger and costing engine.

PURPOSE:
  This package records every stock-affecting event (purchases and sales) in an
  append-only ledger, keeps derived on-hand balances and supplier payables in
  step with it, and assigns a cost of goods sold to each sale using FIFO lot
  consumption or weighted-average costing.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: One ledger entry (PURCHASE or SALE)
  - Lot: A purchase transaction whose Remaining quantity FIFO sales consume
  - Product / Supplier: Catalog records referenced by id from the ledger
  - StockKey: The (product, warehouse) pair balances and lots are tracked by

DESIGN PRINCIPLES:
  1. The ledger is the source of truth. Balances and payables are caches that
     can be recomputed by replaying it.
  2. Precision: every quantity and amount is a decimal.Decimal
  3. Weak references: deleting a product never rewrites history

SEE ALSO:
  - ledger.go: Transaction log over the Store
  - costing.go: FIFO and weighted-average cost allocation
  - service.go: Operations invoked by the HTTP layer
*/
package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string
type SupplierID string
type WarehouseID string
type TransactionID string

// StockKey identifies one balance / lot set.
type StockKey struct {
	ProductID   ProductID
	WarehouseID WarehouseID
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s:%s", k.ProductID, k.WarehouseID)
}

// =============================================================================
// CATALOG
// =============================================================================

type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	DefaultCost decimal.Decimal `json:"defaultCost"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Supplier struct {
	ID          SupplierID      `json:"id"`
	Name        string          `json:"name"`
	Contact     string          `json:"contact,omitempty"`
	CreditLimit decimal.Decimal `json:"creditLimit"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// =============================================================================
// TRANSACTION - One ledger entry
// =============================================================================

type TransactionType string

const (
	TxPurchase TransactionType = "PURCHASE"
	TxSale     TransactionType = "SALE"
)

// Transaction is immutable once appended, except Remaining on a purchase,
// which only FIFO consumption may lower.
type Transaction struct {
	ID          TransactionID   `json:"id"`
	Type        TransactionType `json:"type"`
	ProductID   ProductID       `json:"productId"`
	WarehouseID WarehouseID     `json:"warehouseId"`
	Timestamp   time.Time       `json:"timestamp"`
	Quantity    decimal.Decimal `json:"quantity"`

	// PURCHASE
	SupplierID SupplierID       `json:"supplierId,omitempty"`
	UnitCost   decimal.Decimal  `json:"unitCost,omitzero"`
	TotalCost  decimal.Decimal  `json:"totalCost,omitzero"`
	Reference  string           `json:"reference,omitempty"`
	Remaining  *decimal.Decimal `json:"remaining,omitempty"`

	// SALE
	UnitPrice     decimal.Decimal `json:"unitPrice,omitzero"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue,omitzero"`
	COGS          decimal.Decimal `json:"cogs,omitzero"`
	CostingMethod CostingMethod   `json:"costingMethod,omitempty"`
	UnitCOGS      decimal.Decimal `json:"unitCogs,omitzero"`
}

func (t Transaction) Key() StockKey {
	return StockKey{ProductID: t.ProductID, WarehouseID: t.WarehouseID}
}

func (t Transaction) IsPurchase() bool { return t.Type == TxPurchase }
func (t Transaction) IsSale() bool     { return t.Type == TxSale }

// Available returns the lot quantity still unconsumed. Entries written
// before lot tracking carry no Remaining and count their full quantity.
func (t Transaction) Available() decimal.Decimal {
	if t.Remaining != nil {
		return *t.Remaining
	}
	return t.Quantity
}

// Delta is the signed effect of the entry on its balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.IsSale() {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// =============================================================================
// PAYABLES
// =============================================================================

type InvoiceRecord struct {
	TransactionID TransactionID   `json:"transactionId,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	At            time.Time       `json:"at"`
}

type PaymentRecord struct {
	Reference string          `json:"reference,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Applied   decimal.Decimal `json:"applied"`
	At        time.Time       `json:"at"`
}

type Payable struct {
	SupplierID SupplierID      `json:"supplierId"`
	Amount     decimal.Decimal `json:"amount"`
	Invoices   []InvoiceRecord `json:"invoices"`
	Payments   []PaymentRecord `json:"payments"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// =============================================================================
// ROUNDING
// =============================================================================

const (
	MoneyPlaces    int32 = 2
	UnitCostPlaces int32 = 4
)

func roundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }
