/*
dto.go - Data Transfer Objects for API requests and responses

Domain records (products, suppliers, transactions, balances, payables)
already carry JSON tags and are returned as-is. The types here cover the
shapes that differ from the domain model: wrappers, path-scoped request
bodies and errors.

Quantities and amounts are accepted as JSON numbers or strings and are
returned as strings, so no precision is lost in transit.
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/inventory"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`

	// Set for insufficient stock
	Available *decimal.Decimal `json:"available,omitempty"`
}

// PaymentRequest is the body of POST /api/payables/{supplierId}/payments.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type TransactionsResponse struct {
	Transactions []inventory.Transaction `json:"transactions"`
	Count        int                     `json:"count"`
}

type ProductMovementsResponse struct {
	ProductID    inventory.ProductID     `json:"productId"`
	Transactions []inventory.Transaction `json:"transactions"`
	OnHand       decimal.Decimal         `json:"onHand"`
}

type ReconciliationResponse struct {
	inventory.Reconciliation
	Consistent bool `json:"consistent"`
}
