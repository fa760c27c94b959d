/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the inventory service via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to the inventory package.

ENDPOINTS:
  Catalog:
    GET    /api/products               List products
    POST   /api/products               Create product
    GET    /api/products/{id}          Get product
    PUT    /api/products/{id}          Update product
    DELETE /api/products/{id}          Delete product
    (same five for /api/suppliers)

  Ledger:
    POST   /api/purchases              Record a purchase (lot + payable)
    POST   /api/sales                  Record a sale (costed FIFO or average)
    GET    /api/transactions?limit=N   Most recent entries, newest first

  Derived state:
    GET    /api/balances               On-hand quantity per product/warehouse
    GET    /api/payables               Amount owed per supplier
    POST   /api/payables/{id}/payments Pay down a supplier

  Reports:
    GET    /api/products/{id}/movements       Entries for one product
    GET    /api/reports/profit-and-loss       ?from=&to= (inclusive)
    GET    /api/reports/valuation             Remaining lots at cost
    GET    /api/reports/reconciliation        Projection vs ledger replay
    GET    /api/reports/reconciliation/last   Last background check

  Admin:
    POST   /api/admin/rebuild-balances        Rewrite projection from ledger

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario into an empty ledger

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Insufficient stock
  - 503: Lock not acquired in time (retry)
  - 500: Internal errors, costing invariant violations
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/stock-ledger/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Inventory *inventory.Inventory

	// Optional; serves the last background reconciliation
	Scheduler *ReconciliationScheduler

	log zerolog.Logger
}

// NewHandler creates a handler backed by the given inventory service.
func NewHandler(inv *inventory.Inventory, log zerolog.Logger) *Handler {
	return &Handler{Inventory: inv, log: log}
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

// ListProducts returns all products.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Inventory.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct returns a single product.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	product, err := h.Inventory.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProduct adds a product. An empty id is generated.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req inventory.ProductInput
	if !decode(w, r, &req) {
		return
	}
	product, err := h.Inventory.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProduct replaces a product's attributes.
// PUT /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req inventory.ProductInput
	if !decode(w, r, &req) {
		return
	}
	id := inventory.ProductID(chi.URLParam(r, "id"))
	product, err := h.Inventory.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "Failed to update product", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProduct removes a product from the catalog. Ledger history is kept.
// DELETE /api/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	if err := h.Inventory.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SUPPLIER ENDPOINTS
// =============================================================================

// ListSuppliers returns all suppliers.
// GET /api/suppliers
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Inventory.ListSuppliers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list suppliers", err)
		return
	}
	writeJSON(w, http.StatusOK, suppliers)
}

// GET /api/suppliers/{id}
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id := inventory.SupplierID(chi.URLParam(r, "id"))
	supplier, err := h.Inventory.GetSupplier(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get supplier", err)
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

// POST /api/suppliers
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req inventory.SupplierInput
	if !decode(w, r, &req) {
		return
	}
	supplier, err := h.Inventory.CreateSupplier(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to create supplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, supplier)
}

// PUT /api/suppliers/{id}
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req inventory.SupplierInput
	if !decode(w, r, &req) {
		return
	}
	id := inventory.SupplierID(chi.URLParam(r, "id"))
	supplier, err := h.Inventory.UpdateSupplier(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "Failed to update supplier", err)
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

// DELETE /api/suppliers/{id}
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id := inventory.SupplierID(chi.URLParam(r, "id"))
	if err := h.Inventory.DeleteSupplier(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete supplier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// RecordPurchase appends a purchase lot, raises the balance and the
// supplier's payable.
// POST /api/purchases
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req inventory.PurchaseInput
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.Inventory.RecordPurchase(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to record purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// RecordSale costs and appends a sale. Responds 409 when the warehouse
// does not hold enough stock.
// POST /api/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req inventory.SaleInput
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.Inventory.RecordSale(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions returns the most recent ledger entries.
// GET /api/transactions?limit=50
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	txs, err := h.Inventory.ListRecentTransactions(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: txs, Count: len(txs)})
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// GET /api/balances
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Inventory.GetBalances(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to get balances", err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

// GET /api/payables
func (h *Handler) ListPayables(w http.ResponseWriter, r *http.Request) {
	payables, err := h.Inventory.GetPayables(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to get payables", err)
		return
	}
	writeJSON(w, http.StatusOK, payables)
}

// PayPayable applies a payment. Amounts above the outstanding balance
// clear it; the response's last payment records what was applied.
// POST /api/payables/{supplierId}/payments
func (h *Handler) PayPayable(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	payable, err := h.Inventory.PayPayable(r.Context(), inventory.PaymentInput{
		SupplierID: chi.URLParam(r, "supplierId"),
		Amount:     req.Amount,
		Reference:  req.Reference,
	})
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, payable)
}

// =============================================================================
// REPORTS
// =============================================================================

// ProductMovements lists every entry for a product, oldest first, with the
// resulting on-hand total across warehouses.
// GET /api/products/{id}/movements
func (h *Handler) ProductMovements(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	txs, err := h.Inventory.ReportProductMovements(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to load movements", err)
		return
	}
	resp := ProductMovementsResponse{ProductID: id, Transactions: txs}
	for _, tx := range txs {
		resp.OnHand = resp.OnHand.Add(tx.Delta())
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProfitAndLoss reports revenue, COGS and purchases in [from, to].
// Both bounds accept RFC 3339 or YYYY-MM-DD; a bare date for "to" covers
// the whole day. Missing bounds default to the beginning of time and now.
// GET /api/reports/profit-and-loss?from=2024-01-01&to=2024-01-31
func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	report, ok := h.profitAndLoss(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) (inventory.ProfitAndLoss, bool) {
	q := r.URL.Query()
	from, err := parseBound(q.Get("from"), false, time.Unix(0, 0).UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC 3339 or YYYY-MM-DD)", err)
		return inventory.ProfitAndLoss{}, false
	}
	to, err := parseBound(q.Get("to"), true, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC 3339 or YYYY-MM-DD)", err)
		return inventory.ProfitAndLoss{}, false
	}
	report, err := h.Inventory.ReportProfitAndLoss(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, "Failed to build report", err)
		return inventory.ProfitAndLoss{}, false
	}
	return report, true
}

// GET /api/reports/valuation
func (h *Handler) StockValuation(w http.ResponseWriter, r *http.Request) {
	values, err := h.Inventory.StockValuation(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to value stock", err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// Reconcile compares the balance projection against a ledger replay.
// GET /api/reports/reconciliation
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Inventory.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconciliationResponse{Reconciliation: rec, Consistent: rec.Consistent()})
}

// LastReconciliation returns the background scheduler's most recent
// result, or null when none has run.
// GET /api/reports/reconciliation/last
func (h *Handler) LastReconciliation(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil || h.Scheduler.Last() == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	rec := *h.Scheduler.Last()
	writeJSON(w, http.StatusOK, ReconciliationResponse{Reconciliation: rec, Consistent: rec.Consistent()})
}

// =============================================================================
// ADMIN
// =============================================================================

// RebuildBalances rewrites the projection from the ledger. Purchases and
// sales wait while it runs.
// POST /api/admin/rebuild-balances
func (h *Handler) RebuildBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Inventory.RebuildBalances(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to rebuild balances", err)
		return
	}
	h.log.Info().Int("rows", len(balances)).Msg("balance projection rebuilt from ledger")
	writeJSON(w, http.StatusOK, balances)
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseBound(raw string, endOfDay bool, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

// statusFor maps the inventory error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, inventory.ErrLockTimeout):
		return http.StatusServiceUnavailable, "lock_timeout"
	case errors.Is(err, inventory.ErrCostingInvariant):
		return http.StatusInternalServerError, "costing_invariant"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes a domain error. Server-side failures are logged; client
// errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("code", code).
			Msg(message)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}
	var short *inventory.InsufficientStockError
	if errors.As(err, &short) {
		available := short.Available
		resp.Available = &available
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
