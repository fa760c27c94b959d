/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate an empty ledger with
	realistic data. Each scenario creates products and suppliers, then
	records purchases, sales and payments through the same service calls
	the API uses.

AVAILABLE SCENARIOS:

	fifo-costing:     Two lots, one FIFO sale spanning both
	average-costing:  Same lots, one weighted-average sale
	multi-warehouse:  One product stocked in two warehouses
	payables:         Purchases from two suppliers, partial and over payment

HOW SCENARIOS WORK:
 1. Refuse unless the ledger is empty (entries cannot be removed)
 2. Create catalog entries
 3. Record purchases
 4. Record sales and payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fifo-costing"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, inv)
 3. Add it to scenarioLoaders
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/inventory"
)

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fifo-costing",
		Name:        "FIFO Costing",
		Description: "10 units @ 2 then 5 @ 4; sell 12 FIFO for COGS 28, 3 left in the second lot",
	},
	{
		ID:          "average-costing",
		Name:        "Weighted Average Costing",
		Description: "Same lots; sell 12 at average cost for COGS 32, lots untouched",
	},
	{
		ID:          "multi-warehouse",
		Name:        "Multiple Warehouses",
		Description: "One product stocked in two warehouses, sold from each independently",
	},
	{
		ID:          "payables",
		Name:        "Supplier Payables",
		Description: "Two suppliers; one paid in part, one overpaid and clamped to zero",
	},
}

var scenarioLoaders = map[string]func(context.Context, *inventory.Inventory) error{
	"fifo-costing":    loadFIFOScenario,
	"average-costing": loadAverageScenario,
	"multi-warehouse": loadMultiWarehouseScenario,
	"payables":        loadPayablesScenario,
}

var errLedgerNotEmpty = errors.New("ledger already has entries")

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into an empty ledger.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := LoadScenario(ctx, h.Inventory, load); err != nil {
		if errors.Is(err, errLedgerNotEmpty) {
			writeError(w, http.StatusConflict, "Scenarios load only into an empty ledger", err)
			return
		}
		h.fail(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenario runs a loader after checking the ledger is empty.
func LoadScenario(ctx context.Context, inv *inventory.Inventory, load func(context.Context, *inventory.Inventory) error) error {
	existing, err := inv.ListRecentTransactions(ctx, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return errLedgerNotEmpty
	}
	return load(ctx, inv)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadFIFOScenario(ctx context.Context, inv *inventory.Inventory) error {
	return twoLotsThenSell(ctx, inv, "fifo")
}

func loadAverageScenario(ctx context.Context, inv *inventory.Inventory) error {
	return twoLotsThenSell(ctx, inv, "average")
}

func twoLotsThenSell(ctx context.Context, inv *inventory.Inventory, method string) error {
	if err := seedCatalog(ctx, inv); err != nil {
		return err
	}
	for _, p := range []inventory.PurchaseInput{
		{ProductID: "widget", SupplierID: "acme", Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(2), Reference: "PO-1"},
		{ProductID: "widget", SupplierID: "acme", Quantity: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(4), Reference: "PO-2"},
	} {
		if _, err := inv.RecordPurchase(ctx, p); err != nil {
			return err
		}
	}
	_, err := inv.RecordSale(ctx, inventory.SaleInput{
		ProductID:     "widget",
		Quantity:      decimal.NewFromInt(12),
		UnitPrice:     decimal.NewFromInt(5),
		CostingMethod: method,
	})
	return err
}

func loadMultiWarehouseScenario(ctx context.Context, inv *inventory.Inventory) error {
	if err := seedCatalog(ctx, inv); err != nil {
		return err
	}
	for _, p := range []inventory.PurchaseInput{
		{ProductID: "widget", SupplierID: "acme", WarehouseID: "north", Quantity: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(3)},
		{ProductID: "widget", SupplierID: "acme", WarehouseID: "south", Quantity: decimal.NewFromInt(8), UnitCost: decimal.RequireFromString("3.50")},
		{ProductID: "gadget", SupplierID: "globex", WarehouseID: "north", Quantity: decimal.NewFromInt(4), UnitCost: decimal.NewFromInt(25)},
	} {
		if _, err := inv.RecordPurchase(ctx, p); err != nil {
			return err
		}
	}
	for _, s := range []inventory.SaleInput{
		{ProductID: "widget", WarehouseID: "north", Quantity: decimal.NewFromInt(15), UnitPrice: decimal.NewFromInt(6)},
		{ProductID: "widget", WarehouseID: "south", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(6)},
		{ProductID: "gadget", WarehouseID: "north", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(40), CostingMethod: "average"},
	} {
		if _, err := inv.RecordSale(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func loadPayablesScenario(ctx context.Context, inv *inventory.Inventory) error {
	if err := seedCatalog(ctx, inv); err != nil {
		return err
	}
	for _, p := range []inventory.PurchaseInput{
		{ProductID: "widget", SupplierID: "acme", Quantity: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(2), Reference: "INV-100"},
		{ProductID: "gadget", SupplierID: "globex", Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(25), Reference: "INV-200"},
	} {
		if _, err := inv.RecordPurchase(ctx, p); err != nil {
			return err
		}
	}
	for _, pay := range []inventory.PaymentInput{
		{SupplierID: "acme", Amount: decimal.NewFromInt(150), Reference: "CHK-1"},
		{SupplierID: "globex", Amount: decimal.NewFromInt(300), Reference: "CHK-2"},
	} {
		if _, err := inv.PayPayable(ctx, pay); err != nil {
			return err
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, inv *inventory.Inventory) error {
	for _, p := range []inventory.ProductInput{
		{ID: "widget", Name: "Widget", Unit: "pcs", DefaultCost: decimal.NewFromInt(2), SalePrice: decimal.NewFromInt(5)},
		{ID: "gadget", Name: "Gadget", Unit: "pcs", DefaultCost: decimal.NewFromInt(25), SalePrice: decimal.NewFromInt(40)},
	} {
		if _, err := inv.GetProduct(ctx, inventory.ProductID(p.ID)); err == nil {
			continue
		}
		if _, err := inv.CreateProduct(ctx, p); err != nil {
			return err
		}
	}
	for _, s := range []inventory.SupplierInput{
		{ID: "acme", Name: "Acme Supply", Contact: "orders@acme.example", CreditLimit: decimal.NewFromInt(5000)},
		{ID: "globex", Name: "Globex", Contact: "ap@globex.example", CreditLimit: decimal.NewFromInt(1000)},
	} {
		if _, err := inv.GetSupplier(ctx, inventory.SupplierID(s.ID)); err == nil {
			continue
		}
		if _, err := inv.CreateSupplier(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
