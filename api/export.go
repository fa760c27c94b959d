package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/warp/stock-ledger/inventory"
)

const sheet = "Sheet1"

// ExportProductMovements streams a product's entries as a spreadsheet.
// GET /api/products/{id}/movements.xlsx
func (h *Handler) ExportProductMovements(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	txs, err := h.Inventory.ReportProductMovements(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to load movements", err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := movementsSheet(f, txs); err != nil {
		h.fail(w, r, "Failed to build spreadsheet", err)
		return
	}
	h.writeWorkbook(w, r, f, fmt.Sprintf("movements-%s.xlsx", id))
}

// ExportProfitAndLoss streams the profit and loss report as a spreadsheet.
// Takes the same query parameters as the JSON report.
// GET /api/reports/profit-and-loss.xlsx
func (h *Handler) ExportProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	report, ok := h.profitAndLoss(w, r)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"From", report.From.Format(time.RFC3339)},
		{"To", report.To.Format(time.RFC3339)},
		{"Revenue", report.Revenue.InexactFloat64()},
		{"COGS", report.COGS.InexactFloat64()},
		{"Purchases", report.Purchases.InexactFloat64()},
		{"GrossProfit", report.GrossProfit.InexactFloat64()},
	}
	if err := setRows(f, rows); err != nil {
		h.fail(w, r, "Failed to build spreadsheet", err)
		return
	}
	h.writeWorkbook(w, r, f, "profit-and-loss.xlsx")
}

var movementHeaders = []any{
	"Timestamp", "Type", "Warehouse", "Quantity", "UnitCost", "TotalCost",
	"Remaining", "UnitPrice", "Revenue", "COGS", "Method", "Reference",
}

func movementsSheet(f *excelize.File, txs []inventory.Transaction) error {
	rows := make([][]any, 0, len(txs)+1)
	rows = append(rows, movementHeaders)
	for _, tx := range txs {
		row := []any{
			tx.Timestamp.Format(time.RFC3339),
			string(tx.Type),
			string(tx.WarehouseID),
			tx.Quantity.InexactFloat64(),
		}
		if tx.IsPurchase() {
			row = append(row,
				tx.UnitCost.InexactFloat64(),
				tx.TotalCost.InexactFloat64(),
				tx.Available().InexactFloat64(),
				"", "", "", "",
			)
		} else {
			row = append(row,
				"", "", "",
				tx.UnitPrice.InexactFloat64(),
				tx.TotalRevenue.InexactFloat64(),
				tx.COGS.InexactFloat64(),
				string(tx.CostingMethod),
			)
		}
		rows = append(rows, append(row, tx.Reference))
	}
	return setRows(f, rows)
}

func setRows(f *excelize.File, rows [][]any) error {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeWorkbook streams f once the status line is out, so a failed write can
// only be logged.
func (h *Handler) writeWorkbook(w http.ResponseWriter, r *http.Request, f *excelize.File, name string) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("file", name).
			Msg("workbook write failed")
	}
}
