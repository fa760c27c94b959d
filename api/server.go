/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack and routes. This is the
  wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /api/products/*      Product catalog + movements report
  /api/suppliers/*     Supplier catalog
  /api/purchases       Record a purchase
  /api/sales           Record a sale
  /api/payables/*      Payables and payments
  /api/balances        Balance projection
  /api/transactions    Recent ledger entries
  /api/reports/*       Profit and loss, valuation, reconciliation
  /api/admin/*         Projection rebuild
  /api/scenarios/*     Demo data
  /metrics             Prometheus

SECURITY NOTE:
  No authentication middleware. Put the server behind an authenticating
  proxy before exposing it.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// metrics may be nil, in which case /metrics is not mounted.
func NewRouter(h *Handler, allowedOrigins []string, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Get("/{id}/movements", h.ProductMovements)
			r.Get("/{id}/movements.xlsx", h.ExportProductMovements)
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Post("/", h.CreateSupplier)
			r.Get("/{id}", h.GetSupplier)
			r.Put("/{id}", h.UpdateSupplier)
			r.Delete("/{id}", h.DeleteSupplier)
		})

		r.Post("/purchases", h.RecordPurchase)
		r.Post("/sales", h.RecordSale)

		r.Route("/payables", func(r chi.Router) {
			r.Get("/", h.ListPayables)
			r.Post("/{supplierId}/payments", h.PayPayable)
		})

		r.Get("/balances", h.ListBalances)
		r.Get("/transactions", h.ListTransactions)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/profit-and-loss", h.ProfitAndLoss)
			r.Get("/profit-and-loss.xlsx", h.ExportProfitAndLoss)
			r.Get("/valuation", h.StockValuation)
			r.Get("/reconciliation", h.Reconcile)
			r.Get("/reconciliation/last", h.LastReconciliation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/rebuild-balances", h.RebuildBalances)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
