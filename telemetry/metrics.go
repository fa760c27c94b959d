package telemetry

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/warp/stock-ledger/inventory"
)

// Metrics counts the events operators need to see: committed entries,
// documents degraded to empty, and lock acquisitions that gave up.
type Metrics struct {
	Transactions     *prometheus.CounterVec
	Quantity         *prometheus.CounterVec
	CorruptDocuments *prometheus.CounterVec
	LockTimeouts     *prometheus.CounterVec
	Divergences      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_ledger_transactions_total",
				Help: "Ledger entries committed, by type",
			},
			[]string{"type"},
		),
		Quantity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_ledger_quantity_total",
				Help: "Units moved by committed entries, by type",
			},
			[]string{"type"},
		),
		CorruptDocuments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_ledger_corrupt_documents_total",
				Help: "Documents or ledger entries read as empty because they could not be decoded",
			},
			[]string{"key"},
		),
		LockTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_ledger_lock_timeouts_total",
				Help: "Lock acquisitions that exhausted their retry budget, by resource kind",
			},
			[]string{"resource"},
		),
		Divergences: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stock_ledger_balance_divergences",
			Help: "Product/warehouse pairs whose projected balance differed from the ledger at the last check",
		}),
	}
	reg.MustRegister(m.Transactions, m.Quantity, m.CorruptDocuments, m.LockTimeouts, m.Divergences)
	return m
}

// Committed implements inventory.Observer.
func (m *Metrics) Committed(tx inventory.Transaction) {
	m.Transactions.WithLabelValues(string(tx.Type)).Inc()
	qty, _ := tx.Quantity.Float64()
	m.Quantity.WithLabelValues(string(tx.Type)).Add(qty)
}

// CorruptionHook counts and logs a degraded read.
func (m *Metrics) CorruptionHook(log zerolog.Logger) inventory.CorruptionHook {
	return func(key string, err error) {
		label := key
		if !isDocumentKey(key) {
			label = "transaction"
		}
		m.CorruptDocuments.WithLabelValues(label).Inc()
		log.Warn().Err(err).
			Str("key", key).
			Msg("document unreadable, treating as empty")
	}
}

// LockTimeoutHook counts a lock acquisition that gave up. Resource names
// are reduced to their kind ("stock", "doc:balances") to bound cardinality.
func (m *Metrics) LockTimeoutHook() func(resource string) {
	return func(resource string) {
		m.LockTimeouts.WithLabelValues(resourceKind(resource)).Inc()
	}
}

// Reconciled records the outcome of a background reconciliation.
func (m *Metrics) Reconciled(rec inventory.Reconciliation) {
	m.Divergences.Set(float64(len(rec.Divergences)))
}

func isDocumentKey(key string) bool {
	switch key {
	case inventory.DocProducts, inventory.DocSuppliers, inventory.DocBalances, inventory.DocPayables:
		return true
	}
	return false
}

func resourceKind(resource string) string {
	kind, _, found := strings.Cut(resource, ":")
	if !found || kind == "doc" {
		return resource
	}
	return kind
}
