package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/inventory"
)

func TestNewLogger_JSONWithServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "stock-ledger", "warn", false)

	log.Info().Msg("dropped")
	log.Warn().Str("key", "balances").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "stock-ledger", line["service"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "balances", line["key"])
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	log := newLogger(&bytes.Buffer{}, "svc", "chatty", false)

	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestMetrics_CommittedCountsByType(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Committed(inventory.Transaction{Type: inventory.TxPurchase, Quantity: decimal.NewFromInt(10)})
	m.Committed(inventory.Transaction{Type: inventory.TxPurchase, Quantity: decimal.NewFromInt(5)})
	m.Committed(inventory.Transaction{Type: inventory.TxSale, Quantity: decimal.NewFromInt(12)})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transactions.WithLabelValues("PURCHASE")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.Quantity.WithLabelValues("PURCHASE")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.Quantity.WithLabelValues("SALE")))
}

func TestMetrics_CorruptionHookLabelsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics(prometheus.NewRegistry())
	hook := m.CorruptionHook(newLogger(&buf, "svc", "info", false))

	hook(inventory.DocBalances, errors.New("unexpected EOF"))
	hook("00000000000000000001-abc.json", errors.New("bad"))
	hook("transaction #3", errors.New("bad"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptDocuments.WithLabelValues("balances")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CorruptDocuments.WithLabelValues("transaction")))
	assert.Contains(t, buf.String(), "document unreadable")
}

func TestMetrics_LockTimeoutsByResourceKind(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hook := m.LockTimeoutHook()

	hook("stock:widget:main")
	hook("stock:gadget:north")
	hook("doc:balances")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LockTimeouts.WithLabelValues("stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockTimeouts.WithLabelValues("doc:balances")))
}

func TestMetrics_ReconciledSetsGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Reconciled(inventory.Reconciliation{Divergences: make([]inventory.Divergence, 3)})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Divergences))

	m.Reconciled(inventory.Reconciliation{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Divergences))
}
