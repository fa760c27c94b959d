// Package store provides Store implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/warp/stock-ledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps documents and entries as encoded JSON so callers never share
// memory with the store, the same as with the file-backed stores.
type Memory struct {
	mu           sync.RWMutex
	documents    map[string][]byte
	transactions [][]byte
	index        map[inventory.TransactionID]int

	OnCorrupt inventory.CorruptionHook
}

func NewMemory() *Memory {
	return &Memory{
		documents: make(map[string][]byte),
		index:     make(map[inventory.TransactionID]int),
	}
}

func (m *Memory) ReadDocument(_ context.Context, key string, dest any) error {
	m.mu.RLock()
	raw, ok := m.documents[key]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := inventory.DecodeDocument(raw, dest); err != nil {
		m.corrupt(key, err)
	}
	return nil
}

func (m *Memory) WriteDocument(_ context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[key] = raw
	return nil
}

// PutRaw stores bytes under key as-is. Tests use it to plant corrupt documents.
func (m *Memory) PutRaw(key string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[key] = raw
}

// AppendTransaction adds a single entry. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx inventory.Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.index[tx.ID]; exists {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	m.index[tx.ID] = len(m.transactions)
	m.transactions = append(m.transactions, raw)
	return nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx inventory.Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[tx.ID]
	if !ok {
		return &inventory.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	var stored inventory.Transaction
	if err := json.Unmarshal(m.transactions[i], &stored); err != nil {
		return fmt.Errorf("decode transaction %s: %w", tx.ID, err)
	}
	if err := inventory.CheckLotUpdate(stored, tx); err != nil {
		return err
	}
	m.transactions[i] = raw
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context) ([]inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]inventory.Transaction, 0, len(m.transactions))
	for i, raw := range m.transactions {
		var tx inventory.Transaction
		if err := inventory.DecodeDocument(raw, &tx); err != nil {
			m.corrupt(fmt.Sprintf("transaction #%d", i), err)
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

func (m *Memory) corrupt(key string, err error) {
	if m.OnCorrupt != nil {
		m.OnCorrupt(key, err)
	}
}
