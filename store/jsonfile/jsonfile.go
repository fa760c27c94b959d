/*
Package jsonfile provides a flat-file implementation of inventory.Store.

LAYOUT:
  <dir>/products.json
  <dir>/suppliers.json
  <dir>/balances.json
  <dir>/payables.json
  <dir>/transactions/<unix-nanos, 20 digits>-<transaction id>.json

  One JSON document per aggregate and one immutable file per ledger entry.
  The zero-padded timestamp prefix makes lexicographic file name order equal
  to creation order; the id suffix breaks ties.

ATOMIC WRITES:
  Every write goes to a hidden temp file in the same directory, is fsynced,
  then renamed over the target. Readers see the old or the new file, never a
  partial one. Temp files start with "." and are skipped by scans.

CORRUPT FILES:
  Documents that fail to decode read as empty; entry files that fail to
  decode are skipped. Both are reported to OnCorrupt so they are never
  silent. I/O errors are returned, never degraded to empty.

LOCKING:
  The store itself does not serialize writers. The engine holds a named lock
  around every read-modify-write (see package lock).
*/
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/stock-ledger/inventory"
)

const transactionsDir = "transactions"

type Store struct {
	dir string

	OnCorrupt inventory.CorruptionHook
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, transactionsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// =============================================================================
// DOCUMENTS
// =============================================================================

func (s *Store) documentPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) ReadDocument(ctx context.Context, key string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := os.ReadFile(s.documentPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := inventory.DecodeDocument(raw, dest); err != nil {
		s.corrupt(key, err)
	}
	return nil
}

func (s *Store) WriteDocument(ctx context.Context, key string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return writeAtomic(s.documentPath(key), raw)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// FileName is the entry's file name inside the transactions directory.
func FileName(tx inventory.Transaction) string {
	return fmt.Sprintf("%020d-%s.json", tx.Timestamp.UnixNano(), tx.ID)
}

func (s *Store) transactionPath(tx inventory.Transaction) string {
	return filepath.Join(s.dir, transactionsDir, FileName(tx))
}

func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.transactionPath(tx)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("transaction file %s already exists", filepath.Base(path))
	}
	raw, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}
	return writeAtomic(path, raw)
}

// UpdateTransaction rewrites an existing entry file. The file name is derived
// from the entry's timestamp and id, which never change.
func (s *Store) UpdateTransaction(ctx context.Context, tx inventory.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.transactionPath(tx)
	current, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &inventory.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	if err != nil {
		return fmt.Errorf("read transaction %s: %w", tx.ID, err)
	}
	var stored inventory.Transaction
	if err := json.Unmarshal(current, &stored); err != nil {
		return fmt.Errorf("decode transaction %s: %w", tx.ID, err)
	}
	if err := inventory.CheckLotUpdate(stored, tx); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}
	return writeAtomic(path, raw)
}

// LoadTransactions reads every entry in file name order.
func (s *Store) LoadTransactions(ctx context.Context) ([]inventory.Transaction, error) {
	dir := filepath.Join(s.dir, transactionsDir)
	entries, err := os.ReadDir(dir) // sorted by name
	if errors.Is(err, fs.ErrNotExist) {
		return []inventory.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txs := make([]inventory.Transaction, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read transaction %s: %w", name, err)
		}
		var tx inventory.Transaction
		if err := inventory.DecodeDocument(raw, &tx); err != nil {
			s.corrupt(name, err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeAtomic(path string, raw []byte) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", base, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", base, err)
	}
	return nil
}

func (s *Store) corrupt(key string, err error) {
	if s.OnCorrupt != nil {
		s.OnCorrupt(key, err)
	}
}
