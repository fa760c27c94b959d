/*
Package sqlite provides a SQLite-backed implementation of inventory.Store.

PURPOSE:
  Same contract as the flat-file store, for deployments that prefer a single
  database file. Aggregate documents are rows of a documents table; ledger
  entries are rows of an append-only transactions table.

KEY TABLES:
  documents:    key -> JSON body (products, suppliers, balances, payables)
  transactions: one row per ledger entry, JSON body plus indexed columns

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on transactions
  - The only UPDATE rewrites the body of an existing entry, which the ledger
    uses solely to lower a purchase's remaining lot quantity

ORDERING:
  created_at_ns holds the entry timestamp in nanoseconds. Loads order by it
  (then id), which is creation order.

WAL MODE:
  Opened with WAL for concurrent readers. A single open connection keeps
  ":memory:" databases shared across calls.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/stock-ledger/inventory"
)

// Store implements inventory.Store using SQLite.
type Store struct {
	db *sql.DB

	OnCorrupt inventory.CorruptionHook
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Aggregate documents (whole-object replace)
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		created_at_ns INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		product_id TEXT NOT NULL,
		warehouse_id TEXT NOT NULL,
		body TEXT NOT NULL
	);

	-- Creation order scans (hot path for every report)
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at_ns, id);

	-- Lot lookups for costing
	CREATE INDEX IF NOT EXISTS idx_transactions_product_warehouse
		ON transactions(product_id, warehouse_id, tx_type, created_at_ns);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (s *Store) ReadDocument(ctx context.Context, key string, dest any) error {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", key, err)
	}
	if err := inventory.DecodeDocument([]byte(body), dest); err != nil {
		s.corrupt(key, err)
	}
	return nil
}

func (s *Store) WriteDocument(ctx context.Context, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, key, string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, created_at_ns, tx_type, product_id, warehouse_id, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.Timestamp.UnixNano(), tx.Type, tx.ProductID, tx.WarehouseID, string(body))
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx inventory.Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin update: %w", err)
	}
	defer dbTx.Rollback()

	var current string
	err = dbTx.QueryRowContext(ctx, `SELECT body FROM transactions WHERE id = ?`, tx.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &inventory.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	if err != nil {
		return fmt.Errorf("failed to read transaction: %w", err)
	}
	var stored inventory.Transaction
	if err := json.Unmarshal([]byte(current), &stored); err != nil {
		return fmt.Errorf("failed to decode transaction %s: %w", tx.ID, err)
	}
	if err := inventory.CheckLotUpdate(stored, tx); err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, `UPDATE transactions SET body = ? WHERE id = ?`, string(body), tx.ID); err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return dbTx.Commit()
}

func (s *Store) LoadTransactions(ctx context.Context) ([]inventory.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM transactions ORDER BY created_at_ns, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]inventory.Transaction, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		var tx inventory.Transaction
		if err := inventory.DecodeDocument([]byte(body), &tx); err != nil {
			s.corrupt("transaction "+id, err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// PutRawDocument stores body under key without encoding. Tests use it to
// plant corrupt documents.
func (s *Store) PutRawDocument(ctx context.Context, key, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body
	`, key, body, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) corrupt(key string, err error) {
	if s.OnCorrupt != nil {
		s.OnCorrupt(key, err)
	}
}
