/*
store.go - Persistence and locking contracts

PURPOSE:
  Defines what the engine needs from durable storage and from the mutual
  exclusion layer. The engine never touches files or tables directly; it is
  handed a Store and a Locker once at startup.

STORE CONTRACT:
  ReadDocument:      Loads a whole aggregate document. Absent or undecodable
                     documents leave dest empty and return nil, so reads stay
                     available. Corruption is reported through the store's hook.
                     I/O failures are returned as errors.
  WriteDocument:     Atomically replaces a whole document.
  AppendTransaction: Adds one immutable entry. Load order == creation order.
  UpdateTransaction: Rewrites an existing entry in place. Stores check the
                     new body against the stored one with CheckLotUpdate:
                     only a purchase's Remaining may change, and only down.

LOCKER CONTRACT:
  Acquire takes an exclusive lock on a named resource, retrying with backoff
  up to a bounded number of attempts, and fails with *LockTimeoutError past
  that bound. The returned release func must be called on every exit path.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory Store for tests
  - store/jsonfile: Flat JSON files (production default)
  - store/sqlite: SQLite
  - lock: In-process and Redis lockers
*/
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Document keys for the aggregate documents.
const (
	DocProducts  = "products"
	DocSuppliers = "suppliers"
	DocBalances  = "balances"
	DocPayables  = "payables"
)

type Store interface {
	ReadDocument(ctx context.Context, key string, dest any) error
	WriteDocument(ctx context.Context, key string, doc any) error

	AppendTransaction(ctx context.Context, tx Transaction) error
	UpdateTransaction(ctx context.Context, tx Transaction) error

	// LoadTransactions returns every entry in creation order.
	LoadTransactions(ctx context.Context) ([]Transaction, error)
}

// CorruptionHook observes documents or entries degraded to empty on read.
type CorruptionHook func(key string, err error)

// ReleaseFunc releases a lock obtained from a Locker.
type ReleaseFunc func()

type Locker interface {
	Acquire(ctx context.Context, resource string) (ReleaseFunc, error)
}

// CheckLotUpdate reports whether next may replace stored. Only Remaining on
// a purchase may differ, it may only go down, and it may not go below zero.
func CheckLotUpdate(stored, next Transaction) error {
	if !stored.IsPurchase() {
		return fmt.Errorf("update %s entry %s: %w", stored.Type, stored.ID, ErrImmutableTransaction)
	}
	same := stored.ID == next.ID &&
		stored.Type == next.Type &&
		stored.ProductID == next.ProductID &&
		stored.WarehouseID == next.WarehouseID &&
		stored.Timestamp.Equal(next.Timestamp) &&
		stored.Quantity.Equal(next.Quantity) &&
		stored.SupplierID == next.SupplierID &&
		stored.UnitCost.Equal(next.UnitCost) &&
		stored.TotalCost.Equal(next.TotalCost) &&
		stored.Reference == next.Reference &&
		stored.UnitPrice.Equal(next.UnitPrice) &&
		stored.TotalRevenue.Equal(next.TotalRevenue) &&
		stored.COGS.Equal(next.COGS) &&
		stored.CostingMethod == next.CostingMethod &&
		stored.UnitCOGS.Equal(next.UnitCOGS)
	if !same {
		return fmt.Errorf("update entry %s beyond remaining: %w", stored.ID, ErrImmutableTransaction)
	}
	remaining := next.Available()
	if remaining.IsNegative() || remaining.GreaterThan(stored.Available()) {
		return fmt.Errorf("remaining %s -> %s on lot %s: %w", stored.Available(), remaining, stored.ID, ErrImmutableTransaction)
	}
	return nil
}

// Lock resource names.
func stockLock(k StockKey) string { return "stock:" + k.String() }
func docLock(key string) string  { return "doc:" + key }

// DecodeDocument decodes raw into dest. On failure dest is reset to its zero
// value, so a corrupt document reads as empty rather than half-filled, and
// the returned error wraps ErrCorruptDocument.
func DecodeDocument(raw []byte, dest any) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		if v := reflect.ValueOf(dest); v.Kind() == reflect.Pointer && !v.IsNil() {
			v.Elem().Set(reflect.Zero(v.Elem().Type()))
		}
		return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return nil
}
