package inventory

import (
	"context"
	"fmt"
)

// mutateDocument runs one read-modify-write cycle on a shared document while
// holding that document's lock, so concurrent writers cannot lose updates.
// The document is not written when fn fails.
func mutateDocument[T any](ctx context.Context, store Store, locker Locker, key string, fn func(doc *T) error) error {
	release, err := locker.Acquire(ctx, docLock(key))
	if err != nil {
		return err
	}
	defer release()

	var doc T
	if err := store.ReadDocument(ctx, key, &doc); err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := fn(&doc); err != nil {
		return err
	}
	if err := store.WriteDocument(ctx, key, doc); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
