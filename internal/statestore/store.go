// Package statestore provides the key/value persistence boundary of the
// recovery ledger. The ledger serializes its whole state under a single
// key; the store only has to get, set, and remove opaque byte values.
package statestore

import "context"

// Store is the injected persistence backend. Implementations must map
// out-of-space conditions to common.ErrQuotaExceeded so the caller can
// disable persistence without destroying existing content.
type Store interface {
	// Get returns the value for key, or nil if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
