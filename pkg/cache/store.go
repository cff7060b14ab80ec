package cache

import "context"

// Store is a durable key-value medium scoped to one client or device.
// Implementations must be safe for concurrent use. Put overwrites the whole
// value atomically; Get and Delete treat a missing key as a normal outcome.
type Store interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteIf removes key only while it still holds old and reports whether
	// it did.
	DeleteIf(ctx context.Context, key string, old []byte) (bool, error)

	// Keys lists stored keys starting with prefix. An empty prefix lists all keys.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying medium.
	Close() error
}
