package archive

import (
	"context"
	"os"
)

// ErrNotFound is returned when a key does not exist.
// It aliases os.ErrNotExist so filesystem errors match without translation.
var ErrNotFound = os.ErrNotExist

// Store holds archive frames by key. Keys use '/' as separator.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys with the given prefix in sorted order.
	List(ctx context.Context, prefix string) ([]string, error)
}
