package storage

import (
	"context"
	"encoding/json"
)

// Adapter is the key/value persistence boundary for the engine. Values
// are JSON blobs; implementations must treat a missing key as
// (nil, nil), not as an error.
type Adapter interface {
	// GetItem retrieves the raw JSON stored under key. Returns nil with
	// no error when the key does not exist.
	GetItem(ctx context.Context, key string) (json.RawMessage, error)

	// SetItem stores the raw JSON under key, replacing any prior value.
	SetItem(ctx context.Context, key string, value json.RawMessage) error

	// RemoveItem deletes the key. Removing a missing key is a no-op.
	RemoveItem(ctx context.Context, key string) error

	// Clear removes every key owned by this adapter.
	Clear(ctx context.Context) error

	// Close releases the underlying connection, if any.
	Close() error
}

// HealthChecker is implemented by adapters with a remote backend.
type HealthChecker interface {
	// Ping tests the storage connection.
	Ping(ctx context.Context) error
}
