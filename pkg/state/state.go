package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend defines the interface for namespaced key/value state storage.
// This is implemented by the memory, Redis and Bolt backends; every LocalZure
// service keeps its state behind this interface so the whole emulator can be
// snapshotted and restored uniformly.
type Backend interface {
	// Get returns the stored value. found is false when the key is absent
	// or its TTL has elapsed; expired entries are evicted on read.
	Get(ctx context.Context, namespace, key string) (value any, found bool, err error)

	// Set stores a value. A ttl of zero or below means no expiry.
	Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error

	// Delete removes a key, reporting whether it existed.
	Delete(ctx context.Context, namespace, key string) (bool, error)

	// List returns the keys in a namespace matching a glob pattern
	// ("*", "?", character classes). An empty pattern matches everything.
	// Expired entries are pruned before matching.
	List(ctx context.Context, namespace, pattern string) ([]string, error)

	// BatchGet returns a map containing only the present, unexpired keys.
	BatchGet(ctx context.Context, namespace string, keys []string) (map[string]any, error)

	// BatchSet stores all items atomically; either every item is written
	// or none is.
	BatchSet(ctx context.Context, namespace string, items map[string]any, ttl time.Duration) error

	// ClearNamespace removes a namespace entirely, returning the number of
	// keys removed.
	ClearNamespace(ctx context.Context, namespace string) (int, error)

	// Exists reports whether a key is present and unexpired.
	Exists(ctx context.Context, namespace, key string) (bool, error)

	// GetTTL returns the remaining lifetime of a key. hasTTL is false for
	// keys without expiry. Absent or expired keys yield ErrKeyNotFound.
	GetTTL(ctx context.Context, namespace, key string) (remaining time.Duration, hasTTL bool, err error)

	// SetTTL updates the lifetime of an existing key, reporting whether the
	// key was present. A ttl of zero or below clears the expiry.
	SetTTL(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error)

	// Namespaces enumerates live namespaces; used by the snapshot engine.
	Namespaces(ctx context.Context) ([]string, error)

	// Begin opens a transaction scoped to one namespace. Mutations are
	// buffered and applied atomically on Commit.
	Begin(namespace string) *Transaction

	// Type returns the backend type tag recorded in snapshots.
	Type() string

	// Close releases backend resources.
	Close() error
}

var (
	// ErrKeyNotFound indicates a key is absent or expired
	ErrKeyNotFound = errors.New("key not found")

	// ErrTransactionClosed indicates a transaction was used after commit or rollback
	ErrTransactionClosed = errors.New("transaction already closed")
)

// BackendError wraps a transient backend fault that survived the retry budget
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("state backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
