package state

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/localzure/localzure/pkg/serializer"
)

// boltEntry is the on-disk envelope for one value. The serialized payload is
// base64-encoded by encoding/json; ExpiresAt is Unix nanoseconds, zero for
// keys without TTL.
type boltEntry struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"e"`
}

func (e boltEntry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() > e.ExpiresAt
}

// BoltBackend implements Backend on a bbolt database file, one bucket per
// namespace. It trades the memory backend's volatility for persistence across
// emulator restarts; semantics are otherwise identical.
type BoltBackend struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltBackend opens (or creates) the database file under dataDir
func NewBoltBackend(dataDir string) (*BoltBackend, error) {
	dbPath := filepath.Join(dataDir, "localzure.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BoltBackend{db: db, now: time.Now}, nil
}

// Type returns the backend type tag
func (b *BoltBackend) Type() string {
	return "bolt"
}

// Get returns the stored value, evicting it first if expired
func (b *BoltBackend) Get(ctx context.Context, namespace, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}
		raw := bkt.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var e boltEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		if e.expired(b.now()) {
			return bkt.Delete([]byte(key))
		}
		data = append([]byte(nil), e.Value...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	v, err := serializer.Unmarshal(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores a value with an optional TTL
func (b *BoltBackend) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := serializer.Marshal(value)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return putBoltEntry(tx, namespace, key, data, ttl, b.now())
	})
}

// Delete removes a key, reporting whether it existed
func (b *BoltBackend) Delete(ctx context.Context, namespace, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var removed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}
		raw := bkt.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var e boltEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		if err := bkt.Delete([]byte(key)); err != nil {
			return err
		}
		removed = !e.expired(b.now())
		return nil
	})
	return removed, err
}

// List returns keys matching a glob pattern, pruning expired entries
func (b *BoltBackend) List(ctx context.Context, namespace, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}

		now := b.now()
		var expired [][]byte
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.expired(now) {
				expired = append(expired, append([]byte(nil), k...))
				continue
			}
			if matcher.Match(string(k)) {
				keys = append(keys, string(k))
			}
		}
		for _, k := range expired {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// BatchGet returns the present, unexpired subset of keys
func (b *BoltBackend) BatchGet(ctx context.Context, namespace string, keys []string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := make(map[string][]byte, len(keys))
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}
		now := b.now()
		for _, key := range keys {
			data := bkt.Get([]byte(key))
			if data == nil {
				continue
			}
			var e boltEntry
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			if e.expired(now) {
				if err := bkt.Delete([]byte(key)); err != nil {
					return err
				}
				continue
			}
			raw[key] = append([]byte(nil), e.Value...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(raw))
	for key, data := range raw {
		v, err := serializer.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// BatchSet writes all items inside a single Bolt transaction
func (b *BoltBackend) BatchSet(ctx context.Context, namespace string, items map[string]any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	serialized := make(map[string][]byte, len(items))
	for key, value := range items {
		data, err := serializer.Marshal(value)
		if err != nil {
			return fmt.Errorf("batch set %s: %w", key, err)
		}
		serialized[key] = data
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		now := b.now()
		for key, data := range serialized {
			if err := putBoltEntry(tx, namespace, key, data, ttl, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearNamespace drops the namespace bucket and returns the key count
func (b *BoltBackend) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}
		count = bkt.Stats().KeyN
		return tx.DeleteBucket([]byte(namespace))
	})
	return count, err
}

// Exists reports whether a key is present and unexpired
func (b *BoltBackend) Exists(ctx context.Context, namespace, key string) (bool, error) {
	_, found, err := b.Get(ctx, namespace, key)
	return found, err
}

// GetTTL returns the remaining lifetime of a key
func (b *BoltBackend) GetTTL(ctx context.Context, namespace, key string) (time.Duration, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	var (
		remaining time.Duration
		hasTTL    bool
		found     bool
	)
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}
		raw := bkt.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var e boltEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		now := b.now()
		if e.expired(now) {
			return bkt.Delete([]byte(key))
		}
		found = true
		if e.ExpiresAt != 0 {
			hasTTL = true
			remaining = time.Duration(e.ExpiresAt - now.UnixNano())
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, fmt.Errorf("%s/%s: %w", namespace, key, ErrKeyNotFound)
	}
	return remaining, hasTTL, nil
}

// SetTTL updates the lifetime of an existing key
func (b *BoltBackend) SetTTL(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var updated bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(namespace))
		if bkt == nil {
			return nil
		}
		raw := bkt.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var e boltEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		now := b.now()
		if e.expired(now) {
			return bkt.Delete([]byte(key))
		}

		if ttl > 0 {
			e.ExpiresAt = now.Add(ttl).UnixNano()
		} else {
			e.ExpiresAt = 0
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := bkt.Put([]byte(key), data); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

// Namespaces enumerates the bucket names in sorted order
func (b *BoltBackend) Namespaces(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Begin opens a transaction on a namespace
func (b *BoltBackend) Begin(namespace string) *Transaction {
	return newTransaction(b, namespace)
}

// Close closes the database file
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// applyTx applies a buffered operation list inside one Bolt transaction
func (b *BoltBackend) applyTx(ctx context.Context, namespace string, ops []txOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		now := b.now()
		for _, op := range ops {
			switch op.kind {
			case txOpSet:
				if err := putBoltEntry(tx, namespace, op.key, op.data, op.ttl, now); err != nil {
					return err
				}
			case txOpDelete:
				if bkt := tx.Bucket([]byte(namespace)); bkt != nil {
					if err := bkt.Delete([]byte(op.key)); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// putBoltEntry writes one envelope, creating the namespace bucket on demand
func putBoltEntry(tx *bolt.Tx, namespace, key string, data []byte, ttl time.Duration, now time.Time) error {
	bkt, err := tx.CreateBucketIfNotExists([]byte(namespace))
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", namespace, err)
	}

	e := boltEntry{Value: data}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl).UnixNano()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return bkt.Put([]byte(key), raw)
}
