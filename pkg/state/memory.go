package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/localzure/localzure/pkg/serializer"
)

// entry is one stored value with optional expiry
type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryBackend implements Backend with in-process maps. A single mutex
// serializes all operations, reads included, so lazy eviction of expired
// entries is safe.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]map[string]entry

	// now is injectable for TTL tests
	now func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]map[string]entry),
		now:  time.Now,
	}
}

// Type returns the backend type tag
func (m *MemoryBackend) Type() string {
	return "memory"
}

// Get returns the stored value, evicting it first if expired
func (m *MemoryBackend) Get(ctx context.Context, namespace, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(namespace, key)
	if !ok {
		return nil, false, nil
	}

	v, err := serializer.Unmarshal(e.data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores a value with an optional TTL
func (m *MemoryBackend) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := serializer.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(namespace, key, data, ttl)
	return nil
}

// Delete removes a key, reporting whether it existed
func (m *MemoryBackend) Delete(ctx context.Context, namespace, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(namespace, key)
	if !ok {
		return false, nil
	}
	delete(m.data[namespace], key)
	return true, nil
}

// List returns keys matching a glob pattern, pruning expired entries first
func (m *MemoryBackend) List(ctx context.Context, namespace, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		return nil, nil
	}

	now := m.now()
	keys := make([]string, 0, len(ns))
	for key, e := range ns {
		if e.expired(now) {
			delete(ns, key)
			continue
		}
		if matcher.Match(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// BatchGet returns the present, unexpired subset of keys
func (m *MemoryBackend) BatchGet(ctx context.Context, namespace string, keys []string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]any, len(keys))
	for _, key := range keys {
		e, ok := m.lookup(namespace, key)
		if !ok {
			continue
		}
		v, err := serializer.Unmarshal(e.data)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// BatchSet stores all items under a single lock acquisition. Values are
// serialized before any write so a bad value fails the whole batch.
func (m *MemoryBackend) BatchSet(ctx context.Context, namespace string, items map[string]any, ttl time.Duration) error {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, data := range serialized {
		m.put(namespace, key, data, ttl)
	}
	return nil
}

// ClearNamespace removes a namespace and returns the number of removed keys
func (m *MemoryBackend) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		return 0, nil
	}
	delete(m.data, namespace)
	return len(ns), nil
}

// Exists reports whether a key is present and unexpired
func (m *MemoryBackend) Exists(ctx context.Context, namespace, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(namespace, key)
	return ok, nil
}

// GetTTL returns the remaining lifetime of a key
func (m *MemoryBackend) GetTTL(ctx context.Context, namespace, key string) (time.Duration, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(namespace, key)
	if !ok {
		return 0, false, fmt.Errorf("%s/%s: %w", namespace, key, ErrKeyNotFound)
	}
	if e.expiresAt.IsZero() {
		return 0, false, nil
	}
	return e.expiresAt.Sub(m.now()), true, nil
}

// SetTTL updates the lifetime of an existing key
func (m *MemoryBackend) SetTTL(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(namespace, key)
	if !ok {
		return false, nil
	}

	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	m.data[namespace][key] = e
	return true, nil
}

// Namespaces returns live namespaces in sorted order
func (m *MemoryBackend) Namespaces(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.data))
	for ns := range m.data {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names, nil
}

// Begin opens a transaction on a namespace
func (m *MemoryBackend) Begin(namespace string) *Transaction {
	return newTransaction(m, namespace)
}

// Close is a no-op for the memory backend
func (m *MemoryBackend) Close() error {
	return nil
}

// applyTx applies a buffered operation list under one lock acquisition
func (m *MemoryBackend) applyTx(ctx context.Context, namespace string, ops []txOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		switch op.kind {
		case txOpSet:
			m.put(namespace, op.key, op.data, op.ttl)
		case txOpDelete:
			if ns, ok := m.data[namespace]; ok {
				delete(ns, op.key)
			}
		}
	}
	return nil
}

// lookup fetches an entry, evicting it when expired. Callers hold the mutex.
func (m *MemoryBackend) lookup(namespace, key string) (entry, bool) {
	ns, ok := m.data[namespace]
	if !ok {
		return entry{}, false
	}
	e, ok := ns[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(m.now()) {
		delete(ns, key)
		return entry{}, false
	}
	return e, true
}

// put stores serialized data. Callers hold the mutex.
func (m *MemoryBackend) put(namespace, key string, data []byte, ttl time.Duration) {
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]entry)
		m.data[namespace] = ns
	}

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	ns[key] = e
}

// compilePattern compiles a glob pattern; empty patterns match every key
func compilePattern(pattern string) (glob.Glob, error) {
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return g, nil
}
