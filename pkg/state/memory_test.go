package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Set(ctx, "keyvault", "secret:a", "value-a", 0))

	v, found, err := b.Get(ctx, "keyvault", "secret:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value-a", v)

	// Absent key
	_, found, err = b.Get(ctx, "keyvault", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	// Absent namespace
	_, found, err = b.Get(ctx, "nowhere", "secret:a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryRoundTripShapes(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "string", value: "s3cr3t", want: "s3cr3t"},
		{name: "map", value: map[string]any{"k": "v"}, want: map[string]any{"k": "v"}},
		{name: "slice", value: []any{"a", "b"}, want: []any{"a", "b"}},
		{name: "int normalizes to float", value: 5, want: float64(5)},
		{name: "bytes", value: []byte{1, 2, 3}, want: []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, b.Set(ctx, "ns", "k", tt.value, 0))
			got, found, err := b.Get(ctx, "ns", "k")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Set(ctx, "ns", "k", "v", 0))

	removed, err := b.Delete(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.Delete(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "ns", "short", "v", 10*time.Second))
	require.NoError(t, b.Set(ctx, "ns", "forever", "v", 0))

	// Still live
	_, found, err := b.Get(ctx, "ns", "short")
	require.NoError(t, err)
	assert.True(t, found)

	// Advance past expiry
	now = now.Add(11 * time.Second)

	_, found, err = b.Get(ctx, "ns", "short")
	require.NoError(t, err)
	assert.False(t, found)

	exists, err := b.Exists(ctx, "ns", "short")
	require.NoError(t, err)
	assert.False(t, exists)

	keys, err := b.List(ctx, "ns", "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"forever"}, keys)
}

func TestMemoryZeroTTLMeansNoExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "ns", "zero", "v", 0))
	require.NoError(t, b.Set(ctx, "ns", "negative", "v", -5*time.Second))

	now = now.Add(24 * time.Hour)

	for _, key := range []string{"zero", "negative"} {
		_, found, err := b.Get(ctx, "ns", key)
		require.NoError(t, err)
		assert.True(t, found, key)
	}
}

func TestMemoryListPatterns(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	for _, key := range []string{"secret:alpha", "secret:beta", "deleted:alpha", "other"} {
		require.NoError(t, b.Set(ctx, "kv", key, "v", 0))
	}

	tests := []struct {
		pattern string
		want    []string
	}{
		{pattern: "", want: []string{"deleted:alpha", "other", "secret:alpha", "secret:beta"}},
		{pattern: "*", want: []string{"deleted:alpha", "other", "secret:alpha", "secret:beta"}},
		{pattern: "secret:*", want: []string{"secret:alpha", "secret:beta"}},
		{pattern: "secret:?lpha", want: []string{"secret:alpha"}},
		{pattern: "[ds]*:alpha", want: []string{"deleted:alpha", "secret:alpha"}},
		{pattern: "nope*", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := b.List(ctx, "kv", tt.pattern)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMemoryBatchOps(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	items := map[string]any{"a": "1", "b": "2", "c": "3"}
	require.NoError(t, b.BatchSet(ctx, "ns", items, 0))

	got, err := b.BatchGet(ctx, "ns", []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, got)
}

func TestMemoryBatchSetAllOrNothing(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	items := map[string]any{"good": "v", "bad": make(chan int)}
	err := b.BatchSet(ctx, "ns", items, 0)
	require.Error(t, err)

	// Nothing was written
	exists, err := b.Exists(ctx, "ns", "good")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryClearNamespace(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Set(ctx, "a", "k1", "v", 0))
	require.NoError(t, b.Set(ctx, "a", "k2", "v", 0))
	require.NoError(t, b.Set(ctx, "b", "k1", "v", 0))

	count, err := b.ClearNamespace(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	namespaces, err := b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, namespaces)

	count, err = b.ClearNamespace(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryGetTTL(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "ns", "with-ttl", "v", time.Minute))
	require.NoError(t, b.Set(ctx, "ns", "no-ttl", "v", 0))

	remaining, hasTTL, err := b.GetTTL(ctx, "ns", "with-ttl")
	require.NoError(t, err)
	assert.True(t, hasTTL)
	assert.Equal(t, time.Minute, remaining)

	_, hasTTL, err = b.GetTTL(ctx, "ns", "no-ttl")
	require.NoError(t, err)
	assert.False(t, hasTTL)

	_, _, err = b.GetTTL(ctx, "ns", "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Expired key behaves like a missing one
	now = now.Add(2 * time.Minute)
	_, _, err = b.GetTTL(ctx, "ns", "with-ttl")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemorySetTTL(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "ns", "k", "v", 0))

	ok, err := b.SetTTL(ctx, "ns", "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, hasTTL, err := b.GetTTL(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, hasTTL)
	assert.Equal(t, time.Minute, remaining)

	// Clearing the TTL
	ok, err = b.SetTTL(ctx, "ns", "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	_, hasTTL, err = b.GetTTL(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, hasTTL)

	ok, err = b.SetTTL(ctx, "ns", "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTransactionCommit(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Set(ctx, "ns", "old", "stale", 0))

	tx := b.Begin("ns")
	require.NoError(t, tx.Set("new", "fresh", 0))
	require.NoError(t, tx.Delete("old"))

	// Buffered writes are invisible before commit
	_, found, err := b.Get(ctx, "ns", "new")
	require.NoError(t, err)
	assert.False(t, found)

	// Reads inside the transaction see committed state
	v, found, err := tx.Get(ctx, "old")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "stale", v)

	require.NoError(t, tx.Commit(ctx))

	_, found, err = b.Get(ctx, "ns", "old")
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err = b.Get(ctx, "ns", "new")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", v)
}

func TestMemoryTransactionRollback(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	tx := b.Begin("ns")
	require.NoError(t, tx.Set("k", "v", 0))
	require.NoError(t, tx.Rollback())

	_, found, err := b.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryTransactionClosed(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	tx := b.Begin("ns")
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Set("k", "v", 0), ErrTransactionClosed)
	assert.ErrorIs(t, tx.Delete("k"), ErrTransactionClosed)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTransactionClosed)
	assert.ErrorIs(t, tx.Rollback(), ErrTransactionClosed)

	_, _, err := tx.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrTransactionClosed)
}

func TestRunTransaction(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	// Clean exit commits
	err := RunTransaction(ctx, b, "ns", func(tx *Transaction) error {
		return tx.Set("committed", "yes", 0)
	})
	require.NoError(t, err)

	_, found, err := b.Get(ctx, "ns", "committed")
	require.NoError(t, err)
	assert.True(t, found)

	// Failure rolls back
	boom := assert.AnError
	err = RunTransaction(ctx, b, "ns", func(tx *Transaction) error {
		if err := tx.Set("discarded", "yes", 0); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, found, err = b.Get(ctx, "ns", "discarded")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryNamespacesImplicitCreation(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	namespaces, err := b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, namespaces)

	require.NoError(t, b.Set(ctx, "keyvault", "k", "v", 0))
	require.NoError(t, b.Set(ctx, "servicebus", "k", "v", 0))

	namespaces, err = b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyvault", "servicebus"}, namespaces)

	// Deleting the last key does not remove the namespace
	_, err = b.Delete(ctx, "servicebus", "k")
	require.NoError(t, err)

	namespaces, err = b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyvault", "servicebus"}, namespaces)
}

func TestMemoryContextCancellation(t *testing.T) {
	b := NewMemoryBackend()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Set(ctx, "ns", "k", "v", 0)
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = b.Get(ctx, "ns", "k")
	assert.ErrorIs(t, err, context.Canceled)
}
