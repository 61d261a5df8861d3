package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBolt(t *testing.T) *BoltBackend {
	t.Helper()

	b, err := NewBoltBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBoltSetGet(t *testing.T) {
	ctx := context.Background()
	b := newTestBolt(t)

	require.NoError(t, b.Set(ctx, "keyvault", "secret:a", map[string]any{"v": "x"}, 0))

	v, found, err := b.Get(ctx, "keyvault", "secret:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]any{"v": "x"}, v)

	_, found, err = b.Get(ctx, "keyvault", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewBoltBackend(dir)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "ns", "k", "survives", 0))
	require.NoError(t, b.Close())

	b2, err := NewBoltBackend(dir)
	require.NoError(t, err)
	defer b2.Close()

	v, found, err := b2.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "survives", v)
}

func TestBoltTTLExpiry(t *testing.T) {
	ctx := context.Background()
	b := newTestBolt(t)

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "ns", "short", "v", 10*time.Second))
	require.NoError(t, b.Set(ctx, "ns", "forever", "v", 0))

	now = now.Add(11 * time.Second)

	_, found, err := b.Get(ctx, "ns", "short")
	require.NoError(t, err)
	assert.False(t, found)

	keys, err := b.List(ctx, "ns", "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"forever"}, keys)

	_, _, err = b.GetTTL(ctx, "ns", "short")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBoltListPatterns(t *testing.T) {
	ctx := context.Background()
	b := newTestBolt(t)

	for _, key := range []string{"secret:alpha", "secret:beta", "deleted:alpha"} {
		require.NoError(t, b.Set(ctx, "kv", key, "v", 0))
	}

	keys, err := b.List(ctx, "kv", "secret:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"secret:alpha", "secret:beta"}, keys)
}

func TestBoltBatchAndClear(t *testing.T) {
	ctx := context.Background()
	b := newTestBolt(t)

	require.NoError(t, b.BatchSet(ctx, "a", map[string]any{"k1": "v1", "k2": "v2"}, 0))
	require.NoError(t, b.Set(ctx, "b", "k", "v", 0))

	got, err := b.BatchGet(ctx, "a", []string{"k1", "k2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k1": "v1", "k2": "v2"}, got)

	count, err := b.ClearNamespace(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	namespaces, err := b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, namespaces)
}

func TestBoltSetTTL(t *testing.T) {
	ctx := context.Background()
	b := newTestBolt(t)

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

	ok, err = b.SetTTL(ctx, "ns", "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltTransaction(t *testing.T) {
	ctx := context.Background()
	b := newTestBolt(t)

	require.NoError(t, b.Set(ctx, "ns", "old", "stale", 0))

	err := RunTransaction(ctx, b, "ns", func(tx *Transaction) error {
		if err := tx.Set("new", "fresh", 0); err != nil {
			return err
		}
		return tx.Delete("old")
	})
	require.NoError(t, err)

	_, found, err := b.Get(ctx, "ns", "old")
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := b.Get(ctx, "ns", "new")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", v)
}
