package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	b, err := NewRedisBackend(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisSetGet(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "keyvault", "secret:a", map[string]any{"v": "x"}, 0))

	v, found, err := b.Get(ctx, "keyvault", "secret:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]any{"v": "x"}, v)

	_, found, err = b.Get(ctx, "keyvault", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisKeyPrefix(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "key", "v", 0))
	assert.True(t, mr.Exists("localzure:ns:key"))
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "k", "v", 0))

	removed, err := b.Delete(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.Delete(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisTTLExpiry(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "short", "v", 5*time.Second))
	require.NoError(t, b.Set(ctx, "ns", "forever", "v", 0))

	mr.FastForward(6 * time.Second)

	_, found, err := b.Get(ctx, "ns", "short")
	require.NoError(t, err)
	assert.False(t, found)

	keys, err := b.List(ctx, "ns", "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"forever"}, keys)
}

func TestRedisListPatterns(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	for _, key := range []string{"secret:alpha", "secret:beta", "deleted:alpha"} {
		require.NoError(t, b.Set(ctx, "kv", key, "v", 0))
	}
	// Another namespace must not leak into the listing
	require.NoError(t, b.Set(ctx, "other", "secret:gamma", "v", 0))

	keys, err := b.List(ctx, "kv", "secret:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"secret:alpha", "secret:beta"}, keys)

	keys, err = b.List(ctx, "kv", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"deleted:alpha", "secret:alpha", "secret:beta"}, keys)
}

func TestRedisBatchOps(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.BatchSet(ctx, "ns", map[string]any{"a": "1", "b": "2"}, 0))

	got, err := b.BatchGet(ctx, "ns", []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, got)
}

func TestRedisClearNamespace(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.BatchSet(ctx, "a", map[string]any{"k1": "v", "k2": "v"}, 0))
	require.NoError(t, b.Set(ctx, "b", "k1", "v", 0))

	count, err := b.ClearNamespace(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	namespaces, err := b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, namespaces)
}

func TestRedisGetTTLSentinels(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "with-ttl", "v", time.Minute))
	require.NoError(t, b.Set(ctx, "ns", "no-ttl", "v", 0))

	remaining, hasTTL, err := b.GetTTL(ctx, "ns", "with-ttl")
	require.NoError(t, err)
	assert.True(t, hasTTL)
	assert.InDelta(t, time.Minute.Seconds(), remaining.Seconds(), 2)

	_, hasTTL, err = b.GetTTL(ctx, "ns", "no-ttl")
	require.NoError(t, err)
	assert.False(t, hasTTL)

	_, _, err = b.GetTTL(ctx, "ns", "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisSetTTL(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "k", "v", 0))

	ok, err := b.SetTTL(ctx, "ns", "k", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(6 * time.Second)

	exists, err := b.Exists(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = b.SetTTL(ctx, "ns", "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSetTTLClear(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "k", "v", time.Minute))

	ok, err := b.SetTTL(ctx, "ns", "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	_, hasTTL, err := b.GetTTL(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, hasTTL)
}

func TestRedisTransaction(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t)

	require.NoError(t, b.Set(ctx, "ns", "old", "stale", 0))

	tx := b.Begin("ns")
	require.NoError(t, tx.Set("new", "fresh", 0))
	require.NoError(t, tx.Delete("old"))
	require.NoError(t, tx.Commit(ctx))

	_, found, err := b.Get(ctx, "ns", "old")
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := b.Get(ctx, "ns", "new")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", v)

	// Reuse after commit fails
	assert.ErrorIs(t, tx.Set("x", "y", 0), ErrTransactionClosed)
}

func TestRedisConnectionFailure(t *testing.T) {
	// No server listening; retries exhaust and surface a BackendError
	_, err := NewRedisBackend(context.Background(), RedisOptions{
		Addr:       "127.0.0.1:1",
		Timeout:    100 * time.Millisecond,
		RetryCount: 1,
	})
	require.Error(t, err)

	var berr *BackendError
	assert.ErrorAs(t, err, &berr)
	assert.Equal(t, "ping", berr.Op)
}
