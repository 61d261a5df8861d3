package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/localzure/localzure/pkg/log"
	"github.com/localzure/localzure/pkg/serializer"
)

const (
	// DefaultKeyPrefix namespaces all LocalZure keys inside a shared Redis
	DefaultKeyPrefix = "localzure:"

	// scanCount bounds per-iteration work so SCAN never blocks Redis
	scanCount = 100
)

// RedisOptions configures the Redis backend
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	Timeout    time.Duration // dial/read/write socket timeout
	PoolSize   int
	RetryCount int // retries after the first attempt on transient faults
}

func (o *RedisOptions) withDefaults() RedisOptions {
	opts := *o
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 50
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = 3
	}
	return opts
}

// RedisBackend implements Backend on a Redis server. The full Redis key is
// <prefix><namespace>:<key>. Atomicity of batch writes and transactions
// relies on MULTI/EXEC pipelines and Redis's single-threaded command loop.
type RedisBackend struct {
	client *redis.Client
	prefix string
	retry  int
	logger zerolog.Logger
}

// NewRedisBackend connects to Redis and verifies the connection with a ping
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	opts = opts.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		PoolSize:     opts.PoolSize,
		// Retries are handled by our own backoff policy
		MaxRetries: -1,
	})

	b := &RedisBackend{
		client: client,
		prefix: opts.KeyPrefix,
		retry:  opts.RetryCount,
		logger: log.WithBackend("redis"),
	}

	if err := b.withRetry(ctx, "ping", func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, err
	}

	return b, nil
}

// Type returns the backend type tag
func (b *RedisBackend) Type() string {
	return "redis"
}

// redisKey builds the full Redis key for a namespace/key pair
func (b *RedisBackend) redisKey(namespace, key string) string {
	return b.prefix + namespace + ":" + key
}

// Get returns the stored value; Redis evicts expired keys itself
func (b *RedisBackend) Get(ctx context.Context, namespace, key string) (any, bool, error) {
	var data []byte
	err := b.withRetry(ctx, "get", func() error {
		raw, err := b.client.Get(ctx, b.redisKey(namespace, key)).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
			return nil
		}
		if err != nil {
			return err
		}
		data = raw
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
func (b *RedisBackend) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	data, err := serializer.Marshal(value)
	if err != nil {
		return err
	}

	if ttl < 0 {
		ttl = 0
	}
	return b.withRetry(ctx, "set", func() error {
		return b.client.Set(ctx, b.redisKey(namespace, key), data, ttl).Err()
	})
}

// Delete removes a key, reporting whether it existed
func (b *RedisBackend) Delete(ctx context.Context, namespace, key string) (bool, error) {
	var removed int64
	err := b.withRetry(ctx, "delete", func() error {
		n, err := b.client.Del(ctx, b.redisKey(namespace, key)).Result()
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed > 0, err
}

// List scans the namespace and glob-matches bare keys. The SCAN MATCH clause
// only prefilters by namespace; the pattern itself is applied client-side so
// all backends share identical glob semantics.
func (b *RedisBackend) List(ctx context.Context, namespace, pattern string) ([]string, error) {
	matcher, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	nsPrefix := b.prefix + namespace + ":"
	var keys []string
	err = b.withRetry(ctx, "list", func() error {
		keys = keys[:0]
		var cursor uint64
		for {
			batch, next, err := b.client.Scan(ctx, cursor, nsPrefix+"*", scanCount).Result()
			if err != nil {
				return err
			}
			for _, full := range batch {
				bare := strings.TrimPrefix(full, nsPrefix)
				if matcher.Match(bare) {
					keys = append(keys, bare)
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// BatchGet pipelines the reads and returns the present subset
func (b *RedisBackend) BatchGet(ctx context.Context, namespace string, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}

	raw := make(map[string][]byte, len(keys))
	err := b.withRetry(ctx, "batch get", func() error {
		pipe := b.client.Pipeline()
		cmds := make(map[string]*redis.StringCmd, len(keys))
		for _, key := range keys {
			cmds[key] = pipe.Get(ctx, b.redisKey(namespace, key))
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		for key, cmd := range cmds {
			data, err := cmd.Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return err
			}
			raw[key] = data
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

// BatchSet writes all items inside a single MULTI/EXEC block. Values are
// serialized before the pipeline is built so a bad value fails the batch
// without touching Redis.
func (b *RedisBackend) BatchSet(ctx context.Context, namespace string, items map[string]any, ttl time.Duration) error {
	serialized := make(map[string][]byte, len(items))
	for key, value := range items {
		data, err := serializer.Marshal(value)
		if err != nil {
			return fmt.Errorf("batch set %s: %w", key, err)
		}
		serialized[key] = data
	}
	if len(serialized) == 0 {
		return nil
	}

	if ttl < 0 {
		ttl = 0
	}
	return b.withRetry(ctx, "batch set", func() error {
		pipe := b.client.TxPipeline()
		for key, data := range serialized {
			pipe.Set(ctx, b.redisKey(namespace, key), data, ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// ClearNamespace scans and deletes every key in the namespace
func (b *RedisBackend) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	keys, err := b.List(ctx, namespace, "*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = b.redisKey(namespace, key)
	}

	var removed int64
	err = b.withRetry(ctx, "clear namespace", func() error {
		n, err := b.client.Del(ctx, full...).Result()
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return int(removed), err
}

// Exists reports whether a key is present
func (b *RedisBackend) Exists(ctx context.Context, namespace, key string) (bool, error) {
	var n int64
	err := b.withRetry(ctx, "exists", func() error {
		count, err := b.client.Exists(ctx, b.redisKey(namespace, key)).Result()
		if err != nil {
			return err
		}
		n = count
		return nil
	})
	return n > 0, err
}

// GetTTL maps Redis's sentinel returns: -2 (absent) fails with ErrKeyNotFound,
// -1 (no TTL) reports hasTTL=false.
func (b *RedisBackend) GetTTL(ctx context.Context, namespace, key string) (time.Duration, bool, error) {
	var d time.Duration
	err := b.withRetry(ctx, "get ttl", func() error {
		ttl, err := b.client.TTL(ctx, b.redisKey(namespace, key)).Result()
		if err != nil {
			return err
		}
		d = ttl
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	switch d {
	case -2:
		return 0, false, fmt.Errorf("%s/%s: %w", namespace, key, ErrKeyNotFound)
	case -1:
		return 0, false, nil
	default:
		return d, true, nil
	}
}

// SetTTL updates the lifetime of an existing key
func (b *RedisBackend) SetTTL(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	full := b.redisKey(namespace, key)

	var ok bool
	err := b.withRetry(ctx, "set ttl", func() error {
		if ttl > 0 {
			set, err := b.client.Expire(ctx, full, ttl).Result()
			if err != nil {
				return err
			}
			ok = set
			return nil
		}

		// Zero or negative TTL clears the expiry; PERSIST alone cannot
		// distinguish "no TTL to remove" from "no such key"
		exists, err := b.client.Exists(ctx, full).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			ok = false
			return nil
		}
		if err := b.client.Persist(ctx, full).Err(); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// Namespaces enumerates namespaces by scanning all LocalZure keys and taking
// the segment before the first colon after the prefix
func (b *RedisBackend) Namespaces(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := b.withRetry(ctx, "namespaces", func() error {
		clear(seen)
		var cursor uint64
		for {
			batch, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", scanCount).Result()
			if err != nil {
				return err
			}
			for _, full := range batch {
				rest := strings.TrimPrefix(full, b.prefix)
				if idx := strings.IndexByte(rest, ':'); idx > 0 {
					seen[rest[:idx]] = struct{}{}
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for ns := range seen {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names, nil
}

// Begin opens a transaction on a namespace
func (b *RedisBackend) Begin(namespace string) *Transaction {
	return newTransaction(b, namespace)
}

// Close drains the connection pool
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// applyTx replays the buffered operations in a single MULTI/EXEC block
func (b *RedisBackend) applyTx(ctx context.Context, namespace string, ops []txOp) error {
	return b.withRetry(ctx, "transaction", func() error {
		pipe := b.client.TxPipeline()
		for _, op := range ops {
			full := b.redisKey(namespace, op.key)
			switch op.kind {
			case txOpSet:
				ttl := op.ttl
				if ttl < 0 {
					ttl = 0
				}
				pipe.Set(ctx, full, op.data, ttl)
			case txOpDelete:
				pipe.Del(ctx, full)
			}
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// withRetry runs fn with exponential backoff (base 100ms, factor 2) up to the
// configured retry count, then surfaces the fault as a BackendError.
// Serialization problems never reach here; context cancellation stops the
// retry loop immediately.
func (b *RedisBackend) withRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		b.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient backend fault")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(b.retry)), ctx))

	if err != nil {
		return &BackendError{Op: op, Err: err}
	}
	return nil
}
