// Package redis provides a Redis-backed store backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gezibash/arc-rosca/internal/storage"
	"github.com/gezibash/arc-rosca/internal/store/physical"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"

	scanCount = 500
)

func init() {
	physical.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "0",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    "rosca:",
	}
}

// NewFactory connects to Redis and pings it before returning.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	o := storage.Bind("redis", config)
	addr, err := o.Required(KeyAddr)
	if err != nil {
		return nil, err
	}
	db, err := o.Int(KeyDB, 0)
	if err != nil {
		return nil, err
	}
	if db < 0 {
		return nil, o.Invalid(KeyDB, "must be non-negative")
	}
	maxRetries, err := o.Int(KeyMaxRetries, 3)
	if err != nil {
		return nil, err
	}
	poolSize, err := o.Int(KeyPoolSize, 0)
	if err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr:       addr,
		Password:   o.String(KeyPassword, ""),
		DB:         db,
		MaxRetries: maxRetries,
		PoolSize:   poolSize,
	}
	for key, dst := range map[string]*time.Duration{
		KeyDialTimeout:  &opts.DialTimeout,
		KeyReadTimeout:  &opts.ReadTimeout,
		KeyWriteTimeout: &opts.WriteTimeout,
	} {
		if *dst, err = o.Duration(key, 0); err != nil {
			return nil, err
		}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, o.Failed(KeyAddr, "failed to connect", err)
	}

	prefix := o.String(KeyKeyPrefix, "rosca:")
	slog.Info("redis store connected", "addr", addr, "db", db, "key_prefix", prefix)
	return NewWithClient(client, prefix), nil
}

// Backend is a Redis implementation of physical.Backend. Every key is stored
// under a fixed prefix so several deployments can share a database.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) key(k string) string { return b.prefix + k }

// Get returns the value stored at key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	v, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Scan walks the keyspace with SCAN and fetches values with MGET. Keys
// deleted between the two calls are skipped.
func (b *Backend) Scan(ctx context.Context, prefix string) ([]physical.KV, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	match := escapeGlob(b.key(prefix)) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := b.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		if cursor = next; cursor == 0 {
			break
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]physical.KV, 0, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, physical.KV{Key: strings.TrimPrefix(keys[i], b.prefix), Value: []byte(s)})
	}
	return out, nil
}

// Apply writes ops inside MULTI/EXEC.
func (b *Backend) Apply(ctx context.Context, ops []physical.Op) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, b.key(op.Key))
			} else {
				pipe.Set(ctx, b.key(op.Key), op.Value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

// Close closes the client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
