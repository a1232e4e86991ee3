package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// RedisOptions configures a RedisStorage.
type RedisOptions struct {
	// KeyPrefix is prepended to every key (e.g. "dialogmesh:").
	KeyPrefix string
	// TTL expires items after the given duration; zero keeps them forever.
	TTL time.Duration
	// Logger receives backend errors.
	Logger logging.Logger
}

// RedisStorage is a core.Storage backed by Redis strings holding JSON.
type RedisStorage struct {
	client redis.Cmdable
	opts   RedisOptions
}

// NewRedisStorage wraps an existing Redis client.
func NewRedisStorage(client redis.Cmdable, optFns ...func(o *RedisOptions)) *RedisStorage {
	opts := RedisOptions{KeyPrefix: "dialogmesh:", Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &RedisStorage{client: client, opts: opts}
}

func (s *RedisStorage) key(k string) string { return s.opts.KeyPrefix + k }

// Read fetches all keys in a single MGET.
func (s *RedisStorage) Read(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		if k == "" {
			return nil, core.ErrEmptyKey
		}
		full[i] = s.key(k)
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.opts.Logger.Error("storage.redis.read.failed", "keys", keys, "error", err.Error())
		return nil, fmt.Errorf("redis read: %w", err)
	}
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		v, err := decode([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("redis read %q: %w", keys[i], err)
		}
		out[keys[i]] = v
	}
	return out, nil
}

// Write stores all changes in one pipeline.
func (s *RedisStorage) Write(ctx context.Context, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for k, v := range changes {
		if k == "" {
			return core.ErrEmptyKey
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("redis write %q: %w", k, err)
		}
		pipe.Set(ctx, s.key(k), raw, s.opts.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.opts.Logger.Error("storage.redis.write.failed", "error", err.Error())
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

// Delete removes the keys.
func (s *RedisStorage) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		s.opts.Logger.Error("storage.redis.delete.failed", "keys", keys, "error", err.Error())
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}
