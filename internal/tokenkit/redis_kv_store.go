package tokenkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisKeyValueStore keeps entries as plain Redis strings without expiry.
type RedisKeyValueStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisKeyValueStore connects to the redis:// or rediss:// URL and verifies the connection.
func NewRedisKeyValueStore(ctx context.Context, redisURL string, keyPrefix string) (*RedisKeyValueStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("kv_store.redis.parse_url: %w", err)
	}
	client := redis.NewClient(options)
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kv_store.redis.ping: %w", pingErr)
	}
	return NewRedisKeyValueStoreWithClient(client, keyPrefix), nil
}

// NewRedisKeyValueStoreWithClient wraps an existing client.
func NewRedisKeyValueStoreWithClient(client *redis.Client, keyPrefix string) *RedisKeyValueStore {
	return &RedisKeyValueStore{client: client, keyPrefix: keyPrefix}
}

// Get returns the value stored under key.
func (store *RedisKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := store.client.Get(ctx, store.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv_store.redis.get: %w", err)
	}
	return value, true, nil
}

// Put overwrites the value stored under key.
func (store *RedisKeyValueStore) Put(ctx context.Context, key string, value string) error {
	if err := store.client.Set(ctx, store.keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv_store.redis.put: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (store *RedisKeyValueStore) Close() error {
	return store.client.Close()
}
