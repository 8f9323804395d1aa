package tokenkit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// StoreOptions tunes backend-specific behavior in OpenKeyValueStore.
type StoreOptions struct {
	RedisKeyPrefix string
}

// OpenKeyValueStore selects a backend by the URL scheme. An empty URL yields the in-memory store.
func OpenKeyValueStore(ctx context.Context, storeURL string, options StoreOptions) (KeyValueStore, string, error) {
	if strings.TrimSpace(storeURL) == "" {
		return NewMemoryKeyValueStore(), "memory", nil
	}
	parsed, err := url.Parse(storeURL)
	if err != nil {
		return nil, "", fmt.Errorf("kv_store.parse_url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss":
		store, redisErr := NewRedisKeyValueStore(ctx, storeURL, options.RedisKeyPrefix)
		if redisErr != nil {
			return nil, "", redisErr
		}
		return store, "redis", nil
	case "postgres", "postgresql", "sqlite", "sqlite3":
		store, dbErr := NewDatabaseKeyValueStore(ctx, storeURL)
		if dbErr != nil {
			return nil, "", dbErr
		}
		return store, store.Driver(), nil
	case "":
		return nil, "", fmt.Errorf("kv_store.dialect: %w", errUnsupportedNoScheme)
	default:
		return nil, "", fmt.Errorf("kv_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedStore)
	}
}
