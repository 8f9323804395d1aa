package tokenkit

import "context"

// KeyValueStore is a string-keyed store where each Get and Put is individually atomic.
type KeyValueStore interface {
	// Get returns the value under key; found is false when the key was never written.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Put overwrites the value under key.
	Put(ctx context.Context, key string, value string) error
}

// TokenExchanger trades an authorization code or refresh token for a fresh token record.
type TokenExchanger interface {
	Exchange(ctx context.Context, request ExchangeRequest) (TokenRecord, error)
}
