package tokenkit

import "errors"

var (
	// ErrNotAuthorized indicates the athlete never completed the authorization flow.
	ErrNotAuthorized = errors.New("token_store.not_authorized")
	// ErrMalformedRecord indicates a stored token record could not be decoded.
	ErrMalformedRecord = errors.New("token_store.malformed_record")
	// ErrIncompleteRecord indicates a token record is missing one of its required fields.
	ErrIncompleteRecord = errors.New("token_store.incomplete_record")
	// ErrStoreAccess indicates the key-value store failed to read or write.
	ErrStoreAccess = errors.New("token_store.access_failed")
	// ErrUnsupportedStore indicates that no key-value backend matches the store URL scheme.
	ErrUnsupportedStore = errors.New("token_store.unsupported_store")

	// ErrUpstreamExchange indicates the identity provider token call failed.
	ErrUpstreamExchange = errors.New("token_exchange.upstream_failed")
	// ErrInvalidTokenResponse indicates the identity provider answered with an unexpected shape.
	ErrInvalidTokenResponse = errors.New("token_exchange.invalid_response")
	// ErrUnsupportedGrant indicates an exchange request with an unknown grant type.
	ErrUnsupportedGrant = errors.New("token_exchange.unsupported_grant")
)
