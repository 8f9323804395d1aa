package tokenkit

import "time"

// DefaultExpiryMargin is the minimum remaining validity of a handed-out access token.
const DefaultExpiryMargin = 60 * time.Second

// ProviderConfig carries the OAuth application settings for the fitness provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthorizeURL string
	TokenURL     string
	Scope        string
	ExpiryMargin time.Duration
}
