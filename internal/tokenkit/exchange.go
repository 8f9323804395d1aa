package tokenkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// Grant types accepted by the provider token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

var errMissingGrantCredential = errors.New("token_exchange.missing_credential")

// ExchangeRequest describes one call to the provider token endpoint.
type ExchangeRequest struct {
	GrantType    string
	Code         string
	RefreshToken string
	// AthleteID is known on the refresh path; on the authorization path it comes from the response.
	AthleteID string
}

// ExchangeClient performs token exchanges against the provider's OAuth endpoint.
type ExchangeClient struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewExchangeClient builds a client that posts credentials as form parameters.
func NewExchangeClient(configuration ProviderConfig, httpClient *http.Client) *ExchangeClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ExchangeClient{
		oauthConfig: newOAuthConfig(configuration),
		httpClient:  httpClient,
	}
}

func newOAuthConfig(configuration ProviderConfig) *oauth2.Config {
	var scopes []string
	if strings.TrimSpace(configuration.Scope) != "" {
		scopes = []string{configuration.Scope}
	}
	return &oauth2.Config{
		ClientID:     configuration.ClientID,
		ClientSecret: configuration.ClientSecret,
		RedirectURL:  configuration.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   configuration.AuthorizeURL,
			TokenURL:  configuration.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL returns the provider link that starts the login flow.
func AuthorizationURL(configuration ProviderConfig) string {
	return newOAuthConfig(configuration).AuthCodeURL("")
}

// Exchange issues a single POST to the token endpoint and normalizes the response.
func (client *ExchangeClient) Exchange(ctx context.Context, request ExchangeRequest) (TokenRecord, error) {
	httpContext := context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)

	var token *oauth2.Token
	var err error
	switch request.GrantType {
	case GrantAuthorizationCode:
		if strings.TrimSpace(request.Code) == "" {
			return TokenRecord{}, fmt.Errorf("token_exchange.%s: %w", request.GrantType, errMissingGrantCredential)
		}
		token, err = client.oauthConfig.Exchange(httpContext, request.Code)
	case GrantRefreshToken:
		if strings.TrimSpace(request.RefreshToken) == "" {
			return TokenRecord{}, fmt.Errorf("token_exchange.%s: %w", request.GrantType, errMissingGrantCredential)
		}
		token, err = client.oauthConfig.TokenSource(httpContext, &oauth2.Token{RefreshToken: request.RefreshToken}).Token()
	default:
		return TokenRecord{}, fmt.Errorf("%w: %q", ErrUnsupportedGrant, request.GrantType)
	}
	if err != nil {
		return TokenRecord{}, fmt.Errorf("%w: %s: %w", ErrUpstreamExchange, request.GrantType, err)
	}
	return normalizeToken(token, request.AthleteID)
}

func normalizeToken(token *oauth2.Token, knownAthleteID string) (TokenRecord, error) {
	if token == nil || token.AccessToken == "" {
		return TokenRecord{}, fmt.Errorf("%w: missing access_token", ErrInvalidTokenResponse)
	}
	if token.RefreshToken == "" {
		return TokenRecord{}, fmt.Errorf("%w: missing refresh_token", ErrInvalidTokenResponse)
	}

	expiresAt, ok := unixFromExtra(token.Extra("expires_at"))
	if !ok {
		if token.Expiry.IsZero() {
			return TokenRecord{}, fmt.Errorf("%w: missing expires_at", ErrInvalidTokenResponse)
		}
		expiresAt = token.Expiry.Unix()
	}

	athleteID := knownAthleteID
	if athleteID == "" {
		athleteID, ok = athleteIDFromExtra(token.Extra("athlete"))
		if !ok {
			return TokenRecord{}, fmt.Errorf("%w: missing athlete.id", ErrInvalidTokenResponse)
		}
	}

	return TokenRecord{
		AthleteID:    athleteID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func unixFromExtra(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case float64:
		if typed <= 0 {
			return 0, false
		}
		return int64(typed), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func athleteIDFromExtra(value interface{}) (string, bool) {
	athlete, ok := value.(map[string]interface{})
	if !ok {
		return "", false
	}
	switch id := athlete["id"].(type) {
	case float64:
		if id <= 0 {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case string:
		if strings.TrimSpace(id) == "" {
			return "", false
		}
		return id, true
	default:
		return "", false
	}
}
