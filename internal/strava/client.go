package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultAPIBaseURL is the provider's REST API root.
const DefaultAPIBaseURL = "https://www.strava.com/api/v3"

const maxResponseBytes = 4 << 20

// ErrUpstreamAPI indicates the provider API answered with a non-success status.
var ErrUpstreamAPI = errors.New("strava_api.upstream_failed")

// Client calls the provider REST API on behalf of an athlete.
type Client struct {
	apiBaseURL string
	httpClient *http.Client
}

// ProxiedResponse is an upstream response relayed verbatim to the caller.
type ProxiedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewClient constructs a Client; an empty base URL selects DefaultAPIBaseURL.
func NewClient(apiBaseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(apiBaseURL) == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		httpClient: httpClient,
	}
}

// Activity fetches the full activity detail as raw JSON.
func (client *Client) Activity(ctx context.Context, accessToken string, activityID int64) (json.RawMessage, error) {
	endpoint := client.apiBaseURL + "/activities/" + strconv.FormatInt(activityID, 10) + "?include_all_efforts=false"
	response, err := client.get(ctx, accessToken, endpoint)
	if err != nil {
		return nil, err
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("%w: activity %d: status %d", ErrUpstreamAPI, activityID, response.StatusCode)
	}
	if !json.Valid(response.Body) {
		return nil, fmt.Errorf("%w: activity %d: invalid json body", ErrUpstreamAPI, activityID)
	}
	return json.RawMessage(response.Body), nil
}

// Athlete fetches the authenticated athlete's profile without interpreting it.
func (client *Client) Athlete(ctx context.Context, accessToken string) (ProxiedResponse, error) {
	return client.get(ctx, accessToken, client.apiBaseURL+"/athlete")
}

func (client *Client) get(ctx context.Context, accessToken string, endpoint string) (ProxiedResponse, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ProxiedResponse{}, fmt.Errorf("strava_api.request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	bearerContext := context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	authorized := oauth2.NewClient(bearerContext, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	authorized.Timeout = client.httpClient.Timeout

	response, err := authorized.Do(request)
	if err != nil {
		return ProxiedResponse{}, fmt.Errorf("strava_api.get: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if readErr != nil {
		return ProxiedResponse{}, fmt.Errorf("strava_api.read: %w", readErr)
	}
	return ProxiedResponse{
		StatusCode:  response.StatusCode,
		ContentType: response.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
