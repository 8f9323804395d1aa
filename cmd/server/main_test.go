package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/stravarelay/internal/tokenkit"
	"go.uber.org/zap"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func setRequiredProviderSettings() {
	viper.Set("strava_client_id", "12345")
	viper.Set("strava_client_secret", "client-secret")
	viper.Set("redirect_uri", "https://relay.example.com/oauth_redirect")
}

func TestLoadServerConfigReportsMissingFields(t *testing.T) {
	testCases := []struct {
		name            string
		settings        map[string]interface{}
		expectedMessage string
	}{
		{
			name:            "client id",
			settings:        map[string]interface{}{"strava_client_secret": "secret", "redirect_uri": "https://relay.example.com/oauth_redirect"},
			expectedMessage: "config.missing_strava_client_id: strava_client_id must be provided",
		},
		{
			name:            "client secret",
			settings:        map[string]interface{}{"strava_client_id": "12345", "redirect_uri": "https://relay.example.com/oauth_redirect"},
			expectedMessage: "config.missing_strava_client_secret: strava_client_secret must be provided",
		},
		{
			name:            "redirect uri",
			settings:        map[string]interface{}{"strava_client_id": "12345", "strava_client_secret": "secret"},
			expectedMessage: "config.missing_redirect_uri: redirect_uri must be provided",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			for key, value := range testCase.settings {
				viper.Set(key, value)
			}
			_, err := LoadServerConfig()
			if err == nil || err.Error() != testCase.expectedMessage {
				t.Fatalf("expected error %q, got %v", testCase.expectedMessage, err)
			}
		})
	}
}

func TestLoadServerConfigRejectsInvalidDurations(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredProviderSettings()
	viper.Set("expiry_margin", 0)
	_, err := LoadServerConfig()
	expectedMessage := "config.invalid_expiry_margin: expiry_margin must be greater than zero"
	if err == nil || err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %v", expectedMessage, err)
	}

	viper.Set("expiry_margin", time.Minute)
	viper.Set("http_timeout", -time.Second)
	_, err = LoadServerConfig()
	expectedMessage = "config.invalid_http_timeout: http_timeout must not be negative"
	if err == nil || err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %v", expectedMessage, err)
	}
}

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredProviderSettings()
	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	if config.Provider.ExpiryMargin != tokenkit.DefaultExpiryMargin {
		t.Fatalf("expected default expiry margin, got %s", config.Provider.ExpiryMargin)
	}
	if config.Provider.TokenURL != "https://www.strava.com/api/v3/oauth/token" {
		t.Fatalf("unexpected token url %s", config.Provider.TokenURL)
	}
	if config.Provider.Scope != "activity:read_all,activity:write" {
		t.Fatalf("unexpected scope %s", config.Provider.Scope)
	}
	if config.APIBaseURL != "https://www.strava.com/api/v3" {
		t.Fatalf("unexpected api base url %s", config.APIBaseURL)
	}
	if len(config.LookupSigningKey) != 0 {
		t.Fatalf("expected lookup route to stay open by default")
	}
}

func runServerWithConfig(t *testing.T) error {
	t.Helper()
	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))
	return runServer(command, nil)
}

func TestRunServerInMemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	var loginBody string
	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		recorder := httptest.NewRecorder()
		server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/login/", nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected login page, got %d", recorder.Code)
		}
		loginBody = recorder.Body.String()

		recorder = httptest.NewRecorder()
		server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/strava/athlete?athleteId=42", nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected unknown athlete to be unauthorized, got %d", recorder.Code)
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	viper.Set("listen_addr", ":0")
	setRequiredProviderSettings()

	if err := runServerWithConfig(t); err != nil {
		t.Fatalf("expected runServer to succeed with in-memory store, got %v", err)
	}
	if !strings.Contains(loginBody, "client_id=12345") || !strings.Contains(loginBody, "response_type=code") {
		t.Fatalf("expected authorization link in login page, got %s", loginBody)
	}
}

func TestRunServerSQLiteStoreWithCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	viper.Set("listen_addr", ":0")
	setRequiredProviderSettings()
	viper.Set("store_url", "sqlite://"+filepath.Join(t.TempDir(), "tokens.db"))
	viper.Set("enable_cors", true)
	viper.Set("cors_allowed_origins", []string{"https://dashboard.example.com"})

	if err := runServerWithConfig(t); err != nil {
		t.Fatalf("expected runServer to succeed, got %v", err)
	}
}

func TestRunServerRejectsUnsupportedStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		t.Fatalf("server must not start without a store")
		return nil
	})
	defer restoreServe()

	setRequiredProviderSettings()
	viper.Set("store_url", "mongodb://localhost/tokens")

	err := runServerWithConfig(t)
	if err == nil || !strings.HasPrefix(err.Error(), "config.store_init: ") {
		t.Fatalf("expected store init error, got %v", err)
	}
}

func TestRunServerRejectsCORSWithoutOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	setRequiredProviderSettings()
	viper.Set("enable_cors", true)

	if err := runServerWithConfig(t); err == nil {
		t.Fatalf("expected cors configuration error")
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func TestMintLookupTokenCommand(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	var output bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&output)
	cmd.SetArgs([]string{"mint-lookup-token", "--lookup_signing_key", "lookup-secret", "--athlete_id", "134815", "--ttl", "1h"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected mint to succeed: %v", err)
	}

	token := strings.SplitN(output.String(), "\n", 2)[0]
	claims, err := tokenkit.ParseLookupToken(tokenkit.NewSystemClock(), token, []byte("lookup-secret"))
	if err != nil {
		t.Fatalf("expected minted token to verify: %v", err)
	}
	if claims.AthleteID != "134815" {
		t.Fatalf("expected athlete 134815, got %s", claims.AthleteID)
	}
}

func TestMintLookupTokenRequiresSigningKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"mint-lookup-token", "--athlete_id", "134815"})
	err := cmd.Execute()
	expectedMessage := "config.missing_lookup_signing_key: lookup_signing_key must be provided"
	if err == nil || err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %v", expectedMessage, err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}
