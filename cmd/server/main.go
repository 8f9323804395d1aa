package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/stravarelay/internal/strava"
	"github.com/tyemirov/stravarelay/internal/tokenkit"
	"github.com/tyemirov/stravarelay/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "stravarelay",
		Short:   "Relay for Strava OAuth logins and webhook notifications with cached, auto-refreshed athlete tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("strava_client_id", "", "Strava OAuth application client ID")
	rootCmd.Flags().String("strava_client_secret", "", "Strava OAuth application client secret")
	rootCmd.Flags().String("redirect_uri", "", "Public URL of /oauth_redirect registered with Strava")
	rootCmd.Flags().String("strava_authorize_url", "https://www.strava.com/oauth/authorize", "Strava authorization page URL")
	rootCmd.Flags().String("strava_token_url", "https://www.strava.com/api/v3/oauth/token", "Strava OAuth token endpoint")
	rootCmd.Flags().String("strava_api_base_url", strava.DefaultAPIBaseURL, "Strava REST API base URL")
	rootCmd.Flags().String("oauth_scope", "activity:read_all,activity:write", "Scopes requested at login")
	rootCmd.Flags().Duration("expiry_margin", tokenkit.DefaultExpiryMargin, "Minimum remaining validity of a handed-out access token")
	rootCmd.Flags().Duration("http_timeout", 15*time.Second, "Timeout for outbound calls to Strava")
	rootCmd.Flags().String("store_url", "", "Token store URL (redis://, postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().String("redis_key_prefix", "", "Key prefix applied by the redis token store")
	rootCmd.Flags().String("webhook_verify_token", "", "Verify token for Strava webhook subscription handshakes")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for browser clients of /strava/athlete")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.PersistentFlags().String("lookup_signing_key", "", "HS256 secret for /strava/athlete lookup tokens; empty leaves the route open")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("strava_client_id", rootCmd.Flags().Lookup("strava_client_id"))
	_ = viper.BindPFlag("strava_client_secret", rootCmd.Flags().Lookup("strava_client_secret"))
	_ = viper.BindPFlag("redirect_uri", rootCmd.Flags().Lookup("redirect_uri"))
	_ = viper.BindPFlag("strava_authorize_url", rootCmd.Flags().Lookup("strava_authorize_url"))
	_ = viper.BindPFlag("strava_token_url", rootCmd.Flags().Lookup("strava_token_url"))
	_ = viper.BindPFlag("strava_api_base_url", rootCmd.Flags().Lookup("strava_api_base_url"))
	_ = viper.BindPFlag("oauth_scope", rootCmd.Flags().Lookup("oauth_scope"))
	_ = viper.BindPFlag("expiry_margin", rootCmd.Flags().Lookup("expiry_margin"))
	_ = viper.BindPFlag("http_timeout", rootCmd.Flags().Lookup("http_timeout"))
	_ = viper.BindPFlag("store_url", rootCmd.Flags().Lookup("store_url"))
	_ = viper.BindPFlag("redis_key_prefix", rootCmd.Flags().Lookup("redis_key_prefix"))
	_ = viper.BindPFlag("webhook_verify_token", rootCmd.Flags().Lookup("webhook_verify_token"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("lookup_signing_key", rootCmd.PersistentFlags().Lookup("lookup_signing_key"))

	viper.SetEnvPrefix("RELAY")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newMintLookupTokenCommand())
	return rootCmd
}

const (
	configCodeMissingClientID         = "config.missing_strava_client_id"
	configCodeMissingClientSecret     = "config.missing_strava_client_secret"
	configCodeMissingRedirectURI      = "config.missing_redirect_uri"
	configCodeInvalidExpiryMargin     = "config.invalid_expiry_margin"
	configCodeInvalidHTTPTimeout      = "config.invalid_http_timeout"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeStoreInit               = "config.store_init"
	configCodeMissingSigningKey       = "config.missing_lookup_signing_key"
	configCodeMissingAthleteID        = "config.missing_athlete_id"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerConfig is the validated process configuration.
type ServerConfig struct {
	Provider           tokenkit.ProviderConfig
	APIBaseURL         string
	HTTPTimeout        time.Duration
	StoreURL           string
	RedisKeyPrefix     string
	WebhookVerifyToken string
	LookupSigningKey   []byte
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates settings from viper.
func LoadServerConfig() (ServerConfig, error) {
	clientID := strings.TrimSpace(viper.GetString("strava_client_id"))
	if clientID == "" {
		return ServerConfig{}, configError(configCodeMissingClientID, "strava_client_id must be provided")
	}

	clientSecret := viper.GetString("strava_client_secret")
	if clientSecret == "" {
		return ServerConfig{}, configError(configCodeMissingClientSecret, "strava_client_secret must be provided")
	}

	redirectURI := strings.TrimSpace(viper.GetString("redirect_uri"))
	if redirectURI == "" {
		return ServerConfig{}, configError(configCodeMissingRedirectURI, "redirect_uri must be provided")
	}

	expiryMargin := tokenkit.DefaultExpiryMargin
	if viper.IsSet("expiry_margin") {
		expiryMargin = viper.GetDuration("expiry_margin")
		if expiryMargin <= 0 {
			return ServerConfig{}, configError(configCodeInvalidExpiryMargin, "expiry_margin must be greater than zero")
		}
	}

	httpTimeout := viper.GetDuration("http_timeout")
	if httpTimeout < 0 {
		return ServerConfig{}, configError(configCodeInvalidHTTPTimeout, "http_timeout must not be negative")
	}

	return ServerConfig{
		Provider: tokenkit.ProviderConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			AuthorizeURL: stringOrDefault("strava_authorize_url", "https://www.strava.com/oauth/authorize"),
			TokenURL:     stringOrDefault("strava_token_url", "https://www.strava.com/api/v3/oauth/token"),
			Scope:        stringOrDefault("oauth_scope", "activity:read_all,activity:write"),
			ExpiryMargin: expiryMargin,
		},
		APIBaseURL:         stringOrDefault("strava_api_base_url", strava.DefaultAPIBaseURL),
		HTTPTimeout:        httpTimeout,
		StoreURL:           viper.GetString("store_url"),
		RedisKeyPrefix:     viper.GetString("redis_key_prefix"),
		WebhookVerifyToken: viper.GetString("webhook_verify_token"),
		LookupSigningKey:   []byte(viper.GetString("lookup_signing_key")),
	}, nil
}

func stringOrDefault(key string, fallback string) string {
	if value := strings.TrimSpace(viper.GetString(key)); value != "" {
		return value
	}
	return fallback
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(web.RecoverWithText(logger))
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	keyValueStore, driverLabel, storeErr := tokenkit.OpenKeyValueStore(commandContext, serverConfig.StoreURL, tokenkit.StoreOptions{
		RedisKeyPrefix: serverConfig.RedisKeyPrefix,
	})
	if storeErr != nil {
		return fmt.Errorf("%s: %w", configCodeStoreInit, storeErr)
	}
	if closer, closable := keyValueStore.(io.Closer); closable {
		defer func() { _ = closer.Close() }()
	}
	logger.Info("using token store", zap.String("driver", driverLabel))

	outboundClient := &http.Client{Timeout: serverConfig.HTTPTimeout}
	clock := tokenkit.NewSystemClock()
	metricsRecorder := tokenkit.NewEventCounter()

	manager := tokenkit.NewManager(
		tokenkit.NewRecordStore(keyValueStore),
		tokenkit.NewExchangeClient(serverConfig.Provider, outboundClient),
		tokenkit.WithClock(clock),
		tokenkit.WithExpiryMargin(serverConfig.Provider.ExpiryMargin),
		tokenkit.WithLogger(logger),
		tokenkit.WithMetrics(metricsRecorder),
	)

	web.MountRelayRoutes(router, web.RelayConfig{
		AuthorizationURL:   tokenkit.AuthorizationURL(serverConfig.Provider),
		WebhookVerifyToken: serverConfig.WebhookVerifyToken,
		LookupSigningKey:   serverConfig.LookupSigningKey,
	}, web.RelayServices{
		Tokens: manager,
		API:    strava.NewClient(serverConfig.APIBaseURL, outboundClient),
		Policy: strava.PassThroughPolicy{},
		Clock:  clock,
		Logger: logger,
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           web.TrimTrailingSlash(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	serveErr := serveHTTP(server)
	logger.Info("token metrics", zap.Any("counts", metricsRecorder.Snapshot()))
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", serveErr)
	}
	return nil
}

func newMintLookupTokenCommand() *cobra.Command {
	mintCmd := &cobra.Command{
		Use:   "mint-lookup-token",
		Short: "Print a signed token that authorizes /strava/athlete lookups for one athlete",
		RunE: func(command *cobra.Command, arguments []string) error {
			signingKey := viper.GetString("lookup_signing_key")
			if signingKey == "" {
				return configError(configCodeMissingSigningKey, "lookup_signing_key must be provided")
			}
			athleteID, _ := command.Flags().GetString("athlete_id")
			if strings.TrimSpace(athleteID) == "" {
				return configError(configCodeMissingAthleteID, "athlete_id must be provided")
			}
			ttl, _ := command.Flags().GetDuration("ttl")
			token, expiresAt, err := tokenkit.MintLookupToken(tokenkit.NewSystemClock(), athleteID, []byte(signingKey), ttl)
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintf(command.OutOrStdout(), "%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
			return writeErr
		},
	}
	mintCmd.Flags().String("athlete_id", "", "Athlete the token is scoped to")
	mintCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return mintCmd
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
