package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/stravarelay/internal/strava"
	"github.com/tyemirov/stravarelay/internal/tokenkit"
	"go.uber.org/zap"
)

// TokenService hands out athlete access tokens and completes authorization.
type TokenService interface {
	AccessToken(ctx context.Context, athleteID string) (string, error)
	Authorize(ctx context.Context, code string) (tokenkit.TokenRecord, error)
}

// ProviderAPI is the subset of the provider REST API the relay calls.
type ProviderAPI interface {
	Activity(ctx context.Context, accessToken string, activityID int64) (json.RawMessage, error)
	Athlete(ctx context.Context, accessToken string) (strava.ProxiedResponse, error)
}

// RelayConfig holds the static settings of the relay routes.
type RelayConfig struct {
	AuthorizationURL   string
	WebhookVerifyToken string
	LookupSigningKey   []byte
}

// RelayServices holds the collaborators of the relay routes.
type RelayServices struct {
	Tokens TokenService
	API    ProviderAPI
	Policy strava.ActivityPolicy
	Clock  tokenkit.Clock
	Logger *zap.Logger
}

// MountRelayRoutes registers /login, /oauth_redirect, /strava/webhook, and /strava/athlete.
// Every other path answers 404 with an empty body. Handler failures are plain-text 500s,
// except unknown athletes, which answer 401 (see respondError).
func MountRelayRoutes(router *gin.Engine, configuration RelayConfig, services RelayServices) {
	if services.Tokens == nil || services.API == nil {
		panic("relay routes require a token service and a provider API")
	}
	logger := services.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := services.Policy
	if policy == nil {
		policy = strava.PassThroughPolicy{}
	}

	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.GET("/login", LoginPage(configuration.AuthorizationURL))

	router.GET("/oauth_redirect", func(contextGin *gin.Context) {
		if providerErr := contextGin.Query("error"); providerErr != "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "authorization_denied", "detail": providerErr})
			return
		}
		code := strings.TrimSpace(contextGin.Query("code"))
		if code == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_code"})
			return
		}
		record, err := services.Tokens.Authorize(contextGin.Request.Context(), code)
		if err != nil {
			respondError(contextGin, logger, "oauth.redirect.exchange_failed", err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"athlete_id": record.AthleteID,
			"expires_at": record.ExpiresAt,
			"scope":      contextGin.Query("scope"),
		})
	})

	router.GET("/strava/webhook", func(contextGin *gin.Context) {
		mode := contextGin.Query("hub.mode")
		verifyToken := contextGin.Query("hub.verify_token")
		challenge := contextGin.Query("hub.challenge")
		if configuration.WebhookVerifyToken == "" || mode != "subscribe" || challenge == "" ||
			subtle.ConstantTimeCompare([]byte(verifyToken), []byte(configuration.WebhookVerifyToken)) != 1 {
			logger.Warn("webhook subscription rejected",
				zap.String("code", "webhook.subscribe.rejected"),
				zap.String("mode", mode))
			contextGin.AbortWithStatus(http.StatusForbidden)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"hub.challenge": challenge})
	})

	router.POST("/strava/webhook", func(contextGin *gin.Context) {
		var event strava.WebhookEvent
		if err := contextGin.ShouldBindJSON(&event); err != nil {
			logger.Warn("webhook payload rejected",
				zap.String("code", "webhook.invalid_payload"),
				zap.Error(err))
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_webhook_payload"})
			return
		}
		if !event.TouchesActivity() {
			contextGin.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		requestContext := contextGin.Request.Context()
		accessToken, tokenErr := services.Tokens.AccessToken(requestContext, strconv.FormatInt(event.OwnerID, 10))
		if tokenErr != nil {
			respondError(contextGin, logger, "webhook.token_failed", tokenErr)
			return
		}
		activity, fetchErr := services.API.Activity(requestContext, accessToken, event.ObjectID)
		if fetchErr != nil {
			respondError(contextGin, logger, "webhook.activity.fetch_failed", fetchErr)
			return
		}
		if reviewErr := policy.Review(requestContext, event, activity); reviewErr != nil {
			respondError(contextGin, logger, "webhook.activity.review_failed", reviewErr)
			return
		}
		contextGin.Data(http.StatusOK, "application/json", activity)
	})

	router.GET("/strava/athlete", RequireLookupToken(configuration.LookupSigningKey, services.Clock, logger), func(contextGin *gin.Context) {
		athleteID := strings.TrimSpace(contextGin.Query("athleteId"))
		if athleteID == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_athlete_id"})
			return
		}
		requestContext := contextGin.Request.Context()
		accessToken, tokenErr := services.Tokens.AccessToken(requestContext, athleteID)
		if tokenErr != nil {
			respondError(contextGin, logger, "athlete.token_failed", tokenErr)
			return
		}
		proxied, fetchErr := services.API.Athlete(requestContext, accessToken)
		if fetchErr != nil {
			respondError(contextGin, logger, "athlete.fetch_failed", fetchErr)
			return
		}
		contentType := proxied.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		contextGin.Data(proxied.StatusCode, contentType, proxied.Body)
	})

	router.NoRoute(NotFound)
}
