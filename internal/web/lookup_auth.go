package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/stravarelay/internal/tokenkit"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// RequireLookupToken demands a lookup token scoped to the athleteId query parameter.
// With an empty signing key the route stays open.
func RequireLookupToken(signingKey []byte, clock tokenkit.Clock, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = tokenkit.NewSystemClock()
	}
	return func(contextGin *gin.Context) {
		if len(signingKey) == 0 {
			contextGin.Next()
			return
		}
		header := contextGin.GetHeader("Authorization")
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, err := tokenkit.ParseLookupToken(clock, strings.TrimSpace(header[len(bearerPrefix):]), signingKey)
		if err != nil {
			logger.Warn("lookup token rejected",
				zap.String("code", "athlete.lookup.invalid_token"),
				zap.Error(err))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if claims.AthleteID != strings.TrimSpace(contextGin.Query("athleteId")) {
			logger.Warn("lookup token athlete mismatch",
				zap.String("code", "athlete.lookup.forbidden"),
				zap.String("token_athlete_id", claims.AthleteID))
			contextGin.AbortWithStatus(http.StatusForbidden)
			return
		}
		contextGin.Next()
	}
}
