package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/stravarelay/internal/tokenkit"
	"go.uber.org/zap"
)

const plainTextContentType = "text/plain; charset=utf-8"

// respondError maps a handler failure to a response. Every failure is a 500 carrying
// the error text, except tokenkit.ErrNotAuthorized: an athlete with no stored record
// gets 401 {"error":"athlete_not_authorized"} so callers can send them to /login.
func respondError(contextGin *gin.Context, logger *zap.Logger, code string, err error) {
	if errors.Is(err, tokenkit.ErrNotAuthorized) {
		logger.Warn("athlete not authorized",
			zap.String("code", code+".not_authorized"),
			zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "athlete_not_authorized"})
		return
	}
	logger.Error("request failed",
		zap.String("code", code),
		zap.Error(err))
	contextGin.Data(http.StatusInternalServerError, plainTextContentType, []byte(err.Error()))
	contextGin.Abort()
}

// RecoverWithText turns panics into a 500 whose body describes the failure.
func RecoverWithText(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gin.CustomRecovery(func(contextGin *gin.Context, recovered any) {
		logger.Error("handler panic",
			zap.String("code", "http.panic"),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Any("recovered", recovered))
		contextGin.Data(http.StatusInternalServerError, plainTextContentType, []byte(fmt.Sprintf("%v", recovered)))
		contextGin.Abort()
	})
}

// NotFound answers 404 with an empty body.
func NotFound(contextGin *gin.Context) {
	contextGin.Writer.WriteHeader(http.StatusNotFound)
	contextGin.Writer.WriteHeaderNow()
	contextGin.Abort()
}

// TrimTrailingSlash strips trailing slashes from the request path before routing.
func TrimTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL != nil && len(request.URL.Path) > 1 && strings.HasSuffix(request.URL.Path, "/") {
			trimmed := strings.TrimRight(request.URL.Path, "/")
			if trimmed == "" {
				trimmed = "/"
			}
			request.URL.Path = trimmed
			request.URL.RawPath = ""
		}
		next.ServeHTTP(writer, request)
	})
}
