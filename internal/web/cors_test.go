package web

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func TestSanitizeOrigins(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	sanitized, err := sanitizeOrigins(logger, []string{" https://b.example.com ", "https://a.example.com/", "https://b.example.com", "http://localhost:3000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"http://localhost:3000", "https://a.example.com", "https://b.example.com"}
	if len(sanitized) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, sanitized)
	}
	for index := range expected {
		if sanitized[index] != expected[index] {
			t.Fatalf("expected %v, got %v", expected, sanitized)
		}
	}

	testCases := []struct {
		name     string
		origins  []string
		expected error
	}{
		{name: "empty", origins: nil, expected: errEmptyAllowedOrigins},
		{name: "blank", origins: []string{"  "}, expected: errEmptyAllowedOrigins},
		{name: "wildcard", origins: []string{"*"}, expected: errWildcardOrigin},
		{name: "path", origins: []string{"https://a.example.com/app"}, expected: errInvalidOrigin},
		{name: "scheme", origins: []string{"ftp://a.example.com"}, expected: errInvalidOrigin},
		{name: "host", origins: []string{"a.example.com"}, expected: errInvalidOrigin},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if _, err := sanitizeOrigins(logger, testCase.origins); !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
}

func TestConfigureCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"https://dashboard.example.com"})
	if err != nil {
		t.Fatalf("configure cors: %v", err)
	}
	router := gin.New()
	router.Use(middleware)
	router.GET("/strava/athlete", func(contextGin *gin.Context) {
		contextGin.String(http.StatusOK, "ok")
	})

	request := httptest.NewRequest(http.MethodOptions, "/strava/athlete", nil)
	request.Header.Set("Origin", "https://dashboard.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://dashboard.example.com" {
		t.Fatalf("expected allowed origin header, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}

	request = httptest.NewRequest(http.MethodGet, "/strava/athlete", nil)
	request.Header.Set("Origin", "https://evil.example.com")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %d", recorder.Code)
	}
}
