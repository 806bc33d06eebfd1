package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypass/relaypass/internal/metrics"
	"github.com/relaypass/relaypass/internal/proxy"
	reconcilerHTTP "github.com/relaypass/relaypass/internal/reconciler/http"
)

func newTestServer(t *testing.T, config RouterConfig) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)

	if config.WebhookHandler == nil {
		config.WebhookHandler = reconcilerHTTP.NewWebhookHandler(nil, nil, "", 0, logger)
	}
	if config.PurchaseHandler == nil {
		config.PurchaseHandler = reconcilerHTTP.NewPurchaseHandler(nil, logger)
	}
	if config.ProxyHandler == nil {
		config.ProxyHandler = proxy.NewHandler("http://localhost:0", "", nil, logger)
	}

	return NewServer("localhost", 8080, nil, logger, config)
}

func TestHealthHandler(t *testing.T) {
	server := newTestServer(t, RouterConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.GetHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessHandlerWithoutDatabase(t *testing.T) {
	server := newTestServer(t, RouterConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	server.GetHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "not ready", response["status"])
}

func TestRateLimitMiddlewareEnforcesBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)

	router := gin.New()
	router.Use(RateLimitMiddleware(1, 2, logger))
	router.GET("/v1/entitlements/:cid", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/entitlements/abc", nil)
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)

		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestRateLimitMiddlewareIsolatesKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)

	router := gin.New()
	router.Use(RateLimitMiddleware(1, 1, logger))
	router.GET("/v1/entitlements/:cid", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Exhaust the bucket for one cid.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/entitlements/first", nil)
		router.ServeHTTP(w, req)
	}

	// A different cid has its own bucket.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/entitlements/second", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single origin",
			input:    "https://app.example.com",
			expected: []string{"https://app.example.com"},
		},
		{
			name:     "multiple origins with whitespace",
			input:    " https://a.example.com , https://b.example.com ",
			expected: []string{"https://a.example.com", "https://b.example.com"},
		},
		{
			name:     "skips empty entries",
			input:    "https://a.example.com,,",
			expected: []string{"https://a.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseOrigins(tt.input))
		})
	}
}

func TestCreateCORSMiddleware(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("disabled returns nil", func(t *testing.T) {
		assert.Nil(t, createCORSMiddleware(false, "https://app.example.com", logger))
	})

	t.Run("enabled without origins returns nil", func(t *testing.T) {
		assert.Nil(t, createCORSMiddleware(true, "", logger))
	})

	t.Run("enabled with origins returns middleware", func(t *testing.T) {
		assert.NotNil(t, createCORSMiddleware(true, "https://app.example.com", logger))
	})
}

func TestMetricsServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)

	t.Run("without provider serves health but no scrape route", func(t *testing.T) {
		server := NewMetricsServer("localhost", 8081, logger, nil)

		w := httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("with provider serves the exposition format", func(t *testing.T) {
		provider, err := metrics.NewProvider("relaypass")
		require.NoError(t, err)
		server := NewMetricsServer("localhost", 8081, logger, provider)

		w := httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
