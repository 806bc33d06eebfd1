package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	"github.com/relaypass/relaypass/internal/metrics"
	"github.com/relaypass/relaypass/internal/proxy"
	reconcilerHTTP "github.com/relaypass/relaypass/internal/reconciler/http"
)

// RouterConfig carries the handlers and middleware settings for the gateway
// router.
type RouterConfig struct {
	WebhookHandler  *reconcilerHTTP.WebhookHandler
	PurchaseHandler *reconcilerHTTP.PurchaseHandler
	ProxyHandler    *proxy.Handler
	HTTPMetrics     metrics.HTTPMetrics

	CORSEnabled      bool
	CORSAllowOrigins string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Server represents the gateway HTTP server.
type Server struct {
	server *http.Server
	db     *sql.DB
	logger *slog.Logger
}

// NewServer creates a new gateway HTTP server with all routes registered.
func NewServer(
	host string,
	port int,
	db *sql.DB,
	logger *slog.Logger,
	config RouterConfig,
) *Server {
	server := &Server{
		db:     db,
		logger: logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(CustomLoggerMiddleware(logger))

	if config.HTTPMetrics != nil {
		router.Use(MetricsMiddleware(config.HTTPMetrics))
	}

	if corsMiddleware := createCORSMiddleware(config.CORSEnabled, config.CORSAllowOrigins, logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", healthHandler)
	router.GET("/ready", server.readinessHandler)

	v1 := router.Group("/v1")

	// Webhooks authenticate by signature or payload verification, never by
	// rate limiting: the payment providers expect reliable delivery.
	webhooks := v1.Group("/webhooks")
	webhooks.POST("/checkout", config.WebhookHandler.CheckoutWebhookHandler)
	webhooks.POST("/billing", config.WebhookHandler.BillingWebhookHandler)

	var rateLimit gin.HandlerFunc
	if config.RateLimitEnabled {
		rateLimit = RateLimitMiddleware(config.RateLimitRPS, config.RateLimitBurst, logger)
	}

	purchases := v1.Group("/purchases")
	if rateLimit != nil {
		purchases.Use(rateLimit)
	}
	purchases.POST("/acknowledge", config.PurchaseHandler.AcknowledgeHandler)
	purchases.POST("/cancel", config.PurchaseHandler.CancelHandler)
	purchases.POST("/revoke", config.PurchaseHandler.RevokeHandler)

	entitlements := v1.Group("/entitlements")
	if rateLimit != nil {
		entitlements.Use(rateLimit)
	}
	entitlements.GET("/:cid", config.PurchaseHandler.EntitlementHandler)

	session := v1.Group("/session")
	if rateLimit != nil {
		session.Use(rateLimit)
	}
	session.Any("/*path", config.ProxyHandler.ProxyHandler)

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports liveness.
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports readiness by pinging the database.
func (s *Server) readinessHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database unreachable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
