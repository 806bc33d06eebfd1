// Package app provides the dependency injection container assembling the
// gateway's components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/relaypass/relaypass/internal/config"
	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
	"github.com/relaypass/relaypass/internal/database"
	entitlementUsecase "github.com/relaypass/relaypass/internal/entitlement/usecase"
	"github.com/relaypass/relaypass/internal/http"
	"github.com/relaypass/relaypass/internal/metrics"
	"github.com/relaypass/relaypass/internal/provider/billing"
	"github.com/relaypass/relaypass/internal/provider/checkout"
	"github.com/relaypass/relaypass/internal/proxy"
	reconcilerHTTP "github.com/relaypass/relaypass/internal/reconciler/http"
	reconcilerUsecase "github.com/relaypass/relaypass/internal/reconciler/usecase"
)

// Container holds all application dependencies and provides methods to access
// them. It follows the lazy initialization pattern - components are created on
// first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	httpMetrics     metrics.HTTPMetrics
	businessMetrics metrics.BusinessMetrics

	// Crypto
	credentialCipher *cryptoService.CredentialCipher

	// Repositories
	clientRepo       reconcilerUsecase.ClientRepository
	subscriptionRepo reconcilerUsecase.SubscriptionRepository
	lapseRepo        reconcilerUsecase.LapseRepository
	payeeRepo        reconcilerUsecase.PayeeRepository
	credentialRepo   entitlementUsecase.CredentialRepository

	// Providers and broker
	vpnBroker      entitlementUsecase.BrokerUseCase
	checkoutClient *checkout.Client
	billingClient  *billing.Client

	// Use cases
	billingReconciler  reconcilerUsecase.BillingReconciler
	checkoutReconciler reconcilerUsecase.CheckoutReconciler

	// HTTP surface
	webhookHandler  *reconcilerHTTP.WebhookHandler
	purchaseHandler *reconcilerHTTP.PurchaseHandler
	proxyHandler    *proxy.Handler
	httpServer      *http.Server
	metricsServer   *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                     sync.Mutex
	loggerInit             sync.Once
	dbInit                 sync.Once
	metricsProviderInit    sync.Once
	httpMetricsInit        sync.Once
	businessMetricsInit    sync.Once
	credentialCipherInit   sync.Once
	clientRepoInit         sync.Once
	subscriptionRepoInit   sync.Once
	lapseRepoInit          sync.Once
	payeeRepoInit          sync.Once
	credentialRepoInit     sync.Once
	vpnBrokerInit          sync.Once
	checkoutClientInit     sync.Once
	billingClientInit      sync.Once
	billingReconcilerInit  sync.Once
	checkoutReconcilerInit sync.Once
	webhookHandlerInit     sync.Once
	purchaseHandlerInit    sync.Once
	proxyHandlerInit       sync.Once
	httpServerInit         sync.Once
	metricsServerInit      sync.Once
	initErrors             map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB(ctx context.Context) (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(ctx, database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		c.db = db
	})
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider. Returns nil
// when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// HTTPMetrics returns the HTTP metrics recorder. A no-op recorder is returned
// when metrics are disabled.
func (c *Container) HTTPMetrics() (metrics.HTTPMetrics, error) {
	c.httpMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["httpMetrics"] = err
			return
		}
		if provider == nil {
			c.httpMetrics = metrics.NewNoOpHTTPMetrics()
			return
		}
		httpMetrics, err := metrics.NewHTTPMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["httpMetrics"] = fmt.Errorf("failed to create http metrics: %w", err)
			return
		}
		c.httpMetrics = httpMetrics
	})
	if storedErr, exists := c.initErrors["httpMetrics"]; exists {
		return nil, storedErr
	}
	return c.httpMetrics, nil
}

// BusinessMetrics returns the business operation metrics recorder. A no-op
// recorder is returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["businessMetrics"] = err
			return
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.businessMetrics = businessMetrics
	})
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// Shutdown performs cleanup of all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
