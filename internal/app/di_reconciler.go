package app

import (
	"context"
	"fmt"

	"github.com/relaypass/relaypass/internal/http"
	"github.com/relaypass/relaypass/internal/proxy"
	reconcilerHTTP "github.com/relaypass/relaypass/internal/reconciler/http"
	reconcilerUsecase "github.com/relaypass/relaypass/internal/reconciler/usecase"
)

// BillingReconciler returns the mobile-billing reconciler, decorated with
// business metrics.
func (c *Container) BillingReconciler(ctx context.Context) (reconcilerUsecase.BillingReconciler, error) {
	c.billingReconcilerInit.Do(func() {
		reconciler, err := c.initBillingReconciler(ctx)
		if err != nil {
			c.initErrors["billingReconciler"] = err
			return
		}
		c.billingReconciler = reconciler
	})
	if storedErr, exists := c.initErrors["billingReconciler"]; exists {
		return nil, storedErr
	}
	return c.billingReconciler, nil
}

func (c *Container) initBillingReconciler(ctx context.Context) (reconcilerUsecase.BillingReconciler, error) {
	clientRepo, err := c.ClientRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client repository for billing reconciler: %w", err)
	}

	subscriptionRepo, err := c.SubscriptionRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription repository for billing reconciler: %w", err)
	}

	broker, err := c.VPNBroker(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get broker for billing reconciler: %w", err)
	}

	billingClient, err := c.BillingClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get billing client for billing reconciler: %w", err)
	}

	cipher, err := c.CredentialCipher(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential cipher for billing reconciler: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for billing reconciler: %w", err)
	}

	reconciler := reconcilerUsecase.NewBillingReconciler(
		clientRepo,
		subscriptionRepo,
		broker,
		billingClient,
		cipher,
		c.Logger(),
		c.config.TestMode,
	)

	return reconcilerUsecase.NewBillingReconcilerWithMetrics(reconciler, businessMetrics), nil
}

// CheckoutReconciler returns the card-checkout reconciler, decorated with
// business metrics.
func (c *Container) CheckoutReconciler(ctx context.Context) (reconcilerUsecase.CheckoutReconciler, error) {
	c.checkoutReconcilerInit.Do(func() {
		reconciler, err := c.initCheckoutReconciler(ctx)
		if err != nil {
			c.initErrors["checkoutReconciler"] = err
			return
		}
		c.checkoutReconciler = reconciler
	})
	if storedErr, exists := c.initErrors["checkoutReconciler"]; exists {
		return nil, storedErr
	}
	return c.checkoutReconciler, nil
}

func (c *Container) initCheckoutReconciler(ctx context.Context) (reconcilerUsecase.CheckoutReconciler, error) {
	clientRepo, err := c.ClientRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client repository for checkout reconciler: %w", err)
	}

	lapseRepo, err := c.LapseRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lapse repository for checkout reconciler: %w", err)
	}

	payeeRepo, err := c.PayeeRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get payee repository for checkout reconciler: %w", err)
	}

	broker, err := c.VPNBroker(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get broker for checkout reconciler: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for checkout reconciler: %w", err)
	}

	reconciler := reconcilerUsecase.NewCheckoutReconciler(
		clientRepo,
		lapseRepo,
		payeeRepo,
		broker,
		c.CheckoutClient(),
		c.config.CheckoutProductID,
		c.Logger(),
	)

	return reconcilerUsecase.NewCheckoutReconcilerWithMetrics(reconciler, businessMetrics), nil
}

// WebhookHandler returns the provider webhook HTTP handler.
func (c *Container) WebhookHandler(ctx context.Context) (*reconcilerHTTP.WebhookHandler, error) {
	c.webhookHandlerInit.Do(func() {
		checkoutReconciler, err := c.CheckoutReconciler(ctx)
		if err != nil {
			c.initErrors["webhookHandler"] = err
			return
		}
		billingReconciler, err := c.BillingReconciler(ctx)
		if err != nil {
			c.initErrors["webhookHandler"] = err
			return
		}
		c.webhookHandler = reconcilerHTTP.NewWebhookHandler(
			checkoutReconciler,
			billingReconciler,
			c.config.CheckoutWebhookSecret,
			c.config.CheckoutSignatureTolerance,
			c.Logger(),
		)
	})
	if storedErr, exists := c.initErrors["webhookHandler"]; exists {
		return nil, storedErr
	}
	return c.webhookHandler, nil
}

// PurchaseHandler returns the end-client purchase HTTP handler.
func (c *Container) PurchaseHandler(ctx context.Context) (*reconcilerHTTP.PurchaseHandler, error) {
	c.purchaseHandlerInit.Do(func() {
		billingReconciler, err := c.BillingReconciler(ctx)
		if err != nil {
			c.initErrors["purchaseHandler"] = err
			return
		}
		c.purchaseHandler = reconcilerHTTP.NewPurchaseHandler(billingReconciler, c.Logger())
	})
	if storedErr, exists := c.initErrors["purchaseHandler"]; exists {
		return nil, storedErr
	}
	return c.purchaseHandler, nil
}

// ProxyHandler returns the session proxy HTTP handler.
func (c *Container) ProxyHandler(ctx context.Context) (*proxy.Handler, error) {
	c.proxyHandlerInit.Do(func() {
		cipher, err := c.CredentialCipher(ctx)
		if err != nil {
			c.initErrors["proxyHandler"] = err
			return
		}
		c.proxyHandler = proxy.NewHandler(c.config.VPNAPIBaseURL, c.config.VPNAPIKey, cipher, c.Logger())
	})
	if storedErr, exists := c.initErrors["proxyHandler"]; exists {
		return nil, storedErr
	}
	return c.proxyHandler, nil
}

// HTTPServer returns the gateway HTTP server instance.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	c.httpServerInit.Do(func() {
		server, err := c.initHTTPServer(ctx)
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		c.httpServer = server
	})
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

func (c *Container) initHTTPServer(ctx context.Context) (*http.Server, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	webhookHandler, err := c.WebhookHandler(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook handler for http server: %w", err)
	}

	purchaseHandler, err := c.PurchaseHandler(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase handler for http server: %w", err)
	}

	proxyHandler, err := c.ProxyHandler(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get proxy handler for http server: %w", err)
	}

	httpMetrics, err := c.HTTPMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get http metrics for http server: %w", err)
	}

	server := http.NewServer(
		c.config.ServerHost,
		c.config.ServerPort,
		db,
		c.Logger(),
		http.RouterConfig{
			WebhookHandler:   webhookHandler,
			PurchaseHandler:  purchaseHandler,
			ProxyHandler:     proxyHandler,
			HTTPMetrics:      httpMetrics,
			CORSEnabled:      c.config.CORSEnabled,
			CORSAllowOrigins: c.config.CORSAllowOrigins,
			RateLimitEnabled: c.config.RateLimitEnabled,
			RateLimitRPS:     c.config.RateLimitRequestsPerSec,
			RateLimitBurst:   c.config.RateLimitBurst,
		},
	)

	return server, nil
}

// MetricsServer returns the Prometheus metrics server instance. Returns nil
// when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}
