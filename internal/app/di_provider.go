package app

import (
	"fmt"

	"github.com/relaypass/relaypass/internal/provider/billing"
	"github.com/relaypass/relaypass/internal/provider/checkout"
)

// CheckoutClient returns the card-checkout API client.
func (c *Container) CheckoutClient() *checkout.Client {
	c.checkoutClientInit.Do(func() {
		c.checkoutClient = checkout.NewClient(c.config.CheckoutAPIBaseURL, c.config.CheckoutAPIKey)
	})
	return c.checkoutClient
}

// BillingClient returns the mobile-billing publisher API client. Requests
// authenticate with OAuth bearer tokens minted from the configured service
// account key.
func (c *Container) BillingClient() (*billing.Client, error) {
	c.billingClientInit.Do(func() {
		tokens, err := billing.NewTokenSource(
			c.config.BillingServiceAccountEmail,
			[]byte(c.config.BillingPrivateKeyPEM),
			c.config.BillingTokenURL,
		)
		if err != nil {
			c.initErrors["billingClient"] = fmt.Errorf("failed to create billing token source: %w", err)
			return
		}
		c.billingClient = billing.NewClient(c.config.BillingAPIBaseURL, c.config.BillingPackageName, tokens)
	})
	if storedErr, exists := c.initErrors["billingClient"]; exists {
		return nil, storedErr
	}
	return c.billingClient, nil
}
