package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// BearerSource provides OAuth bearer tokens for API calls.
type BearerSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the mobile-billing publisher API for one application package.
type Client struct {
	baseURL     string
	packageName string
	tokens      BearerSource
	httpClient  *http.Client
}

// NewClient creates a billing API client.
func NewClient(baseURL, packageName string, tokens BearerSource) *Client {
	return &Client{
		baseURL:     baseURL,
		packageName: packageName,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// GetSubscriptionV2 fetches the v2 subscription purchase behind a token.
func (c *Client) GetSubscriptionV2(ctx context.Context, purchaseToken string) (*SubscriptionPurchaseV2, error) {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/purchases/subscriptionsv2/tokens/%s",
		url.PathEscape(c.packageName), url.PathEscape(purchaseToken))

	var purchase SubscriptionPurchaseV2
	if err := c.do(ctx, http.MethodGet, path, nil, &purchase); err != nil {
		return nil, err
	}
	return &purchase, nil
}

// GetProductPurchase fetches the v1 one-time product purchase behind a token.
func (c *Client) GetProductPurchase(ctx context.Context, productID, purchaseToken string) (*ProductPurchase, error) {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/purchases/products/%s/tokens/%s",
		url.PathEscape(c.packageName), url.PathEscape(productID), url.PathEscape(purchaseToken))

	var purchase ProductPurchase
	if err := c.do(ctx, http.MethodGet, path, nil, &purchase); err != nil {
		return nil, err
	}
	return &purchase, nil
}

// AcknowledgeSubscription acknowledges a subscription purchase, attaching the
// developer payload the client app reads back.
func (c *Client) AcknowledgeSubscription(ctx context.Context, subscriptionID, purchaseToken, developerPayload string) error {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/purchases/subscriptions/%s/tokens/%s:acknowledge",
		url.PathEscape(c.packageName), url.PathEscape(subscriptionID), url.PathEscape(purchaseToken))

	body := map[string]string{"developerPayload": developerPayload}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// AcknowledgeProduct acknowledges a one-time product purchase.
func (c *Client) AcknowledgeProduct(ctx context.Context, productID, purchaseToken, developerPayload string) error {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/purchases/products/%s/tokens/%s:acknowledge",
		url.PathEscape(c.packageName), url.PathEscape(productID), url.PathEscape(purchaseToken))

	body := map[string]string{"developerPayload": developerPayload}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// CancelSubscription cancels a subscription at the provider; the purchase
// stays valid until its current expiry.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, purchaseToken string) error {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/purchases/subscriptions/%s/tokens/%s:cancel",
		url.PathEscape(c.packageName), url.PathEscape(subscriptionID), url.PathEscape(purchaseToken))

	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// RevokeSubscription revokes a subscription immediately and refunds the
// latest charge.
func (c *Client) RevokeSubscription(ctx context.Context, subscriptionID, purchaseToken string) error {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/purchases/subscriptions/%s/tokens/%s:revoke",
		url.PathEscape(c.packageName), url.PathEscape(subscriptionID), url.PathEscape(purchaseToken))

	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// RefundOrder refunds a completed order, revoking the purchased item.
// One-time product refunds go through here; the order id lives on the
// product purchase.
func (c *Client) RefundOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/androidpublisher/v3/applications/%s/orders/%s:refund?revoke=true",
		url.PathEscape(c.packageName), url.PathEscape(orderID))

	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(err, "failed to build request")
	}

	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to obtain bearer token")
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, "billing api request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(err, "failed to read billing api response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return apperrors.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("billing api returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return apperrors.Wrap(err, "failed to decode billing api response")
		}
	}
	return nil
}
