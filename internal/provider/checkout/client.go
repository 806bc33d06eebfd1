package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// Client calls the checkout provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a checkout API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type lineItemList struct {
	Data []LineItem `json:"data"`
}

// ListLineItems fetches the line items of a checkout session. The webhook
// event carries only the session; the product being paid for lives here.
func (c *Client) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	url := fmt.Sprintf("%s/v1/checkout/sessions/%s/line_items", c.baseURL, sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "checkout api request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read checkout api response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("checkout api returned status %d", resp.StatusCode)
	}

	var list lineItemList
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode line items")
	}
	return list.Data, nil
}
