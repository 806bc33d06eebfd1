package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

type staticBearer string

func (s staticBearer) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

func TestClientGetSubscriptionV2(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t,
			"/androidpublisher/v3/applications/com.relaypass.app/purchases/subscriptionsv2/tokens/tok-abc",
			r.URL.Path)
		assert.Equal(t, "Bearer bearer-1", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{
			"kind": "androidpublisher#subscriptionPurchaseV2",
			"subscriptionState": "SUBSCRIPTION_STATE_ACTIVE",
			"acknowledgementState": "ACKNOWLEDGEMENT_STATE_PENDING",
			"lineItems": [{"productId": "vpn.monthly", "expiryTime": "2026-10-01T00:00:00Z",
				"autoRenewingPlan": {"autoRenewEnabled": true},
				"offerDetails": {"basePlanId": "monthly"}}],
			"externalAccountIdentifiers": {"obfuscatedExternalAccountId": "obf-12345678901234567890123456789012"}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "com.relaypass.app", staticBearer("bearer-1"))
	purchase, err := client.GetSubscriptionV2(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, StateActive, purchase.SubscriptionState)
	assert.False(t, purchase.IsAcknowledged())
	require.Len(t, purchase.LineItems, 1)
	assert.True(t, purchase.LineItems[0].IsAutoRenewing())
	assert.Equal(t, "monthly", purchase.LineItems[0].OfferDetails.BasePlanID)
}

func TestClientGetProductPurchase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t,
			"/androidpublisher/v3/applications/com.relaypass.app/purchases/products/vpn-pass/tokens/tok-otp",
			r.URL.Path)
		_, _ = w.Write([]byte(`{"purchaseTimeMillis": "1700000000000", "purchaseState": 0, "acknowledgementState": 0, "orderId": "order-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "com.relaypass.app", staticBearer("bearer-1"))
	purchase, err := client.GetProductPurchase(context.Background(), "vpn-pass", "tok-otp")
	require.NoError(t, err)
	assert.Equal(t, ProductPurchased, purchase.PurchaseState)
	assert.False(t, purchase.IsAcknowledged())
}

func TestClientAcknowledgeSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t,
			"/androidpublisher/v3/applications/com.relaypass.app/purchases/subscriptions/vpn.monthly/tokens/tok-abc:acknowledge",
			r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "encrypted-payload", body["developerPayload"])

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "com.relaypass.app", staticBearer("bearer-1"))
	err := client.AcknowledgeSubscription(context.Background(), "vpn.monthly", "tok-abc", "encrypted-payload")
	assert.NoError(t, err)
}

func TestClientNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "com.relaypass.app", staticBearer("bearer-1"))
	_, err := client.GetSubscriptionV2(context.Background(), "tok-gone")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClientRevokeAndCancel(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "com.relaypass.app", staticBearer("bearer-1"))
	require.NoError(t, client.CancelSubscription(context.Background(), "vpn.monthly", "tok-abc"))
	require.NoError(t, client.RevokeSubscription(context.Background(), "vpn.monthly", "tok-abc"))

	assert.Equal(t, []string{
		"/androidpublisher/v3/applications/com.relaypass.app/purchases/subscriptions/vpn.monthly/tokens/tok-abc:cancel",
		"/androidpublisher/v3/applications/com.relaypass.app/purchases/subscriptions/vpn.monthly/tokens/tok-abc:revoke",
	}, paths)
}
