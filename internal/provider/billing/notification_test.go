package billing

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

const rawNotification = `{
	"version": "1.0",
	"packageName": "com.relaypass.app",
	"eventTimeMillis": "1700000000000",
	"subscriptionNotification": {
		"version": "1.0",
		"notificationType": 4,
		"purchaseToken": "tok-abc",
		"subscriptionId": "vpn.monthly"
	}
}`

func TestParseNotification(t *testing.T) {
	t.Run("parses a direct notification", func(t *testing.T) {
		notification, err := ParseNotification([]byte(rawNotification))
		require.NoError(t, err)
		require.NotNil(t, notification.SubscriptionNotification)
		assert.Equal(t, SubscriptionPurchased, notification.SubscriptionNotification.NotificationType)
		assert.Equal(t, "tok-abc", notification.SubscriptionNotification.PurchaseToken)
	})

	t.Run("parses a pub/sub envelope", func(t *testing.T) {
		envelope, err := json.Marshal(map[string]any{
			"message": map[string]any{
				"data":      base64.StdEncoding.EncodeToString([]byte(rawNotification)),
				"messageId": "msg-1",
			},
			"subscription": "projects/p/subscriptions/s",
		})
		require.NoError(t, err)

		notification, err := ParseNotification(envelope)
		require.NoError(t, err)
		require.NotNil(t, notification.SubscriptionNotification)
		assert.Equal(t, "vpn.monthly", notification.SubscriptionNotification.SubscriptionID)
	})

	t.Run("parses a one-time product notification", func(t *testing.T) {
		body := `{"version":"1.0","packageName":"com.relaypass.app","eventTimeMillis":"1700000000000",
			"oneTimeProductNotification":{"version":"1.0","notificationType":1,"purchaseToken":"tok-otp","sku":"vpn-pass"}}`

		notification, err := ParseNotification([]byte(body))
		require.NoError(t, err)
		require.NotNil(t, notification.OneTimeProductNotification)
		assert.Equal(t, OneTimeProductPurchased, notification.OneTimeProductNotification.NotificationType)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		_, err := ParseNotification([]byte("{not json"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("rejects an empty envelope", func(t *testing.T) {
		_, err := ParseNotification([]byte(`{"version":"1.0","packageName":"com.relaypass.app"}`))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("rejects bad base64 in pub/sub data", func(t *testing.T) {
		_, err := ParseNotification([]byte(`{"message":{"data":"%%%"}}`))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestSubscriptionPurchaseV2Helpers(t *testing.T) {
	t.Run("replacement cancellation", func(t *testing.T) {
		purchase := &SubscriptionPurchaseV2{
			CanceledStateContext: &CanceledStateContext{ReplacementCancellation: &struct{}{}},
		}
		assert.True(t, purchase.IsReplacementCancellation())

		purchase.CanceledStateContext = &CanceledStateContext{SystemInitiatedCancellation: &struct{}{}}
		assert.False(t, purchase.IsReplacementCancellation())
	})

	t.Run("obfuscated account id", func(t *testing.T) {
		purchase := &SubscriptionPurchaseV2{}
		assert.Empty(t, purchase.ObfuscatedAccountID())

		purchase.ExternalAccountIdentifiers = &ExternalAccountIdentifiers{ObfuscatedExternalAccountID: "obf-1"}
		assert.Equal(t, "obf-1", purchase.ObfuscatedAccountID())
	})

	t.Run("acknowledgement state", func(t *testing.T) {
		assert.True(t, (&SubscriptionPurchaseV2{AcknowledgementState: AcknowledgementStateAcknowledged}).IsAcknowledged())
		assert.False(t, (&SubscriptionPurchaseV2{AcknowledgementState: AcknowledgementStatePending}).IsAcknowledged())
	})
}

func TestProductPurchaseHelpers(t *testing.T) {
	purchase := &ProductPurchase{PurchaseTimeMillis: "1700000000000", AcknowledgementState: 1}
	assert.True(t, purchase.IsAcknowledged())
	assert.Equal(t, int64(1700000000000), purchase.PurchaseTime().UnixMilli())

	zero := &ProductPurchase{PurchaseTimeMillis: "not-a-number"}
	assert.True(t, zero.PurchaseTime().IsZero())
}
