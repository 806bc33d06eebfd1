// Package billing integrates the mobile-billing provider: real-time
// developer notifications, the purchases REST API (v1 products and v2
// subscriptions), and the service-account OAuth token source.
package billing

import (
	"encoding/base64"
	"encoding/json"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// Subscription notification types.
const (
	SubscriptionRecovered            = 1
	SubscriptionRenewed              = 2
	SubscriptionCanceled             = 3
	SubscriptionPurchased            = 4
	SubscriptionOnHold               = 5
	SubscriptionInGracePeriod        = 6
	SubscriptionRestarted            = 7
	SubscriptionPriceChangeConfirmed = 8
	SubscriptionDeferred             = 9
	SubscriptionPaused               = 10
	SubscriptionPauseScheduleChanged = 11
	SubscriptionRevoked              = 12
	SubscriptionExpired              = 13
)

// One-time product notification types.
const (
	OneTimeProductPurchased = 1
	OneTimeProductCanceled  = 2
)

// DeveloperNotification is the real-time notification envelope. Exactly one
// of the nested notifications is set.
type DeveloperNotification struct {
	Version                    string                      `json:"version"`
	PackageName                string                      `json:"packageName"`
	EventTimeMillis            string                      `json:"eventTimeMillis"`
	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

// SubscriptionNotification announces a subscription state change.
type SubscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

// OneTimeProductNotification announces a one-time product purchase change.
type OneTimeProductNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SKU              string `json:"sku"`
}

// TestNotification is sent from the provider console to verify wiring.
type TestNotification struct {
	Version string `json:"version"`
}

// pubSubEnvelope is the push-delivery wrapper: the notification itself rides
// base64 encoded in message.data.
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ParseNotification decodes a webhook body into a DeveloperNotification. The
// body is either a pub/sub push envelope with the notification base64
// encoded inside, or the notification JSON directly.
func ParseNotification(body []byte) (*DeveloperNotification, error) {
	var envelope pubSubEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "notification data is not valid base64")
		}
		body = decoded
	}

	var notification DeveloperNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "malformed developer notification")
	}

	if notification.SubscriptionNotification == nil &&
		notification.OneTimeProductNotification == nil &&
		notification.TestNotification == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "developer notification carries no payload")
	}

	return &notification, nil
}
