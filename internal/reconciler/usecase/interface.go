// Package usecase implements the provider notification reconciler: it turns
// asynchronous, possibly duplicated, possibly reordered webhook deliveries
// from the checkout and mobile-billing providers into idempotent entitlement
// decisions, and serves the end-client acknowledge/cancel/revoke flows.
package usecase

import (
	"context"
	"time"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	"github.com/relaypass/relaypass/internal/provider/billing"
	"github.com/relaypass/relaypass/internal/provider/checkout"
)

// ClientRepository persists client identities.
type ClientRepository interface {
	InsertIfAbsent(ctx context.Context, client *entitlementDomain.Client) (bool, error)
}

// SubscriptionRepository persists purchase/subscription records.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *entitlementDomain.Subscription) error
	Get(ctx context.Context, token string) (*entitlementDomain.Subscription, error)
	GetFirstLinkedToken(ctx context.Context, token string) (*entitlementDomain.Subscription, error)
}

// LapseRepository persists quarantine rows.
type LapseRepository interface {
	Create(ctx context.Context, lapse *entitlementDomain.Lapse) error
}

// PayeeRepository persists paid checkout rows.
type PayeeRepository interface {
	Create(ctx context.Context, payee *entitlementDomain.Payee) error
}

// BillingAPI is the mobile-billing publisher API surface the reconciler uses.
type BillingAPI interface {
	GetSubscriptionV2(ctx context.Context, purchaseToken string) (*billing.SubscriptionPurchaseV2, error)
	GetProductPurchase(ctx context.Context, productID, purchaseToken string) (*billing.ProductPurchase, error)
	AcknowledgeSubscription(ctx context.Context, subscriptionID, purchaseToken, developerPayload string) error
	AcknowledgeProduct(ctx context.Context, productID, purchaseToken, developerPayload string) error
	CancelSubscription(ctx context.Context, subscriptionID, purchaseToken string) error
	RevokeSubscription(ctx context.Context, subscriptionID, purchaseToken string) error
	RefundOrder(ctx context.Context, orderID string) error
}

// CheckoutAPI is the card-checkout API surface the reconciler uses.
type CheckoutAPI interface {
	ListLineItems(ctx context.Context, sessionID string) ([]checkout.LineItem, error)
}

// Broker is the third-party session broker.
type Broker interface {
	GetOrCreateEntitlement(ctx context.Context, cid string, intent *entitlementDomain.Intent, forceRenew bool) (*entitlementDomain.Entitlement, error)
	GetEntitlement(ctx context.Context, cid string) (*entitlementDomain.Entitlement, error)
	DeleteEntitlement(ctx context.Context, cid string) error
}

// PayloadCipher encrypts the entitlement payload attached to provider
// acknowledgements and client responses.
type PayloadCipher interface {
	EncryptTransport(plaintext, aad []byte) (string, error)
}

// AckResult is the outcome of a purchase acknowledgement.
type AckResult struct {
	ProductID        string    `json:"product_id"`
	Expiry           time.Time `json:"expiry"`
	DeveloperPayload string    `json:"developer_payload,omitempty"`
}

// BillingReconciler reconciles mobile-billing notifications and serves the
// end-client purchase operations.
type BillingReconciler interface {
	// HandleNotification processes one real-time developer notification.
	// Returned errors mean the provider should redeliver.
	HandleNotification(ctx context.Context, body []byte) error

	// AcknowledgePurchase acknowledges a purchase on behalf of the end
	// client. The supplied cid must match the identity on file.
	AcknowledgePurchase(ctx context.Context, cid, purchaseToken, sku string, force bool) (*AckResult, error)

	// CancelSubscription cancels a subscription on behalf of the end client.
	CancelSubscription(ctx context.Context, cid, purchaseToken, sku string) error

	// RevokeSubscription revokes a purchase and refunds it, subject to the
	// revocation threshold (subscriptions) or refund window (one-time
	// products).
	RevokeSubscription(ctx context.Context, cid, purchaseToken, sku string) error

	// GetEntitlement returns the client's encrypted entitlement payload.
	// Test environments only, by explicit policy.
	GetEntitlement(ctx context.Context, cid string) (string, error)
}

// CheckoutReconciler reconciles card-checkout webhook events.
type CheckoutReconciler interface {
	// HandleEvent processes one checkout webhook event. Returned errors of
	// kind ErrRetryable mean the provider should redeliver.
	HandleEvent(ctx context.Context, event *checkout.Event, rawBody []byte) error
}
