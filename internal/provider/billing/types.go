package billing

import (
	"strconv"
	"time"
)

// Subscription states reported by the v2 purchases endpoint.
const (
	StatePending                 = "SUBSCRIPTION_STATE_PENDING"
	StateActive                  = "SUBSCRIPTION_STATE_ACTIVE"
	StatePaused                  = "SUBSCRIPTION_STATE_PAUSED"
	StateInGracePeriod           = "SUBSCRIPTION_STATE_IN_GRACE_PERIOD"
	StateOnHold                  = "SUBSCRIPTION_STATE_ON_HOLD"
	StateCanceled                = "SUBSCRIPTION_STATE_CANCELED"
	StateExpired                 = "SUBSCRIPTION_STATE_EXPIRED"
	StatePendingPurchaseCanceled = "SUBSCRIPTION_STATE_PENDING_PURCHASE_CANCELED"
)

// Acknowledgement states on the v2 subscription shape.
const (
	AcknowledgementStatePending      = "ACKNOWLEDGEMENT_STATE_PENDING"
	AcknowledgementStateAcknowledged = "ACKNOWLEDGEMENT_STATE_ACKNOWLEDGED"
)

// One-time product purchase states on the v1 shape.
const (
	ProductPurchased = 0
	ProductCanceled  = 1
	ProductPending   = 2
)

// SubscriptionPurchaseV2 is the v2 subscription purchase shape.
type SubscriptionPurchaseV2 struct {
	Kind                       string                      `json:"kind"`
	StartTime                  time.Time                   `json:"startTime"`
	SubscriptionState          string                      `json:"subscriptionState"`
	LinkedPurchaseToken        string                      `json:"linkedPurchaseToken,omitempty"`
	AcknowledgementState       string                      `json:"acknowledgementState"`
	LineItems                  []SubscriptionLineItem      `json:"lineItems"`
	CanceledStateContext       *CanceledStateContext       `json:"canceledStateContext,omitempty"`
	ExternalAccountIdentifiers *ExternalAccountIdentifiers `json:"externalAccountIdentifiers,omitempty"`
	TestPurchase               *struct{}                   `json:"testPurchase,omitempty"`
}

// IsAcknowledged reports whether the provider already has this purchase
// acknowledged.
func (s *SubscriptionPurchaseV2) IsAcknowledged() bool {
	return s.AcknowledgementState == AcknowledgementStateAcknowledged
}

// IsTest reports whether this is a test-track purchase.
func (s *SubscriptionPurchaseV2) IsTest() bool {
	return s.TestPurchase != nil
}

// ObfuscatedAccountID returns the provider-supplied external account id, if
// any.
func (s *SubscriptionPurchaseV2) ObfuscatedAccountID() string {
	if s.ExternalAccountIdentifiers == nil {
		return ""
	}
	return s.ExternalAccountIdentifiers.ObfuscatedExternalAccountID
}

// IsReplacementCancellation reports whether the cancellation happened because
// the user replaced this subscription with another one (upgrade/downgrade).
// Replacement cancellations must not revoke the entitlement.
func (s *SubscriptionPurchaseV2) IsReplacementCancellation() bool {
	return s.CanceledStateContext != nil && s.CanceledStateContext.ReplacementCancellation != nil
}

// SubscriptionLineItem is one plan line on a subscription purchase.
type SubscriptionLineItem struct {
	ProductID               string                   `json:"productId"`
	ExpiryTime              time.Time                `json:"expiryTime"`
	AutoRenewingPlan        *AutoRenewingPlan        `json:"autoRenewingPlan,omitempty"`
	DeferredItemReplacement *DeferredItemReplacement `json:"deferredItemReplacement,omitempty"`
	OfferDetails            *OfferDetails            `json:"offerDetails,omitempty"`
}

// IsDeferred reports whether this line item is mid-replacement: a different
// plan takes over when the current one expires.
func (li *SubscriptionLineItem) IsDeferred() bool {
	return li.DeferredItemReplacement != nil
}

// IsAutoRenewing reports whether the line item still renews by itself.
func (li *SubscriptionLineItem) IsAutoRenewing() bool {
	return li.AutoRenewingPlan != nil && li.AutoRenewingPlan.AutoRenewEnabled
}

// AutoRenewingPlan carries the renewal flag for a line item.
type AutoRenewingPlan struct {
	AutoRenewEnabled bool `json:"autoRenewEnabled"`
}

// DeferredItemReplacement names the product replacing this line item.
type DeferredItemReplacement struct {
	ProductID string `json:"productId"`
}

// OfferDetails names the base plan and offer behind a line item.
type OfferDetails struct {
	BasePlanID string `json:"basePlanId"`
	OfferID    string `json:"offerId,omitempty"`
}

// CanceledStateContext explains why a subscription was canceled. Exactly one
// field is set.
type CanceledStateContext struct {
	UserInitiatedCancellation      *UserInitiatedCancellation `json:"userInitiatedCancellation,omitempty"`
	SystemInitiatedCancellation    *struct{}                  `json:"systemInitiatedCancellation,omitempty"`
	DeveloperInitiatedCancellation *struct{}                  `json:"developerInitiatedCancellation,omitempty"`
	ReplacementCancellation        *struct{}                  `json:"replacementCancellation,omitempty"`
}

// UserInitiatedCancellation carries the user's cancellation metadata.
type UserInitiatedCancellation struct {
	CancelTime time.Time `json:"cancelTime"`
}

// ExternalAccountIdentifiers carries the developer-supplied account ids.
type ExternalAccountIdentifiers struct {
	ObfuscatedExternalAccountID string `json:"obfuscatedExternalAccountId,omitempty"`
	ObfuscatedExternalProfileID string `json:"obfuscatedExternalProfileId,omitempty"`
}

// ProductPurchase is the v1 one-time product purchase shape.
type ProductPurchase struct {
	Kind                        string `json:"kind"`
	PurchaseTimeMillis          string `json:"purchaseTimeMillis"`
	PurchaseState               int    `json:"purchaseState"`
	ConsumptionState            int    `json:"consumptionState"`
	DeveloperPayload            string `json:"developerPayload,omitempty"`
	OrderID                     string `json:"orderId"`
	AcknowledgementState        int    `json:"acknowledgementState"`
	ObfuscatedExternalAccountID string `json:"obfuscatedExternalAccountId,omitempty"`
	ProductID                   string `json:"productId,omitempty"`
	PurchaseType                *int   `json:"purchaseType,omitempty"`
}

// IsAcknowledged reports whether the purchase is already acknowledged.
func (p *ProductPurchase) IsAcknowledged() bool {
	return p.AcknowledgementState == 1
}

// IsTest reports whether this purchase came from a test track (purchaseType
// 0 is "Test").
func (p *ProductPurchase) IsTest() bool {
	return p.PurchaseType != nil && *p.PurchaseType == 0
}

// PurchaseTime converts the millisecond timestamp string.
func (p *ProductPurchase) PurchaseTime() time.Time {
	millis, err := strconv.ParseInt(p.PurchaseTimeMillis, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}
