package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
	"github.com/relaypass/relaypass/internal/provider/billing"
)

// revokeBackoff paces retries of entitlement deletion on subscription churn.
var revokeBackoff = []time.Duration{time.Second, 10 * time.Second}

// maxLinkedTokenHops bounds the linked-purchase-token walk during identity
// resolution. The chain is externally supplied, so a visited set guards
// against cycles on top of the hop bound.
const maxLinkedTokenHops = 4

// revokeThreshold is how long after purchase start a subscription may still
// be self-service revoked.
const revokeThreshold = 3 * 24 * time.Hour

// billingReconciler implements BillingReconciler.
type billingReconciler struct {
	clients       ClientRepository
	subscriptions SubscriptionRepository
	broker        Broker
	billing       BillingAPI
	cipher        PayloadCipher
	logger        *slog.Logger
	testMode      bool

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewBillingReconciler creates the mobile-billing reconciler.
func NewBillingReconciler(
	clients ClientRepository,
	subscriptions SubscriptionRepository,
	broker Broker,
	billingAPI BillingAPI,
	cipher PayloadCipher,
	logger *slog.Logger,
	testMode bool,
) BillingReconciler {
	return &billingReconciler{
		clients:       clients,
		subscriptions: subscriptions,
		broker:        broker,
		billing:       billingAPI,
		cipher:        cipher,
		logger:        logger,
		testMode:      testMode,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// HandleNotification routes one developer notification. Malformed payloads
// return ErrInvalidInput; transient provider failures return ErrRetryable so
// the webhook layer signals redelivery.
func (r *billingReconciler) HandleNotification(ctx context.Context, body []byte) error {
	notification, err := billing.ParseNotification(body)
	if err != nil {
		return err
	}

	switch {
	case notification.TestNotification != nil:
		r.logger.Info("billing test notification received")
		return nil
	case notification.SubscriptionNotification != nil:
		return r.handleSubscription(ctx, notification.SubscriptionNotification)
	default:
		return r.handleProduct(ctx, notification.OneTimeProductNotification)
	}
}

func (r *billingReconciler) handleSubscription(ctx context.Context, n *billing.SubscriptionNotification) error {
	purchase, err := r.billing.GetSubscriptionV2(ctx, n.PurchaseToken)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to fetch subscription purchase: "+err.Error())
	}

	cid, err := r.resolveSubscriptionIdentity(ctx, purchase, n.PurchaseToken, false)
	if err != nil {
		return err
	}

	// The record is durable before any entitlement decision: a crash from
	// here on leaves state a redelivery can reconcile from.
	if err := r.persistSubscription(ctx, cid, n.PurchaseToken, purchase.LinkedPurchaseToken, purchase); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, err.Error())
	}

	obsolete, err := r.isObsolete(ctx, n.PurchaseToken)
	if err != nil {
		return err
	}
	if obsolete {
		// Superseded by an upgrade/downgrade: acknowledge so the provider
		// stops redelivering, but never grant an entitlement from it.
		if !purchase.IsAcknowledged() {
			if err := r.billing.AcknowledgeSubscription(ctx, n.SubscriptionID, n.PurchaseToken, ""); err != nil {
				return apperrors.Wrap(apperrors.ErrRetryable, "failed to acknowledge obsolete purchase: "+err.Error())
			}
		}
		r.logger.Info("obsolete purchase acknowledged without entitlement",
			slog.String("subscription_id", n.SubscriptionID))
		return nil
	}

	revoked := n.NotificationType == billing.SubscriptionRevoked && !purchase.IsReplacementCancellation()

	switch {
	case revoked, purchase.SubscriptionState == billing.StatePendingPurchaseCanceled:
		r.deleteEntitlementBestEffort(ctx, cid)
		return nil

	case purchase.SubscriptionState == billing.StateActive:
		return r.reconcileActiveSubscription(ctx, cid, n, purchase)

	case purchase.SubscriptionState == billing.StateCanceled, purchase.SubscriptionState == billing.StateExpired:
		return r.reconcileLapsedSubscription(ctx, purchase)

	default:
		// On hold, paused, in grace period, pending: leave the entitlement
		// alone and let a later notification settle it.
		return nil
	}
}

// reconcileActiveSubscription grants or renews the entitlement and
// acknowledges the purchase with the encrypted entitlement payload.
func (r *billingReconciler) reconcileActiveSubscription(ctx context.Context, cid string, n *billing.SubscriptionNotification, purchase *billing.SubscriptionPurchaseV2) error {
	intent := r.subscriptionIntent(purchase)
	if intent == nil {
		r.logger.Warn("active subscription has no usable line item",
			slog.String("subscription_id", n.SubscriptionID))
		return nil
	}

	entitlement, err := r.broker.GetOrCreateEntitlement(ctx, cid, intent, false)
	if err != nil {
		return err
	}

	switch entitlement.Status {
	case entitlementDomain.StatusBanned:
		// A banned account keeps its acknowledgement pending; granting or
		// acking it would resurrect access.
		r.logger.Warn("skipping acknowledgement for banned entitlement")
		return nil
	case entitlementDomain.StatusExpired:
		return apperrors.Wrap(apperrors.ErrInconsistentState,
			"provider reports subscription active but entitlement is expired")
	}

	if purchase.IsAcknowledged() {
		return nil
	}

	payload, err := r.entitlementPayload(cid, entitlement)
	if err != nil {
		return err
	}

	if err := r.billing.AcknowledgeSubscription(ctx, n.SubscriptionID, n.PurchaseToken, payload); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to acknowledge purchase: "+err.Error())
	}
	return nil
}

// reconcileLapsedSubscription handles canceled/expired states. Entitlement
// retention through the implicit grace period is deliberate; only revocation
// and pending-purchase cancellation delete access.
func (r *billingReconciler) reconcileLapsedSubscription(ctx context.Context, purchase *billing.SubscriptionPurchaseV2) error {
	if purchase.IsReplacementCancellation() {
		return nil
	}

	for i := range purchase.LineItems {
		if purchase.LineItems[i].IsAutoRenewing() || purchase.LineItems[i].IsDeferred() {
			return nil
		}
	}

	if purchase.SubscriptionState == billing.StateCanceled {
		// Cancellation normally arrives together with expiry; a bare
		// canceled state reaching this branch is unusual enough to flag.
		r.logger.Error("canceled subscription reached expiry handling without expiring")
	}
	return nil
}

func (r *billingReconciler) handleProduct(ctx context.Context, n *billing.OneTimeProductNotification) error {
	purchase, err := r.billing.GetProductPurchase(ctx, n.SKU, n.PurchaseToken)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to fetch product purchase: "+err.Error())
	}

	cid, err := r.resolveProductIdentity(ctx, purchase, n.PurchaseToken)
	if err != nil {
		return err
	}

	if err := r.persistProduct(ctx, cid, n.PurchaseToken, purchase); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, err.Error())
	}

	canceled := n.NotificationType == billing.OneTimeProductCanceled ||
		purchase.PurchaseState == billing.ProductCanceled

	switch {
	case canceled:
		r.deleteEntitlementBestEffort(ctx, cid)
		return nil

	case purchase.PurchaseState == billing.ProductPending:
		return nil

	default:
		return r.reconcilePaidProduct(ctx, cid, n, purchase)
	}
}

func (r *billingReconciler) reconcilePaidProduct(ctx context.Context, cid string, n *billing.OneTimeProductNotification, purchase *billing.ProductPurchase) error {
	basePlanID := productBasePlan(n.SKU)
	if basePlanID == "" {
		r.logger.Warn("one-time product maps to no known base plan", slog.String("sku", n.SKU))
		return nil
	}

	intent, err := entitlementDomain.IntentForBasePlan(n.SKU, basePlanID, purchase.PurchaseTime())
	if err != nil {
		return err
	}

	entitlement, err := r.broker.GetOrCreateEntitlement(ctx, cid, intent, false)
	if err != nil {
		return err
	}
	if entitlement.Status == entitlementDomain.StatusBanned {
		r.logger.Warn("skipping acknowledgement for banned entitlement")
		return nil
	}

	if purchase.IsAcknowledged() {
		return nil
	}

	payload, err := r.entitlementPayload(cid, entitlement)
	if err != nil {
		return err
	}

	if err := r.billing.AcknowledgeProduct(ctx, n.SKU, n.PurchaseToken, payload); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to acknowledge product purchase: "+err.Error())
	}
	return nil
}

// AcknowledgePurchase serves the end-client acknowledge flow. Unlike the
// webhook path, identity is never generated here: the caller must present
// the cid on file.
func (r *billingReconciler) AcknowledgePurchase(ctx context.Context, cid, purchaseToken, sku string, force bool) (*AckResult, error) {
	purchase, err := r.billing.GetSubscriptionV2(ctx, purchaseToken)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "purchase not found: "+err.Error())
	}

	if err := r.verifyOwnership(ctx, cid, purchaseToken, purchase); err != nil {
		return nil, err
	}

	if err := r.persistSubscription(ctx, cid, purchaseToken, purchase.LinkedPurchaseToken, purchase); err != nil {
		return nil, err
	}

	obsolete, err := r.isObsolete(ctx, purchaseToken)
	if err != nil {
		return nil, err
	}
	if obsolete {
		if !purchase.IsAcknowledged() {
			if err := r.billing.AcknowledgeSubscription(ctx, sku, purchaseToken, ""); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrRetryable, err.Error())
			}
		}
		return &AckResult{}, nil
	}

	intent := r.subscriptionIntent(purchase)
	if intent == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "purchase has no usable line item")
	}

	entitlement, err := r.broker.GetOrCreateEntitlement(ctx, cid, intent, force)
	if err != nil {
		return nil, err
	}
	if entitlement.Status == entitlementDomain.StatusBanned {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "entitlement is banned")
	}

	payload, err := r.entitlementPayload(cid, entitlement)
	if err != nil {
		return nil, err
	}

	if !purchase.IsAcknowledged() {
		if err := r.billing.AcknowledgeSubscription(ctx, sku, purchaseToken, payload); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrRetryable, err.Error())
		}
	}

	return &AckResult{
		ProductID:        intent.ProductID,
		Expiry:           entitlement.Expiry,
		DeveloperPayload: payload,
	}, nil
}

// CancelSubscription serves the end-client cancel flow.
func (r *billingReconciler) CancelSubscription(ctx context.Context, cid, purchaseToken, sku string) error {
	purchase, err := r.billing.GetSubscriptionV2(ctx, purchaseToken)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotFound, "purchase not found: "+err.Error())
	}

	if err := r.verifyOwnership(ctx, cid, purchaseToken, purchase); err != nil {
		return err
	}

	if purchase.SubscriptionState == billing.StateCanceled || purchase.SubscriptionState == billing.StateExpired {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "subscription is already canceled or expired")
	}

	if err := r.billing.CancelSubscription(ctx, sku, purchaseToken); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to cancel subscription: "+err.Error())
	}
	return nil
}

// RevokeSubscription serves the end-client revoke/refund flow. Subscriptions
// honor the fixed revocation threshold; one-time products honor their base
// plan's refund window.
func (r *billingReconciler) RevokeSubscription(ctx context.Context, cid, purchaseToken, sku string) error {
	if basePlanID := productBasePlan(sku); basePlanID != "" {
		return r.refundProduct(ctx, cid, purchaseToken, sku, basePlanID)
	}

	purchase, err := r.billing.GetSubscriptionV2(ctx, purchaseToken)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotFound, "purchase not found: "+err.Error())
	}

	if err := r.verifyOwnership(ctx, cid, purchaseToken, purchase); err != nil {
		return err
	}

	if purchase.SubscriptionState == billing.StateCanceled || purchase.SubscriptionState == billing.StateExpired {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "subscription is already canceled or expired")
	}

	if r.now().Sub(purchase.StartTime) > revokeThreshold {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "revocation window exceeded")
	}

	if err := r.billing.RevokeSubscription(ctx, sku, purchaseToken); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to revoke subscription: "+err.Error())
	}

	r.deleteEntitlementBestEffort(ctx, cid)
	return nil
}

func (r *billingReconciler) refundProduct(ctx context.Context, cid, purchaseToken, sku, basePlanID string) error {
	purchase, err := r.billing.GetProductPurchase(ctx, sku, purchaseToken)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotFound, "purchase not found: "+err.Error())
	}

	if err := r.verifyProductOwnership(ctx, cid, purchaseToken, purchase); err != nil {
		return err
	}

	plan := entitlementDomain.BasePlans[basePlanID]
	window := time.Duration(plan.RefundWindowDays) * 24 * time.Hour
	if r.now().Sub(purchase.PurchaseTime()) > window {
		// Carries both sentinels: the domain one for callers, ErrInvalidInput
		// for the HTTP status mapping.
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, entitlementDomain.ErrRefundWindowExceeded)
	}

	if err := r.billing.RefundOrder(ctx, purchase.OrderID); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to refund order: "+err.Error())
	}

	r.deleteEntitlementBestEffort(ctx, cid)
	return nil
}

// GetEntitlement returns the encrypted entitlement payload. Explicitly a
// test-environment facility; refused outright in production.
func (r *billingReconciler) GetEntitlement(ctx context.Context, cid string) (string, error) {
	if !r.testMode {
		return "", apperrors.Wrap(apperrors.ErrForbidden, "entitlement inspection is test-only")
	}

	entitlement, err := r.broker.GetEntitlement(ctx, cid)
	if err != nil {
		return "", err
	}
	return r.entitlementPayload(cid, entitlement)
}

// resolveSubscriptionIdentity determines the cid for a subscription
// purchase: the obfuscated external account id when long enough, else the
// identity already on file for the token, else a bounded walk up the
// linked-purchase-token chain, else a freshly generated identity (webhook
// flows only; client flows must fail instead).
func (r *billingReconciler) resolveSubscriptionIdentity(ctx context.Context, purchase *billing.SubscriptionPurchaseV2, purchaseToken string, requireExisting bool) (string, error) {
	if cid := usableCID(purchase.ObfuscatedAccountID()); cid != "" {
		return cid, nil
	}

	// The durable record wins over generation: a redelivered anonymous
	// purchase must resolve to the identity it was granted under, or every
	// replay would mint a new client and a new third-party session.
	if record, err := r.subscriptions.Get(ctx, purchaseToken); err == nil {
		return record.CID, nil
	}

	visited := map[string]bool{}
	current := purchase.LinkedPurchaseToken
	for hop := 0; hop < maxLinkedTokenHops && current != "" && !visited[current]; hop++ {
		visited[current] = true

		linked, err := r.billing.GetSubscriptionV2(ctx, current)
		if err != nil {
			break
		}
		if cid := usableCID(linked.ObfuscatedAccountID()); cid != "" {
			return cid, nil
		}
		current = linked.LinkedPurchaseToken
	}

	if requireExisting {
		return "", apperrors.Wrap(apperrors.ErrForbidden, "purchase carries no provable client identity")
	}

	client, err := entitlementDomain.NewGeneratedClient()
	if err != nil {
		return "", err
	}
	r.logger.Info("generated client identity for anonymous purchase")
	return client.CID, nil
}

func (r *billingReconciler) resolveProductIdentity(ctx context.Context, purchase *billing.ProductPurchase, purchaseToken string) (string, error) {
	if cid := usableCID(purchase.ObfuscatedExternalAccountID); cid != "" {
		return cid, nil
	}

	// A previously persisted record may already carry the identity.
	if record, err := r.subscriptions.Get(ctx, purchaseToken); err == nil {
		return record.CID, nil
	}

	client, err := entitlementDomain.NewGeneratedClient()
	if err != nil {
		return "", err
	}
	r.logger.Info("generated client identity for anonymous purchase")
	return client.CID, nil
}

// verifyOwnership enforces that the caller-supplied cid matches the identity
// on file for the token. Account identifiers are policy-immutable, so a
// mismatch is a forbidden request, not an identity update.
func (r *billingReconciler) verifyOwnership(ctx context.Context, cid, purchaseToken string, purchase *billing.SubscriptionPurchaseV2) error {
	if record, err := r.subscriptions.Get(ctx, purchaseToken); err == nil {
		if record.CID != cid {
			return apperrors.Wrap(apperrors.ErrForbidden, "client id does not match purchase record")
		}
		return nil
	}

	resolved, err := r.resolveSubscriptionIdentity(ctx, purchase, purchaseToken, true)
	if err != nil {
		return err
	}
	if resolved != cid {
		return apperrors.Wrap(apperrors.ErrForbidden, "client id does not match purchase identity")
	}
	return nil
}

func (r *billingReconciler) verifyProductOwnership(ctx context.Context, cid, purchaseToken string, purchase *billing.ProductPurchase) error {
	if record, err := r.subscriptions.Get(ctx, purchaseToken); err == nil {
		if record.CID != cid {
			return apperrors.Wrap(apperrors.ErrForbidden, "client id does not match purchase record")
		}
		return nil
	}

	if resolved := usableCID(purchase.ObfuscatedExternalAccountID); resolved != "" {
		if resolved != cid {
			return apperrors.Wrap(apperrors.ErrForbidden, "client id does not match purchase identity")
		}
		return nil
	}

	return apperrors.Wrap(apperrors.ErrForbidden, "purchase carries no provable client identity")
}

// isObsolete reports whether another record's linked token points at this
// one.
func (r *billingReconciler) isObsolete(ctx context.Context, token string) (bool, error) {
	_, err := r.subscriptions.GetFirstLinkedToken(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// subscriptionIntent picks the first non-deferred line item with a future
// expiry. Multiple line items are tried in order; deferred replacements are
// skipped because their plan has not started yet.
func (r *billingReconciler) subscriptionIntent(purchase *billing.SubscriptionPurchaseV2) *entitlementDomain.Intent {
	for i := range purchase.LineItems {
		li := &purchase.LineItems[i]
		if li.IsDeferred() {
			continue
		}
		intent := &entitlementDomain.Intent{
			ProductID: li.ProductID,
			Period:    entitlementDomain.PlanMonth,
			Start:     purchase.StartTime,
			Expiry:    li.ExpiryTime,
		}
		if li.OfferDetails != nil {
			intent.BasePlan = li.OfferDetails.BasePlanID
		}
		return intent
	}
	return nil
}

func (r *billingReconciler) persistSubscription(ctx context.Context, cid, token, linkedToken string, purchase *billing.SubscriptionPurchaseV2) error {
	meta, err := json.Marshal(purchase)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode purchase")
	}
	return r.persistRecord(ctx, cid, token, linkedToken, meta, purchase.ObfuscatedAccountID() != "")
}

func (r *billingReconciler) persistProduct(ctx context.Context, cid, token string, purchase *billing.ProductPurchase) error {
	meta, err := json.Marshal(purchase)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode purchase")
	}
	return r.persistRecord(ctx, cid, token, "", meta, purchase.ObfuscatedExternalAccountID != "")
}

func (r *billingReconciler) persistRecord(ctx context.Context, cid, token, linkedToken string, meta []byte, providerSupplied bool) error {
	kind := entitlementDomain.ClientKindGenerated
	if providerSupplied {
		kind = entitlementDomain.ClientKindProvider
	}

	now := r.now().UTC()
	if _, err := r.clients.InsertIfAbsent(ctx, &entitlementDomain.Client{
		CID:       cid,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	return r.subscriptions.Upsert(ctx, &entitlementDomain.Subscription{
		Token:       token,
		CID:         cid,
		LinkedToken: linkedToken,
		Meta:        meta,
		UpdatedAt:   now,
	})
}

// deleteEntitlementBestEffort deletes the entitlement with short backoff.
// Failures are logged, never escalated: the durable subscription record lets
// a later redelivery retry the deletion.
func (r *billingReconciler) deleteEntitlementBestEffort(ctx context.Context, cid string) {
	var err error
	for attempt := 0; ; attempt++ {
		err = r.broker.DeleteEntitlement(ctx, cid)
		if err == nil {
			return
		}
		if errors.Is(err, entitlementDomain.ErrEntitlementBanned) {
			r.logger.Warn("refusing to delete banned entitlement")
			return
		}
		if attempt >= len(revokeBackoff) {
			break
		}
		r.sleep(revokeBackoff[attempt])
	}
	r.logger.Error("failed to delete entitlement", slog.String("error", err.Error()))
}

// entitlementPayload encrypts the entitlement for transport back through the
// provider acknowledgement or client response.
func (r *billingReconciler) entitlementPayload(cid string, entitlement *entitlementDomain.Entitlement) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"cid":           cid,
		"user_id":       entitlement.UserID,
		"session_token": entitlement.SessionToken,
		"expiry":        entitlement.Expiry,
	})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode entitlement payload")
	}

	encrypted, err := r.cipher.EncryptTransport(payload, cryptoService.PayloadAAD(cid, r.now()))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encrypt entitlement payload")
	}
	return encrypted, nil
}

// usableCID returns the identifier when it is long enough to be a stable
// provider-supplied identity, else empty.
func usableCID(id string) string {
	if entitlementDomain.ValidateCID(id) != nil {
		return ""
	}
	return id
}

// productBasePlan maps a one-time product sku onto the base plan embedded in
// its name, e.g. "vpn-pass-1-year" to "1-year".
func productBasePlan(sku string) string {
	for basePlanID := range entitlementDomain.BasePlans {
		if strings.HasSuffix(sku, basePlanID) {
			return basePlanID
		}
	}
	return ""
}
