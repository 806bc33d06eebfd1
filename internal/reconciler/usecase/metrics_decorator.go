package usecase

import (
	"context"
	"time"

	"github.com/relaypass/relaypass/internal/metrics"
	"github.com/relaypass/relaypass/internal/provider/checkout"
)

// billingReconcilerWithMetrics decorates BillingReconciler with metrics
// instrumentation.
type billingReconcilerWithMetrics struct {
	next    BillingReconciler
	metrics metrics.BusinessMetrics
}

// NewBillingReconcilerWithMetrics wraps a BillingReconciler with metrics
// recording.
func NewBillingReconcilerWithMetrics(reconciler BillingReconciler, m metrics.BusinessMetrics) BillingReconciler {
	return &billingReconcilerWithMetrics{
		next:    reconciler,
		metrics: m,
	}
}

func (b *billingReconcilerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.RecordOperation(ctx, "reconciler", operation, status)
	b.metrics.RecordDuration(ctx, "reconciler", operation, time.Since(start), status)
}

func (b *billingReconcilerWithMetrics) HandleNotification(ctx context.Context, body []byte) error {
	start := time.Now()
	err := b.next.HandleNotification(ctx, body)
	b.record(ctx, "billing_notification", start, err)
	return err
}

func (b *billingReconcilerWithMetrics) AcknowledgePurchase(ctx context.Context, cid, purchaseToken, sku string, force bool) (*AckResult, error) {
	start := time.Now()
	result, err := b.next.AcknowledgePurchase(ctx, cid, purchaseToken, sku, force)
	b.record(ctx, "purchase_acknowledge", start, err)
	return result, err
}

func (b *billingReconcilerWithMetrics) CancelSubscription(ctx context.Context, cid, purchaseToken, sku string) error {
	start := time.Now()
	err := b.next.CancelSubscription(ctx, cid, purchaseToken, sku)
	b.record(ctx, "purchase_cancel", start, err)
	return err
}

func (b *billingReconcilerWithMetrics) RevokeSubscription(ctx context.Context, cid, purchaseToken, sku string) error {
	start := time.Now()
	err := b.next.RevokeSubscription(ctx, cid, purchaseToken, sku)
	b.record(ctx, "purchase_revoke", start, err)
	return err
}

func (b *billingReconcilerWithMetrics) GetEntitlement(ctx context.Context, cid string) (string, error) {
	start := time.Now()
	payload, err := b.next.GetEntitlement(ctx, cid)
	b.record(ctx, "entitlement_get", start, err)
	return payload, err
}

// checkoutReconcilerWithMetrics decorates CheckoutReconciler with metrics
// instrumentation.
type checkoutReconcilerWithMetrics struct {
	next    CheckoutReconciler
	metrics metrics.BusinessMetrics
}

// NewCheckoutReconcilerWithMetrics wraps a CheckoutReconciler with metrics
// recording.
func NewCheckoutReconcilerWithMetrics(reconciler CheckoutReconciler, m metrics.BusinessMetrics) CheckoutReconciler {
	return &checkoutReconcilerWithMetrics{
		next:    reconciler,
		metrics: m,
	}
}

func (c *checkoutReconcilerWithMetrics) HandleEvent(ctx context.Context, event *checkout.Event, rawBody []byte) error {
	start := time.Now()
	err := c.next.HandleEvent(ctx, event, rawBody)

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation(ctx, "reconciler", "checkout_event", status)
	c.metrics.RecordDuration(ctx, "reconciler", "checkout_event", time.Since(start), status)

	return err
}
