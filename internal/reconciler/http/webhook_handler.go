// Package http provides HTTP handlers for provider webhooks and the
// client-facing purchase operations.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaypass/relaypass/internal/httputil"
	"github.com/relaypass/relaypass/internal/provider/checkout"
	"github.com/relaypass/relaypass/internal/reconciler/usecase"
)

// checkoutSignatureHeader carries the checkout provider's webhook signature.
const checkoutSignatureHeader = "Checkout-Signature"

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// WebhookHandler handles inbound webhook deliveries from both payment
// providers.
type WebhookHandler struct {
	checkoutReconciler usecase.CheckoutReconciler
	billingReconciler  usecase.BillingReconciler
	webhookSecret      string
	signatureTolerance time.Duration
	logger             *slog.Logger

	now func() time.Time
}

// NewWebhookHandler creates a webhook handler with required dependencies.
func NewWebhookHandler(
	checkoutReconciler usecase.CheckoutReconciler,
	billingReconciler usecase.BillingReconciler,
	webhookSecret string,
	signatureTolerance time.Duration,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		checkoutReconciler: checkoutReconciler,
		billingReconciler:  billingReconciler,
		webhookSecret:      webhookSecret,
		signatureTolerance: signatureTolerance,
		logger:             logger,
		now:                time.Now,
	}
}

// CheckoutWebhookHandler processes card-checkout webhook events.
// POST /v1/webhooks/checkout - signature verified against the shared secret.
// Returns 200 {"received": true}; retryable failures return 503 so the
// provider redelivers.
func (h *WebhookHandler) CheckoutWebhookHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("failed to read webhook body: %w", err), h.logger)
		return
	}

	if err := checkout.VerifySignature(
		body,
		c.GetHeader(checkoutSignatureHeader),
		h.webhookSecret,
		h.signatureTolerance,
		h.now(),
	); err != nil {
		httputil.HandleErrorGin(c, err, "", h.logger)
		return
	}

	var event checkout.Event
	if err := json.Unmarshal(body, &event); err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("malformed webhook event: %w", err), h.logger)
		return
	}

	if err := h.checkoutReconciler.HandleEvent(c.Request.Context(), &event, body); err != nil {
		httputil.HandleErrorGin(c, err, "", h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// BillingWebhookHandler processes mobile-billing real-time developer
// notifications delivered over the push subscription.
// POST /v1/webhooks/billing - returns 200 "OK"; retryable failures return
// 503 so the push subscription redelivers.
func (h *WebhookHandler) BillingWebhookHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("failed to read webhook body: %w", err), h.logger)
		return
	}

	if err := h.billingReconciler.HandleNotification(c.Request.Context(), body); err != nil {
		httputil.HandleErrorGin(c, err, "", h.logger)
		return
	}

	c.String(http.StatusOK, "OK")
}
