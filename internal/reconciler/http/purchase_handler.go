package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
	"github.com/relaypass/relaypass/internal/httputil"
	"github.com/relaypass/relaypass/internal/reconciler/http/dto"
	"github.com/relaypass/relaypass/internal/reconciler/usecase"
	customValidation "github.com/relaypass/relaypass/internal/validation"
)

// PurchaseHandler handles the client-facing purchase operations.
type PurchaseHandler struct {
	reconciler usecase.BillingReconciler
	logger     *slog.Logger
}

// NewPurchaseHandler creates a purchase handler with required dependencies.
func NewPurchaseHandler(reconciler usecase.BillingReconciler, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// AcknowledgeHandler acknowledges a purchase on behalf of the end client.
// POST /v1/purchases/acknowledge
// Returns 200 OK with the entitlement payload; the caller-supplied cid must
// match the identity on file for the purchase.
func (h *PurchaseHandler) AcknowledgeHandler(c *gin.Context) {
	var req dto.AcknowledgePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.reconciler.AcknowledgePurchase(
		c.Request.Context(), req.CID, req.PurchaseToken, req.SKU, req.Force)
	if err != nil {
		httputil.HandleErrorGin(c, err, req.PurchaseToken, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAckResult(result))
}

// CancelHandler cancels a subscription on behalf of the end client.
// POST /v1/purchases/cancel
// Returns 204 No Content; access continues until the current expiry.
func (h *PurchaseHandler) CancelHandler(c *gin.Context) {
	var req dto.CancelPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if err := h.reconciler.CancelSubscription(c.Request.Context(), req.CID, req.PurchaseToken, req.SKU); err != nil {
		httputil.HandleErrorGin(c, err, req.PurchaseToken, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// RevokeHandler revokes and refunds a purchase on behalf of the end client,
// subject to the revocation threshold or refund window.
// POST /v1/purchases/revoke
// Returns 204 No Content.
func (h *PurchaseHandler) RevokeHandler(c *gin.Context) {
	var req dto.RevokePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if err := h.reconciler.RevokeSubscription(c.Request.Context(), req.CID, req.PurchaseToken, req.SKU); err != nil {
		httputil.HandleErrorGin(c, err, req.PurchaseToken, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// EntitlementHandler returns the client's encrypted entitlement payload.
// GET /v1/entitlements/:cid - test environments only, by explicit policy.
func (h *PurchaseHandler) EntitlementHandler(c *gin.Context) {
	cid := c.Param("cid")
	if err := entitlementDomain.ValidateCID(cid); err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error()), "", h.logger)
		return
	}

	payload, err := h.reconciler.GetEntitlement(c.Request.Context(), cid)
	if err != nil {
		httputil.HandleErrorGin(c, err, "", h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.EntitlementResponse{Payload: payload})
}
