package dto

import (
	"time"

	"github.com/relaypass/relaypass/internal/reconciler/usecase"
)

// WebhookResponse acknowledges webhook receipt to the provider.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// AcknowledgeResponse is the outcome of a purchase acknowledgement.
type AcknowledgeResponse struct {
	ProductID        string    `json:"product_id,omitempty"`
	Expiry           time.Time `json:"expiry,omitzero"`
	DeveloperPayload string    `json:"developer_payload,omitempty"`
}

// MapAckResult converts a use case acknowledgement outcome to the response
// shape.
func MapAckResult(result *usecase.AckResult) AcknowledgeResponse {
	return AcknowledgeResponse{
		ProductID:        result.ProductID,
		Expiry:           result.Expiry,
		DeveloperPayload: result.DeveloperPayload,
	}
}

// EntitlementResponse carries the transport-encrypted entitlement payload.
type EntitlementResponse struct {
	Payload string `json:"payload"`
}
