// Package dto provides data transfer objects for the purchase and webhook
// HTTP endpoints.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/relaypass/relaypass/internal/validation"
)

// AcknowledgePurchaseRequest contains the parameters for the client-side
// purchase acknowledgement flow.
type AcknowledgePurchaseRequest struct {
	CID           string `json:"cid"`
	PurchaseToken string `json:"purchase_token"`
	SKU           string `json:"sku"`
	Force         bool   `json:"force"`
}

// Validate checks if the acknowledge request is valid.
func (r *AcknowledgePurchaseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CID,
			validation.Required,
			customValidation.ClientID{},
		),
		validation.Field(&r.PurchaseToken,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 1024),
		),
		validation.Field(&r.SKU,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
	)
}

// CancelPurchaseRequest contains the parameters for the client-side
// subscription cancel flow.
type CancelPurchaseRequest struct {
	CID           string `json:"cid"`
	PurchaseToken string `json:"purchase_token"`
	SKU           string `json:"sku"`
}

// Validate checks if the cancel request is valid.
func (r *CancelPurchaseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CID,
			validation.Required,
			customValidation.ClientID{},
		),
		validation.Field(&r.PurchaseToken,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 1024),
		),
		validation.Field(&r.SKU,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
	)
}

// RevokePurchaseRequest contains the parameters for the client-side
// revoke/refund flow.
type RevokePurchaseRequest struct {
	CID           string `json:"cid"`
	PurchaseToken string `json:"purchase_token"`
	SKU           string `json:"sku"`
}

// Validate checks if the revoke request is valid.
func (r *RevokePurchaseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CID,
			validation.Required,
			customValidation.ClientID{},
		),
		validation.Field(&r.PurchaseToken,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 1024),
		),
		validation.Field(&r.SKU,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
	)
}
