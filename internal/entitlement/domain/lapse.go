package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lapse is a quarantine row: a webhook event the reconciler received but
// could not confidently act on (missing client reference, half-open checkout
// session). Recording it instead of guessing keeps the event auditable while
// leaving entitlements untouched.
type Lapse struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Reference string          `json:"reference"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewLapse creates a Lapse with a fresh id.
func NewLapse(source, reference, reason string, payload json.RawMessage) *Lapse {
	return &Lapse{
		ID:        uuid.NewString(),
		Source:    source,
		Reference: reference,
		Reason:    reason,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Payee records a paid card-checkout session. A persistence failure here is
// retryable so the provider's webhook redelivery completes the record later.
type Payee struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	CID         string          `json:"cid"`
	Status      string          `json:"status"`
	AmountTotal int64           `json:"amount_total"`
	Currency    string          `json:"currency"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewPayee creates a Payee with a fresh id.
func NewPayee(sessionID, cid, status string, amountTotal int64, currency string, payload json.RawMessage) *Payee {
	return &Payee{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		CID:         cid,
		Status:      status,
		AmountTotal: amountTotal,
		Currency:    currency,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}
