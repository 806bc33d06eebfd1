package checkout

import "encoding/json"

// Event types the reconciler branches on. Everything else is ignored.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionExpired        = "checkout.session.expired"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// Payment statuses reported on a checkout session.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Event is the webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Session decodes the event's data object as a checkout session.
func (e *Event) Session() (*Session, error) {
	var session Session
	if err := json.Unmarshal(e.Data.Object, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Session is the checkout session object carried in session events.
type Session struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	PaymentStatus     string `json:"payment_status"`
	Status            string `json:"status"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
}

// LineItem is one purchased item on a checkout session.
type LineItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Price    struct {
		ID      string `json:"id"`
		Product string `json:"product"`
	} `json:"price"`
}
