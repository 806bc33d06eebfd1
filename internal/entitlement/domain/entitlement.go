package domain

import "time"

// Status is the canonical classification of a client's provider session.
type Status string

const (
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
	StatusBanned  Status = "banned"
	// StatusInvalid means the stored credential no longer maps to a live
	// provider session; the stale row is deleted and a new session created.
	StatusInvalid Status = "invalid"
	// StatusUnknown means the provider could not be consulted. Never treated
	// as invalid; fail safe.
	StatusUnknown Status = "unknown"
)

// Entitlement is derived fresh on every read by decrypting the credential
// row and querying the provider session API. SessionToken is cleartext and
// must never leave the process unencrypted.
type Entitlement struct {
	CID          string    `json:"cid"`
	SessionToken string    `json:"-"`
	UserID       string    `json:"user_id"`
	Status       Status    `json:"status"`
	Expiry       time.Time `json:"expiry"`
	Test         bool      `json:"test,omitempty"`
}

// IsValid reports whether the entitlement grants access right now.
func (e *Entitlement) IsValid() bool {
	return e != nil && e.Status == StatusValid
}
