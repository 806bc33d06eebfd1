package domain

import (
	"encoding/json"
	"time"
)

// Subscription is one row per provider purchase or subscription token. Meta
// holds the full provider purchase object and is replaced on every
// reconciliation (last write wins).
//
// A non-empty LinkedToken pointing at an existing token marks the pointed-to
// token obsoleted: it must never again be granted a live entitlement, only
// acknowledged without one.
type Subscription struct {
	Token       string          `json:"token"`
	CID         string          `json:"cid"`
	LinkedToken string          `json:"linked_token,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Credential is the encrypted third-party session row, one-to-one with a
// client while active. SessionToken is the AEAD ciphertext itself (hex) and
// acts as the row's primary key so deletion-by-secret is possible.
type Credential struct {
	SessionToken string    `json:"session_token"`
	CID          string    `json:"cid"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
