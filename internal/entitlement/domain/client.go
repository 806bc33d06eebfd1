// Package domain holds the entitlement subsystem's core types: clients,
// subscription records, encrypted credential rows, and the derived
// entitlement and plan-intent values the broker and reconciler exchange.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
	"unicode"
)

// ClientKind records where a client identity came from.
type ClientKind string

const (
	// ClientKindProvider marks a cid copied from a provider-supplied
	// obfuscated external account id.
	ClientKindProvider ClientKind = "provider"
	// ClientKindGenerated marks a cid this system generated.
	ClientKindGenerated ClientKind = "generated"
)

const (
	// CIDMinLength is the shortest provider-supplied identifier accepted as
	// a cid. Anything shorter is treated as absent and resolved through the
	// linked-token chain or replaced with a generated id.
	CIDMinLength = 32
	// CIDMaxLength matches the cid column width. Generated ids are exactly
	// this long (32 random bytes, hex encoded).
	CIDMaxLength = 64
)

// Client is the identity issued to an otherwise anonymous payer or device.
type Client struct {
	CID       string     `json:"cid"`
	Kind      ClientKind `json:"kind"`
	Meta      string     `json:"meta,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewProviderClient builds a Client from a provider-supplied identifier.
func NewProviderClient(cid, meta string) (*Client, error) {
	if err := ValidateCID(cid); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Client{CID: cid, Kind: ClientKindProvider, Meta: meta, CreatedAt: now, UpdatedAt: now}, nil
}

// NewGeneratedClient builds a Client with a fresh random 64-hex-char cid.
func NewGeneratedClient() (*Client, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate client id: %w", err)
	}
	now := time.Now().UTC()
	return &Client{
		CID:       hex.EncodeToString(raw),
		Kind:      ClientKindGenerated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateCID checks that a client identifier is usable as a cid: between 32
// and 64 characters, printable, no whitespace.
func ValidateCID(cid string) error {
	if len(cid) < CIDMinLength || len(cid) > CIDMaxLength {
		return ErrInvalidClientID
	}
	for _, r := range cid {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return ErrInvalidClientID
		}
	}
	return nil
}
