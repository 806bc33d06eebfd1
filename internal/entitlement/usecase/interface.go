// Package usecase implements the third-party session broker: the fetch-or-
// create entitlement flow, renewal, and deletion against the VPN session API,
// with credential ciphertext as the only persisted secret material.
package usecase

import (
	"context"
	"time"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	entitlementService "github.com/relaypass/relaypass/internal/entitlement/service"
)

// CredentialRepository persists encrypted credential rows. Insert must
// return apperrors.ErrConflict on a cid unique violation; that conflict is
// the broker's only cross-invocation concurrency control.
type CredentialRepository interface {
	Get(ctx context.Context, cid string) (*entitlementDomain.Credential, error)
	Insert(ctx context.Context, credential *entitlementDomain.Credential) error
	Delete(ctx context.Context, cid string) error
}

// VPNAPI is the third-party session lifecycle API.
type VPNAPI interface {
	CreateAccount(ctx context.Context, plan string, repeat int) (*entitlementService.Account, error)
	GetStatus(ctx context.Context, sessionToken string) (*entitlementService.Account, error)
	UpdateAccount(ctx context.Context, sessionToken, plan string, repeat int) (*entitlementService.Account, error)
	DeleteAccount(ctx context.Context, sessionToken string) error
}

// CredentialCipher is the at-rest encryption the broker applies to session
// secrets before they touch the store.
type CredentialCipher interface {
	EncryptAtRest(clientID string, plaintext, aad []byte) (string, error)
	DecryptAtRest(clientID, ciphertextHex string, aad []byte, writtenAt time.Time) ([]byte, error)
}

// BrokerUseCase brokers entitlements against the third-party session API.
type BrokerUseCase interface {
	// GetOrCreateEntitlement returns the client's current entitlement,
	// creating a provider session when none exists and renewing when the
	// existing one is expired or forceRenew is set.
	GetOrCreateEntitlement(ctx context.Context, cid string, intent *entitlementDomain.Intent, forceRenew bool) (*entitlementDomain.Entitlement, error)

	// GetEntitlement derives the client's current entitlement without any
	// side effects. Returns apperrors.ErrNotFound when no credential exists.
	GetEntitlement(ctx context.Context, cid string) (*entitlementDomain.Entitlement, error)

	// DeleteEntitlement deletes the provider session and the credential row.
	// Refuses to delete a banned entitlement.
	DeleteEntitlement(ctx context.Context, cid string) error
}
