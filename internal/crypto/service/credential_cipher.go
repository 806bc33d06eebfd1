package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
)

// CredentialCipher encrypts and decrypts VPN session credentials. Keys are
// derived per purpose from a single root secret, so the root secret never
// touches a row or a wire payload directly.
//
// Two schemes coexist:
//
//   - Storage-at-rest: key derived from "dbenc"+clientID, deterministic nonce
//     (first 12 bytes of SHA-256(purpose ∥ clientID)). Each credential row is
//     encrypted at most once per key epoch, so the fixed nonce is safe, and
//     determinism lets the ciphertext serve as a unique column value.
//   - Transport: key derived from "encryptcrossservice", random nonce per
//     call, wire form hex(nonce) + hex(ciphertext+tag).
//
// AAD binds each ciphertext to its context (table.column for rows, request
// coordinates for transport). Rows written before the AAD cutover were
// encrypted without AAD; DecryptAtRest retries without AAD for those rows
// only, and only when a cutover is configured.
type CredentialCipher struct {
	rootSecret []byte
	manager    AEADManager
	algorithm  cryptoDomain.Algorithm
	aadCutover time.Time
}

// NewCredentialCipher creates a CredentialCipher. The root secret must be at
// least 32 bytes. A zero aadCutover disables the no-AAD decrypt fallback.
func NewCredentialCipher(rootSecret []byte, manager AEADManager, algorithm cryptoDomain.Algorithm, aadCutover time.Time) (*CredentialCipher, error) {
	if len(rootSecret) == 0 {
		return nil, cryptoDomain.ErrRootSecretMissing
	}
	if len(rootSecret) < cryptoDomain.RootSecretMinSize {
		return nil, cryptoDomain.ErrRootSecretTooShort
	}

	return &CredentialCipher{
		rootSecret: rootSecret,
		manager:    manager,
		algorithm:  algorithm,
		aadCutover: aadCutover,
	}, nil
}

// cipherFor derives the key for the given context bytes and wraps it in an
// AEAD instance.
func (cc *CredentialCipher) cipherFor(context []byte) (AEAD, error) {
	key, err := DeriveKey(cc.rootSecret, context)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	return cc.manager.CreateCipher(key, cc.algorithm)
}

// storageContext returns the key-derivation context for a client's at-rest
// credentials.
func storageContext(clientID string) []byte {
	return []byte(cryptoDomain.PurposeStorage + clientID)
}

// StorageNonce returns the deterministic nonce for a client's at-rest
// credentials: the first 12 bytes of SHA-256(purpose ∥ clientID).
func StorageNonce(clientID string) []byte {
	sum := sha256.Sum256([]byte(cryptoDomain.PurposeStorage + clientID))
	return sum[:cryptoDomain.NonceSize]
}

// EncryptAtRest encrypts a credential for storage, keyed and nonced by the
// owning client id. The result is hex encoded so it can live in a text
// column and act as a primary key.
func (cc *CredentialCipher) EncryptAtRest(clientID string, plaintext, aad []byte) (string, error) {
	aead, err := cc.cipherFor(storageContext(clientID))
	if err != nil {
		return "", err
	}

	ciphertext, err := aead.EncryptWithNonce(StorageNonce(clientID), plaintext, aad)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credential: %w", err)
	}

	return hex.EncodeToString(ciphertext), nil
}

// DecryptAtRest decrypts a stored credential. writtenAt is the row's creation
// time; rows written before the AAD cutover are retried without AAD when the
// first attempt fails authentication. A zero writtenAt is treated as
// predating the cutover.
func (cc *CredentialCipher) DecryptAtRest(clientID, ciphertextHex string, aad []byte, writtenAt time.Time) ([]byte, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, fmt.Errorf("malformed credential ciphertext: %w", err)
	}

	aead, err := cc.cipherFor(storageContext(clientID))
	if err != nil {
		return nil, err
	}

	nonce := StorageNonce(clientID)
	plaintext, err := aead.Decrypt(ciphertext, nonce, aad)
	if err == nil {
		return plaintext, nil
	}

	if cc.allowNoAADFallback(aad, writtenAt) {
		if plaintext, retryErr := aead.Decrypt(ciphertext, nonce, nil); retryErr == nil {
			return plaintext, nil
		}
	}

	return nil, err
}

// allowNoAADFallback reports whether a failed at-rest decryption may be
// retried without AAD. The fallback exists only for rows encrypted before
// AAD binding was introduced.
func (cc *CredentialCipher) allowNoAADFallback(aad []byte, writtenAt time.Time) bool {
	if cc.aadCutover.IsZero() || len(aad) == 0 {
		return false
	}
	return writtenAt.IsZero() || writtenAt.Before(cc.aadCutover)
}

// EncryptTransport encrypts a payload for point-to-point transport with a
// random nonce. The wire form is hex(nonce) + hex(ciphertext+tag).
func (cc *CredentialCipher) EncryptTransport(plaintext, aad []byte) (string, error) {
	aead, err := cc.cipherFor([]byte(cryptoDomain.PurposeTransport))
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}

	return hex.EncodeToString(nonce) + hex.EncodeToString(ciphertext), nil
}

// DecryptTransport decrypts a wire payload produced by EncryptTransport.
func (cc *CredentialCipher) DecryptTransport(wire string, aad []byte) ([]byte, error) {
	nonceHexLen := cryptoDomain.NonceSize * 2
	if len(wire) <= nonceHexLen {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	nonce, err := hex.DecodeString(wire[:nonceHexLen])
	if err != nil {
		return nil, fmt.Errorf("malformed transport nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(wire[nonceHexLen:])
	if err != nil {
		return nil, fmt.Errorf("malformed transport ciphertext: %w", err)
	}

	aead, err := cc.cipherFor([]byte(cryptoDomain.PurposeTransport))
	if err != nil {
		return nil, err
	}

	return aead.Decrypt(ciphertext, nonce, aad)
}

// RowAAD binds an at-rest ciphertext to the table and column it lives in, so
// a ciphertext copied into another column fails authentication.
func RowAAD(table, column string) []byte {
	return []byte(table + "." + column)
}

// RequestAAD binds a transport ciphertext to the request it rides on, bucketed
// by weekday, month and year so a captured payload cannot be replayed against
// another endpoint or much later in time.
func RequestAAD(method, host, path string, t time.Time) []byte {
	t = t.UTC()
	return []byte(method + "|" + host + "|" + path + "|" +
		t.Weekday().String() + "|" + t.Month().String() + "|" + strconv.Itoa(t.Year()))
}

// PayloadAAD binds a transport ciphertext to the client it belongs to,
// bucketed by month and year.
func PayloadAAD(clientID string, t time.Time) []byte {
	t = t.UTC()
	return []byte(clientID + "|" + t.Month().String() + "|" + strconv.Itoa(t.Year()))
}
