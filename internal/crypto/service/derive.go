package service

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
)

// DeriveKey derives a purpose-scoped 32-byte symmetric key from the root
// secret using HKDF-SHA256. The HKDF info parameter is the SHA-256 hash of
// the context bytes, so two different purposes (e.g. "dbenc"+clientID vs
// "encryptcrossservice") yield unlinkable keys from the same root secret.
//
// Exactly the first RootSecretMinSize bytes of the root secret feed the
// derivation; a shorter secret is a hard failure, never padded.
func DeriveKey(rootSecret, context []byte) ([]byte, error) {
	if len(rootSecret) < cryptoDomain.RootSecretMinSize {
		return nil, cryptoDomain.ErrRootSecretTooShort
	}

	info := sha256.Sum256(context)
	reader := hkdf.New(sha256.New, rootSecret[:cryptoDomain.RootSecretMinSize], nil, info[:])

	key := make([]byte, cryptoDomain.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}
