package domain

import "errors"

var (
	// ErrInvalidKeySize indicates a key that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.New("key must be exactly 32 bytes")

	// ErrUnsupportedAlgorithm indicates an unknown AEAD algorithm identifier.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrDecryptionFailed indicates an AEAD authentication failure. The
	// ciphertext, nonce, key, or AAD does not match what was encrypted.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrRootSecretMissing indicates no root secret was configured.
	ErrRootSecretMissing = errors.New("root secret is not configured")

	// ErrRootSecretTooShort indicates the configured root secret decodes to
	// fewer than RootSecretMinSize bytes.
	ErrRootSecretTooShort = errors.New("root secret must be at least 32 bytes")
)
