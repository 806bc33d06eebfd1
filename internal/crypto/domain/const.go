// Package domain contains core cryptographic types and constants.
package domain

// Algorithm represents the supported AEAD encryption algorithms.
type Algorithm string

const (
	// AESGCM is AES-256-GCM authenticated encryption.
	AESGCM Algorithm = "aes-gcm"
	// ChaCha20 is ChaCha20-Poly1305 authenticated encryption.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// Purpose context strings for key derivation. Two different purposes derive
// unlinkable keys from the same root secret.
const (
	// PurposeStorage scopes keys that encrypt credential rows at rest.
	// The full context is PurposeStorage followed by the owning client id.
	PurposeStorage = "dbenc"
	// PurposeTransport scopes keys that encrypt session secrets handed to
	// end clients over the wire.
	PurposeTransport = "encryptcrossservice"
)

const (
	// KeySize is the symmetric key size in bytes (256 bits).
	KeySize = 32
	// NonceSize is the AEAD nonce size in bytes (96 bits).
	NonceSize = 12
	// RootSecretMinSize is the minimum usable root secret length; derivation
	// consumes exactly this many bytes.
	RootSecretMinSize = 32
)

// ParseAlgorithm converts a configuration string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM:
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}
