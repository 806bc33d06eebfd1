// Package service implements the cryptographic capability layer: AEAD ciphers,
// purpose-scoped key derivation, and the credential cipher built on top of them.
package service

import (
	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
)

// AEAD provides authenticated encryption with associated data.
//
// Two encryption shapes are exposed: Encrypt generates a fresh random nonce
// per call (transport use), EncryptWithNonce lets the caller supply a
// deterministic nonce (storage-at-rest use, where each row is encrypted at
// most once per key epoch).
type AEAD interface {
	// Encrypt encrypts plaintext with a freshly generated random nonce and
	// returns both the tagged ciphertext and the nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// EncryptWithNonce encrypts plaintext under a caller-supplied nonce.
	// The caller is responsible for never reusing a nonce with the same key.
	EncryptWithNonce(nonce, plaintext, aad []byte) (ciphertext []byte, err error)

	// Decrypt authenticates and decrypts the tagged ciphertext. The same AAD
	// used during encryption must be supplied.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager creates AEAD cipher instances for a key and algorithm.
type AEADManager interface {
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}
