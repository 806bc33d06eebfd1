package service

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
)

func testRootSecret() []byte {
	secret := make([]byte, 64)
	for i := range secret {
		secret[i] = byte(i)
	}
	return secret
}

func newTestCipher(t *testing.T, cutover time.Time) *CredentialCipher {
	t.Helper()
	cc, err := NewCredentialCipher(testRootSecret(), NewAEADManager(), cryptoDomain.AESGCM, cutover)
	require.NoError(t, err)
	return cc
}

func TestNewCredentialCipher(t *testing.T) {
	t.Run("rejects empty root secret", func(t *testing.T) {
		_, err := NewCredentialCipher(nil, NewAEADManager(), cryptoDomain.AESGCM, time.Time{})
		assert.ErrorIs(t, err, cryptoDomain.ErrRootSecretMissing)
	})

	t.Run("rejects short root secret", func(t *testing.T) {
		_, err := NewCredentialCipher(make([]byte, 31), NewAEADManager(), cryptoDomain.AESGCM, time.Time{})
		assert.ErrorIs(t, err, cryptoDomain.ErrRootSecretTooShort)
	})
}

func TestDeriveKey(t *testing.T) {
	t.Run("rejects short root secret", func(t *testing.T) {
		_, err := DeriveKey(make([]byte, 16), []byte("dbenc"))
		assert.ErrorIs(t, err, cryptoDomain.ErrRootSecretTooShort)
	})

	t.Run("is deterministic per context", func(t *testing.T) {
		k1, err := DeriveKey(testRootSecret(), []byte("dbenc-client-a"))
		require.NoError(t, err)
		k2, err := DeriveKey(testRootSecret(), []byte("dbenc-client-a"))
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, cryptoDomain.KeySize)
	})

	t.Run("different contexts derive different keys", func(t *testing.T) {
		k1, err := DeriveKey(testRootSecret(), []byte("dbenc-client-a"))
		require.NoError(t, err)
		k2, err := DeriveKey(testRootSecret(), []byte("encryptcrossservice"))
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("only first 32 bytes of the root secret matter", func(t *testing.T) {
		long := testRootSecret()
		short := long[:32]
		k1, err := DeriveKey(long, []byte("ctx"))
		require.NoError(t, err)
		k2, err := DeriveKey(short, []byte("ctx"))
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
	})
}

func TestStorageNonce(t *testing.T) {
	t.Run("deterministic per client", func(t *testing.T) {
		assert.Equal(t, StorageNonce("client-a"), StorageNonce("client-a"))
		assert.Len(t, StorageNonce("client-a"), cryptoDomain.NonceSize)
	})

	t.Run("distinct clients get distinct nonces", func(t *testing.T) {
		assert.NotEqual(t, StorageNonce("client-a"), StorageNonce("client-b"))
	})
}

func TestCredentialCipherAtRest(t *testing.T) {
	cc := newTestCipher(t, time.Time{})
	clientID := "5f4dcc3b5aa765d61d8327deb882cf995f4dcc3b5aa765d61d8327deb882cf99"
	plaintext := []byte("vpn-session-token-xyz")
	aad := RowAAD("credentials", "session_token")
	now := time.Now()

	t.Run("round-trips", func(t *testing.T) {
		ciphertext, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)

		decrypted, err := cc.DecryptAtRest(clientID, ciphertext, aad, now)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("is deterministic for the same client and plaintext", func(t *testing.T) {
		c1, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)
		c2, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)
		assert.Equal(t, c1, c2)
	})

	t.Run("different clients produce different ciphertexts", func(t *testing.T) {
		c1, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)
		c2, err := cc.EncryptAtRest("another-client", plaintext, aad)
		require.NoError(t, err)
		assert.NotEqual(t, c1, c2)
	})

	t.Run("fails on tampered ciphertext", func(t *testing.T) {
		ciphertext, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)

		raw, err := hex.DecodeString(ciphertext)
		require.NoError(t, err)
		raw[0] ^= 0xff

		_, err = cc.DecryptAtRest(clientID, hex.EncodeToString(raw), aad, now)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("fails on wrong aad", func(t *testing.T) {
		ciphertext, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)

		_, err = cc.DecryptAtRest(clientID, ciphertext, RowAAD("credentials", "user_id"), now)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("fails on wrong client", func(t *testing.T) {
		ciphertext, err := cc.EncryptAtRest(clientID, plaintext, aad)
		require.NoError(t, err)

		_, err = cc.DecryptAtRest("another-client", ciphertext, aad, now)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("fails on malformed hex", func(t *testing.T) {
		_, err := cc.DecryptAtRest(clientID, "not-hex", aad, now)
		assert.Error(t, err)
	})
}

func TestCredentialCipherAADCutover(t *testing.T) {
	cutover := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	cc := newTestCipher(t, cutover)
	clientID := "client-with-legacy-rows"
	plaintext := []byte("legacy-session-token")
	aad := RowAAD("credentials", "session_token")

	legacyCiphertext, err := cc.EncryptAtRest(clientID, plaintext, nil)
	require.NoError(t, err)

	t.Run("pre-cutover row without aad decrypts via fallback", func(t *testing.T) {
		decrypted, err := cc.DecryptAtRest(clientID, legacyCiphertext, aad, cutover.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("zero written-at is treated as pre-cutover", func(t *testing.T) {
		decrypted, err := cc.DecryptAtRest(clientID, legacyCiphertext, aad, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("post-cutover row without aad fails", func(t *testing.T) {
		_, err := cc.DecryptAtRest(clientID, legacyCiphertext, aad, cutover.Add(time.Hour))
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("no fallback when cutover is unset", func(t *testing.T) {
		noCutover := newTestCipher(t, time.Time{})
		legacy, err := noCutover.EncryptAtRest(clientID, plaintext, nil)
		require.NoError(t, err)

		_, err = noCutover.DecryptAtRest(clientID, legacy, aad, time.Time{})
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestCredentialCipherTransport(t *testing.T) {
	cc := newTestCipher(t, time.Time{})
	plaintext := []byte(`{"session_token":"abc","user_id":"42"}`)
	aad := RequestAAD("POST", "api.example.com", "/v1/session", time.Now())

	t.Run("round-trips", func(t *testing.T) {
		wire, err := cc.EncryptTransport(plaintext, aad)
		require.NoError(t, err)

		decrypted, err := cc.DecryptTransport(wire, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("wire form is hex nonce followed by hex ciphertext", func(t *testing.T) {
		wire, err := cc.EncryptTransport(plaintext, aad)
		require.NoError(t, err)

		raw, err := hex.DecodeString(wire)
		require.NoError(t, err)
		// nonce + ciphertext + 16-byte tag
		assert.Len(t, raw, cryptoDomain.NonceSize+len(plaintext)+16)
	})

	t.Run("two encryptions of the same payload differ", func(t *testing.T) {
		w1, err := cc.EncryptTransport(plaintext, aad)
		require.NoError(t, err)
		w2, err := cc.EncryptTransport(plaintext, aad)
		require.NoError(t, err)
		assert.NotEqual(t, w1, w2)
	})

	t.Run("fails on tampered payload", func(t *testing.T) {
		wire, err := cc.EncryptTransport(plaintext, aad)
		require.NoError(t, err)

		raw, err := hex.DecodeString(wire)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff

		_, err = cc.DecryptTransport(hex.EncodeToString(raw), aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("fails on wrong aad", func(t *testing.T) {
		wire, err := cc.EncryptTransport(plaintext, aad)
		require.NoError(t, err)

		otherAAD := RequestAAD("GET", "api.example.com", "/v1/session", time.Now())
		_, err = cc.DecryptTransport(wire, otherAAD)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("fails on truncated wire payload", func(t *testing.T) {
		_, err := cc.DecryptTransport("deadbeef", aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestAADHelpers(t *testing.T) {
	t.Run("row aad binds table and column", func(t *testing.T) {
		assert.Equal(t, []byte("credentials.session_token"), RowAAD("credentials", "session_token"))
	})

	t.Run("request aad includes time bucket", func(t *testing.T) {
		at := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
		aad := RequestAAD("POST", "api.example.com", "/v1/session", at)
		assert.Equal(t, []byte("POST|api.example.com|/v1/session|Monday|August|2026"), aad)
	})

	t.Run("payload aad includes client and time bucket", func(t *testing.T) {
		at := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
		aad := PayloadAAD("client-a", at)
		assert.Equal(t, []byte("client-a|August|2026"), aad)
	})

	t.Run("request aad changes across months", func(t *testing.T) {
		a := RequestAAD("POST", "h", "/p", time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC))
		b := RequestAAD("POST", "h", "/p", time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC))
		assert.False(t, bytes.Equal(a, b))
	})
}
