package commands

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
)

var rootSecretLine = regexp.MustCompile(`CRYPTO_ROOT_SECRET="([0-9a-f]+)"`)

func TestRunCreateRootSecretPlaintext(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, RunCreateRootSecret(&out, ""))

	matches := rootSecretLine.FindStringSubmatch(out.String())
	require.Len(t, matches, 2)

	secret, err := hex.DecodeString(matches[1])
	require.NoError(t, err)
	assert.Len(t, secret, cryptoDomain.RootSecretMinSize)

	assert.NotContains(t, out.String(), "CRYPTO_KMS_KEY_URI")
}

func TestRunCreateRootSecretUniquePerRun(t *testing.T) {
	var first, second bytes.Buffer

	require.NoError(t, RunCreateRootSecret(&first, ""))
	require.NoError(t, RunCreateRootSecret(&second, ""))

	assert.NotEqual(t, first.String(), second.String())
}

func TestRunCreateRootSecretWrapped(t *testing.T) {
	// base64key:// is the local development keeper; a fixed 32-byte key is
	// enough to exercise the wrap path.
	keyURI := "base64key://AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

	var out bytes.Buffer
	require.NoError(t, RunCreateRootSecret(&out, keyURI))

	assert.Contains(t, out.String(), `CRYPTO_KMS_KEY_URI="`+keyURI+`"`)

	matches := rootSecretLine.FindStringSubmatch(out.String())
	require.Len(t, matches, 2)

	wrapped, err := hex.DecodeString(matches[1])
	require.NoError(t, err)
	// Wrapped output carries nonce and tag overhead on top of the secret.
	assert.Greater(t, len(wrapped), cryptoDomain.RootSecretMinSize)
}
