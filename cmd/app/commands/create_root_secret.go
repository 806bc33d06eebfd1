package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
)

// RunCreateRootSecret generates a cryptographically secure 32-byte root
// secret for purpose-scoped key derivation and prints it as environment
// variable assignments.
//
// When a KMS key URI is provided, the secret is wrapped with the keeper
// before output and the printed configuration instructs the server to unwrap
// it on startup. For local development, use kmsKeyURI="base64key://...".
// Never ship an unwrapped root secret to production.
func RunCreateRootSecret(w io.Writer, kmsKeyURI string) error {
	ctx := context.Background()

	rootSecret := make([]byte, cryptoDomain.RootSecretMinSize)
	if _, err := rand.Read(rootSecret); err != nil {
		return fmt.Errorf("failed to generate root secret: %w", err)
	}
	defer cryptoDomain.Zero(rootSecret)

	if kmsKeyURI == "" {
		fmt.Fprintln(w, "# Root Secret Configuration (plaintext mode)")
		fmt.Fprintln(w, "# Copy these environment variables to your .env file or secrets manager")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "CRYPTO_ROOT_SECRET=\"%s\"\n", hex.EncodeToString(rootSecret))
		return nil
	}

	keeper, err := cryptoService.NewKMSService().OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}

	encrypter, ok := keeper.(interface {
		Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	})
	if !ok {
		return fmt.Errorf("KMS keeper does not support encryption")
	}

	wrapped, err := encrypter.Encrypt(ctx, rootSecret)
	if err != nil {
		return fmt.Errorf("failed to wrap root secret with KMS: %w", err)
	}

	fmt.Fprintln(w, "# Root Secret Configuration (KMS mode)")
	fmt.Fprintln(w, "# Copy these environment variables to your .env file or secrets manager")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "CRYPTO_KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	fmt.Fprintf(w, "CRYPTO_ROOT_SECRET=\"%s\"\n", hex.EncodeToString(wrapped))

	return nil
}
