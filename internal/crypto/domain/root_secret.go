package domain

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// KMSKeeper abstracts the minimal KMS operation needed here: unwrapping a
// wrapped root secret. *secrets.Keeper from gocloud.dev implements it.
type KMSKeeper interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KMSOpener opens a KMSKeeper for a provider key URI.
type KMSOpener interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

// LoadRootSecret decodes and, when a KMS key URI is configured, unwraps the
// application root secret. A secret shorter than RootSecretMinSize is a hard
// configuration failure; derivation must never run on truncated material.
func LoadRootSecret(
	ctx context.Context,
	secretHex string,
	kmsKeyURI string,
	opener KMSOpener,
	logger *slog.Logger,
) ([]byte, error) {
	if secretHex == "" {
		return nil, ErrRootSecretMissing
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("root secret is not valid hex: %w", err)
	}

	if kmsKeyURI != "" {
		keeper, err := opener.OpenKeeper(ctx, kmsKeyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
		}
		secret, err = keeper.Decrypt(ctx, secret)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap root secret: %w", err)
		}
		logger.Info("root secret unwrapped via KMS", slog.String("key_uri", kmsKeyURI))
	}

	if len(secret) < RootSecretMinSize {
		return nil, ErrRootSecretTooShort
	}

	return secret, nil
}
