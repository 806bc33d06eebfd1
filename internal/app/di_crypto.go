package app

import (
	"context"
	"fmt"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
)

// CredentialCipher returns the purpose-scoped credential cipher. The root
// secret is loaded from configuration and, when a KMS key URI is set,
// unwrapped through the configured keeper first.
func (c *Container) CredentialCipher(ctx context.Context) (*cryptoService.CredentialCipher, error) {
	c.credentialCipherInit.Do(func() {
		cipher, err := c.initCredentialCipher(ctx)
		if err != nil {
			c.initErrors["credentialCipher"] = err
			return
		}
		c.credentialCipher = cipher
	})
	if storedErr, exists := c.initErrors["credentialCipher"]; exists {
		return nil, storedErr
	}
	return c.credentialCipher, nil
}

func (c *Container) initCredentialCipher(ctx context.Context) (*cryptoService.CredentialCipher, error) {
	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.CryptoAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid crypto algorithm %q: %w", c.config.CryptoAlgorithm, err)
	}

	rootSecret, err := cryptoDomain.LoadRootSecret(
		ctx,
		c.config.CryptoRootSecret,
		c.config.CryptoKMSKeyURI,
		cryptoService.NewKMSService(),
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load root secret: %w", err)
	}

	cipher, err := cryptoService.NewCredentialCipher(
		rootSecret,
		cryptoService.NewAEADManager(),
		algorithm,
		c.config.AADCutover(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential cipher: %w", err)
	}

	return cipher, nil
}
