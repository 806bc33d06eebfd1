package service

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
)

// KMSService opens gocloud.dev secret keepers for root-secret unwrapping.
// The supported providers are selected by the key URI scheme (awskms://,
// azurekeyvault://, gcpkms://, hashivault://, base64key:// for local dev).
type KMSService struct{}

// NewKMSService creates a new KMSService.
func NewKMSService() *KMSService {
	return &KMSService{}
}

// OpenKeeper opens a keeper for the given key URI.
func (k *KMSService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open keeper for %q: %w", keyURI, err)
	}
	return keeper, nil
}
