package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	entitlementService "github.com/relaypass/relaypass/internal/entitlement/service"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// credentialAAD binds at-rest session ciphertexts to their column.
var credentialAAD = cryptoService.RowAAD("credentials", "session_token")

// deleteBackoff paces retries of the provider-side session deletion.
var deleteBackoff = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}

// brokerUseCase implements BrokerUseCase.
type brokerUseCase struct {
	credentialRepo CredentialRepository
	vpn            VPNAPI
	cipher         CredentialCipher
	logger         *slog.Logger
	testMode       bool

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewBrokerUseCase creates a broker over the given store, provider API and
// cipher.
func NewBrokerUseCase(
	credentialRepo CredentialRepository,
	vpn VPNAPI,
	cipher CredentialCipher,
	logger *slog.Logger,
	testMode bool,
) BrokerUseCase {
	return &brokerUseCase{
		credentialRepo: credentialRepo,
		vpn:            vpn,
		cipher:         cipher,
		logger:         logger,
		testMode:       testMode,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// readEntitlement derives the current entitlement from the stored credential.
// Returns (nil, nil, nil) when no credential row exists.
func (b *brokerUseCase) readEntitlement(ctx context.Context, cid string) (*entitlementDomain.Entitlement, *entitlementDomain.Credential, error) {
	credential, err := b.credentialRepo.Get(ctx, cid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	sessionToken, err := b.cipher.DecryptAtRest(cid, credential.SessionToken, credentialAAD, credential.CreatedAt)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to decrypt stored credential")
	}

	entitlement := &entitlementDomain.Entitlement{
		CID:          cid,
		SessionToken: string(sessionToken),
		UserID:       credential.UserID,
	}

	account, err := b.vpn.GetStatus(ctx, entitlement.SessionToken)
	entitlement.Status = b.classify(account, err)
	if account != nil {
		entitlement.Expiry = account.ExpiresAt
		entitlement.Test = account.Test
		if account.UserID != "" {
			entitlement.UserID = account.UserID
		}
	}

	return entitlement, credential, nil
}

// classify maps a provider status response onto the canonical status set.
// Provider-call failures map to Unknown, never to Invalid: a flaky provider
// must not cause credential deletion.
func (b *brokerUseCase) classify(account *entitlementService.Account, err error) entitlementDomain.Status {
	switch {
	case errors.Is(err, entitlementService.ErrInvalidSession):
		return entitlementDomain.StatusInvalid
	case err != nil:
		return entitlementDomain.StatusUnknown
	case account.Banned:
		return entitlementDomain.StatusBanned
	case account.ExpiresAt.Before(b.now()):
		return entitlementDomain.StatusExpired
	default:
		return entitlementDomain.StatusValid
	}
}

// GetEntitlement derives the entitlement without side effects.
func (b *brokerUseCase) GetEntitlement(ctx context.Context, cid string) (*entitlementDomain.Entitlement, error) {
	entitlement, _, err := b.readEntitlement(ctx, cid)
	if err != nil {
		return nil, err
	}
	if entitlement == nil {
		return nil, apperrors.ErrNotFound
	}
	return entitlement, nil
}

// GetOrCreateEntitlement implements the fetch-or-create flow.
func (b *brokerUseCase) GetOrCreateEntitlement(ctx context.Context, cid string, intent *entitlementDomain.Intent, forceRenew bool) (*entitlementDomain.Entitlement, error) {
	entitlement, _, err := b.readEntitlement(ctx, cid)
	if err != nil {
		return nil, err
	}

	// A stale row blocks the insert path; clear it before recreating.
	if entitlement != nil && entitlement.Status == entitlementDomain.StatusInvalid {
		if err := b.credentialRepo.Delete(ctx, cid); err != nil {
			return nil, apperrors.Wrap(err, "failed to delete stale credential")
		}
		entitlement = nil
	}

	if entitlement == nil {
		entitlement, err = b.createEntitlement(ctx, cid, intent)
		if err != nil {
			return nil, err
		}
	}

	if entitlement.Status == entitlementDomain.StatusExpired || forceRenew {
		entitlement, err = b.renewEntitlement(ctx, entitlement, intent)
		if err != nil {
			return nil, err
		}
	}

	return entitlement, nil
}

// createEntitlement creates a provider session sized to the intent and
// persists its encrypted secret. On an insert conflict another invocation
// won; this caller adopts the stored row and deletes its own provider
// session so nothing is orphaned.
func (b *brokerUseCase) createEntitlement(ctx context.Context, cid string, intent *entitlementDomain.Intent) (*entitlementDomain.Entitlement, error) {
	plan, repeat, err := entitlementDomain.SizePlan(b.now(), intent.Expiry, b.testMode)
	if err != nil {
		return nil, err
	}

	account, err := b.vpn.CreateAccount(ctx, string(plan), repeat)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create provider session")
	}

	encrypted, err := b.cipher.EncryptAtRest(cid, []byte(account.SessionToken), credentialAAD)
	if err != nil {
		b.compensateProviderSession(ctx, account.SessionToken)
		return nil, apperrors.Wrap(err, "failed to encrypt provider session")
	}

	now := b.now().UTC()
	credential := &entitlementDomain.Credential{
		SessionToken: encrypted,
		CID:          cid,
		UserID:       account.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = b.credentialRepo.Insert(ctx, credential)
	switch {
	case err == nil:
		return &entitlementDomain.Entitlement{
			CID:          cid,
			SessionToken: account.SessionToken,
			UserID:       account.UserID,
			Status:       entitlementDomain.StatusValid,
			Expiry:       account.ExpiresAt,
			Test:         account.Test,
		}, nil

	case errors.Is(err, apperrors.ErrConflict):
		stored, _, readErr := b.readEntitlement(ctx, cid)
		if readErr != nil {
			return nil, readErr
		}
		if stored == nil {
			// The winning row vanished between the conflict and the re-read.
			return nil, apperrors.Wrap(apperrors.ErrConflict, "credential row lost after insert race")
		}
		if stored.SessionToken != account.SessionToken {
			b.compensateProviderSession(ctx, account.SessionToken)
		}
		return stored, nil

	default:
		b.compensateProviderSession(ctx, account.SessionToken)
		return nil, apperrors.Wrap(err, "failed to persist credential")
	}
}

// compensateProviderSession best-effort deletes a provider session this
// invocation created but could not keep.
func (b *brokerUseCase) compensateProviderSession(ctx context.Context, sessionToken string) {
	if err := b.vpn.DeleteAccount(ctx, sessionToken); err != nil && !errors.Is(err, entitlementService.ErrInvalidSession) {
		b.logger.Error("failed to delete orphaned provider session", slog.String("error", err.Error()))
	}
}

// renewEntitlement forward-extends the provider session. Renewal failure is
// fatal only when the entitlement was already expired going in; for a still
// valid entitlement the broker fails open and returns it unchanged.
func (b *brokerUseCase) renewEntitlement(ctx context.Context, entitlement *entitlementDomain.Entitlement, intent *entitlementDomain.Intent) (*entitlementDomain.Entitlement, error) {
	wasExpired := entitlement.Status == entitlementDomain.StatusExpired

	plan, repeat, err := entitlementDomain.SizePlan(b.now(), intent.Expiry, b.testMode)
	if err != nil {
		if wasExpired {
			return nil, err
		}
		b.logger.Warn("skipping renewal of valid entitlement", slog.String("error", err.Error()))
		return entitlement, nil
	}

	account, err := b.vpn.UpdateAccount(ctx, entitlement.SessionToken, string(plan), repeat)
	if err != nil {
		if wasExpired {
			return nil, apperrors.Wrap(err, "failed to renew expired entitlement")
		}
		b.logger.Warn("renewal of valid entitlement failed, keeping current expiry", slog.String("error", err.Error()))
		return entitlement, nil
	}

	entitlement.Status = entitlementDomain.StatusValid
	entitlement.Expiry = account.ExpiresAt
	if account.UserID != "" {
		entitlement.UserID = account.UserID
	}
	return entitlement, nil
}

// DeleteEntitlement deletes the provider session with backoff, then the
// credential row. Banned sessions are never deleted. An "invalid session"
// provider response counts as a completed deletion.
func (b *brokerUseCase) DeleteEntitlement(ctx context.Context, cid string) error {
	entitlement, _, err := b.readEntitlement(ctx, cid)
	if err != nil {
		return err
	}
	if entitlement == nil {
		return nil
	}
	if entitlement.Status == entitlementDomain.StatusBanned {
		return entitlementDomain.ErrEntitlementBanned
	}

	if entitlement.Status != entitlementDomain.StatusInvalid {
		if err := b.deleteProviderSession(ctx, entitlement.SessionToken); err != nil {
			return err
		}
	}

	if err := b.credentialRepo.Delete(ctx, cid); err != nil {
		// The provider session is gone; the caller must retry this delete so
		// the local row does not outlive it.
		return apperrors.Wrap(err, "provider session deleted but credential row removal failed")
	}
	return nil
}

func (b *brokerUseCase) deleteProviderSession(ctx context.Context, sessionToken string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = b.vpn.DeleteAccount(ctx, sessionToken)
		if err == nil || errors.Is(err, entitlementService.ErrInvalidSession) {
			return nil
		}
		if attempt >= len(deleteBackoff) {
			break
		}
		b.logger.Warn("provider session delete failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		b.sleep(deleteBackoff[attempt])
	}
	return apperrors.Wrap(err, "failed to delete provider session")
}
