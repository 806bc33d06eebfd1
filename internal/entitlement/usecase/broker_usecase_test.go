package usecase

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/relaypass/relaypass/internal/crypto/domain"
	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	entitlementService "github.com/relaypass/relaypass/internal/entitlement/service"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

const brokerTestCID = "5f4dcc3b5aa765d61d8327deb882cf995f4dcc3b5aa765d61d8327deb882cf99"

type credentialRepoStub struct {
	getFunc    func(ctx context.Context, cid string) (*entitlementDomain.Credential, error)
	insertFunc func(ctx context.Context, credential *entitlementDomain.Credential) error
	deleteFunc func(ctx context.Context, cid string) error

	inserts []*entitlementDomain.Credential
	deletes []string
}

func (s *credentialRepoStub) Get(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
	return s.getFunc(ctx, cid)
}

func (s *credentialRepoStub) Insert(ctx context.Context, credential *entitlementDomain.Credential) error {
	s.inserts = append(s.inserts, credential)
	if s.insertFunc != nil {
		return s.insertFunc(ctx, credential)
	}
	return nil
}

func (s *credentialRepoStub) Delete(ctx context.Context, cid string) error {
	s.deletes = append(s.deletes, cid)
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, cid)
	}
	return nil
}

type vpnStub struct {
	createFunc func(ctx context.Context, plan string, repeat int) (*entitlementService.Account, error)
	statusFunc func(ctx context.Context, sessionToken string) (*entitlementService.Account, error)
	updateFunc func(ctx context.Context, sessionToken, plan string, repeat int) (*entitlementService.Account, error)
	deleteFunc func(ctx context.Context, sessionToken string) error

	creates []string
	deletes []string
	updates []string
}

func (s *vpnStub) CreateAccount(ctx context.Context, plan string, repeat int) (*entitlementService.Account, error) {
	s.creates = append(s.creates, plan)
	return s.createFunc(ctx, plan, repeat)
}

func (s *vpnStub) GetStatus(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
	return s.statusFunc(ctx, sessionToken)
}

func (s *vpnStub) UpdateAccount(ctx context.Context, sessionToken, plan string, repeat int) (*entitlementService.Account, error) {
	s.updates = append(s.updates, sessionToken)
	return s.updateFunc(ctx, sessionToken, plan, repeat)
}

func (s *vpnStub) DeleteAccount(ctx context.Context, sessionToken string) error {
	s.deletes = append(s.deletes, sessionToken)
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, sessionToken)
	}
	return nil
}

func newTestCipher(t *testing.T) *cryptoService.CredentialCipher {
	t.Helper()
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}
	cipher, err := cryptoService.NewCredentialCipher(secret, cryptoService.NewAEADManager(), cryptoDomain.AESGCM, time.Time{})
	require.NoError(t, err)
	return cipher
}

func newTestBroker(t *testing.T, repo *credentialRepoStub, vpn *vpnStub, testMode bool) (*brokerUseCase, *[]time.Duration) {
	t.Helper()
	sleeps := &[]time.Duration{}
	broker := &brokerUseCase{
		credentialRepo: repo,
		vpn:            vpn,
		cipher:         newTestCipher(t),
		logger:         slog.New(slog.DiscardHandler),
		testMode:       testMode,
		now:            time.Now,
		sleep:          func(d time.Duration) { *sleeps = append(*sleeps, d) },
	}
	return broker, sleeps
}

func encryptedCredential(t *testing.T, cipher *cryptoService.CredentialCipher, cid, sessionToken string) *entitlementDomain.Credential {
	t.Helper()
	encrypted, err := cipher.EncryptAtRest(cid, []byte(sessionToken), credentialAAD)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &entitlementDomain.Credential{
		SessionToken: encrypted,
		CID:          cid,
		UserID:       "user-42",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func monthlyIntent(expiry time.Time) *entitlementDomain.Intent {
	return &entitlementDomain.Intent{
		ProductID: "vpn-pass",
		BasePlan:  "1-month",
		Period:    entitlementDomain.PlanMonth,
		Expiry:    expiry,
	}
}

func notFoundRepo() *credentialRepoStub {
	return &credentialRepoStub{
		getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
			return nil, apperrors.ErrNotFound
		},
	}
}

func TestBrokerGetOrCreateEntitlement(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a session when no credential exists", func(t *testing.T) {
		repo := notFoundRepo()
		vpn := &vpnStub{
			createFunc: func(ctx context.Context, plan string, repeat int) (*entitlementService.Account, error) {
				assert.Equal(t, "month", plan)
				assert.Equal(t, 3, repeat)
				return &entitlementService.Account{
					UserID:       "user-42",
					SessionToken: "fresh-session",
					ExpiresAt:    time.Now().AddDate(0, 3, 0),
				}, nil
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 3, 0)), false)
		require.NoError(t, err)
		assert.Equal(t, entitlementDomain.StatusValid, entitlement.Status)
		assert.Equal(t, "fresh-session", entitlement.SessionToken)

		require.Len(t, repo.inserts, 1)
		stored := repo.inserts[0]
		assert.Equal(t, brokerTestCID, stored.CID)
		assert.NotEqual(t, "fresh-session", stored.SessionToken)

		decrypted, err := broker.cipher.DecryptAtRest(brokerTestCID, stored.SessionToken, credentialAAD, stored.CreatedAt)
		require.NoError(t, err)
		assert.Equal(t, "fresh-session", string(decrypted))
	})

	t.Run("returns existing valid entitlement without creating", func(t *testing.T) {
		cipher := newTestCipher(t)
		credential := encryptedCredential(t, cipher, brokerTestCID, "existing-session")
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				return credential, nil
			},
		}
		vpn := &vpnStub{
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				assert.Equal(t, "existing-session", sessionToken)
				return &entitlementService.Account{
					UserID:       "user-42",
					SessionToken: sessionToken,
					ExpiresAt:    time.Now().AddDate(0, 1, 0),
				}, nil
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 1, 0)), false)
		require.NoError(t, err)
		assert.Equal(t, entitlementDomain.StatusValid, entitlement.Status)
		assert.Empty(t, vpn.creates)
		assert.Empty(t, repo.inserts)
	})

	t.Run("lost insert race adopts the winner and deletes own session", func(t *testing.T) {
		cipher := newTestCipher(t)
		winner := encryptedCredential(t, cipher, brokerTestCID, "winner-session")

		calls := 0
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				calls++
				if calls == 1 {
					return nil, apperrors.ErrNotFound
				}
				return winner, nil
			},
			insertFunc: func(ctx context.Context, credential *entitlementDomain.Credential) error {
				return apperrors.ErrConflict
			},
		}
		vpn := &vpnStub{
			createFunc: func(ctx context.Context, plan string, repeat int) (*entitlementService.Account, error) {
				return &entitlementService.Account{UserID: "user-43", SessionToken: "loser-session", ExpiresAt: time.Now().AddDate(0, 1, 0)}, nil
			},
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				return &entitlementService.Account{UserID: "user-42", SessionToken: sessionToken, ExpiresAt: time.Now().AddDate(0, 1, 0)}, nil
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 1, 0)), false)
		require.NoError(t, err)
		assert.Equal(t, "winner-session", entitlement.SessionToken)
		assert.Equal(t, []string{"loser-session"}, vpn.deletes)
	})

	t.Run("invalid stored credential is replaced", func(t *testing.T) {
		cipher := newTestCipher(t)
		stale := encryptedCredential(t, cipher, brokerTestCID, "stale-session")

		calls := 0
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				calls++
				if calls == 1 {
					return stale, nil
				}
				return nil, apperrors.ErrNotFound
			},
		}
		vpn := &vpnStub{
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				return nil, entitlementService.ErrInvalidSession
			},
			createFunc: func(ctx context.Context, plan string, repeat int) (*entitlementService.Account, error) {
				return &entitlementService.Account{UserID: "user-44", SessionToken: "new-session", ExpiresAt: time.Now().AddDate(0, 1, 0)}, nil
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 1, 0)), false)
		require.NoError(t, err)
		assert.Equal(t, "new-session", entitlement.SessionToken)
		assert.Equal(t, []string{brokerTestCID}, repo.deletes)
		require.Len(t, repo.inserts, 1)
	})

	t.Run("expired entitlement renews", func(t *testing.T) {
		cipher := newTestCipher(t)
		credential := encryptedCredential(t, cipher, brokerTestCID, "old-session")
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				return credential, nil
			},
		}
		newExpiry := time.Now().AddDate(0, 1, 0)
		vpn := &vpnStub{
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				return &entitlementService.Account{UserID: "user-42", SessionToken: sessionToken, ExpiresAt: time.Now().AddDate(0, 0, -2)}, nil
			},
			updateFunc: func(ctx context.Context, sessionToken, plan string, repeat int) (*entitlementService.Account, error) {
				assert.Equal(t, "old-session", sessionToken)
				return &entitlementService.Account{UserID: "user-42", SessionToken: sessionToken, ExpiresAt: newExpiry}, nil
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(newExpiry), false)
		require.NoError(t, err)
		assert.Equal(t, entitlementDomain.StatusValid, entitlement.Status)
		assert.Equal(t, newExpiry, entitlement.Expiry)
	})

	t.Run("failed renewal of a valid entitlement fails open", func(t *testing.T) {
		cipher := newTestCipher(t)
		credential := encryptedCredential(t, cipher, brokerTestCID, "good-session")
		oldExpiry := time.Now().AddDate(0, 1, 0)
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				return credential, nil
			},
		}
		vpn := &vpnStub{
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				return &entitlementService.Account{UserID: "user-42", SessionToken: sessionToken, ExpiresAt: oldExpiry}, nil
			},
			updateFunc: func(ctx context.Context, sessionToken, plan string, repeat int) (*entitlementService.Account, error) {
				return nil, errors.New("provider unavailable")
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 2, 0)), true)
		require.NoError(t, err)
		assert.Equal(t, entitlementDomain.StatusValid, entitlement.Status)
		assert.Equal(t, oldExpiry, entitlement.Expiry)
	})

	t.Run("failed renewal of an expired entitlement is a hard failure", func(t *testing.T) {
		cipher := newTestCipher(t)
		credential := encryptedCredential(t, cipher, brokerTestCID, "dead-session")
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				return credential, nil
			},
		}
		vpn := &vpnStub{
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				return &entitlementService.Account{UserID: "user-42", SessionToken: sessionToken, ExpiresAt: time.Now().AddDate(0, 0, -5)}, nil
			},
			updateFunc: func(ctx context.Context, sessionToken, plan string, repeat int) (*entitlementService.Account, error) {
				return nil, errors.New("provider unavailable")
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		_, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 1, 0)), false)
		assert.Error(t, err)
	})

	t.Run("expired intent is a hard failure", func(t *testing.T) {
		repo := notFoundRepo()
		broker, _ := newTestBroker(t, repo, &vpnStub{}, false)

		_, err := broker.GetOrCreateEntitlement(ctx, brokerTestCID, monthlyIntent(time.Now().AddDate(0, 0, -1)), false)
		assert.ErrorIs(t, err, entitlementDomain.ErrExpiryInPast)
	})
}

func TestBrokerGetEntitlement(t *testing.T) {
	ctx := context.Background()

	t.Run("returns not found without a credential", func(t *testing.T) {
		broker, _ := newTestBroker(t, notFoundRepo(), &vpnStub{}, false)
		_, err := broker.GetEntitlement(ctx, brokerTestCID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("provider failure classifies as unknown", func(t *testing.T) {
		cipher := newTestCipher(t)
		credential := encryptedCredential(t, cipher, brokerTestCID, "some-session")
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				return credential, nil
			},
		}
		vpn := &vpnStub{
			statusFunc: func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
				return nil, errors.New("gateway timeout")
			},
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		entitlement, err := broker.GetEntitlement(ctx, brokerTestCID)
		require.NoError(t, err)
		assert.Equal(t, entitlementDomain.StatusUnknown, entitlement.Status)
	})
}

func TestBrokerDeleteEntitlement(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, status func(ctx context.Context, sessionToken string) (*entitlementService.Account, error)) (*credentialRepoStub, *vpnStub) {
		cipher := newTestCipher(t)
		credential := encryptedCredential(t, cipher, brokerTestCID, "live-session")
		repo := &credentialRepoStub{
			getFunc: func(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
				return credential, nil
			},
		}
		return repo, &vpnStub{statusFunc: status}
	}

	validStatus := func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
		return &entitlementService.Account{UserID: "user-42", SessionToken: sessionToken, ExpiresAt: time.Now().AddDate(0, 1, 0)}, nil
	}

	t.Run("deletes provider session then row", func(t *testing.T) {
		repo, vpn := setup(t, validStatus)
		broker, sleeps := newTestBroker(t, repo, vpn, false)

		require.NoError(t, broker.DeleteEntitlement(ctx, brokerTestCID))
		assert.Equal(t, []string{"live-session"}, vpn.deletes)
		assert.Equal(t, []string{brokerTestCID}, repo.deletes)
		assert.Empty(t, *sleeps)
	})

	t.Run("refuses to delete a banned entitlement", func(t *testing.T) {
		repo, vpn := setup(t, func(ctx context.Context, sessionToken string) (*entitlementService.Account, error) {
			return &entitlementService.Account{Banned: true, SessionToken: sessionToken, ExpiresAt: time.Now().AddDate(0, 1, 0)}, nil
		})
		broker, _ := newTestBroker(t, repo, vpn, false)

		err := broker.DeleteEntitlement(ctx, brokerTestCID)
		assert.ErrorIs(t, err, entitlementDomain.ErrEntitlementBanned)
		assert.Empty(t, vpn.deletes)
		assert.Empty(t, repo.deletes)
	})

	t.Run("retries provider delete with backoff then gives up", func(t *testing.T) {
		repo, vpn := setup(t, validStatus)
		vpn.deleteFunc = func(ctx context.Context, sessionToken string) error {
			return errors.New("gateway timeout")
		}
		broker, sleeps := newTestBroker(t, repo, vpn, false)

		err := broker.DeleteEntitlement(ctx, brokerTestCID)
		require.Error(t, err)
		assert.Len(t, vpn.deletes, 4)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *sleeps)
		assert.Empty(t, repo.deletes)
	})

	t.Run("invalid session on delete counts as success", func(t *testing.T) {
		repo, vpn := setup(t, validStatus)
		vpn.deleteFunc = func(ctx context.Context, sessionToken string) error {
			return entitlementService.ErrInvalidSession
		}
		broker, sleeps := newTestBroker(t, repo, vpn, false)

		require.NoError(t, broker.DeleteEntitlement(ctx, brokerTestCID))
		assert.Equal(t, []string{brokerTestCID}, repo.deletes)
		assert.Empty(t, *sleeps)
	})

	t.Run("no credential is a no-op", func(t *testing.T) {
		broker, _ := newTestBroker(t, notFoundRepo(), &vpnStub{}, false)
		assert.NoError(t, broker.DeleteEntitlement(ctx, brokerTestCID))
	})

	t.Run("row delete failure is surfaced for retry", func(t *testing.T) {
		repo, vpn := setup(t, validStatus)
		repo.deleteFunc = func(ctx context.Context, cid string) error {
			return errors.New("store unavailable")
		}
		broker, _ := newTestBroker(t, repo, vpn, false)

		err := broker.DeleteEntitlement(ctx, brokerTestCID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "credential row removal failed")
	})
}
