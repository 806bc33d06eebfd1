package app

import (
	"context"
	"fmt"

	entitlementRepository "github.com/relaypass/relaypass/internal/entitlement/repository"
	entitlementService "github.com/relaypass/relaypass/internal/entitlement/service"
	entitlementUsecase "github.com/relaypass/relaypass/internal/entitlement/usecase"
	reconcilerUsecase "github.com/relaypass/relaypass/internal/reconciler/usecase"
)

// ClientRepository returns the client identity repository.
func (c *Container) ClientRepository(ctx context.Context) (reconcilerUsecase.ClientRepository, error) {
	c.clientRepoInit.Do(func() {
		db, err := c.DB(ctx)
		if err != nil {
			c.initErrors["clientRepo"] = err
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.clientRepo = entitlementRepository.NewMySQLClientRepository(db)
		case "postgres":
			c.clientRepo = entitlementRepository.NewPostgreSQLClientRepository(db)
		default:
			c.initErrors["clientRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if storedErr, exists := c.initErrors["clientRepo"]; exists {
		return nil, storedErr
	}
	return c.clientRepo, nil
}

// SubscriptionRepository returns the purchase record repository.
func (c *Container) SubscriptionRepository(ctx context.Context) (reconcilerUsecase.SubscriptionRepository, error) {
	c.subscriptionRepoInit.Do(func() {
		db, err := c.DB(ctx)
		if err != nil {
			c.initErrors["subscriptionRepo"] = err
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.subscriptionRepo = entitlementRepository.NewMySQLSubscriptionRepository(db)
		case "postgres":
			c.subscriptionRepo = entitlementRepository.NewPostgreSQLSubscriptionRepository(db)
		default:
			c.initErrors["subscriptionRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if storedErr, exists := c.initErrors["subscriptionRepo"]; exists {
		return nil, storedErr
	}
	return c.subscriptionRepo, nil
}

// LapseRepository returns the quarantine row repository.
func (c *Container) LapseRepository(ctx context.Context) (reconcilerUsecase.LapseRepository, error) {
	c.lapseRepoInit.Do(func() {
		db, err := c.DB(ctx)
		if err != nil {
			c.initErrors["lapseRepo"] = err
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.lapseRepo = entitlementRepository.NewMySQLLapseRepository(db)
		case "postgres":
			c.lapseRepo = entitlementRepository.NewPostgreSQLLapseRepository(db)
		default:
			c.initErrors["lapseRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if storedErr, exists := c.initErrors["lapseRepo"]; exists {
		return nil, storedErr
	}
	return c.lapseRepo, nil
}

// PayeeRepository returns the paid checkout row repository.
func (c *Container) PayeeRepository(ctx context.Context) (reconcilerUsecase.PayeeRepository, error) {
	c.payeeRepoInit.Do(func() {
		db, err := c.DB(ctx)
		if err != nil {
			c.initErrors["payeeRepo"] = err
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.payeeRepo = entitlementRepository.NewMySQLPayeeRepository(db)
		case "postgres":
			c.payeeRepo = entitlementRepository.NewPostgreSQLPayeeRepository(db)
		default:
			c.initErrors["payeeRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if storedErr, exists := c.initErrors["payeeRepo"]; exists {
		return nil, storedErr
	}
	return c.payeeRepo, nil
}

// CredentialRepository returns the encrypted credential repository.
func (c *Container) CredentialRepository(ctx context.Context) (entitlementUsecase.CredentialRepository, error) {
	c.credentialRepoInit.Do(func() {
		db, err := c.DB(ctx)
		if err != nil {
			c.initErrors["credentialRepo"] = err
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.credentialRepo = entitlementRepository.NewMySQLCredentialRepository(db)
		case "postgres":
			c.credentialRepo = entitlementRepository.NewPostgreSQLCredentialRepository(db)
		default:
			c.initErrors["credentialRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if storedErr, exists := c.initErrors["credentialRepo"]; exists {
		return nil, storedErr
	}
	return c.credentialRepo, nil
}

// VPNBroker returns the third-party session broker, decorated with business
// metrics.
func (c *Container) VPNBroker(ctx context.Context) (entitlementUsecase.BrokerUseCase, error) {
	c.vpnBrokerInit.Do(func() {
		broker, err := c.initVPNBroker(ctx)
		if err != nil {
			c.initErrors["vpnBroker"] = err
			return
		}
		c.vpnBroker = broker
	})
	if storedErr, exists := c.initErrors["vpnBroker"]; exists {
		return nil, storedErr
	}
	return c.vpnBroker, nil
}

func (c *Container) initVPNBroker(ctx context.Context) (entitlementUsecase.BrokerUseCase, error) {
	credentialRepo, err := c.CredentialRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential repository for broker: %w", err)
	}

	cipher, err := c.CredentialCipher(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential cipher for broker: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for broker: %w", err)
	}

	vpnClient := entitlementService.NewVPNClient(c.config.VPNAPIBaseURL, c.config.VPNAPIKey, c.Logger())

	broker := entitlementUsecase.NewBrokerUseCase(
		credentialRepo,
		vpnClient,
		cipher,
		c.Logger(),
		c.config.TestMode,
	)

	return entitlementUsecase.NewBrokerUseCaseWithMetrics(broker, businessMetrics), nil
}
