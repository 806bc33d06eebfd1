package usecase

import (
	"context"
	"time"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	"github.com/relaypass/relaypass/internal/metrics"
)

// brokerUseCaseWithMetrics decorates BrokerUseCase with metrics instrumentation.
type brokerUseCaseWithMetrics struct {
	next    BrokerUseCase
	metrics metrics.BusinessMetrics
}

// NewBrokerUseCaseWithMetrics wraps a BrokerUseCase with metrics recording.
func NewBrokerUseCaseWithMetrics(useCase BrokerUseCase, m metrics.BusinessMetrics) BrokerUseCase {
	return &brokerUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// GetOrCreateEntitlement records metrics for the fetch-or-create flow.
func (b *brokerUseCaseWithMetrics) GetOrCreateEntitlement(
	ctx context.Context,
	cid string,
	intent *entitlementDomain.Intent,
	forceRenew bool,
) (*entitlementDomain.Entitlement, error) {
	start := time.Now()
	entitlement, err := b.next.GetOrCreateEntitlement(ctx, cid, intent, forceRenew)

	status := "success"
	if err != nil {
		status = "error"
	}

	b.metrics.RecordOperation(ctx, "entitlement", "broker_get_or_create", status)
	b.metrics.RecordDuration(ctx, "entitlement", "broker_get_or_create", time.Since(start), status)

	return entitlement, err
}

// GetEntitlement records metrics for the read path.
func (b *brokerUseCaseWithMetrics) GetEntitlement(ctx context.Context, cid string) (*entitlementDomain.Entitlement, error) {
	start := time.Now()
	entitlement, err := b.next.GetEntitlement(ctx, cid)

	status := "success"
	if err != nil {
		status = "error"
	}

	b.metrics.RecordOperation(ctx, "entitlement", "broker_get", status)
	b.metrics.RecordDuration(ctx, "entitlement", "broker_get", time.Since(start), status)

	return entitlement, err
}

// DeleteEntitlement records metrics for entitlement deletion.
func (b *brokerUseCaseWithMetrics) DeleteEntitlement(ctx context.Context, cid string) error {
	start := time.Now()
	err := b.next.DeleteEntitlement(ctx, cid)

	status := "success"
	if err != nil {
		status = "error"
	}

	b.metrics.RecordOperation(ctx, "entitlement", "broker_delete", status)
	b.metrics.RecordDuration(ctx, "entitlement", "broker_delete", time.Since(start), status)

	return err
}
