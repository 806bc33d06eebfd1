package repository

import (
	"context"
	"database/sql"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// MySQLSubscriptionRepository implements Subscription persistence for MySQL.
type MySQLSubscriptionRepository struct {
	db *sql.DB
}

// NewMySQLSubscriptionRepository creates a new MySQL Subscription repository.
func NewMySQLSubscriptionRepository(db *sql.DB) *MySQLSubscriptionRepository {
	return &MySQLSubscriptionRepository{db: db}
}

// Upsert inserts or replaces the Subscription row keyed by token, last write
// wins on meta.
func (m *MySQLSubscriptionRepository) Upsert(ctx context.Context, sub *entitlementDomain.Subscription) error {
	query := `INSERT INTO subscriptions (token, cid, linked_token, meta, updated_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  cid = VALUES(cid),
			  linked_token = VALUES(linked_token),
			  meta = VALUES(meta),
			  updated_at = VALUES(updated_at)`

	_, err := m.db.ExecContext(
		ctx,
		query,
		sub.Token,
		sub.CID,
		nullableString(sub.LinkedToken),
		nullableBytes(sub.Meta),
		sub.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert subscription")
	}
	return nil
}

// Get retrieves a Subscription by token.
func (m *MySQLSubscriptionRepository) Get(ctx context.Context, token string) (*entitlementDomain.Subscription, error) {
	query := `SELECT token, cid, linked_token, meta, updated_at FROM subscriptions WHERE token = ?`
	return scanSubscription(m.db.QueryRowContext(ctx, query, token))
}

// GetFirstLinkedToken retrieves the oldest Subscription whose linked_token
// points at the given token.
func (m *MySQLSubscriptionRepository) GetFirstLinkedToken(ctx context.Context, token string) (*entitlementDomain.Subscription, error) {
	query := `SELECT token, cid, linked_token, meta, updated_at FROM subscriptions
			  WHERE linked_token = ?
			  ORDER BY updated_at ASC
			  LIMIT 1`
	return scanSubscription(m.db.QueryRowContext(ctx, query, token))
}
