package repository

import (
	"context"
	"database/sql"
	"errors"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// PostgreSQLSubscriptionRepository implements Subscription persistence for
// PostgreSQL.
type PostgreSQLSubscriptionRepository struct {
	db *sql.DB
}

// NewPostgreSQLSubscriptionRepository creates a new PostgreSQL Subscription
// repository.
func NewPostgreSQLSubscriptionRepository(db *sql.DB) *PostgreSQLSubscriptionRepository {
	return &PostgreSQLSubscriptionRepository{db: db}
}

// Upsert inserts or replaces the Subscription row keyed by token. Meta is
// last write wins; providers redeliver and reorder, so the newest delivery's
// provider object always overwrites.
func (p *PostgreSQLSubscriptionRepository) Upsert(ctx context.Context, sub *entitlementDomain.Subscription) error {
	query := `INSERT INTO subscriptions (token, cid, linked_token, meta, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (token) DO UPDATE
			  SET cid = EXCLUDED.cid,
				  linked_token = EXCLUDED.linked_token,
				  meta = EXCLUDED.meta,
				  updated_at = EXCLUDED.updated_at`

	_, err := p.db.ExecContext(
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
func (p *PostgreSQLSubscriptionRepository) Get(ctx context.Context, token string) (*entitlementDomain.Subscription, error) {
	query := `SELECT token, cid, linked_token, meta, updated_at FROM subscriptions WHERE token = $1`
	return scanSubscription(p.db.QueryRowContext(ctx, query, token))
}

// GetFirstLinkedToken retrieves the oldest Subscription whose linked_token
// points at the given token. A hit means the token has been superseded by an
// upgrade or downgrade and must never be granted a live entitlement again.
func (p *PostgreSQLSubscriptionRepository) GetFirstLinkedToken(ctx context.Context, token string) (*entitlementDomain.Subscription, error) {
	query := `SELECT token, cid, linked_token, meta, updated_at FROM subscriptions
			  WHERE linked_token = $1
			  ORDER BY updated_at ASC
			  LIMIT 1`
	return scanSubscription(p.db.QueryRowContext(ctx, query, token))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*entitlementDomain.Subscription, error) {
	var (
		sub         entitlementDomain.Subscription
		linkedToken sql.NullString
		meta        []byte
	)

	err := row.Scan(&sub.Token, &sub.CID, &linkedToken, &meta, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get subscription")
	}

	sub.LinkedToken = linkedToken.String
	sub.Meta = meta
	return &sub, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
