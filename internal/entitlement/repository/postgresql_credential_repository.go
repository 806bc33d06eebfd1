package repository

import (
	"context"
	"database/sql"
	"errors"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// PostgreSQLCredentialRepository implements Credential persistence for
// PostgreSQL.
type PostgreSQLCredentialRepository struct {
	db *sql.DB
}

// NewPostgreSQLCredentialRepository creates a new PostgreSQL Credential
// repository.
func NewPostgreSQLCredentialRepository(db *sql.DB) *PostgreSQLCredentialRepository {
	return &PostgreSQLCredentialRepository{db: db}
}

// Get retrieves the Credential for a client.
func (p *PostgreSQLCredentialRepository) Get(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
	query := `SELECT session_token, cid, user_id, created_at, updated_at FROM credentials WHERE cid = $1`

	var credential entitlementDomain.Credential

	err := p.db.QueryRowContext(ctx, query, cid).Scan(
		&credential.SessionToken,
		&credential.CID,
		&credential.UserID,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get credential")
	}

	return &credential, nil
}

// Insert stores a new Credential. The unique constraint on cid is the only
// concurrency control available: a violation means another invocation won
// the race, surfaced as ErrConflict so the caller re-fetches instead of
// erroring.
func (p *PostgreSQLCredentialRepository) Insert(ctx context.Context, credential *entitlementDomain.Credential) error {
	query := `INSERT INTO credentials (session_token, cid, user_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := p.db.ExecContext(
		ctx,
		query,
		credential.SessionToken,
		credential.CID,
		credential.UserID,
		credential.CreatedAt,
		credential.UpdatedAt,
	)
	if err != nil {
		if isPostgreSQLUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return apperrors.Wrap(err, "failed to insert credential")
	}
	return nil
}

// Delete removes a client's Credential. Deleting an absent row is not an
// error; revoke flows must be idempotent under redelivery.
func (p *PostgreSQLCredentialRepository) Delete(ctx context.Context, cid string) error {
	query := `DELETE FROM credentials WHERE cid = $1`

	if _, err := p.db.ExecContext(ctx, query, cid); err != nil {
		return apperrors.Wrap(err, "failed to delete credential")
	}
	return nil
}
