package repository

import (
	"context"
	"database/sql"
	"errors"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// MySQLCredentialRepository implements Credential persistence for MySQL.
type MySQLCredentialRepository struct {
	db *sql.DB
}

// NewMySQLCredentialRepository creates a new MySQL Credential repository.
func NewMySQLCredentialRepository(db *sql.DB) *MySQLCredentialRepository {
	return &MySQLCredentialRepository{db: db}
}

// Get retrieves the Credential for a client.
func (m *MySQLCredentialRepository) Get(ctx context.Context, cid string) (*entitlementDomain.Credential, error) {
	query := `SELECT session_token, cid, user_id, created_at, updated_at FROM credentials WHERE cid = ?`

	var credential entitlementDomain.Credential

	err := m.db.QueryRowContext(ctx, query, cid).Scan(
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

// Insert stores a new Credential. A unique violation on cid means another
// invocation won the race, surfaced as ErrConflict.
func (m *MySQLCredentialRepository) Insert(ctx context.Context, credential *entitlementDomain.Credential) error {
	query := `INSERT INTO credentials (session_token, cid, user_id, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := m.db.ExecContext(
		ctx,
		query,
		credential.SessionToken,
		credential.CID,
		credential.UserID,
		credential.CreatedAt,
		credential.UpdatedAt,
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return apperrors.Wrap(err, "failed to insert credential")
	}
	return nil
}

// Delete removes a client's Credential. Deleting an absent row is not an
// error.
func (m *MySQLCredentialRepository) Delete(ctx context.Context, cid string) error {
	query := `DELETE FROM credentials WHERE cid = ?`

	if _, err := m.db.ExecContext(ctx, query, cid); err != nil {
		return apperrors.Wrap(err, "failed to delete credential")
	}
	return nil
}
