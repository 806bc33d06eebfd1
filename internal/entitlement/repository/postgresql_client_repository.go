// Package repository implements entitlement persistence over a relational
// store. Every operation is a single statement; the credential insert's
// unique constraint on cid is the subsystem's only concurrency-control
// primitive, so no multi-statement transactions are used.
//
// PostgreSQL and MySQL implementations are provided; they differ only in
// placeholder style and conflict syntax.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// PostgreSQLClientRepository implements Client persistence for PostgreSQL.
type PostgreSQLClientRepository struct {
	db *sql.DB
}

// NewPostgreSQLClientRepository creates a new PostgreSQL Client repository.
func NewPostgreSQLClientRepository(db *sql.DB) *PostgreSQLClientRepository {
	return &PostgreSQLClientRepository{db: db}
}

// InsertIfAbsent inserts a Client unless one with the same cid already
// exists. Returns true when a row was inserted, false when the cid was
// already present. Idempotent by construction.
func (p *PostgreSQLClientRepository) InsertIfAbsent(ctx context.Context, client *entitlementDomain.Client) (bool, error) {
	query := `INSERT INTO clients (cid, kind, meta, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (cid) DO NOTHING`

	result, err := p.db.ExecContext(
		ctx,
		query,
		client.CID,
		client.Kind,
		client.Meta,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to insert client")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read rows affected")
	}
	return rows > 0, nil
}

// Get retrieves a Client by cid.
func (p *PostgreSQLClientRepository) Get(ctx context.Context, cid string) (*entitlementDomain.Client, error) {
	query := `SELECT cid, kind, meta, created_at, updated_at FROM clients WHERE cid = $1`

	var client entitlementDomain.Client

	err := p.db.QueryRowContext(ctx, query, cid).Scan(
		&client.CID,
		&client.Kind,
		&client.Meta,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get client")
	}

	return &client, nil
}

// isPostgreSQLUniqueViolation checks if the error is a PostgreSQL unique
// constraint violation without depending on driver-specific error types.
func isPostgreSQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// PostgreSQL: "duplicate key value violates unique constraint" or "pq: duplicate key"
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
