package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// MySQLClientRepository implements Client persistence for MySQL.
type MySQLClientRepository struct {
	db *sql.DB
}

// NewMySQLClientRepository creates a new MySQL Client repository.
func NewMySQLClientRepository(db *sql.DB) *MySQLClientRepository {
	return &MySQLClientRepository{db: db}
}

// InsertIfAbsent inserts a Client unless one with the same cid already
// exists. Returns true when a row was inserted.
func (m *MySQLClientRepository) InsertIfAbsent(ctx context.Context, client *entitlementDomain.Client) (bool, error) {
	query := `INSERT IGNORE INTO clients (cid, kind, meta, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?)`

	result, err := m.db.ExecContext(
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
func (m *MySQLClientRepository) Get(ctx context.Context, cid string) (*entitlementDomain.Client, error) {
	query := `SELECT cid, kind, meta, created_at, updated_at FROM clients WHERE cid = ?`

	var client entitlementDomain.Client

	err := m.db.QueryRowContext(ctx, query, cid).Scan(
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

// isMySQLUniqueViolation checks if the error is a MySQL unique constraint
// violation without depending on driver-specific error types.
func isMySQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// MySQL: "Error 1062: Duplicate entry"
	return strings.Contains(errMsg, "duplicate entry") || strings.Contains(errMsg, "1062")
}
