package repository

import (
	"context"
	"database/sql"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// MySQLLapseRepository persists quarantine rows for MySQL.
type MySQLLapseRepository struct {
	db *sql.DB
}

// NewMySQLLapseRepository creates a new MySQL Lapse repository.
func NewMySQLLapseRepository(db *sql.DB) *MySQLLapseRepository {
	return &MySQLLapseRepository{db: db}
}

// Create inserts a Lapse row.
func (m *MySQLLapseRepository) Create(ctx context.Context, lapse *entitlementDomain.Lapse) error {
	query := `INSERT INTO lapses (id, source, reference, reason, payload, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := m.db.ExecContext(
		ctx,
		query,
		lapse.ID,
		lapse.Source,
		lapse.Reference,
		lapse.Reason,
		nullableBytes(lapse.Payload),
		lapse.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create lapse")
	}
	return nil
}

// MySQLPayeeRepository persists paid checkout rows for MySQL.
type MySQLPayeeRepository struct {
	db *sql.DB
}

// NewMySQLPayeeRepository creates a new MySQL Payee repository.
func NewMySQLPayeeRepository(db *sql.DB) *MySQLPayeeRepository {
	return &MySQLPayeeRepository{db: db}
}

// Create inserts a Payee row.
func (m *MySQLPayeeRepository) Create(ctx context.Context, payee *entitlementDomain.Payee) error {
	query := `INSERT INTO payees (id, session_id, cid, status, amount_total, currency, payload, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := m.db.ExecContext(
		ctx,
		query,
		payee.ID,
		payee.SessionID,
		payee.CID,
		payee.Status,
		payee.AmountTotal,
		payee.Currency,
		nullableBytes(payee.Payload),
		payee.CreatedAt,
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, "payee already recorded for session")
		}
		return apperrors.Wrap(err, "failed to create payee")
	}
	return nil
}
