package repository

import (
	"context"
	"database/sql"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// PostgreSQLLapseRepository persists quarantine rows for PostgreSQL.
type PostgreSQLLapseRepository struct {
	db *sql.DB
}

// NewPostgreSQLLapseRepository creates a new PostgreSQL Lapse repository.
func NewPostgreSQLLapseRepository(db *sql.DB) *PostgreSQLLapseRepository {
	return &PostgreSQLLapseRepository{db: db}
}

// Create inserts a Lapse row.
func (p *PostgreSQLLapseRepository) Create(ctx context.Context, lapse *entitlementDomain.Lapse) error {
	query := `INSERT INTO lapses (id, source, reference, reason, payload, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.db.ExecContext(
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

// PostgreSQLPayeeRepository persists paid checkout rows for PostgreSQL.
type PostgreSQLPayeeRepository struct {
	db *sql.DB
}

// NewPostgreSQLPayeeRepository creates a new PostgreSQL Payee repository.
func NewPostgreSQLPayeeRepository(db *sql.DB) *PostgreSQLPayeeRepository {
	return &PostgreSQLPayeeRepository{db: db}
}

// Create inserts a Payee row.
func (p *PostgreSQLPayeeRepository) Create(ctx context.Context, payee *entitlementDomain.Payee) error {
	query := `INSERT INTO payees (id, session_id, cid, status, amount_total, currency, payload, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := p.db.ExecContext(
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
		if isPostgreSQLUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, "payee already recorded for session")
		}
		return apperrors.Wrap(err, "failed to create payee")
	}
	return nil
}
