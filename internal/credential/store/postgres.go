package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vcwallet/internal/credential/models"
	"vcwallet/internal/platform/postgres"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
	"vcwallet/pkg/platform/tx"
)

// PostgresCredentialStore persists credentials in PostgreSQL. Writes join a
// transaction carried in the context.
type PostgresCredentialStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

const credentialColumns = `credential_identifier, holder_did, issuer_did, issuer_url, issuer_friendly_name,
	credential, format, logo_url, background_color, issuance_date`

func (s *PostgresCredentialStore) Create(ctx context.Context, r *models.Record) error {
	query := `INSERT INTO verifiable_credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.CredentialIdentifier), r.HolderDID, r.IssuerDID, r.IssuerURL, r.IssuerFriendlyName,
		r.Credential, r.Format, r.LogoURL, r.BackgroundColor, r.IssuanceDate)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("credential %s: %w", r.CredentialIdentifier, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresCredentialStore) ListByHolder(ctx context.Context, holderDID string) ([]models.Record, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM verifiable_credentials WHERE holder_did = $1 ORDER BY issuance_date`,
		holderDID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		r, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresCredentialStore) FindByIdentifier(ctx context.Context, holderDID string, id domain.CredentialID) (*models.Record, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM verifiable_credentials WHERE holder_did = $1 AND credential_identifier = $2`,
		holderDID, uuid.UUID(id))
	r, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return r, err
}

func (s *PostgresCredentialStore) Delete(ctx context.Context, holderDID string, id domain.CredentialID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM verifiable_credentials WHERE holder_did = $1 AND credential_identifier = $2`,
		holderDID, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*models.Record, error) {
	var (
		r  models.Record
		id uuid.UUID
	)
	err := row.Scan(&id, &r.HolderDID, &r.IssuerDID, &r.IssuerURL, &r.IssuerFriendlyName,
		&r.Credential, &r.Format, &r.LogoURL, &r.BackgroundColor, &r.IssuanceDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	r.CredentialIdentifier = domain.CredentialID(id)
	return &r, nil
}
