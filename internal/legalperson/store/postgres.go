package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vcwallet/internal/legalperson/models"
	"vcwallet/internal/platform/postgres"
	"vcwallet/pkg/platform/sentinel"
)

// PostgresLegalPersonStore persists the issuer registry in PostgreSQL.
type PostgresLegalPersonStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry.
func NewPostgres(db *sql.DB) *PostgresLegalPersonStore {
	return &PostgresLegalPersonStore{db: db}
}

const legalPersonColumns = `id, did, url, friendly_name, client_id, client_secret`

func (s *PostgresLegalPersonStore) Create(ctx context.Context, lp *models.LegalPerson) error {
	query := `
		INSERT INTO legal_persons (did, url, friendly_name, client_id, client_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		lp.DID, strings.TrimSuffix(lp.URL, "/"), lp.FriendlyName, lp.ClientID, lp.ClientSecret).Scan(&lp.ID)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("legal person %s: %w", lp.DID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create legal person: %w", err)
	}
	return nil
}

func (s *PostgresLegalPersonStore) ByDID(ctx context.Context, did string) (*models.LegalPerson, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+legalPersonColumns+` FROM legal_persons WHERE did = $1`, did)
	return scanLegalPerson(row, did)
}

func (s *PostgresLegalPersonStore) ByURL(ctx context.Context, issuerURL string) (*models.LegalPerson, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+legalPersonColumns+` FROM legal_persons WHERE url = $1`,
		strings.TrimSuffix(issuerURL, "/"))
	return scanLegalPerson(row, issuerURL)
}

func (s *PostgresLegalPersonStore) List(ctx context.Context) ([]models.LegalPerson, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+legalPersonColumns+` FROM legal_persons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list legal persons: %w", err)
	}
	defer rows.Close()

	var out []models.LegalPerson
	for rows.Next() {
		var lp models.LegalPerson
		if err := rows.Scan(&lp.ID, &lp.DID, &lp.URL, &lp.FriendlyName, &lp.ClientID, &lp.ClientSecret); err != nil {
			return nil, fmt.Errorf("scan legal person: %w", err)
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

func scanLegalPerson(row *sql.Row, key string) (*models.LegalPerson, error) {
	var lp models.LegalPerson
	err := row.Scan(&lp.ID, &lp.DID, &lp.URL, &lp.FriendlyName, &lp.ClientID, &lp.ClientSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("legal person %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find legal person: %w", err)
	}
	return &lp, nil
}
