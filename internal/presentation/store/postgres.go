package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vcwallet/internal/platform/postgres"
	"vcwallet/internal/presentation/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
	"vcwallet/pkg/platform/tx"
)

// PostgresPresentationStore persists presentations in PostgreSQL.
type PostgresPresentationStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed presentation store.
func NewPostgres(db *sql.DB) *PostgresPresentationStore {
	return &PostgresPresentationStore{db: db}
}

const presentationColumns = `presentation_identifier, holder_did, presentation, format, audience_did,
	included_credentials, issuance_date`

func (s *PostgresPresentationStore) Create(ctx context.Context, r *models.Record) error {
	query := `INSERT INTO verifiable_presentations (` + presentationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.PresentationIdentifier), r.HolderDID, r.Presentation, r.Format, r.AudienceDID,
		pq.Array(r.IncludedCredentials), r.IssuanceDate)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("presentation %s: %w", r.PresentationIdentifier, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create presentation: %w", err)
	}
	return nil
}

func (s *PostgresPresentationStore) ListByHolder(ctx context.Context, holderDID string) ([]models.Record, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+presentationColumns+` FROM verifiable_presentations WHERE holder_did = $1 ORDER BY issuance_date`,
		holderDID)
	if err != nil {
		return nil, fmt.Errorf("list presentations: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		r, err := scanPresentation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresPresentationStore) FindByIdentifier(ctx context.Context, holderDID string, id domain.PresentationID) (*models.Record, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+presentationColumns+` FROM verifiable_presentations WHERE holder_did = $1 AND presentation_identifier = $2`,
		holderDID, uuid.UUID(id))
	r, err := scanPresentation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("presentation %s: %w", id, sentinel.ErrNotFound)
	}
	return r, err
}

// DeleteByCredentialIdentifier removes every presentation of holderDID that
// disclosed credentialID. It runs in one transaction, joining the caller's
// transaction when the context carries one.
func (s *PostgresPresentationStore) DeleteByCredentialIdentifier(ctx context.Context, holderDID, credentialID string) (int, error) {
	var removed int64
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
			`DELETE FROM verifiable_presentations WHERE holder_did = $1 AND $2 = ANY(included_credentials)`,
			holderDID, credentialID)
		if err != nil {
			return fmt.Errorf("delete presentations by credential: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

func (s *PostgresPresentationStore) DeleteAllByHolder(ctx context.Context, holderDID string) (int, error) {
	var removed int64
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
			`DELETE FROM verifiable_presentations WHERE holder_did = $1`, holderDID)
		if err != nil {
			return fmt.Errorf("delete presentations by holder: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPresentation(row scanner) (*models.Record, error) {
	var (
		r        models.Record
		id       uuid.UUID
		included pq.StringArray
	)
	err := row.Scan(&id, &r.HolderDID, &r.Presentation, &r.Format, &r.AudienceDID, &included, &r.IssuanceDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan presentation: %w", err)
	}
	r.PresentationIdentifier = domain.PresentationID(id)
	r.IncludedCredentials = included
	return &r, nil
}
