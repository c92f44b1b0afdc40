package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vcwallet/internal/user/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
	"vcwallet/pkg/platform/tx"
)

// PostgresUserStore persists holders in PostgreSQL.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Save(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (identity, did, keys, device_tokens)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE SET
			did = EXCLUDED.did,
			keys = EXCLUDED.keys,
			device_tokens = EXCLUDED.device_tokens
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		user.Identity.String(), user.DID, nullableJSON(user.Keys), pq.Array(user.DeviceTokens))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByIdentity(ctx context.Context, identity domain.Identity) (*models.User, error) {
	query := `SELECT identity, did, keys, device_tokens, created_at FROM users WHERE identity = $1`
	var (
		user   models.User
		rawID  string
		keys   []byte
		tokens pq.StringArray
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, identity.String()).
		Scan(&rawID, &user.DID, &keys, &tokens, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", identity, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.Identity = domain.Identity(rawID)
	user.Keys = keys
	user.DeviceTokens = tokens
	return &user, nil
}

func (s *PostgresUserStore) UpdateKeys(ctx context.Context, identity domain.Identity, did string, keys []byte) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET did = $2, keys = $3 WHERE identity = $1`,
		identity.String(), did, nullableJSON(keys))
	if err != nil {
		return fmt.Errorf("update user keys: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", identity, sentinel.ErrNotFound)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
