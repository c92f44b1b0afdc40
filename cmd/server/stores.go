package main

import (
	"context"
	"database/sql"

	credmodels "vcwallet/internal/credential/models"
	credstore "vcwallet/internal/credential/store"
	lpmodels "vcwallet/internal/legalperson/models"
	lpstore "vcwallet/internal/legalperson/store"
	"vcwallet/internal/platform/config"
	"vcwallet/internal/platform/postgres"
	presmodels "vcwallet/internal/presentation/models"
	presstore "vcwallet/internal/presentation/store"
	usermodels "vcwallet/internal/user/models"
	userstore "vcwallet/internal/user/store"
	"vcwallet/pkg/domain"
)

type userStore interface {
	Save(ctx context.Context, user *usermodels.User) error
	FindByIdentity(ctx context.Context, identity domain.Identity) (*usermodels.User, error)
	UpdateKeys(ctx context.Context, identity domain.Identity, did string, keys []byte) error
}

type credentialStore interface {
	Create(ctx context.Context, record *credmodels.Record) error
	ListByHolder(ctx context.Context, holderDID string) ([]credmodels.Record, error)
	FindByIdentifier(ctx context.Context, holderDID string, id domain.CredentialID) (*credmodels.Record, error)
	Delete(ctx context.Context, holderDID string, id domain.CredentialID) error
}

type presentationStore interface {
	ListByHolder(ctx context.Context, holderDID string) ([]presmodels.Record, error)
	FindByIdentifier(ctx context.Context, holderDID string, id domain.PresentationID) (*presmodels.Record, error)
	DeleteByCredentialIdentifier(ctx context.Context, holderDID, credentialID string) (int, error)
	DeleteAllByHolder(ctx context.Context, holderDID string) (int, error)
}

type legalPersonStore interface {
	Create(ctx context.Context, lp *lpmodels.LegalPerson) error
	ByDID(ctx context.Context, did string) (*lpmodels.LegalPerson, error)
	ByURL(ctx context.Context, issuerURL string) (*lpmodels.LegalPerson, error)
	List(ctx context.Context) ([]lpmodels.LegalPerson, error)
}

type transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type stores struct {
	db            *sql.DB
	users         userStore
	credentials   credentialStore
	presentations presentationStore
	legalPersons  legalPersonStore
	tx            transactor
}

// openStores selects PostgreSQL when a database URL is configured and
// in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	if cfg.URL == "" {
		return &stores{
			users:         userstore.New(),
			credentials:   credstore.New(),
			presentations: presstore.New(),
			legalPersons:  lpstore.New(),
			tx:            inlineTx{},
		}, nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &stores{
		db:            db,
		users:         userstore.NewPostgres(db),
		credentials:   credstore.NewPostgres(db),
		presentations: presstore.NewPostgres(db),
		legalPersons:  lpstore.NewPostgres(db),
		tx:            newPostgresTx(db),
	}, nil
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
