//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcwallet/internal/credential/models"
	"vcwallet/internal/credential/store"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
	"vcwallet/pkg/platform/tx"
	"vcwallet/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresCredentialStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "verifiable_credentials"))
}

func newRecord(holder string, issued time.Time) *models.Record {
	return &models.Record{
		CredentialIdentifier: domain.NewCredentialID(),
		HolderDID:            holder,
		IssuerDID:            "did:ebsi:issuer",
		IssuerURL:            "https://issuer.example",
		IssuerFriendlyName:   "Issuer",
		Credential:           "eyJhbGciOiJIUzI1NiJ9.e30.sig",
		Format:               "jwt_vc",
		LogoURL:              "https://issuer.example/logo.png",
		BackgroundColor:      "#112233",
		IssuanceDate:         issued.UTC().Truncate(time.Second),
	}
}

func (s *PostgresStoreSuite) TestCreateAndRead() {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := newRecord("did:key:holder", base.Add(time.Hour))
	earlier := newRecord("did:key:holder", base)
	other := newRecord("did:key:other", base)
	for _, r := range []*models.Record{later, earlier, other} {
		s.Require().NoError(s.store.Create(ctx, r))
	}

	list, err := s.store.ListByHolder(ctx, "did:key:holder")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(earlier.CredentialIdentifier, list[0].CredentialIdentifier)
	s.Equal(later.CredentialIdentifier, list[1].CredentialIdentifier)

	got, err := s.store.FindByIdentifier(ctx, "did:key:holder", later.CredentialIdentifier)
	s.Require().NoError(err)
	s.Equal(later.BackgroundColor, got.BackgroundColor)
	s.True(later.IssuanceDate.Equal(got.IssuanceDate))

	_, err = s.store.FindByIdentifier(ctx, "did:key:holder", other.CredentialIdentifier)
	s.True(errors.Is(err, sentinel.ErrNotFound), "credentials are scoped to their holder")
}

func (s *PostgresStoreSuite) TestDuplicateIdentifierConflicts() {
	ctx := context.Background()
	r := newRecord("did:key:holder", time.Now())
	s.Require().NoError(s.store.Create(ctx, r))

	err := s.store.Create(ctx, r)
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	r := newRecord("did:key:holder", time.Now())
	s.Require().NoError(s.store.Create(ctx, r))

	s.True(errors.Is(s.store.Delete(ctx, "did:key:other", r.CredentialIdentifier), sentinel.ErrNotFound))
	s.Require().NoError(s.store.Delete(ctx, "did:key:holder", r.CredentialIdentifier))
	s.True(errors.Is(s.store.Delete(ctx, "did:key:holder", r.CredentialIdentifier), sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestWritesRollBackWithTransaction() {
	ctx := context.Background()
	r := newRecord("did:key:holder", time.Now())

	err := tx.Run(ctx, s.postgres.DB, func(ctx context.Context) error {
		if err := s.store.Create(ctx, r); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Require().Error(err)

	list, err := s.store.ListByHolder(ctx, "did:key:holder")
	s.Require().NoError(err)
	s.Empty(list)
}
