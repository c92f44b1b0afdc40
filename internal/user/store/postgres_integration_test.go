//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"vcwallet/internal/user/models"
	"vcwallet/internal/user/store"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
	"vcwallet/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresUserStore
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
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "users"))
}

func (s *PostgresStoreSuite) TestSaveAndUpdateKeys() {
	ctx := context.Background()
	holder := domain.Identity("holder-1")
	s.Require().NoError(s.store.Save(ctx, &models.User{Identity: holder, DeviceTokens: []string{"t1", "t2"}}))

	u, err := s.store.FindByIdentity(ctx, holder)
	s.Require().NoError(err)
	s.False(u.HasKeys())
	s.Equal([]string{"t1", "t2"}, u.DeviceTokens)

	keys := []byte(`{"keys":[]}`)
	s.Require().NoError(s.store.UpdateKeys(ctx, holder, "did:key:z6Mk", keys))

	u, err = s.store.FindByIdentity(ctx, holder)
	s.Require().NoError(err)
	s.Equal("did:key:z6Mk", u.DID)
	s.JSONEq(string(keys), string(u.Keys))
}

func (s *PostgresStoreSuite) TestUnknownUser() {
	ctx := context.Background()
	_, err := s.store.FindByIdentity(ctx, "nobody")
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.store.UpdateKeys(ctx, "nobody", "did:key:x", nil), sentinel.ErrNotFound))
}
