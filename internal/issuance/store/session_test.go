package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vcwallet/internal/issuance/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemorySessionStore
	ctx   context.Context
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func newSession(identity domain.Identity) models.Session {
	return models.Session{ID: uuid.New(), UserIdentity: identity, GrantType: models.GrantAuthorizationCode}
}

func (s *SessionStoreSuite) TestPutReturnsPrevious() {
	first := newSession("holder")
	_, replaced := s.store.Put(s.ctx, first)
	s.False(replaced)

	second := newSession("holder")
	previous, replaced := s.store.Put(s.ctx, second)
	s.True(replaced)
	s.Equal(first.ID, previous.ID)

	current, err := s.store.Get(s.ctx, "holder")
	s.Require().NoError(err)
	s.Equal(second.ID, current.ID)
}

func (s *SessionStoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestRecordCodeOnce() {
	s.store.Put(s.ctx, newSession("holder"))

	session, recorded, err := s.store.RecordCode(s.ctx, "holder", "code-1")
	s.Require().NoError(err)
	s.True(recorded)
	s.Equal("code-1", session.Code)

	session, recorded, err = s.store.RecordCode(s.ctx, "holder", "code-2")
	s.Require().NoError(err)
	s.False(recorded)
	s.Equal("code-1", session.Code)

	_, _, err = s.store.RecordCode(s.ctx, "nobody", "code")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestRecordCodeConcurrentCallbacks() {
	s.store.Put(s.ctx, newSession("holder"))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.store.RecordCode(s.ctx, "holder", "same-code")
			s.NoError(err)
			if ok {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, recorded)
}

func (s *SessionStoreSuite) TestUpdate() {
	s.store.Put(s.ctx, newSession("holder"))

	s.Run("applies mutation", func() {
		updated, err := s.store.Update(s.ctx, "holder", func(sess *models.Session) error {
			sess.UserPin = "1234"
			return nil
		})
		s.Require().NoError(err)
		s.Equal("1234", updated.UserPin)
	})

	s.Run("failed mutation is discarded", func() {
		_, err := s.store.Update(s.ctx, "holder", func(sess *models.Session) error {
			sess.UserPin = "9999"
			return errors.New("rejected")
		})
		s.Error(err)
		current, err := s.store.Get(s.ctx, "holder")
		s.Require().NoError(err)
		s.Equal("1234", current.UserPin)
	})
}

func (s *SessionStoreSuite) TestDeleteIfCurrent() {
	old := newSession("holder")
	s.store.Put(s.ctx, old)
	newer := newSession("holder")
	s.store.Put(s.ctx, newer)

	s.False(s.store.DeleteIfCurrent(s.ctx, "holder", old.ID), "stale flow must not delete newer session")
	s.Equal(1, s.store.Len())

	s.True(s.store.DeleteIfCurrent(s.ctx, "holder", newer.ID))
	s.Equal(0, s.store.Len())
}
