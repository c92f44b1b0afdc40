package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"vcwallet/internal/issuance/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
)

// InMemorySessionStore holds at most one issuance session per identity.
// Every method is atomic with respect to the others; sessions go in and
// come out as copies.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[domain.Identity]models.Session
}

// New returns an empty session store.
func New() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[domain.Identity]models.Session)}
}

// Put stores session for its identity and returns the session it replaced.
func (s *InMemorySessionStore) Put(_ context.Context, session models.Session) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, replaced := s.sessions[session.UserIdentity]
	s.sessions[session.UserIdentity] = session.Clone()
	return previous, replaced
}

// Get returns the current session of identity.
func (s *InMemorySessionStore) Get(_ context.Context, identity domain.Identity) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[identity]
	if !ok {
		return models.Session{}, fmt.Errorf("issuance session %s: %w", identity, sentinel.ErrNotFound)
	}
	return session.Clone(), nil
}

// Update applies fn to a copy of the current session and stores the result
// unless fn fails.
func (s *InMemorySessionStore) Update(_ context.Context, identity domain.Identity, fn func(*models.Session) error) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[identity]
	if !ok {
		return models.Session{}, fmt.Errorf("issuance session %s: %w", identity, sentinel.ErrNotFound)
	}
	updated := session.Clone()
	if err := fn(&updated); err != nil {
		return models.Session{}, err
	}
	s.sessions[identity] = updated
	return updated.Clone(), nil
}

// RecordCode sets the authorization code unless one is already recorded.
// recorded is false when the session already had a code.
func (s *InMemorySessionStore) RecordCode(_ context.Context, identity domain.Identity, code string) (session models.Session, recorded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[identity]
	if !ok {
		return models.Session{}, false, fmt.Errorf("issuance session %s: %w", identity, sentinel.ErrNotFound)
	}
	if current.Code != "" {
		return current.Clone(), false, nil
	}
	current.Code = code
	s.sessions[identity] = current
	return current.Clone(), true, nil
}

// DeleteIfCurrent removes the session of identity only if it is still the
// session with sessionID, so a flow never deletes a newer flow's session.
func (s *InMemorySessionStore) DeleteIfCurrent(_ context.Context, identity domain.Identity, sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[identity]
	if !ok || current.ID != sessionID {
		return false
	}
	delete(s.sessions, identity)
	return true
}

// Len returns the number of live sessions.
func (s *InMemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
