package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"vcwallet/internal/user/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
)

// InMemoryUserStore keeps holders in process memory.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[domain.Identity]*models.User
}

// New returns an empty in-memory store.
func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[domain.Identity]*models.User)}
}

func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Identity] = clone(user)
	return nil
}

func (s *InMemoryUserStore) FindByIdentity(_ context.Context, identity domain.Identity) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[identity]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", identity, sentinel.ErrNotFound)
	}
	return clone(user), nil
}

func (s *InMemoryUserStore) UpdateKeys(_ context.Context, identity domain.Identity, did string, keys []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[identity]
	if !ok {
		return fmt.Errorf("user %s: %w", identity, sentinel.ErrNotFound)
	}
	user.DID = did
	user.Keys = slices.Clone(keys)
	return nil
}

func clone(u *models.User) *models.User {
	c := *u
	c.Keys = slices.Clone(u.Keys)
	c.DeviceTokens = slices.Clone(u.DeviceTokens)
	return &c
}
