package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vcwallet/internal/credential/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
)

// InMemoryCredentialStore keeps credentials in process memory.
type InMemoryCredentialStore struct {
	mu          sync.RWMutex
	credentials map[domain.CredentialID]models.Record
}

// New returns an empty in-memory store.
func New() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{credentials: make(map[domain.CredentialID]models.Record)}
}

func (s *InMemoryCredentialStore) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[record.CredentialIdentifier]; ok {
		return fmt.Errorf("credential %s: %w", record.CredentialIdentifier, sentinel.ErrConflict)
	}
	s.credentials[record.CredentialIdentifier] = *record
	return nil
}

func (s *InMemoryCredentialStore) ListByHolder(_ context.Context, holderDID string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, r := range s.credentials {
		if r.HolderDID == holderDID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuanceDate.Before(out[j].IssuanceDate) })
	return out, nil
}

func (s *InMemoryCredentialStore) FindByIdentifier(_ context.Context, holderDID string, id domain.CredentialID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.credentials[id]
	if !ok || r.HolderDID != holderDID {
		return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return &r, nil
}

func (s *InMemoryCredentialStore) Delete(_ context.Context, holderDID string, id domain.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.credentials[id]
	if !ok || r.HolderDID != holderDID {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.credentials, id)
	return nil
}
