package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"vcwallet/internal/presentation/models"
	"vcwallet/pkg/domain"
	"vcwallet/pkg/platform/sentinel"
)

// InMemoryPresentationStore keeps presentations in process memory.
type InMemoryPresentationStore struct {
	mu            sync.RWMutex
	presentations map[domain.PresentationID]models.Record
}

// New returns an empty in-memory store.
func New() *InMemoryPresentationStore {
	return &InMemoryPresentationStore{presentations: make(map[domain.PresentationID]models.Record)}
}

func (s *InMemoryPresentationStore) Create(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presentations[r.PresentationIdentifier]; ok {
		return fmt.Errorf("presentation %s: %w", r.PresentationIdentifier, sentinel.ErrConflict)
	}
	c := *r
	c.IncludedCredentials = slices.Clone(r.IncludedCredentials)
	s.presentations[r.PresentationIdentifier] = c
	return nil
}

func (s *InMemoryPresentationStore) ListByHolder(_ context.Context, holderDID string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, r := range s.presentations {
		if r.HolderDID == holderDID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuanceDate.Before(out[j].IssuanceDate) })
	return out, nil
}

func (s *InMemoryPresentationStore) FindByIdentifier(_ context.Context, holderDID string, id domain.PresentationID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.presentations[id]
	if !ok || r.HolderDID != holderDID {
		return nil, fmt.Errorf("presentation %s: %w", id, sentinel.ErrNotFound)
	}
	return &r, nil
}

// DeleteByCredentialIdentifier removes every presentation of holderDID that
// disclosed credentialID and returns how many were removed.
func (s *InMemoryPresentationStore) DeleteByCredentialIdentifier(_ context.Context, holderDID, credentialID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, r := range s.presentations {
		if r.HolderDID == holderDID && r.Includes(credentialID) {
			delete(s.presentations, id)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryPresentationStore) DeleteAllByHolder(_ context.Context, holderDID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, r := range s.presentations {
		if r.HolderDID == holderDID {
			delete(s.presentations, id)
			removed++
		}
	}
	return removed, nil
}
