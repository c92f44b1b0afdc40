package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"vcwallet/internal/legalperson/models"
	"vcwallet/pkg/platform/sentinel"
)

// InMemoryLegalPersonStore is the registry held in process memory.
type InMemoryLegalPersonStore struct {
	mu     sync.RWMutex
	nextID int64
	byDID  map[string]models.LegalPerson
}

// New returns an empty in-memory registry.
func New() *InMemoryLegalPersonStore {
	return &InMemoryLegalPersonStore{nextID: 1, byDID: make(map[string]models.LegalPerson)}
}

func (s *InMemoryLegalPersonStore) Create(_ context.Context, lp *models.LegalPerson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDID[lp.DID]; ok {
		return fmt.Errorf("legal person %s: %w", lp.DID, sentinel.ErrConflict)
	}
	for _, existing := range s.byDID {
		if sameURL(existing.URL, lp.URL) {
			return fmt.Errorf("legal person url %s: %w", lp.URL, sentinel.ErrConflict)
		}
	}
	lp.ID = s.nextID
	s.nextID++
	s.byDID[lp.DID] = *lp
	return nil
}

func (s *InMemoryLegalPersonStore) ByDID(_ context.Context, did string) (*models.LegalPerson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lp, ok := s.byDID[did]
	if !ok {
		return nil, fmt.Errorf("legal person %s: %w", did, sentinel.ErrNotFound)
	}
	return &lp, nil
}

func (s *InMemoryLegalPersonStore) ByURL(_ context.Context, issuerURL string) (*models.LegalPerson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lp := range s.byDID {
		if sameURL(lp.URL, issuerURL) {
			found := lp
			return &found, nil
		}
	}
	return nil, fmt.Errorf("legal person url %s: %w", issuerURL, sentinel.ErrNotFound)
}

func (s *InMemoryLegalPersonStore) List(_ context.Context) ([]models.LegalPerson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LegalPerson, 0, len(s.byDID))
	for _, lp := range s.byDID {
		out = append(out, lp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// sameURL compares issuer URLs ignoring a trailing slash.
func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
