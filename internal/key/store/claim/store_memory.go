package claim

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"dictkeys/internal/key/models"
	"dictkeys/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	claims map[uuid.UUID]*models.Claim
}

func NewInMemory() *InMemory {
	return &InMemory{claims: make(map[uuid.UUID]*models.Claim)}
}

func (s *InMemory) Create(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.claims {
		if existing.IsOpen() && existing.KeyID == claim.KeyID && existing.Kind == claim.Kind {
			return sentinel.ErrConflict
		}
	}
	stored := *claim
	s.claims[claim.ID] = &stored
	return nil
}

// FindByKey returns the open claim of kind on the key.
func (s *InMemory) FindByKey(_ context.Context, keyID uuid.UUID, kind models.ClaimKind) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.IsOpen() && c.KeyID == keyID && c.Kind == kind {
			out := *c
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByDirectoryID(_ context.Context, directoryClaimID string) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.DirectoryClaimID == directoryClaimID {
			out := *c
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByKey(_ context.Context, keyID uuid.UUID) ([]*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Claim{}
	for _, c := range s.claims {
		if c.KeyID == keyID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (s *InMemory) Update(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claim.ID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *claim
	s.claims[claim.ID] = &stored
	return nil
}
