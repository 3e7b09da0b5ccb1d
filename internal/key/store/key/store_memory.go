package key

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dictkeys/internal/key/models"
	"dictkeys/pkg/platform/sentinel"
)

// InMemory is a process-local key store. Lookups return copies so callers
// cannot mutate stored rows without going through CompareAndSwap.
type InMemory struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*models.Key
	// live indexes the non-terminal key per value.
	live map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		keys: make(map[uuid.UUID]*models.Key),
		live: make(map[string]uuid.UUID),
	}
}

func (s *InMemory) Create(_ context.Context, key *models.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.ID]; exists {
		return sentinel.ErrConflict
	}
	if !key.State.IsTerminal() {
		if _, taken := s.live[key.Value]; taken {
			return sentinel.ErrConflict
		}
		s.live[key.Value] = key.ID
	}
	stored := *key
	s.keys[key.ID] = &stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *key
	return &out, nil
}

func (s *InMemory) FindLiveByValue(_ context.Context, value string) (*models.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.live[value]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *s.keys[id]
	return &out, nil
}

func (s *InMemory) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Key{}
	for _, key := range s.keys {
		if key.OwnerID == ownerID {
			k := *key
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CompareAndSwap replaces the stored key only if it still has the expected
// state and version.
func (s *InMemory) CompareAndSwap(_ context.Context, key *models.Key, expectedState models.State, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.keys[key.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.State != expectedState || current.Version != expectedVersion {
		return sentinel.ErrStaleWrite
	}
	if !key.State.IsTerminal() {
		if holder, taken := s.live[key.Value]; taken && holder != key.ID {
			return sentinel.ErrConflict
		}
		s.live[key.Value] = key.ID
	} else if s.live[key.Value] == key.ID {
		delete(s.live, key.Value)
	}
	stored := *key
	s.keys[key.ID] = &stored
	return nil
}

// ListOverdue returns up to limit keys in one of states whose field is older
// than cutoff, oldest first.
func (s *InMemory) ListOverdue(_ context.Context, states []models.State, field models.AgeField, cutoff time.Time, limit int) ([]*models.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[models.State]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}
	out := []*models.Key{}
	for _, key := range s.keys {
		if wanted[key.State] && key.Age(field).Before(cutoff) {
			k := *key
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Age(field).Before(out[j].Age(field)) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
