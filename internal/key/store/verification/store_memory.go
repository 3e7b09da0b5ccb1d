package verification

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"dictkeys/internal/key/models"
	"dictkeys/pkg/platform/sentinel"
)

type recordKey struct {
	keyID  uuid.UUID
	userID uuid.UUID
}

type InMemory struct {
	mu      sync.Mutex
	records map[recordKey]*models.Verification
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[recordKey]*models.Verification)}
}

// Upsert stores a newly issued code. Reissuing keeps the failure counter
// and lock flag.
func (s *InMemory) Upsert(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{v.KeyID, v.UserID}
	if existing, ok := s.records[k]; ok {
		existing.CodeHash = v.CodeHash
		existing.IssuedAt = v.IssuedAt
		existing.ExpiresAt = v.ExpiresAt
		return nil
	}
	stored := *v
	s.records[k] = &stored
	return nil
}

func (s *InMemory) Find(_ context.Context, keyID, userID uuid.UUID) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[recordKey{keyID, userID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *v
	return &out, nil
}

// RecordFailure increments the failure counter and locks the record when it
// reaches maxAttempts. A locked record is returned unchanged.
func (s *InMemory) RecordFailure(_ context.Context, keyID, userID uuid.UUID, maxAttempts int) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[recordKey{keyID, userID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !v.Locked {
		v.FailedAttempts++
		v.Locked = v.FailedAttempts >= maxAttempts
	}
	out := *v
	return &out, nil
}

func (s *InMemory) Reset(_ context.Context, keyID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[recordKey{keyID, userID}]
	if !ok {
		return sentinel.ErrNotFound
	}
	v.FailedAttempts = 0
	v.Locked = false
	return nil
}
