package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/audit"
	"dictkeys/pkg/platform/sentinel"
	"dictkeys/pkg/requestcontext"
)

type RegisterRequest struct {
	UserID        uuid.UUID
	Type          models.KeyType
	Value         string
	OwnerDocument string
}

// Register creates a key in PENDING. PHONE and EMAIL keys get a
// verification code; the other types are confirmed straight away.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Key, error) {
	if req.UserID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is required")
	}
	now := requestcontext.Now(ctx)
	key, err := models.NewKey(uuid.New(), req.UserID, req.Type, req.Value, req.OwnerDocument, now)
	if err != nil {
		return nil, err
	}

	if _, err := s.keys.FindLiveByValue(ctx, key.Value); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "key value is already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, translateStoreErr(err, "key")
	}

	var code string
	if key.Type.RequiresVerification() {
		code, err = generateCode()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification code")
		}
	}
	verification, err := s.newVerification(key, code, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.keys.Create(ctx, key); err != nil {
			return err
		}
		if verification != nil {
			if err := s.verifications.Upsert(ctx, verification); err != nil {
				return err
			}
		}
		return s.notifier.Emit(ctx, events.ForKey(key, events.CreateAction, "", now))
	})
	if err != nil {
		return nil, translateStoreErr(err, "key")
	}

	s.logAudit(ctx, audit.Event{
		Action:   string(audit.EventKeyRegistered),
		UserID:   key.OwnerID,
		Subject:  key.ID.String(),
		Decision: string(key.State),
	}, "key_type", key.Type)

	if verification != nil {
		s.deliverCode(ctx, key, code)
		return key, nil
	}
	return s.Confirm(ctx, TriggerInput{KeyID: key.ID})
}

// Get returns a key. A non-nil userID limits the lookup to that owner.
func (s *Service) Get(ctx context.Context, userID, keyID uuid.UUID) (*models.Key, error) {
	return s.loadKey(ctx, keyID, userID)
}

func (s *Service) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Key, error) {
	if userID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is required")
	}
	keys, err := s.keys.ListByOwner(ctx, userID)
	if err != nil {
		return nil, translateStoreErr(err, "keys")
	}
	return keys, nil
}

// GetByValue returns the live key holding value.
func (s *Service) GetByValue(ctx context.Context, value string) (*models.Key, error) {
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "key value is required")
	}
	key, err := s.keys.FindLiveByValue(ctx, value)
	if err != nil {
		return nil, translateStoreErr(err, "key")
	}
	return key, nil
}

// ListClaims returns every claim on a key the user owns, closed ones
// included, oldest first.
func (s *Service) ListClaims(ctx context.Context, userID, keyID uuid.UUID) ([]*models.Claim, error) {
	key, err := s.loadKey(ctx, keyID, userID)
	if err != nil {
		return nil, err
	}
	claims, err := s.claims.ListByKey(ctx, key.ID)
	if err != nil {
		return nil, translateStoreErr(err, "claims")
	}
	return claims, nil
}
