package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/audit"
	"dictkeys/pkg/platform/sentinel"
	"dictkeys/pkg/requestcontext"
)

const (
	codeDigits = 6

	verifySuccess = "success"
	verifyInvalid = "invalid_code"
	verifyExpired = "expired"
	verifyLocked  = "locked"
)

type VerifyRequest struct {
	UserID uuid.UUID
	KeyID  uuid.UUID
	Code   string
	Reason string
}

// VerifyCode checks a submitted code. A match confirms the key. A miss
// counts against the record; reaching the maximum locks the record and
// moves the key to NOT_CONFIRMED. Expired codes are rejected without
// counting.
func (s *Service) VerifyCode(ctx context.Context, req VerifyRequest) (*models.Key, error) {
	code := strings.TrimSpace(req.Code)
	if req.KeyID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "key id is required")
	}
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "code is required")
	}

	v, err := s.verifications.Find(ctx, req.KeyID, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no pending verification for this key")
		}
		return nil, translateStoreErr(err, "verification")
	}

	if v.Locked {
		s.auditAttempt(ctx, req, verifyLocked)
		return nil, dErrors.New(dErrors.CodeLockedOut, "too many failed attempts")
	}
	if v.IsExpired(requestcontext.Now(ctx)) {
		s.auditAttempt(ctx, req, verifyExpired)
		return nil, dErrors.New(dErrors.CodeInvalidCode, "verification code expired")
	}

	if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(code)) != nil {
		return nil, s.recordMismatch(ctx, req)
	}

	if err := s.verifications.Reset(ctx, req.KeyID, req.UserID); err != nil {
		return nil, translateStoreErr(err, "verification")
	}
	s.auditAttempt(ctx, req, verifySuccess)
	return s.Confirm(ctx, TriggerInput{KeyID: req.KeyID, UserID: req.UserID, Reason: req.Reason})
}

func (s *Service) recordMismatch(ctx context.Context, req VerifyRequest) error {
	updated, err := s.verifications.RecordFailure(ctx, req.KeyID, req.UserID, s.maxAttempts)
	if err != nil {
		return translateStoreErr(err, "verification")
	}
	if !updated.Locked {
		s.auditAttempt(ctx, req, verifyInvalid)
		remaining := s.maxAttempts - updated.FailedAttempts
		return dErrors.New(dErrors.CodeInvalidCode, fmt.Sprintf("invalid code, %d attempts left", remaining))
	}

	s.auditAttempt(ctx, req, verifyLocked)
	s.metrics.IncrementLockouts()
	if _, err := s.Lockout(ctx, TriggerInput{KeyID: req.KeyID, Reason: "verification attempts exhausted"}); err != nil {
		s.logger.ErrorContext(ctx, "failed to lock key after verification failures",
			"key_id", req.KeyID,
			"error", err,
		)
	}
	s.logAudit(ctx, audit.Event{
		Action:  string(audit.EventVerificationLockedOut),
		UserID:  req.UserID,
		Subject: req.KeyID.String(),
		Reason:  req.Reason,
	}, "failed_attempts", updated.FailedAttempts)
	return dErrors.New(dErrors.CodeLockedOut, "too many failed attempts")
}

// ResendCode issues a fresh code for a PENDING key. The failure counter is
// kept, so resending does not grant extra attempts.
func (s *Service) ResendCode(ctx context.Context, userID, keyID uuid.UUID) error {
	key, err := s.loadKey(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !key.Type.RequiresVerification() {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("%s keys are not verified by code", key.Type))
	}
	if key.State != models.StatePending {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("cannot resend a code for a key in state %s", key.State))
	}

	existing, err := s.verifications.Find(ctx, key.ID, key.OwnerID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return translateStoreErr(err, "verification")
	}
	if existing != nil && existing.Locked {
		return dErrors.New(dErrors.CodeLockedOut, "too many failed attempts")
	}

	code, err := generateCode()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification code")
	}
	v, err := s.newVerification(key, code, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if err := s.verifications.Upsert(ctx, v); err != nil {
		return translateStoreErr(err, "verification")
	}
	s.deliverCode(ctx, key, code)
	return nil
}

// newVerification returns nil when code is empty.
func (s *Service) newVerification(key *models.Key, code string, now time.Time) (*models.Verification, error) {
	if code == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash verification code")
	}
	return &models.Verification{
		KeyID:     key.ID,
		UserID:    key.OwnerID,
		CodeHash:  string(hash),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.codeTTL),
	}, nil
}

func (s *Service) deliverCode(ctx context.Context, key *models.Key, code string) {
	s.logAudit(ctx, audit.Event{
		Action:  string(audit.EventVerificationCodeIssued),
		UserID:  key.OwnerID,
		Subject: key.ID.String(),
	}, "key_type", key.Type)
	if s.codeSender == nil {
		s.logger.WarnContext(ctx, "no code sender configured, verification code not delivered", "key_id", key.ID)
		return
	}
	if err := s.codeSender.SendCode(ctx, key, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver verification code",
			"key_id", key.ID,
			"error", err,
		)
	}
}

func (s *Service) auditAttempt(ctx context.Context, req VerifyRequest, outcome string) {
	s.metrics.IncrementVerificationAttempt(outcome)
	s.logAudit(ctx, audit.Event{
		Action:   string(audit.EventVerificationAttempted),
		UserID:   req.UserID,
		Subject:  req.KeyID.String(),
		Decision: outcome,
		Reason:   req.Reason,
	})
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
