// Package service is the claim workflow engine: it applies triggers to keys
// along the transition table, drives the directory gateway, gates
// verification codes and emits one event per persisted change.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/gateway"
	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/audit"
	"dictkeys/pkg/platform/sentinel"
	txcontext "dictkeys/pkg/platform/tx"
	"dictkeys/pkg/requestcontext"
)

type KeyStore interface {
	Create(ctx context.Context, key *models.Key) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Key, error)
	FindLiveByValue(ctx context.Context, value string) (*models.Key, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Key, error)
	CompareAndSwap(ctx context.Context, key *models.Key, expectedState models.State, expectedVersion int64) error
}

type ClaimStore interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindByKey(ctx context.Context, keyID uuid.UUID, kind models.ClaimKind) (*models.Claim, error)
	ListByKey(ctx context.Context, keyID uuid.UUID) ([]*models.Claim, error)
	Update(ctx context.Context, claim *models.Claim) error
}

type VerificationStore interface {
	Upsert(ctx context.Context, v *models.Verification) error
	Find(ctx context.Context, keyID, userID uuid.UUID) (*models.Verification, error)
	RecordFailure(ctx context.Context, keyID, userID uuid.UUID, maxAttempts int) (*models.Verification, error)
	Reset(ctx context.Context, keyID, userID uuid.UUID) error
}

// CodeSender delivers a verification code to the phone or mailbox the key
// names.
type CodeSender interface {
	SendCode(ctx context.Context, key *models.Key, code string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultMaxAttempts = 3
	defaultCodeTTL     = 10 * time.Minute
	tracerName         = "dictkeys/internal/key/service"
)

// Service is the single workflow engine type. It holds no per-key state;
// every call reloads the key and persists through compare-and-swap.
type Service struct {
	keys          KeyStore
	claims        ClaimStore
	verifications VerificationStore
	tx            txcontext.Runner
	gateway       gateway.Gateway
	notifier      events.Notifier

	participant    string
	codeSender     CodeSender
	maxAttempts    int
	codeTTL        time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *keymetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *keymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCodeSender(sender CodeSender) Option {
	return func(s *Service) {
		s.codeSender = sender
	}
}

// WithMaxAttempts sets how many wrong codes lock a verification.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithCodeTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.codeTTL = d
		}
	}
}

// WithParticipant sets our participant ISPB sent on every directory call.
func WithParticipant(ispb string) Option {
	return func(s *Service) {
		s.participant = ispb
	}
}

func New(
	keys KeyStore,
	claims ClaimStore,
	verifications VerificationStore,
	tx txcontext.Runner,
	gw gateway.Gateway,
	notifier events.Notifier,
	opts ...Option,
) (*Service, error) {
	switch {
	case keys == nil:
		return nil, errors.New("key store is required")
	case claims == nil:
		return nil, errors.New("claim store is required")
	case verifications == nil:
		return nil, errors.New("verification store is required")
	case tx == nil:
		return nil, errors.New("transaction runner is required")
	case gw == nil:
		return nil, errors.New("directory gateway is required")
	case notifier == nil:
		return nil, errors.New("event notifier is required")
	}
	s := &Service{
		keys:          keys,
		claims:        claims,
		verifications: verifications,
		tx:            tx,
		gateway:       gw,
		notifier:      notifier,
		maxAttempts:   defaultMaxAttempts,
		codeTTL:       defaultCodeTTL,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// loadKey fetches the key. When userID is set the key must belong to that
// user; foreign keys are reported as missing.
func (s *Service) loadKey(ctx context.Context, keyID, userID uuid.UUID) (*models.Key, error) {
	if keyID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "key id is required")
	}
	key, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		return nil, translateStoreErr(err, "key")
	}
	if userID != uuid.Nil && key.OwnerID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "key not found")
	}
	return key, nil
}

func translateStoreErr(err error, entity string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "key value is already registered")
	case errors.Is(err, sentinel.ErrStaleWrite):
		return dErrors.New(dErrors.CodeInvalidState, entity+" was changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.Event, attrs ...any) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	args := append(attrs,
		"event", event.Action,
		"log_type", "audit",
		"key_id", event.Subject,
	)
	if event.UserID != uuid.Nil {
		args = append(args, "user_id", event.UserID)
	}
	if event.ActorID != "" {
		args = append(args, "actor", event.ActorID)
	}
	if event.Decision != "" {
		args = append(args, "decision", event.Decision)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, event.Action, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}

func actorFor(origin models.Origin) string {
	switch origin {
	case models.OriginCallback:
		return "directory"
	case models.OriginSystem:
		return "system"
	}
	return ""
}
