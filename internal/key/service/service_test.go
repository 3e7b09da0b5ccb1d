package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dictkeys/internal/key/gateway"
	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	h *harness
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.h = newHarness(s.T())
}

func (s *ServiceSuite) TestNew_RequiresDependencies() {
	_, err := New(nil, s.h.claims, s.h.verifications, nil, s.h.gateway, s.h.outbox)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestRegister() {
	s.Run("document keys are confirmed immediately", func() {
		key, err := s.h.service.Register(s.h.ctx(), RegisterRequest{
			UserID: s.h.owner,
			Type:   models.KeyTypeCPF,
			Value:  "12345678901",
		})
		s.Require().NoError(err)
		s.Equal(models.StateConfirmed, key.State)
		s.Equal(models.TriggerConfirm, key.LastTrigger)
		s.Equal([]string{"key.create.pending", "key.confirm.confirmed"}, s.h.outbox.Names())
	})

	s.Run("phone keys wait for a verification code", func() {
		s.h.outbox.Reset()
		key, err := s.h.service.Register(s.h.ctx(), RegisterRequest{
			UserID: s.h.owner,
			Type:   models.KeyTypePhone,
			Value:  "+5511999990000",
		})
		s.Require().NoError(err)
		s.Equal(models.StatePending, key.State)
		s.Len(s.h.code(key.ID), codeDigits)
		s.Equal([]string{"key.create.pending"}, s.h.outbox.Names())
	})

	s.Run("random keys get a generated value", func() {
		key, err := s.h.service.Register(s.h.ctx(), RegisterRequest{UserID: s.h.owner, Type: models.KeyTypeEVP})
		s.Require().NoError(err)
		_, parseErr := uuid.Parse(key.Value)
		s.NoError(parseErr)
	})

	s.Run("live value cannot be registered twice", func() {
		_, err := s.h.service.Register(s.h.ctx(), RegisterRequest{
			UserID: uuid.New(),
			Type:   models.KeyTypeCPF,
			Value:  "12345678901",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid value is rejected", func() {
		_, err := s.h.service.Register(s.h.ctx(), RegisterRequest{
			UserID: s.h.owner,
			Type:   models.KeyTypeCNPJ,
			Value:  "123",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("anonymous caller is rejected", func() {
		_, err := s.h.service.Register(s.h.ctx(), RegisterRequest{Type: models.KeyTypeEVP})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestRegister_TerminalKeyFreesValue() {
	first, err := s.h.service.Register(s.h.ctx(), RegisterRequest{
		UserID: s.h.owner,
		Type:   models.KeyTypeEmail,
		Value:  "owner@example.com",
	})
	s.Require().NoError(err)
	_, err = s.h.service.Cancel(s.h.ctx(), TriggerInput{KeyID: first.ID, UserID: s.h.owner})
	s.Require().NoError(err)

	second, err := s.h.service.Register(s.h.ctx(), RegisterRequest{
		UserID: s.h.owner,
		Type:   models.KeyTypeEmail,
		Value:  "OWNER@example.com",
	})
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)
}

func (s *ServiceSuite) TestIdempotentReplay() {
	key := s.h.seedKey(models.StateConfirmed)
	s.h.gateway.EXPECT().RegisterKey(gomock.Any(), gomock.Any()).
		Return(&gateway.Response{Status: "OK"}, nil).Times(1)

	first, err := s.h.service.SubmitRegistration(s.h.ctx(), TriggerInput{KeyID: key.ID})
	s.Require().NoError(err)
	s.Equal(models.StateAddKeyReady, first.State)

	second, err := s.h.service.SubmitRegistration(s.h.ctx(), TriggerInput{KeyID: key.ID})
	s.Require().NoError(err)
	s.Equal(first.State, second.State)
	s.Equal(first.Version, second.Version, "replay does not write")
	s.Len(s.h.outbox.Events(), 1, "replay emits nothing")

	_, outcome, err := s.h.service.ApplyOutcome(s.h.ctx(), models.TriggerRegister, TriggerInput{KeyID: key.ID})
	s.Require().NoError(err)
	s.Equal(keymetrics.OutcomeIdempotent, outcome)
}

func (s *ServiceSuite) TestApplyOutcome() {
	key := s.h.seedKey(models.StatePending)

	updated, outcome, err := s.h.service.ApplyOutcome(s.h.ctx(), models.TriggerExpire, TriggerInput{KeyID: key.ID, Reason: "too old"})
	s.Require().NoError(err)
	s.Equal(keymetrics.OutcomeApplied, outcome)
	s.Equal(models.StateCanceled, updated.State)

	_, outcome, err = s.h.service.ApplyOutcome(s.h.ctx(), models.TriggerConfirm, TriggerInput{KeyID: key.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)
	s.Equal(keymetrics.OutcomeRejected, outcome)
}

func (s *ServiceSuite) TestTargetReachedByOtherTriggerIsNotIdempotent() {
	key := s.h.seedKey(models.StatePending)
	_, err := s.h.service.Cancel(s.h.ctx(), TriggerInput{KeyID: key.ID})
	s.Require().NoError(err)

	_, err = s.h.service.Expire(s.h.ctx(), TriggerInput{KeyID: key.ID})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestOwnerScoping() {
	key := s.h.seedKey(models.StatePending)

	_, err := s.h.service.Cancel(s.h.ctx(), TriggerInput{KeyID: key.ID, UserID: uuid.New()})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.h.service.Get(s.h.ctx(), uuid.New(), key.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	got, err := s.h.service.Get(s.h.ctx(), s.h.owner, key.ID)
	s.Require().NoError(err)
	s.Equal(key.ID, got.ID)
}

func (s *ServiceSuite) TestUnknownKeyAndTrigger() {
	_, err := s.h.service.Confirm(s.h.ctx(), TriggerInput{KeyID: uuid.New()})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.h.service.Confirm(s.h.ctx(), TriggerInput{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.h.service.Apply(s.h.ctx(), models.Trigger("teleport"), TriggerInput{KeyID: uuid.New()})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestReasonRequired() {
	key := s.h.seedKey(models.StateOwnershipOpened)
	s.h.seedClaim(key, models.ClaimOwnership)

	_, err := s.h.service.OwnershipCancel(s.h.ctx(), TriggerInput{KeyID: key.ID, Reason: "  "})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(models.StateOwnershipOpened, s.h.reload(key.ID).State)
}

func (s *ServiceSuite) TestClaimDetailsRequired() {
	key := s.h.seedKey(models.StateReady)

	s.Run("missing", func() {
		_, err := s.h.service.OwnershipOpen(s.h.ctx(), TriggerInput{KeyID: key.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("bad counterpart", func() {
		in := claimInput()
		in.CounterpartISPB = "123"
		_, err := s.h.service.OwnershipOpen(s.h.ctx(), TriggerInput{KeyID: key.ID, Claim: &in})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Equal(models.StateReady, s.h.reload(key.ID).State)
}

func (s *ServiceSuite) TestMissingClaimIsAnInvariantViolation() {
	key := s.h.seedKey(models.StateOwnershipStarted)

	_, err := s.h.service.OwnershipWait(s.h.ctx(), TriggerInput{KeyID: key.ID})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestGatewayFailure() {
	key := s.h.seedKey(models.StateOwnershipOpened)
	claim := s.h.seedClaim(key, models.ClaimOwnership)
	timeout := gateway.NewError(gateway.CategoryTimeout, string(models.CallConfirmOwnershipStart), "no answer", nil)

	s.h.gateway.EXPECT().ConfirmOwnershipStart(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.Request) (*gateway.Response, error) {
			s.Equal(claim.DirectoryClaimID, req.ClaimID)
			s.Equal("12345678", req.ParticipantID)
			return nil, timeout
		})

	_, err := s.h.service.OwnershipStart(s.h.ctx(), TriggerInput{KeyID: key.ID})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeGatewayFailure))
	s.ErrorIs(err, timeout)

	stored := s.h.reload(key.ID)
	s.Equal(models.StateError, stored.State)
	s.Equal(models.StateOwnershipOpened, stored.PreviousState)
	s.Equal(models.TriggerOwnershipStart, stored.LastTrigger)
	s.Equal(string(gateway.CategoryTimeout), stored.FailureCode)
	s.Equal([]string{"key.ownership_start.error"}, s.h.outbox.Names())

	storedClaim, err := s.h.claims.FindByKey(context.Background(), key.ID, models.ClaimOwnership)
	s.Require().NoError(err)
	s.Equal(claim.Status, storedClaim.Status, "claim untouched by failure")

	s.Run("retrying the failed trigger is rejected", func() {
		_, err := s.h.service.OwnershipStart(s.h.ctx(), TriggerInput{KeyID: key.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("recover restores the previous state and the workflow resumes", func() {
		recovered, err := s.h.service.Recover(s.h.ctx(), TriggerInput{KeyID: key.ID})
		s.Require().NoError(err)
		s.Equal(models.StateOwnershipOpened, recovered.State)
		s.Empty(recovered.FailureCode)

		again, err := s.h.service.Recover(s.h.ctx(), TriggerInput{KeyID: key.ID})
		s.Require().NoError(err)
		s.Equal(recovered.Version, again.Version, "recover replay is idempotent")

		s.h.gateway.EXPECT().ConfirmOwnershipStart(gomock.Any(), gomock.Any()).
			Return(&gateway.Response{Status: "OPEN"}, nil)
		started, err := s.h.service.OwnershipStart(s.h.ctx(), TriggerInput{KeyID: key.ID})
		s.Require().NoError(err)
		s.Equal(models.StateOwnershipStarted, started.State)
	})
}

func (s *ServiceSuite) TestGatewayAbortedByCallerContext() {
	blockUntilDone := func(ctx context.Context, _ gateway.Request) (*gateway.Response, error) {
		<-ctx.Done()
		return nil, gateway.NewError(gateway.CategoryTimeout, string(models.CallConfirmOwnership), "no answer", ctx.Err())
	}

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{
			name: "deadline passes during the call",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(s.h.ctx(), 50*time.Millisecond)
			},
		},
		{
			name: "caller goes away during the call",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(s.h.ctx())
				time.AfterFunc(20*time.Millisecond, cancel)
				return ctx, cancel
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.h.outbox.Reset()
			key := s.h.seedKey(models.StateOwnershipStarted)
			s.h.seedClaim(key, models.ClaimOwnership)
			s.h.gateway.EXPECT().ConfirmOwnership(gomock.Any(), gomock.Any()).DoAndReturn(blockUntilDone)

			ctx, cancel := tt.ctx()
			defer cancel()
			_, err := s.h.service.OwnershipConfirm(ctx, TriggerInput{KeyID: key.ID})
			s.True(dErrors.HasCode(err, dErrors.CodeGatewayFailure), "got %v", err)

			stored := s.h.reload(key.ID)
			s.Equal(models.StateError, stored.State)
			s.Equal(models.StateOwnershipStarted, stored.PreviousState)
			s.Equal(string(gateway.CategoryTimeout), stored.FailureCode)
			s.Equal(key.Version+1, stored.Version)
			s.Equal([]string{"key.ownership_confirm.error"}, s.h.outbox.Names())
		})
	}
}

func (s *ServiceSuite) TestConcurrentSameTrigger() {
	key := s.h.seedKey(models.StatePending)
	const workers = 20

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.h.service.Confirm(s.h.ctx(), TriggerInput{KeyID: key.ID})
			if err != nil || got.State != models.StateConfirmed {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load(), "every caller observes the confirmed key")
	s.Equal([]string{"key.confirm.confirmed"}, s.h.outbox.Names())
	s.Equal(key.Version+1, s.h.reload(key.ID).Version)
}

func (s *ServiceSuite) TestConcurrentCompetingTriggers() {
	key := s.h.seedKey(models.StatePending)

	var wg sync.WaitGroup
	var confirmErr, lockoutErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = s.h.service.Confirm(s.h.ctx(), TriggerInput{KeyID: key.ID})
	}()
	go func() {
		defer wg.Done()
		_, lockoutErr = s.h.service.Lockout(s.h.ctx(), TriggerInput{KeyID: key.ID})
	}()
	wg.Wait()

	s.True((confirmErr == nil) != (lockoutErr == nil), "exactly one trigger wins")
	loser := confirmErr
	if loser == nil {
		loser = lockoutErr
	}
	s.True(dErrors.HasCode(loser, dErrors.CodeInvalidState))
	s.Len(s.h.outbox.Events(), 1)
}

func (s *ServiceSuite) TestReads() {
	first := s.h.seedKey(models.StateReady)
	s.h.seedKey(models.StatePending)
	s.h.seedClaim(first, models.ClaimPortability)

	keys, err := s.h.service.ListByOwner(s.h.ctx(), s.h.owner)
	s.Require().NoError(err)
	s.Len(keys, 2)

	byValue, err := s.h.service.GetByValue(s.h.ctx(), first.Value)
	s.Require().NoError(err)
	s.Equal(first.ID, byValue.ID)

	_, err = s.h.service.GetByValue(s.h.ctx(), "nobody@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	claims, err := s.h.service.ListClaims(s.h.ctx(), s.h.owner, first.ID)
	s.Require().NoError(err)
	s.Len(claims, 1)
}

func (s *ServiceSuite) TestStaleWriteTranslation() {
	err := translateStoreErr(sentinel.ErrStaleWrite, "key")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	err = translateStoreErr(context.DeadlineExceeded, "key")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
