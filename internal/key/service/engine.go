package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/gateway"
	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/audit"
	"dictkeys/pkg/platform/sentinel"
	"dictkeys/pkg/requestcontext"
)

// TriggerInput addresses one key. UserID is set for owner-initiated triggers
// and restricts them to the owner's keys; callbacks and system triggers
// leave it empty.
type TriggerInput struct {
	KeyID  uuid.UUID
	UserID uuid.UUID
	Reason string
	// Claim is required by triggers that open a claim.
	Claim *models.ClaimInput
}

// Apply runs trigger against the key named by in. It is the single path
// every trigger takes:
//
//  1. load the key (and its claim for claim-scoped triggers)
//  2. return the key unchanged when the trigger already produced its state
//  3. reject triggers with no edge from the current state
//  4. call the directory when the edge mirrors a directory operation; a
//     failure parks the key in ERROR
//  5. persist key, claim and event in one unit of work guarded by
//     compare-and-swap
func (s *Service) Apply(ctx context.Context, trigger models.Trigger, in TriggerInput) (*models.Key, error) {
	key, _, err := s.ApplyOutcome(ctx, trigger, in)
	return key, err
}

// ApplyOutcome is Apply that also reports what happened to the key:
// keymetrics.OutcomeApplied when this call moved it, OutcomeIdempotent when
// it was already in the trigger's target state.
func (s *Service) ApplyOutcome(ctx context.Context, trigger models.Trigger, in TriggerInput) (*models.Key, string, error) {
	ctx, span := s.tracer.Start(ctx, "key."+string(trigger),
		trace.WithAttributes(
			attribute.String("key.trigger", string(trigger)),
			attribute.String("key.id", in.KeyID.String()),
		))
	defer span.End()

	key, outcome, err := s.apply(ctx, trigger, in)
	s.metrics.IncrementTransition(string(trigger), outcome)
	span.SetAttributes(attribute.String("key.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, outcome, err
	}
	span.SetAttributes(attribute.String("key.state", string(key.State)))
	return key, outcome, nil
}

func (s *Service) apply(ctx context.Context, trigger models.Trigger, in TriggerInput) (*models.Key, string, error) {
	spec, ok := trigger.Spec()
	if !ok {
		return nil, keymetrics.OutcomeRejected, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown trigger %q", trigger))
	}

	key, err := s.loadKey(ctx, in.KeyID, in.UserID)
	if err != nil {
		return nil, outcomeFor(err), err
	}
	if key.AlreadyApplied(trigger) {
		s.logger.DebugContext(ctx, "trigger already applied",
			"key_id", key.ID,
			"trigger", trigger,
			"state", key.State,
		)
		return key, keymetrics.OutcomeIdempotent, nil
	}

	tr, ok := models.Lookup(trigger, key.State)
	if !ok {
		return nil, keymetrics.OutcomeRejected, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot apply %s to a key in state %s", trigger, key.State))
	}

	reason := strings.TrimSpace(in.Reason)
	if spec.RequiresReason && reason == "" {
		return nil, keymetrics.OutcomeRejected, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	claim, err := s.claimFor(ctx, key, spec, in.Claim)
	if err != nil {
		return nil, outcomeFor(err), err
	}

	if spec.Call != models.CallNone {
		req := gateway.Request{
			KeyValue:      key.Value,
			KeyType:       key.Type,
			ParticipantID: s.participant,
			Reason:        reason,
		}
		if claim != nil {
			req.ClaimID = claim.DirectoryClaimID
		}
		resp, gwErr := gateway.Invoke(ctx, s.gateway, spec.Call, req)
		if gwErr != nil {
			return nil, keymetrics.OutcomeFailed, s.fail(ctx, key, spec, reason, gwErr)
		}
		s.logger.DebugContext(ctx, "directory call succeeded",
			"key_id", key.ID,
			"call", spec.Call,
			"status", resp.Status,
		)
	}

	updated, err := s.persist(ctx, key, tr, claim, in.Claim, reason)
	if err != nil {
		if errors.Is(err, sentinel.ErrStaleWrite) {
			return s.resolveLostRace(ctx, key.ID, trigger)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, keymetrics.OutcomeRejected, dErrors.New(dErrors.CodeConflict, "key value is already held by another live key")
		}
		return nil, keymetrics.OutcomeError, translateStoreErr(err, "key")
	}

	s.logAudit(ctx, audit.Event{
		Action:   auditActionFor(trigger),
		UserID:   updated.OwnerID,
		Subject:  updated.ID.String(),
		Decision: string(updated.State),
		Reason:   reason,
		ActorID:  actorFor(spec.Origin),
	}, "trigger", trigger, "from", key.State, "to", updated.State)
	return updated, keymetrics.OutcomeApplied, nil
}

// claimFor validates claim details for opening triggers and loads the open
// claim for claim-scoped ones.
func (s *Service) claimFor(ctx context.Context, key *models.Key, spec models.TriggerSpec, in *models.ClaimInput) (*models.Claim, error) {
	if spec.RequiresClaimInput() {
		if in == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "claim details are required")
		}
		if err := in.Validate(); err != nil {
			return nil, err
		}
		_, err := s.claims.FindByKey(ctx, key.ID, spec.OpensClaim)
		switch {
		case err == nil:
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("an %s claim is already open for this key", spec.OpensClaim))
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, nil
		default:
			return nil, translateStoreErr(err, "claim")
		}
	}
	if spec.ClaimKind == "" {
		return nil, nil
	}
	claim, err := s.claims.FindByKey(ctx, key.ID, spec.ClaimKind)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("key in state %s has no open %s claim", key.State, spec.ClaimKind))
		}
		return nil, translateStoreErr(err, "claim")
	}
	return claim, nil
}

func (s *Service) persist(ctx context.Context, key *models.Key, tr models.Transition, claim *models.Claim, claimIn *models.ClaimInput, reason string) (*models.Key, error) {
	now := requestcontext.Now(ctx)
	updated := *key
	updated.ApplyTransition(tr, now)
	event := events.ForKey(&updated, string(tr.Trigger), reason, now)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.keys.CompareAndSwap(ctx, &updated, key.State, key.Version); err != nil {
			return err
		}
		if err := s.applyClaim(ctx, tr.TriggerSpec, &updated, claim, claimIn, reason); err != nil {
			return err
		}
		return s.notifier.Emit(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) applyClaim(ctx context.Context, spec models.TriggerSpec, key *models.Key, claim *models.Claim, in *models.ClaimInput, reason string) error {
	now := requestcontext.Now(ctx)
	switch {
	case spec.OpensClaim != "":
		return s.claims.Create(ctx, models.NewClaim(uuid.New(), key, spec.OpensClaim, *in, now))
	case claim == nil:
		return nil
	case spec.ClosesClaim:
		claim.Close(now)
		return s.claims.Update(ctx, claim)
	case spec.ClaimStatus != "":
		claim.ApplyStatus(spec.ClaimStatus, reason, now)
		return s.claims.Update(ctx, claim)
	}
	return nil
}

// failureWriteTimeout bounds the ERROR write, which runs detached from the
// caller's deadline.
const failureWriteTimeout = 5 * time.Second

// fail records a failed directory call: the key moves to ERROR with the
// failure details and the failure event is emitted. The claim is left as it
// was so recovery can resume the workflow. The write survives a cancelled
// or expired caller context.
func (s *Service) fail(ctx context.Context, key *models.Key, spec models.TriggerSpec, reason string, gwErr error) error {
	now := requestcontext.Now(ctx)
	category := gateway.CategoryOf(gwErr)
	failed := *key
	failed.ApplyFailure(spec.Trigger, string(category), gwErr.Error(), now)
	event := events.ForKey(&failed, string(spec.Trigger), reason, now)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	err := s.tx.RunInTx(writeCtx, func(ctx context.Context) error {
		if err := s.keys.CompareAndSwap(ctx, &failed, key.State, key.Version); err != nil {
			return err
		}
		return s.notifier.Emit(ctx, event)
	})
	if err != nil {
		s.logger.ErrorContext(writeCtx, "failed to record directory failure",
			"key_id", key.ID,
			"trigger", spec.Trigger,
			"error", err,
		)
	}

	s.logAudit(writeCtx, audit.Event{
		Action:   string(audit.EventKeyTransitionFailed),
		UserID:   key.OwnerID,
		Subject:  key.ID.String(),
		Decision: string(category),
		Reason:   reason,
		ActorID:  actorFor(spec.Origin),
	}, "trigger", spec.Trigger, "from", key.State, "call", spec.Call, "error", gwErr)

	return dErrors.Wrap(gwErr, dErrors.CodeGatewayFailure, fmt.Sprintf("directory %s failed", spec.Call))
}

// resolveLostRace handles a compare-and-swap miss. A concurrent caller that
// applied the same trigger makes this call an idempotent replay.
func (s *Service) resolveLostRace(ctx context.Context, keyID uuid.UUID, trigger models.Trigger) (*models.Key, string, error) {
	current, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		return nil, keymetrics.OutcomeError, translateStoreErr(err, "key")
	}
	if current.AlreadyApplied(trigger) {
		return current, keymetrics.OutcomeIdempotent, nil
	}
	return nil, keymetrics.OutcomeRejected, dErrors.New(dErrors.CodeInvalidState,
		fmt.Sprintf("key moved to %s while applying %s", current.State, trigger))
}

func auditActionFor(trigger models.Trigger) string {
	switch trigger {
	case models.TriggerRecover:
		return string(audit.EventKeyRecovered)
	case models.TriggerOwnershipComplete:
		return string(audit.EventOwnershipClaimCompleted)
	}
	return string(audit.EventKeyTransitionApplied)
}

func outcomeFor(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeNotFound,
		dErrors.CodeConflict, dErrors.CodeInvalidState:
		return keymetrics.OutcomeRejected
	case dErrors.CodeGatewayFailure:
		return keymetrics.OutcomeFailed
	}
	return keymetrics.OutcomeError
}
