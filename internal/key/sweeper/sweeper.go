// Package sweeper expires keys that sat in a waiting state for too long.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/models"
	"dictkeys/internal/key/service"
	"dictkeys/internal/platform/lock"
	"dictkeys/pkg/requestcontext"
)

type Kind string

const (
	KindRegistrationPending       Kind = "registration_pending"
	KindClaimPending              Kind = "claim_pending"
	KindPortabilityRequestPending Kind = "portability_request_pending"
)

// KeyLister finds keys that have been in one of states since before cutoff.
type KeyLister interface {
	ListOverdue(ctx context.Context, states []models.State, field models.AgeField, cutoff time.Time, limit int) ([]*models.Key, error)
}

// Engine applies a trigger to one key and reports whether the key moved.
type Engine interface {
	ApplyOutcome(ctx context.Context, trigger models.Trigger, in service.TriggerInput) (*models.Key, string, error)
}

// Job describes one sweep kind.
type Job struct {
	Kind    Kind
	States  []models.State
	Field   models.AgeField
	Timeout time.Duration
	Trigger models.Trigger
	Reason  string
}

// Jobs returns the three standard sweeps. Overdue donor portability
// requests are auto-confirmed when autoConfirm is set and canceled
// otherwise.
func Jobs(registration, claim, portabilityRequest time.Duration, autoConfirm bool) []Job {
	portability := Job{
		Kind:    KindPortabilityRequestPending,
		States:  []models.State{models.StatePortabilityRequestPending},
		Field:   models.AgeFromStateChange,
		Timeout: portabilityRequest,
		Trigger: models.TriggerDonorPortabilityCancel,
		Reason:  "portability request not answered in time",
	}
	if autoConfirm {
		portability.Trigger = models.TriggerDonorPortabilityAutoConfirm
	}
	return []Job{
		{
			Kind:    KindRegistrationPending,
			States:  []models.State{models.StatePending},
			Field:   models.AgeFromCreated,
			Timeout: registration,
			Trigger: models.TriggerExpire,
			Reason:  "registration not confirmed in time",
		},
		{
			Kind:    KindClaimPending,
			States:  []models.State{models.StateClaimPending},
			Field:   models.AgeFromStateChange,
			Timeout: claim,
			Trigger: models.TriggerExpire,
			Reason:  "claim not resolved in time",
		},
		portability,
	}
}

// Failure is one key the sweep could not move.
type Failure struct {
	KeyID uuid.UUID
	Err   error
}

type Result struct {
	Kind Kind
	// Mutated holds the keys this cycle moved. Keys another writer moved
	// after the overdue query are left out.
	Mutated  []*models.Key
	Failures []Failure
	// Skipped is set when another replica held the lock or the lock backend
	// was unavailable.
	Skipped bool
	// Interrupted is set when the lock could not be refreshed and the rest
	// of the batch was left for the next cycle.
	Interrupted bool
}

type Sweeper struct {
	keys        KeyLister
	engine      Engine
	locker      lock.Locker
	logger      *slog.Logger
	metrics     *keymetrics.Metrics
	lease       time.Duration
	itemTimeout time.Duration
	batchSize   int
	now         func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *keymetrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithLease sets the sweep lock TTL. The lock is refreshed every third of
// it while a cycle runs.
func WithLease(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.lease = d
		}
	}
}

func WithItemTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.itemTimeout = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the time source used for cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(keys KeyLister, engine Engine, locker lock.Locker, opts ...Option) *Sweeper {
	s := &Sweeper{
		keys:        keys,
		engine:      engine,
		locker:      locker,
		logger:      slog.Default(),
		lease:       5 * time.Minute,
		itemTimeout: 10 * time.Second,
		batchSize:   100,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one cycle of job. The returned error is set only when the
// overdue query fails; per-key failures are reported in Result.Failures.
func (s *Sweeper) Sweep(ctx context.Context, job Job) (Result, error) {
	result := Result{Kind: job.Kind}

	lease, err := s.locker.Acquire(ctx, "sweep:"+string(job.Kind), s.lease)
	if err != nil {
		result.Skipped = true
		if errors.Is(err, lock.ErrNotAcquired) {
			s.logger.DebugContext(ctx, "sweep lock held elsewhere", "kind", job.Kind)
		} else {
			s.logger.WarnContext(ctx, "sweep lock unavailable", "kind", job.Kind, "error", err)
		}
		return result, nil
	}

	held, lost := context.WithCancelCause(ctx)
	stop := s.keepAlive(held, lost, job.Kind, lease)
	defer func() {
		stop()
		lost(nil)
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release sweep lock", "kind", job.Kind, "error", err)
		}
	}()

	now := s.now()
	overdue, err := s.keys.ListOverdue(held, job.States, job.Field, now.Add(-job.Timeout), s.batchSize)
	if err != nil {
		return result, fmt.Errorf("list overdue %s keys: %w", job.Kind, err)
	}

	for _, key := range overdue {
		if ctx.Err() != nil {
			break
		}
		if held.Err() != nil {
			result.Interrupted = true
			break
		}
		// The key in flight finishes on ctx so a lost lease does not abort a
		// directory call halfway.
		updated, outcome, err := s.applyOne(ctx, job, key, now)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep could not move key",
				"kind", job.Kind,
				"key_id", key.ID,
				"state", key.State,
				"error", err,
			)
			result.Failures = append(result.Failures, Failure{KeyID: key.ID, Err: err})
			continue
		}
		if outcome != keymetrics.OutcomeApplied {
			s.logger.DebugContext(ctx, "overdue key already moved",
				"kind", job.Kind,
				"key_id", key.ID,
				"state", updated.State,
			)
			continue
		}
		result.Mutated = append(result.Mutated, updated)
	}
	return result, nil
}

// keepAlive refreshes lease every third of its TTL until stop is called. A
// failed refresh cancels ctx with the refresh error as cause.
func (s *Sweeper) keepAlive(ctx context.Context, lost context.CancelCauseFunc, kind Kind, lease lock.Lease) (stop func()) {
	interval := max(s.lease/3, time.Millisecond)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			refreshCtx, cancel := context.WithTimeout(ctx, interval)
			err := lease.Refresh(refreshCtx, s.lease)
			cancel()
			if err != nil {
				s.logger.WarnContext(ctx, "sweep lock lost, stopping cycle", "kind", kind, "error", err)
				lost(fmt.Errorf("refresh sweep lock: %w", err))
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Sweeper) applyOne(ctx context.Context, job Job, key *models.Key, now time.Time) (*models.Key, string, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()
	itemCtx = requestcontext.WithTime(itemCtx, now)
	return s.engine.ApplyOutcome(itemCtx, job.Trigger, service.TriggerInput{KeyID: key.ID, Reason: job.Reason})
}

// Run sweeps every job once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, jobs []Job, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx, jobs)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sweeper) cycle(ctx context.Context, jobs []Job) {
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		result, err := s.Sweep(ctx, job)
		s.metrics.ObserveSweep(string(job.Kind), len(result.Mutated), len(result.Failures), result.Skipped, time.Since(start))
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", "kind", job.Kind, "error", err)
			continue
		}
		if len(result.Mutated) > 0 || len(result.Failures) > 0 || result.Interrupted {
			s.logger.InfoContext(ctx, "sweep completed",
				"kind", job.Kind,
				"mutated", len(result.Mutated),
				"failures", len(result.Failures),
				"interrupted", result.Interrupted,
			)
		}
	}
}
