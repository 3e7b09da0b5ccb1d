package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/gateway"
	"dictkeys/internal/key/models"
	"dictkeys/internal/key/service"
	"dictkeys/internal/key/service/mocks"
	claimstore "dictkeys/internal/key/store/claim"
	keystore "dictkeys/internal/key/store/key"
	verificationstore "dictkeys/internal/key/store/verification"
	"dictkeys/internal/platform/lock"
	txcontext "dictkeys/pkg/platform/tx"
)

var (
	registrationTimeout = 24 * time.Hour
	claimTimeout        = 7 * 24 * time.Hour
)

type SweeperSuite struct {
	suite.Suite
	now     time.Time
	keys    *keystore.InMemory
	claims  *claimstore.InMemory
	outbox  *events.MemoryOutbox
	gateway *mocks.MockGateway
	locker  *lock.MemoryLocker
	service *service.Service
	logger  *slog.Logger
	sweeper *Sweeper
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.keys = keystore.NewInMemory()
	s.claims = claimstore.NewInMemory()
	s.outbox = events.NewMemoryOutbox()
	s.gateway = mocks.NewMockGateway(ctrl)
	s.locker = lock.NewMemoryLocker()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.logger = logger
	svc, err := service.New(s.keys, s.claims, verificationstore.NewInMemory(), txcontext.NewMemoryRunner(),
		s.gateway, s.outbox, service.WithLogger(logger), service.WithParticipant("12345678"))
	s.Require().NoError(err)
	s.service = svc

	s.sweeper = New(s.keys, svc, s.locker,
		WithLogger(logger),
		WithClock(func() time.Time { return s.now }),
		WithItemTimeout(time.Second),
	)
}

func (s *SweeperSuite) jobs(autoConfirm bool) map[Kind]Job {
	out := map[Kind]Job{}
	for _, job := range Jobs(registrationTimeout, claimTimeout, claimTimeout, autoConfirm) {
		out[job.Kind] = job
	}
	return out
}

// seed stores a key that entered state at since.
func (s *SweeperSuite) seed(state models.State, since time.Time) *models.Key {
	key, err := models.NewKey(uuid.New(), uuid.New(), models.KeyTypeEVP, "", "", since)
	s.Require().NoError(err)
	key.State = state
	s.Require().NoError(s.keys.Create(context.Background(), key))
	return key
}

func (s *SweeperSuite) seedClaim(key *models.Key) {
	in := models.ClaimInput{DirectoryClaimID: "dir-" + uuid.NewString(), CounterpartISPB: "99999999"}
	s.Require().NoError(s.claims.Create(context.Background(), models.NewClaim(uuid.New(), key, models.ClaimPortability, in, key.StateChangedAt)))
}

func (s *SweeperSuite) state(id uuid.UUID) models.State {
	key, err := s.keys.FindByID(context.Background(), id)
	s.Require().NoError(err)
	return key.State
}

func (s *SweeperSuite) TestRegistrationPending() {
	old := s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Minute))
	fresh := s.seed(models.StatePending, s.now.Add(-time.Hour))

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindRegistrationPending])
	s.Require().NoError(err)
	s.False(result.Skipped)
	s.Require().Len(result.Mutated, 1)
	s.Equal(old.ID, result.Mutated[0].ID)
	s.Empty(result.Failures)

	s.Equal(models.StateCanceled, s.state(old.ID))
	s.Equal(models.StatePending, s.state(fresh.ID))
	s.Equal([]string{"key.expire.canceled"}, s.outbox.Names())
	s.Equal("registration not confirmed in time", s.outbox.Events()[0].Payload.Reason)
}

func (s *SweeperSuite) TestClaimPending() {
	old := s.seed(models.StateClaimPending, s.now.Add(-claimTimeout-time.Minute))

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindClaimPending])
	s.Require().NoError(err)
	s.Len(result.Mutated, 1)
	s.Equal(models.StateClaimNotConfirmed, s.state(old.ID))
}

func (s *SweeperSuite) TestPortabilityRequestPending() {
	s.Run("canceled by default", func() {
		key := s.seed(models.StatePortabilityRequestPending, s.now.Add(-claimTimeout-time.Minute))
		s.seedClaim(key)
		s.gateway.EXPECT().CancelPortabilityRequest(gomock.Any(), gomock.Any()).
			Return(&gateway.Response{Status: "CANCELED"}, nil)

		result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindPortabilityRequestPending])
		s.Require().NoError(err)
		s.Len(result.Mutated, 1)
		s.Equal(models.StatePortabilityRequestCancelOpened, s.state(key.ID))
	})

	s.Run("auto-confirmed when enabled", func() {
		key := s.seed(models.StatePortabilityRequestPending, s.now.Add(-claimTimeout-time.Minute))
		s.seedClaim(key)
		s.gateway.EXPECT().AutoConfirmPortability(gomock.Any(), gomock.Any()).
			Return(&gateway.Response{Status: "CONFIRMED"}, nil)

		result, err := s.sweeper.Sweep(context.Background(), s.jobs(true)[KindPortabilityRequestPending])
		s.Require().NoError(err)
		s.Len(result.Mutated, 1)
		s.Equal(models.StatePortabilityRequestAutoConfirmed, s.state(key.ID))
	})
}

func (s *SweeperSuite) TestContinuesPastFailures() {
	since := s.now.Add(-claimTimeout - time.Hour)
	failing := s.seed(models.StatePortabilityRequestPending, since)
	s.seedClaim(failing)
	passing := s.seed(models.StatePortabilityRequestPending, since.Add(time.Minute))
	s.seedClaim(passing)

	gomock.InOrder(
		s.gateway.EXPECT().CancelPortabilityRequest(gomock.Any(), gomock.Any()).
			Return(nil, gateway.NewError(gateway.CategoryOutage, "CancelPortabilityRequest", "down", nil)),
		s.gateway.EXPECT().CancelPortabilityRequest(gomock.Any(), gomock.Any()).
			Return(&gateway.Response{Status: "CANCELED"}, nil),
	)

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindPortabilityRequestPending])
	s.Require().NoError(err)
	s.Require().Len(result.Failures, 1)
	s.Equal(failing.ID, result.Failures[0].KeyID)
	s.Require().Len(result.Mutated, 1)
	s.Equal(passing.ID, result.Mutated[0].ID)
	s.Equal(models.StateError, s.state(failing.ID))
}

func (s *SweeperSuite) TestSkipsWhenLockHeld() {
	old := s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Minute))
	lease, err := s.locker.Acquire(context.Background(), "sweep:"+string(KindRegistrationPending), time.Minute)
	s.Require().NoError(err)
	defer func() { _ = lease.Release(context.Background()) }()

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindRegistrationPending])
	s.Require().NoError(err)
	s.True(result.Skipped)
	s.Empty(result.Mutated)
	s.Equal(models.StatePending, s.state(old.ID))
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (lock.Lease, error) {
	return nil, errors.New("connection refused")
}

// expiringLocker grants leases that can never be refreshed.
type expiringLocker struct{}

func (expiringLocker) Acquire(context.Context, string, time.Duration) (lock.Lease, error) {
	return expiringLease{}, nil
}

type expiringLease struct{}

func (expiringLease) Refresh(context.Context, time.Duration) error { return lock.ErrLeaseLost }
func (expiringLease) Release(context.Context) error               { return nil }

// racingLister lets another writer move the first overdue key between the
// overdue query and the sweep applying it.
type racingLister struct {
	KeyLister
	move func(*models.Key)
}

func (r racingLister) ListOverdue(ctx context.Context, states []models.State, field models.AgeField, cutoff time.Time, limit int) ([]*models.Key, error) {
	keys, err := r.KeyLister.ListOverdue(ctx, states, field, cutoff, limit)
	if err == nil && len(keys) > 0 {
		r.move(keys[0])
	}
	return keys, err
}

func (s *SweeperSuite) TestSkipsWhenLockBackendFails() {
	s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Minute))
	s.sweeper.locker = brokenLocker{}

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindRegistrationPending])
	s.Require().NoError(err)
	s.True(result.Skipped)
}

func (s *SweeperSuite) TestLeaseRefreshedDuringLongCycle() {
	key := s.seed(models.StatePortabilityRequestPending, s.now.Add(-claimTimeout-time.Minute))
	s.seedClaim(key)
	s.gateway.EXPECT().AutoConfirmPortability(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, gateway.Request) (*gateway.Response, error) {
			time.Sleep(150 * time.Millisecond)
			return &gateway.Response{Status: "CONFIRMED"}, nil
		})

	s.sweeper = New(s.keys, s.service, s.locker,
		WithLogger(s.logger),
		WithClock(func() time.Time { return s.now }),
		WithItemTimeout(time.Second),
		WithLease(50*time.Millisecond),
	)
	job := s.jobs(true)[KindPortabilityRequestPending]

	first := make(chan Result, 1)
	go func() {
		result, err := s.sweeper.Sweep(context.Background(), job)
		s.NoError(err)
		first <- result
	}()

	time.Sleep(80 * time.Millisecond)
	second, err := s.sweeper.Sweep(context.Background(), job)
	s.Require().NoError(err)
	s.True(second.Skipped, "lock outlived its initial TTL while the first cycle ran")

	result := <-first
	s.False(result.Interrupted)
	s.Require().Len(result.Mutated, 1)
	s.Equal(models.StatePortabilityRequestAutoConfirmed, s.state(key.ID))
}

func (s *SweeperSuite) TestStopsWhenLeaseLost() {
	since := s.now.Add(-claimTimeout - time.Hour)
	slow := s.seed(models.StatePortabilityRequestPending, since)
	s.seedClaim(slow)
	left := s.seed(models.StatePortabilityRequestPending, since.Add(time.Minute))
	s.seedClaim(left)

	s.gateway.EXPECT().CancelPortabilityRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, gateway.Request) (*gateway.Response, error) {
			time.Sleep(100 * time.Millisecond)
			return &gateway.Response{Status: "CANCELED"}, nil
		})

	s.sweeper = New(s.keys, s.service, expiringLocker{},
		WithLogger(s.logger),
		WithClock(func() time.Time { return s.now }),
		WithItemTimeout(time.Second),
		WithLease(30*time.Millisecond),
	)

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindPortabilityRequestPending])
	s.Require().NoError(err)
	s.True(result.Interrupted)
	s.Empty(result.Failures)
	s.Require().Len(result.Mutated, 1, "the key in flight completes")
	s.Equal(slow.ID, result.Mutated[0].ID)
	s.Equal(models.StatePortabilityRequestCancelOpened, s.state(slow.ID))
	s.Equal(models.StatePortabilityRequestPending, s.state(left.ID))
}

func (s *SweeperSuite) TestKeyMovedAfterListingIsNotCounted() {
	raced := s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Hour))
	swept := s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Minute))

	lister := racingLister{KeyLister: s.keys, move: func(k *models.Key) {
		_, err := s.service.Expire(context.Background(), service.TriggerInput{KeyID: k.ID, Reason: "expired elsewhere"})
		s.Require().NoError(err)
	}}
	s.sweeper = New(lister, s.service, s.locker,
		WithLogger(s.logger),
		WithClock(func() time.Time { return s.now }),
		WithItemTimeout(time.Second),
	)

	result, err := s.sweeper.Sweep(context.Background(), s.jobs(false)[KindRegistrationPending])
	s.Require().NoError(err)
	s.Empty(result.Failures)
	s.Require().Len(result.Mutated, 1)
	s.Equal(swept.ID, result.Mutated[0].ID)
	s.Equal(models.StateCanceled, s.state(raced.ID))
	s.Len(s.outbox.Names(), 2, "one event per key")
}

func (s *SweeperSuite) TestConcurrentSweepsMoveEachKeyOnce() {
	const total = 30
	for range total {
		s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Minute))
	}
	job := s.jobs(false)[KindRegistrationPending]

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		mutated int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.sweeper.Sweep(context.Background(), job)
			s.NoError(err)
			mu.Lock()
			mutated += len(result.Mutated)
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Equal(total, mutated)
	s.Len(s.outbox.Events(), total)
}

func (s *SweeperSuite) TestRunUntilCancelled() {
	old := s.seed(models.StatePending, s.now.Add(-registrationTimeout-time.Minute))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.sweeper.Run(ctx, Jobs(registrationTimeout, claimTimeout, claimTimeout, false), 10*time.Millisecond)
	}()

	s.Eventually(func() bool {
		key, err := s.keys.FindByID(context.Background(), old.ID)
		return err == nil && key.State == models.StateCanceled
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("Run did not stop after cancel")
	}
}
