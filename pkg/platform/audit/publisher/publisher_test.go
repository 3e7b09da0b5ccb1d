package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	audit "dictkeys/pkg/platform/audit"
	"dictkeys/pkg/platform/audit/store/memory"
)

type PublisherSuite struct {
	suite.Suite
	store *memory.InMemoryStore
	owner uuid.UUID
	ctx   context.Context
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.owner = uuid.New()
	s.ctx = context.Background()
}

func (s *PublisherSuite) event(action audit.AuditEvent) audit.Event {
	return audit.Event{UserID: s.owner, Subject: "key-1", Action: string(action)}
}

func (s *PublisherSuite) actions() []string {
	events, err := s.store.ListByUser(s.ctx, s.owner)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *PublisherSuite) TestSyncEmitFillsDefaults() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	before := time.Now()
	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventVerificationLockedOut)))

	events, err := pub.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	got := events[0]
	s.NotEqual(uuid.Nil, got.ID)
	s.Equal(audit.CategorySecurity, got.Category)
	s.False(got.Timestamp.Before(before))
}

func (s *PublisherSuite) TestSyncEmitKeepsCallerFields() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	id := uuid.New()
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	e := s.event(audit.EventSweepCompleted)
	e.ID = id
	e.Timestamp = at
	e.Category = audit.CategoryCompliance
	s.Require().NoError(pub.Emit(s.ctx, e))

	events, err := pub.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(id, events[0].ID)
	s.Equal(at, events[0].Timestamp)
	s.Equal(audit.CategoryCompliance, events[0].Category)
}

func (s *PublisherSuite) TestSyncEmitPreservesOrder() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	for _, a := range []audit.AuditEvent{audit.EventKeyRegistered, audit.EventVerificationCodeIssued, audit.EventKeyTransitionApplied} {
		s.Require().NoError(pub.Emit(s.ctx, s.event(a)))
	}
	s.Equal([]string{
		string(audit.EventKeyRegistered),
		string(audit.EventVerificationCodeIssued),
		string(audit.EventKeyTransitionApplied),
	}, s.actions())
}

func (s *PublisherSuite) TestSyncEmitReturnsStoreError() {
	pub := NewPublisher(failingStore{err: errors.New("disk full")})
	err := pub.Emit(s.ctx, s.event(audit.EventKeyRegistered))
	s.EqualError(err, "disk full")
}

func (s *PublisherSuite) TestAsyncEventuallyPersists() {
	pub := NewPublisher(s.store, WithAsyncBuffer(4))
	defer pub.Close()

	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventKeyRecovered)))
	s.Eventually(func() bool {
		return len(s.actions()) == 1
	}, time.Second, 5*time.Millisecond)
}

func (s *PublisherSuite) TestAsyncCloseDrainsQueue() {
	pub := NewPublisher(s.store, WithAsyncBuffer(64))
	for range 25 {
		s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventKeyTransitionApplied)))
	}
	pub.Close()
	pub.Close()

	s.Len(s.actions(), 25)
}

func (s *PublisherSuite) TestAsyncFullBuffer() {
	blocked := newBlockingStore()
	pub := NewPublisher(blocked, WithAsyncBuffer(1))

	// first event is taken by the drain goroutine and parks in Append
	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventKeyRegistered)))
	<-blocked.entered
	// second fills the single slot
	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventKeyRegistered)))

	err := pub.Emit(s.ctx, s.event(audit.EventKeyRegistered))
	s.ErrorIs(err, ErrBufferFull)

	close(blocked.release)
	pub.Close()
	s.Equal(2, blocked.count())
}

func (s *PublisherSuite) TestAsyncStoreFailureIsLogged() {
	pub := NewPublisher(failingStore{err: errors.New("down")}, WithAsyncBuffer(2))
	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventKeyRegistered)))
	s.NotPanics(pub.Close)
}

func TestEmitConcurrentSync(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	owner := uuid.New()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pub.Emit(context.Background(), audit.Event{UserID: owner, Action: string(audit.EventKeyRegistered)}))
		}()
	}
	wg.Wait()

	events, err := store.ListByUser(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, events, 16)
}

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, audit.Event) error { return f.err }

func (f failingStore) ListByUser(context.Context, uuid.UUID) ([]audit.Event, error) {
	return nil, f.err
}

func (f failingStore) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, f.err
}

type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	events []audit.Event
}

func newBlockingStore() *blockingStore {
	return &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingStore) Append(_ context.Context, e audit.Event) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *blockingStore) ListByUser(context.Context, uuid.UUID) ([]audit.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]audit.Event(nil), b.events...), nil
}

func (b *blockingStore) ListBySubject(ctx context.Context, _ string) ([]audit.Event, error) {
	return b.ListByUser(ctx, uuid.Nil)
}

func (b *blockingStore) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
