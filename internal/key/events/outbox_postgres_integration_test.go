//go:build integration

package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/models"
	txcontext "dictkeys/pkg/platform/tx"
	"dictkeys/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	outbox   *events.PostgresOutbox
	tx       *txcontext.PostgresRunner
}

func TestPostgresOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.outbox = events.NewPostgresOutbox(s.postgres.DB)
	s.tx = txcontext.NewPostgresRunner(s.postgres.DB, 5*time.Second)
}

func (s *PostgresOutboxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *PostgresOutboxSuite) emit(ctx context.Context) events.Event {
	key, err := models.NewKey(uuid.New(), uuid.New(), models.KeyTypeEVP, "", "", time.Now())
	s.Require().NoError(err)
	event := events.ForKey(key, events.CreateAction, "", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.outbox.Emit(ctx, event))
	return event
}

func (s *PostgresOutboxSuite) TestRolledBackEmitLeavesNoRow() {
	ctx := context.Background()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		s.emit(ctx)
		return context.Canceled
	})
	s.Require().ErrorIs(err, context.Canceled)

	pending, err := s.outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresOutboxSuite) TestConcurrentRelaysSkipLockedRows() {
	ctx := context.Background()
	first := s.emit(ctx)
	s.emit(ctx)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.tx.RunInTx(ctx, func(ctx context.Context) error {
			rows, err := s.outbox.ListUnpublished(ctx, 1)
			if err != nil {
				return err
			}
			s.Len(rows, 1)
			s.Equal(first.ID, rows[0].ID)
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rows, err := s.outbox.ListUnpublished(ctx, 10)
		s.Require().NoError(err)
		s.Len(rows, 1, "row locked by the other relay is skipped")
		s.NotEqual(first.ID, rows[0].ID)
		return nil
	})
	s.Require().NoError(err)
	close(release)
	s.Require().NoError(<-done)
}

func (s *PostgresOutboxSuite) TestMarkPublished() {
	ctx := context.Background()
	event := s.emit(ctx)
	s.Require().NoError(s.outbox.MarkPublished(ctx, []uuid.UUID{event.ID}, time.Now()))

	pending, err := s.outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
