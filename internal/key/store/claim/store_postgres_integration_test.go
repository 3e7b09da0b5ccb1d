//go:build integration

package claim_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dictkeys/internal/key/models"
	claimstore "dictkeys/internal/key/store/claim"
	keystore "dictkeys/internal/key/store/key"
	"dictkeys/pkg/platform/sentinel"
	"dictkeys/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	keys     *keystore.PostgresStore
	store    *claimstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.keys = keystore.NewPostgres(s.postgres.DB)
	s.store = claimstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "claims", "keys"))
}

func (s *PostgresStoreSuite) seedKey() *models.Key {
	key, err := models.NewKey(uuid.New(), uuid.New(), models.KeyTypeEVP, "", "", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.keys.Create(context.Background(), key))
	return key
}

func (s *PostgresStoreSuite) TestRoundTripAndUniqueness() {
	ctx := context.Background()
	key := s.seedKey()
	resolution := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Microsecond)
	claim := models.NewClaim(uuid.New(), key, models.ClaimOwnership, models.ClaimInput{
		DirectoryClaimID: "dir-1",
		CounterpartISPB:  "99999999",
		ResolutionAt:     &resolution,
	}, time.Now())

	s.Require().NoError(s.store.Create(ctx, claim))
	s.ErrorIs(s.store.Create(ctx, models.NewClaim(uuid.New(), key, models.ClaimOwnership, models.ClaimInput{
		DirectoryClaimID: "dir-2",
		CounterpartISPB:  "99999999",
	}, time.Now())), sentinel.ErrConflict)

	found, err := s.store.FindByDirectoryID(ctx, "dir-1")
	s.Require().NoError(err)
	s.Equal(claim.ID, found.ID)
	s.Require().NotNil(found.ResolutionAt)
	s.True(resolution.Equal(*found.ResolutionAt))
	s.Nil(found.CanceledAt)

	found.ApplyStatus(models.ClaimStatusCanceled, "fraud", time.Now())
	s.Require().NoError(s.store.Update(ctx, found))
	updated, err := s.store.FindByKey(ctx, key.ID, models.ClaimOwnership)
	s.Require().NoError(err)
	s.Equal(models.ClaimStatusCanceled, updated.Status)
	s.Equal("fraud", updated.CancelReason)
	s.NotNil(updated.CanceledAt)

	s.Nil(updated.ClosedAt)

	closedAt := time.Now().UTC().Truncate(time.Microsecond)
	updated.Close(closedAt)
	s.Require().NoError(s.store.Update(ctx, updated))

	_, err = s.store.FindByKey(ctx, key.ID, models.ClaimOwnership)
	s.ErrorIs(err, sentinel.ErrNotFound)
	claims, err := s.store.ListByKey(ctx, key.ID)
	s.Require().NoError(err)
	s.Require().Len(claims, 1)
	s.Require().NotNil(claims[0].ClosedAt)
	s.True(closedAt.Equal(*claims[0].ClosedAt))

	// the partial index only guards open claims
	s.NoError(s.store.Create(ctx, models.NewClaim(uuid.New(), key, models.ClaimOwnership, models.ClaimInput{
		DirectoryClaimID: "dir-3",
		CounterpartISPB:  "99999999",
	}, time.Now())))
}
