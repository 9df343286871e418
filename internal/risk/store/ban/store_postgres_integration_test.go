//go:build integration

package ban_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/risk/models"
	"warden/internal/risk/store/ban"
	"warden/pkg/testutil"
	"warden/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ban.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = ban.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "ban_records"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	record := models.NewBanRecord("10.0.0.1", models.BanLevel2, models.BanReasonChallengeFailure, s.now)
	s.Require().NoError(s.store.Put(ctx, record))

	got, err := s.store.Get(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(record.ID, got.ID)
	s.Equal(models.BanLevel2, got.Level)
	s.Require().NotNil(got.ExpiresAt)
	s.True(record.ExpiresAt.Equal(*got.ExpiresAt))

	missing, err := s.store.Get(ctx, "10.0.0.2")
	s.NoError(err)
	s.Nil(missing)
}

func (s *PostgresStoreSuite) TestUpsertKeepsOneRowPerIP() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.NewBanRecord("10.0.0.1", models.BanLevel1, models.BanReasonChallengeFailure, s.now)))

	permanent := models.NewBanRecord("10.0.0.1", models.BanLevelPermanent, models.BanReasonHighThreat, s.now)
	s.Require().NoError(s.store.Put(ctx, permanent))
	s.Require().NoError(s.store.Put(ctx, permanent))

	var count int
	s.Require().NoError(s.postgres.QueryRow(ctx, `SELECT COUNT(*) FROM ban_records WHERE ip = $1`, "10.0.0.1").Scan(&count))
	s.Equal(1, count)

	got, err := s.store.Get(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Equal(permanent.ID, got.ID)
	s.Nil(got.ExpiresAt)
}

func (s *PostgresStoreSuite) TestExpireBeforeNeverRemovesPermanent() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.NewBanRecord("10.0.0.1", models.BanLevel1, models.BanReasonChallengeFailure, s.now.Add(-time.Hour))))
	s.Require().NoError(s.store.Put(ctx, models.NewBanRecord("10.0.0.2", models.BanLevelPermanent, models.BanReasonHighThreat, s.now.Add(-time.Hour))))

	n, err := s.store.ExpireBefore(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("10.0.0.2", all[0].IP)
}

func (s *PostgresStoreSuite) TestConcurrentPuts() {
	ctx := context.Background()
	result := testutil.RunConcurrent(50, func(int) error {
		return s.store.Put(ctx, models.NewBanRecord("10.0.0.9", models.BanLevelPermanent, models.BanReasonHighThreat, s.now))
	})
	s.Equal(int32(50), result.Successes)

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}
