//go:build integration

package ban_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/risk/models"
	"warden/internal/risk/store/ban"
	"warden/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ban.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = ban.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.Flush(context.Background()))
}

func (s *RedisStoreSuite) TestLadderBanCarriesTTL() {
	ctx := context.Background()
	record := models.NewBanRecord("10.0.0.1", models.BanLevel1, models.BanReasonChallengeFailure, time.Now())
	s.Require().NoError(s.store.Put(ctx, record))

	ttl, err := s.redis.Client.TTL(ctx, "warden:ban:10.0.0.1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 4*time.Minute)
	s.LessOrEqual(ttl, 5*time.Minute)

	got, err := s.store.Get(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Equal(record.ID, got.ID)
}

func (s *RedisStoreSuite) TestPermanentBanHasNoTTL() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.NewBanRecord("10.0.0.2", models.BanLevelPermanent, models.BanReasonHighThreat, time.Now())))

	ttl, err := s.redis.Client.TTL(ctx, "warden:ban:10.0.0.2").Result()
	s.Require().NoError(err)
	s.Equal(time.Duration(-1), ttl)
}

func (s *RedisStoreSuite) TestAlreadyExpiredPutDeletes() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.NewBanRecord("10.0.0.3", models.BanLevel1, models.BanReasonChallengeFailure, time.Now())))
	stale := models.NewBanRecord("10.0.0.3", models.BanLevel1, models.BanReasonChallengeFailure, time.Now().Add(-time.Hour))
	s.Require().NoError(s.store.Put(ctx, stale))

	got, err := s.store.Get(ctx, "10.0.0.3")
	s.NoError(err)
	s.Nil(got)
}

func (s *RedisStoreSuite) TestListAndDelete() {
	ctx := context.Background()
	for _, ip := range []string{"10.0.0.5", "10.0.0.4"} {
		s.Require().NoError(s.store.Put(ctx, models.NewBanRecord(ip, models.BanLevelPermanent, models.BanReasonHighThreat, time.Now())))
	}
	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("10.0.0.4", all[0].IP)

	s.Require().NoError(s.store.Delete(ctx, "10.0.0.4"))
	all, err = s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}
