//go:build integration

package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/risk/models"
	"warden/internal/risk/store/device"
	"warden/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *device.PostgresStore
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
	s.store = device.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "device_profiles"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) TestUpsertAndGet() {
	ctx := context.Background()
	p := models.NewDeviceProfile("fp-1", s.now)
	p.ApplyLogin(true, s.now)
	s.Require().NoError(s.store.Upsert(ctx, p))

	got, err := s.store.Get(ctx, "fp-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(1, got.SuccessfulLogins)
	s.Equal(p.TrustScore, got.TrustScore)

	missing, err := s.store.Get(ctx, "fp-unknown")
	s.NoError(err)
	s.Nil(missing)
}

func (s *PostgresStoreSuite) TestStaleSnapshotDoesNotRollBack() {
	ctx := context.Background()
	p := models.NewDeviceProfile("fp-1", s.now)
	stale := *p
	p.ApplyLogin(true, s.now.Add(time.Minute))
	p.ApplyLogin(true, s.now.Add(2*time.Minute))

	s.Require().NoError(s.store.Upsert(ctx, p))
	s.Require().NoError(s.store.Upsert(ctx, &stale))

	got, err := s.store.Get(ctx, "fp-1")
	s.Require().NoError(err)
	s.Equal(2, got.SuccessfulLogins)
	s.True(got.LastSeen.Equal(s.now.Add(2 * time.Minute)))
}

func (s *PostgresStoreSuite) TestListRecent() {
	ctx := context.Background()
	for i, fp := range []string{"fp-old", "fp-mid", "fp-new"} {
		s.Require().NoError(s.store.Upsert(ctx, models.NewDeviceProfile(fp, s.now.Add(time.Duration(i)*time.Minute))))
	}
	recent, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("fp-new", recent[0].Fingerprint)
	s.Equal("fp-mid", recent[1].Fingerprint)
}
