package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/risk/models"
	"warden/internal/risk/store/writebehind"
)

type InMemoryDeviceStoreSuite struct {
	suite.Suite
	store *InMemoryDeviceStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryDeviceStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryDeviceStoreSuite))
}

func (s *InMemoryDeviceStoreSuite) SetupTest() {
	s.store = New(0)
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
}

func (s *InMemoryDeviceStoreSuite) TestGetUnseen() {
	p, err := s.store.Get(s.ctx, "fp-1")
	s.NoError(err)
	s.Nil(p)
}

func (s *InMemoryDeviceStoreSuite) TestGetOrCreateIsIdempotent() {
	first, err := s.store.GetOrCreate(s.ctx, "fp-1", s.now)
	s.Require().NoError(err)
	second, err := s.store.GetOrCreate(s.ctx, "fp-1", s.now.Add(time.Hour))
	s.Require().NoError(err)

	s.Equal(first.FirstSeen, second.FirstSeen)
	s.Equal(s.now.Add(time.Hour), second.LastSeen)
	s.Equal(1, s.store.Len())
}

func (s *InMemoryDeviceStoreSuite) TestRecordLoginUpdatesTrust() {
	_, err := s.store.GetOrCreate(s.ctx, "fp-1", s.now.Add(-10*24*time.Hour))
	s.Require().NoError(err)

	var p *models.DeviceProfile
	for range 10 {
		p, err = s.store.RecordLogin(s.ctx, "fp-1", true, s.now)
		s.Require().NoError(err)
	}
	s.Equal(10, p.SuccessfulLogins)
	s.Equal(100, p.TrustScore)

	p, err = s.store.RecordLogin(s.ctx, "fp-1", false, s.now)
	s.Require().NoError(err)
	s.Equal(95, p.TrustScore)
}

func (s *InMemoryDeviceStoreSuite) TestRecordLoginCreatesProfile() {
	p, err := s.store.RecordLogin(s.ctx, "fp-new", false, s.now)
	s.Require().NoError(err)
	s.Equal(1, p.FailedAttempts)
	s.Equal(45, p.TrustScore)
}

func (s *InMemoryDeviceStoreSuite) TestConcurrentLogins() {
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			_, _ = s.store.RecordLogin(s.ctx, "fp-1", true, s.now)
		})
	}
	wg.Wait()
	p, _ := s.store.Get(s.ctx, "fp-1")
	s.Equal(100, p.SuccessfulLogins)
}

func (s *InMemoryDeviceStoreSuite) TestFingerprintFloodKeepsTrustedProfiles() {
	store := New(64)
	for range 10 {
		_, err := store.RecordLogin(s.ctx, "fp-trusted", true, s.now.Add(-30*24*time.Hour))
		s.Require().NoError(err)
	}

	for i := range 5000 {
		_, err := store.GetOrCreate(s.ctx, fmt.Sprintf("fp-rotating-%d", i), s.now.Add(time.Duration(i)*time.Millisecond))
		s.Require().NoError(err)
	}

	p, err := store.Get(s.ctx, "fp-trusted")
	s.Require().NoError(err)
	s.Require().NotNil(p, "a device with login history is never evicted")
	s.Equal(10, p.SuccessfulLogins)
	s.LessOrEqual(store.Len(), 64+1, "unauthenticated sightings stay bounded")
}

type fakeDurable struct {
	mu      sync.Mutex
	upserts []models.DeviceProfile
	recent  []*models.DeviceProfile
	err     error
	listErr error
}

func (f *fakeDurable) Upsert(_ context.Context, p *models.DeviceProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, *p)
	return nil
}

func (f *fakeDurable) ListRecent(context.Context, int) ([]*models.DeviceProfile, error) {
	return f.recent, f.listErr
}

type WriteBehindStoreSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	durable *fakeDurable
	queue   *writebehind.Queue
	store   *WriteBehindStore
}

func TestWriteBehindStoreSuite(t *testing.T) {
	suite.Run(t, new(WriteBehindStoreSuite))
}

func (s *WriteBehindStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.durable = &fakeDurable{}
	s.queue = writebehind.New(16)
	s.store = NewWriteBehind(New(0), s.durable, s.queue, nil)
}

func (s *WriteBehindStoreSuite) TestCreationAndLoginsArePersisted() {
	_, err := s.store.GetOrCreate(s.ctx, "fp-1", s.now)
	s.Require().NoError(err)
	_, err = s.store.GetOrCreate(s.ctx, "fp-1", s.now.Add(time.Second))
	s.Require().NoError(err)
	_, err = s.store.RecordLogin(s.ctx, "fp-1", true, s.now.Add(2*time.Second))
	s.Require().NoError(err)

	s.Equal(2, s.queue.Len(), "repeat sightings are not queued")
	s.queue.Flush(s.ctx)
	s.Require().Len(s.durable.upserts, 2)
	s.Equal(1, s.durable.upserts[1].SuccessfulLogins)
}

func (s *WriteBehindStoreSuite) TestDurableFailureDoesNotAffectReads() {
	s.durable.err = errors.New("connection refused")
	p, err := s.store.RecordLogin(s.ctx, "fp-1", true, s.now)
	s.Require().NoError(err)
	s.queue.Flush(s.ctx)

	got, err := s.store.Get(s.ctx, "fp-1")
	s.Require().NoError(err)
	s.Equal(p.SuccessfulLogins, got.SuccessfulLogins)
}

func (s *WriteBehindStoreSuite) TestHydrate() {
	s.durable.recent = []*models.DeviceProfile{
		{Fingerprint: "fp-a", FirstSeen: s.now, LastSeen: s.now, SuccessfulLogins: 3, TrustScore: 56},
	}
	n, err := s.store.Hydrate(s.ctx, 100)
	s.Require().NoError(err)
	s.Equal(1, n)

	p, _ := s.store.Get(s.ctx, "fp-a")
	s.Require().NotNil(p)
	s.Equal(3, p.SuccessfulLogins)

	s.durable.listErr = errors.New("boom")
	_, err = s.store.Hydrate(s.ctx, 100)
	s.Error(err)
}
