package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/risk/models"
	"warden/internal/risk/store/writebehind"
)

// DurableStore is the persistence side of the device store.
type DurableStore interface {
	Upsert(ctx context.Context, p *models.DeviceProfile) error
	ListRecent(ctx context.Context, limit int) ([]*models.DeviceProfile, error)
}

// WriteBehindStore serves reads from memory and queues snapshots of every
// mutated profile for the durable store.
type WriteBehindStore struct {
	primary *InMemoryDeviceStore
	durable DurableStore
	queue   *writebehind.Queue
	logger  *slog.Logger
}

func NewWriteBehind(primary *InMemoryDeviceStore, durable DurableStore, queue *writebehind.Queue, logger *slog.Logger) *WriteBehindStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteBehindStore{primary: primary, durable: durable, queue: queue, logger: logger}
}

// Hydrate loads up to limit recently seen profiles into memory.
func (s *WriteBehindStore) Hydrate(ctx context.Context, limit int) (int, error) {
	profiles, err := s.durable.ListRecent(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("hydrate device profiles: %w", err)
	}
	for _, p := range profiles {
		if err := s.primary.Put(ctx, p); err != nil {
			return 0, err
		}
	}
	s.logger.Info("device_profiles_hydrated", "count", len(profiles))
	return len(profiles), nil
}

func (s *WriteBehindStore) Get(ctx context.Context, fingerprint string) (*models.DeviceProfile, error) {
	return s.primary.Get(ctx, fingerprint)
}

func (s *WriteBehindStore) GetOrCreate(ctx context.Context, fingerprint string, now time.Time) (*models.DeviceProfile, error) {
	existed, err := s.primary.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	p, err := s.primary.GetOrCreate(ctx, fingerprint, now)
	if err != nil {
		return nil, err
	}
	// Sightings of known devices only move last_seen; persist creations.
	if existed == nil {
		s.persist(p)
	}
	return p, nil
}

func (s *WriteBehindStore) RecordLogin(ctx context.Context, fingerprint string, success bool, at time.Time) (*models.DeviceProfile, error) {
	p, err := s.primary.RecordLogin(ctx, fingerprint, success, at)
	if err != nil {
		return nil, err
	}
	s.persist(p)
	return p, nil
}

// persist queues a snapshot of p. A rejected enqueue is reported by the
// queue's failure handler; the in-memory profile is already updated.
func (s *WriteBehindStore) persist(p *models.DeviceProfile) {
	snapshot := *p
	_ = s.queue.Enqueue(writebehind.Op{
		Store: "device",
		Name:  "upsert",
		Key:   snapshot.Fingerprint,
		Fn: func(ctx context.Context) error {
			return s.durable.Upsert(ctx, &snapshot)
		},
	})
}
