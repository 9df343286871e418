package ban

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/risk/models"
	"warden/internal/risk/ports"
	"warden/internal/risk/store/writebehind"
)

// WriteBehindStore serves every read from the in-memory store and mirrors
// writes to one or more durable stores through the write-behind queue. The
// request path never waits on the durable side.
type WriteBehindStore struct {
	primary  *InMemoryBanStore
	durables []ports.BanStore
	queue    *writebehind.Queue
	logger   *slog.Logger
}

func NewWriteBehind(primary *InMemoryBanStore, queue *writebehind.Queue, logger *slog.Logger, durables ...ports.BanStore) *WriteBehindStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteBehindStore{
		primary:  primary,
		durables: durables,
		queue:    queue,
		logger:   logger,
	}
}

// Hydrate loads durable records into memory. Call once at startup before
// serving traffic. Records from later durables win over earlier ones only
// when they are more severe.
func (s *WriteBehindStore) Hydrate(ctx context.Context, now time.Time) (int, error) {
	loaded := 0
	for _, d := range s.durables {
		records, err := d.List(ctx)
		if err != nil {
			return loaded, fmt.Errorf("hydrate ban records: %w", err)
		}
		for _, r := range records {
			if r.Expired(now) {
				continue
			}
			existing, _ := s.primary.Get(ctx, r.IP)
			if existing != nil && existing.Level.Rank() >= r.Level.Rank() {
				continue
			}
			if err := s.primary.Put(ctx, r); err != nil {
				return loaded, err
			}
			loaded++
		}
	}
	s.logger.Info("ban_records_hydrated", "count", loaded)
	return loaded, nil
}

func (s *WriteBehindStore) Get(ctx context.Context, ip string) (*models.BanRecord, error) {
	return s.primary.Get(ctx, ip)
}

func (s *WriteBehindStore) List(ctx context.Context) ([]*models.BanRecord, error) {
	return s.primary.List(ctx)
}

func (s *WriteBehindStore) Put(ctx context.Context, record *models.BanRecord) error {
	if err := s.primary.Put(ctx, record); err != nil {
		return err
	}
	snapshot := record.Clone()
	s.mirror("put", record.IP, func(ctx context.Context, d ports.BanStore) error {
		return d.Put(ctx, snapshot)
	})
	return nil
}

func (s *WriteBehindStore) Delete(ctx context.Context, ip string) error {
	if err := s.primary.Delete(ctx, ip); err != nil {
		return err
	}
	s.mirror("delete", ip, func(ctx context.Context, d ports.BanStore) error {
		return d.Delete(ctx, ip)
	})
	return nil
}

func (s *WriteBehindStore) ExpireBefore(ctx context.Context, now time.Time) (int, error) {
	n, err := s.primary.ExpireBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	s.mirror("expire", "", func(ctx context.Context, d ports.BanStore) error {
		_, err := d.ExpireBefore(ctx, now)
		return err
	})
	return n, nil
}

// mirror enqueues fn once per durable store. The in-memory write has already
// been applied and is what callers see, so a rejected enqueue is not a failed
// write: the queue reports it through its failure handler.
func (s *WriteBehindStore) mirror(name, key string, fn func(context.Context, ports.BanStore) error) {
	for _, d := range s.durables {
		_ = s.queue.Enqueue(writebehind.Op{
			Store: "ban",
			Name:  name,
			Key:   key,
			Fn: func(ctx context.Context) error {
				return fn(ctx, d)
			},
		})
	}
}
