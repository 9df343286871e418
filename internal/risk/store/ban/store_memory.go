package ban

import (
	"context"
	"slices"
	"strings"
	"time"

	"warden/internal/risk/models"
	wsync "warden/pkg/platform/sync"
)

// InMemoryBanStore is the request-path ban store. Records are cloned on the
// way in and out so callers never share a pointer with the map.
type InMemoryBanStore struct {
	records *wsync.ShardedMap[*models.BanRecord]
}

func New() *InMemoryBanStore {
	return &InMemoryBanStore{records: wsync.NewShardedMap[*models.BanRecord]()}
}

func (s *InMemoryBanStore) Get(_ context.Context, ip string) (*models.BanRecord, error) {
	record, ok := s.records.Load(ip)
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

func (s *InMemoryBanStore) Put(_ context.Context, record *models.BanRecord) error {
	if record == nil {
		return nil
	}
	stored := record.Clone()
	s.records.Update(record.IP, func(*models.BanRecord, bool) *models.BanRecord {
		return stored
	})
	return nil
}

func (s *InMemoryBanStore) Delete(_ context.Context, ip string) error {
	s.records.Delete(ip)
	return nil
}

func (s *InMemoryBanStore) ExpireBefore(_ context.Context, now time.Time) (int, error) {
	return s.records.DeleteFunc(func(_ string, r *models.BanRecord) bool {
		return r.Expired(now)
	}), nil
}

// List returns every record ordered by IP.
func (s *InMemoryBanStore) List(_ context.Context) ([]*models.BanRecord, error) {
	out := make([]*models.BanRecord, 0, s.records.Len())
	s.records.Range(func(_ string, r *models.BanRecord) bool {
		out = append(out, r.Clone())
		return true
	})
	slices.SortFunc(out, func(a, b *models.BanRecord) int {
		return strings.Compare(a.IP, b.IP)
	})
	return out, nil
}
