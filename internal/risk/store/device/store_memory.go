package device

import (
	"context"
	"time"

	"warden/internal/risk/models"
	wsync "warden/pkg/platform/sync"
)

// InMemoryDeviceStore holds device profiles keyed by normalized fingerprint.
// Profiles are long-lived. The optional key bound evicts the least recently
// seen profile that never logged in successfully, so a flood of fresh
// fingerprints cannot push out established devices.
type InMemoryDeviceStore struct {
	profiles *wsync.ShardedMap[models.DeviceProfile]
}

func New(maxKeys int) *InMemoryDeviceStore {
	return &InMemoryDeviceStore{
		profiles: wsync.NewShardedMap(
			wsync.WithMaxKeys(maxKeys, func(p models.DeviceProfile) time.Time {
				return p.LastSeen
			}),
			wsync.WithPinned(func(p models.DeviceProfile) bool {
				return p.SuccessfulLogins > 0
			}),
		),
	}
}

func (s *InMemoryDeviceStore) Get(_ context.Context, fingerprint string) (*models.DeviceProfile, error) {
	p, ok := s.profiles.Load(fingerprint)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryDeviceStore) GetOrCreate(_ context.Context, fingerprint string, now time.Time) (*models.DeviceProfile, error) {
	p := s.profiles.Update(fingerprint, func(cur models.DeviceProfile, exists bool) models.DeviceProfile {
		if !exists {
			return *models.NewDeviceProfile(fingerprint, now)
		}
		cur.Touch(now)
		return cur
	})
	return &p, nil
}

func (s *InMemoryDeviceStore) RecordLogin(_ context.Context, fingerprint string, success bool, at time.Time) (*models.DeviceProfile, error) {
	p := s.profiles.Update(fingerprint, func(cur models.DeviceProfile, exists bool) models.DeviceProfile {
		if !exists {
			cur = *models.NewDeviceProfile(fingerprint, at)
		}
		cur.ApplyLogin(success, at)
		return cur
	})
	return &p, nil
}

// Put replaces a profile verbatim. Used when hydrating from a durable store.
func (s *InMemoryDeviceStore) Put(_ context.Context, profile *models.DeviceProfile) error {
	if profile == nil {
		return nil
	}
	p := *profile
	s.profiles.Update(p.Fingerprint, func(models.DeviceProfile, bool) models.DeviceProfile {
		return p
	})
	return nil
}

func (s *InMemoryDeviceStore) Len() int {
	return s.profiles.Len()
}
