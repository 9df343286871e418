//go:build integration

// Package containers starts the Postgres, Redpanda and Redis fixtures used by
// warden's integration tests. Each backend is started at most once per test
// binary and shared by every suite in the package; Ryuk reaps them on exit.
package containers

import (
	"sync"
	"testing"
)

// shared starts a fixture on first use and hands the same instance to every
// later caller.
type shared[T any] struct {
	mu    sync.Mutex
	value *T
}

func (s *shared[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value == nil {
		s.value = start(t)
	}
	return s.value
}

// Manager hands out the shared fixtures.
type Manager struct {
	postgres shared[PostgresContainer]
	kafka    shared[KafkaContainer]
	redis    shared[RedisContainer]
}

var manager = &Manager{}

// GetManager returns the package-wide fixture manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns the shared Postgres fixture. Migrations are applied by
// the caller.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

// GetKafka returns the shared Redpanda broker.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}
