package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"warden/internal/platform/kafka/producer"
	"warden/internal/risk/models"
)

// LogSink writes every event as a structured log line. Alerts are logged at
// warn so they stand out.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(ctx context.Context, event models.Event) error {
	level := slog.LevelInfo
	switch event.Type {
	case models.EventHighThreatAlert, models.EventStoreUnavailable:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "risk_event",
		"event_id", event.ID,
		"event_type", event.Type,
		"payload", event.Payload,
		"occurred_at", event.Timestamp,
	)
	return nil
}

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaSink publishes events as JSON, keyed by event type so that one type
// stays ordered within a partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(_ context.Context, event models.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal risk event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(event.Type),
		Value: value,
		Headers: map[string]string{
			"event_id":   event.ID.String(),
			"event_type": string(event.Type),
		},
	})
}

// PostgresSink appends events to risk_events. Inserts are idempotent on the
// event ID.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal risk event payload: %w", err)
	}
	query := `
		INSERT INTO risk_events (id, type, payload, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, event.ID, string(event.Type), payload, event.Timestamp); err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events of type, or of every type when
// eventType is empty.
func (s *PostgresSink) ListRecent(ctx context.Context, eventType models.EventType, limit int) ([]models.Event, error) {
	query := `
		SELECT id, type, payload, occurred_at
		FROM risk_events
		WHERE $1 = '' OR type = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("list risk events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			e       models.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &typ, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		e.Type = models.EventType(typ)
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode risk event payload: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk events: %w", err)
	}
	return out, nil
}

// MemorySink keeps the most recent events in memory.
type MemorySink struct {
	mu     sync.Mutex
	limit  int
	events []models.Event
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 1000
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Write(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if over := len(s.events) - s.limit; over > 0 {
		s.events = append(s.events[:0], s.events[over:]...)
	}
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (s *MemorySink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns the retained events of type t.
func (s *MemorySink) OfType(t models.EventType) []models.Event {
	var out []models.Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
