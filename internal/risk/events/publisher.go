// Package events fans risk events out to alerting and observability sinks.
// Publishing never blocks the request path: events are buffered and a single
// background goroutine writes them to every sink.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"warden/internal/risk/metrics"
	"warden/internal/risk/models"
	dErrors "warden/pkg/domain-errors"
)

const (
	defaultBufferSize   = 1024
	defaultWriteTimeout = 2 * time.Second
)

// Sink is one destination for the event stream.
type Sink interface {
	Name() string
	Write(ctx context.Context, event models.Event) error
}

// Publisher buffers events and delivers them to its sinks in order.
type Publisher struct {
	sinks        []Sink
	events       chan models.Event
	wg           sync.WaitGroup
	logger       *slog.Logger
	metrics      *metrics.Metrics
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithBufferSize sets how many events may wait for delivery before new ones
// are dropped.
func WithBufferSize(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan models.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithWriteTimeout bounds each sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

func NewPublisher(sinks []Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sinks:        sinks,
		events:       make(chan models.Event, defaultBufferSize),
		logger:       slog.Default(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.processEvents()
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		for _, sink := range p.sinks {
			p.deliver(sink, event)
		}
		p.metrics.IncrementEventsPublished(string(event.Type))
	}
}

func (p *Publisher) deliver(sink Sink, event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := sink.Write(ctx, event); err != nil {
		p.logger.Error("risk_event_sink_failed",
			"sink", sink.Name(),
			"event_type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
	}
}

// Publish queues event for delivery. A full buffer drops the event and
// returns an error; the caller is never blocked. ctx is not consulted: an
// event raised by a request outlives it.
func (p *Publisher) Publish(_ context.Context, event models.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return dErrors.New(dErrors.CodeInternal, "event publisher closed")
	}

	select {
	case p.events <- event:
		return nil
	default:
		p.metrics.IncrementEventsDropped()
		p.logger.Warn("risk_event_dropped",
			"event_type", event.Type,
			"reason", "buffer_full",
		)
		return dErrors.New(dErrors.CodeInternal, "event buffer full")
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	p.wg.Wait()
}
