// Package writebehind moves durable store writes off the request path. Writes
// are queued in a bounded channel and applied by a single background worker
// behind a circuit breaker.
package writebehind

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/internal/risk/metrics"
	"warden/pkg/platform/circuit"
)

// ErrQueueFull is reported when an op is rejected because the queue is at
// capacity.
var ErrQueueFull = errors.New("write-behind queue full")

// ErrCircuitOpen is reported when an op is dropped while the backend circuit
// is open.
var ErrCircuitOpen = errors.New("durable store circuit open")

// Op is one durable write.
type Op struct {
	Store string // ban, device, event
	Name  string // put, delete, expire, ...
	Key   string
	Fn    func(ctx context.Context) error
}

// FailureFunc is called for every op that was not applied.
type FailureFunc func(op Op, err error)

type Queue struct {
	ops       chan Op
	breaker   *circuit.Breaker
	opTimeout time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onFailure FailureFunc
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(q *Queue) {
		if b != nil {
			q.breaker = b
		}
	}
}

func WithOpTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.opTimeout = d
		}
	}
}

// WithFailureHandler registers a callback for dropped and failed ops.
func WithFailureHandler(fn FailureFunc) Option {
	return func(q *Queue) {
		q.onFailure = fn
	}
}

func New(size int, opts ...Option) *Queue {
	q := &Queue{
		ops:       make(chan Op, max(size, 1)),
		breaker:   circuit.New("durable"),
		opTimeout: 2 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules op without blocking. A full queue rejects the op and
// reports it through the failure handler.
func (q *Queue) Enqueue(op Op) error {
	select {
	case q.ops <- op:
		q.metrics.SetQueueDepth(len(q.ops))
		return nil
	default:
		q.metrics.IncrementWriteBehind("rejected")
		q.fail(op, ErrQueueFull)
		return ErrQueueFull
	}
}

// Len returns the number of pending ops.
func (q *Queue) Len() int {
	return len(q.ops)
}

// Run applies queued ops until ctx is cancelled, then drains what is left
// with a bounded budget.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case op := <-q.ops:
			q.apply(ctx, op)
		case <-ctx.Done():
			q.drain()
			q.logger.Info("writebehind_queue_stopped", "reason", ctx.Err())
			return nil
		}
	}
}

// Flush applies every op currently queued and returns. Intended for tests
// and shutdown.
func (q *Queue) Flush(ctx context.Context) {
	for {
		select {
		case op := <-q.ops:
			q.apply(ctx, op)
		default:
			return
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*q.opTimeout)
	defer cancel()
	q.Flush(ctx)
}

func (q *Queue) apply(ctx context.Context, op Op) {
	defer q.metrics.SetQueueDepth(len(q.ops))

	if !q.breaker.Allow() {
		q.metrics.IncrementWriteBehind("dropped")
		q.fail(op, ErrCircuitOpen)
		return
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.opTimeout)
	err := op.Fn(opCtx)
	cancel()

	if err != nil {
		q.metrics.IncrementWriteBehind("error")
		if change := q.breaker.RecordFailure(); change.Opened {
			q.logger.Warn("durable_store_circuit_opened", "circuit", q.breaker.Name())
		}
		q.metrics.SetCircuitState(q.breaker.Name(), int(q.breaker.State()))
		q.fail(op, err)
		return
	}

	q.metrics.IncrementWriteBehind("ok")
	if change := q.breaker.RecordSuccess(); change.Closed {
		q.logger.Info("durable_store_circuit_closed", "circuit", q.breaker.Name())
	}
	q.metrics.SetCircuitState(q.breaker.Name(), int(q.breaker.State()))
}

func (q *Queue) fail(op Op, err error) {
	q.logger.Warn("durable_write_failed",
		"store", op.Store,
		"operation", op.Name,
		"error", err,
	)
	if q.onFailure != nil {
		q.onFailure(op, err)
	}
}
