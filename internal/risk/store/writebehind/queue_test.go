package writebehind

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/pkg/platform/circuit"
)

type QueueSuite struct {
	suite.Suite
	mu       sync.Mutex
	failures []error
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) SetupTest() {
	s.failures = nil
}

func (s *QueueSuite) recordFailure(_ Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func (s *QueueSuite) TestAppliesOpsInOrder() {
	q := New(8)
	var applied []string
	for _, key := range []string{"a", "b", "c"} {
		s.Require().NoError(q.Enqueue(Op{Store: "ban", Name: "put", Key: key, Fn: func(context.Context) error {
			applied = append(applied, key)
			return nil
		}}))
	}
	s.Equal(3, q.Len())

	q.Flush(context.Background())
	s.Equal([]string{"a", "b", "c"}, applied)
	s.Zero(q.Len())
}

func (s *QueueSuite) TestFullQueueRejectsWithoutBlocking() {
	q := New(1, WithFailureHandler(s.recordFailure))
	noop := func(context.Context) error { return nil }

	s.Require().NoError(q.Enqueue(Op{Fn: noop}))
	err := q.Enqueue(Op{Fn: noop})
	s.ErrorIs(err, ErrQueueFull)
	s.Require().Len(s.failures, 1)
	s.ErrorIs(s.failures[0], ErrQueueFull)
}

func (s *QueueSuite) TestBreakerOpensAndDropsOps() {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	q := New(8, WithBreaker(breaker), WithFailureHandler(s.recordFailure))

	calls := 0
	failing := func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}
	for range 3 {
		s.Require().NoError(q.Enqueue(Op{Store: "ban", Name: "put", Fn: failing}))
	}
	q.Flush(context.Background())

	s.Equal(2, calls, "third op is short-circuited by the open breaker")
	s.Equal(circuit.StateOpen, breaker.State())
	s.Require().Len(s.failures, 3)
	s.ErrorIs(s.failures[2], ErrCircuitOpen)
}

func (s *QueueSuite) TestOpTimeoutIsApplied() {
	q := New(1, WithOpTimeout(10*time.Millisecond), WithFailureHandler(s.recordFailure))
	s.Require().NoError(q.Enqueue(Op{Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	q.Flush(context.Background())
	s.Require().Len(s.failures, 1)
	s.ErrorIs(s.failures[0], context.DeadlineExceeded)
}

func (s *QueueSuite) TestRunDrainsOnCancel() {
	q := New(8)
	done := make(chan struct{})
	applied := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 3 {
		s.Require().NoError(q.Enqueue(Op{Fn: func(context.Context) error {
			applied++
			return nil
		}}))
	}
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("queue did not stop")
	}
	s.Equal(3, applied)
}
