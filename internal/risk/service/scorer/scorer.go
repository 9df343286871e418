// Package scorer combines collector output into a bounded risk score.
package scorer

import (
	"context"
	"fmt"
	"log/slog"

	"warden/internal/platform/privacy"
	"warden/internal/risk/events"
	"warden/internal/risk/metrics"
	"warden/internal/risk/ports"
	"warden/internal/risk/signals"
	dErrors "warden/pkg/domain-errors"
)

// Score is the outcome of one scoring pass.
type Score struct {
	// Value is the capped sum of contributions.
	Value int
	// Signals holds every signal produced, fired or not, in collector order.
	Signals []signals.Signal
	// ReasonCodes has one entry per fired signal.
	ReasonCodes []string
	// Failed lists collectors that contributed zero because they errored.
	Failed []string

	max int
}

// Excluding returns the capped score without the named signal.
func (s Score) Excluding(name string) int {
	sum := 0
	for _, sig := range s.Signals {
		if sig.Name != name {
			sum += sig.Contribution()
		}
	}
	return min(sum, s.max)
}

// Fired reports whether the named signal fired.
func (s Score) Fired(name string) bool {
	for _, sig := range s.Signals {
		if sig.Name == name && sig.Fired {
			return true
		}
	}
	return false
}

// Scorer runs every collector and sums their contributions, capped at
// MaxScore. A failing or panicking collector counts as zero.
type Scorer struct {
	collectors []signals.Collector
	maxScore   int
	publisher  ports.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Scorer)

func WithPublisher(p ports.Publisher) Option {
	return func(s *Scorer) {
		s.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scorer) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New panics on a non-positive maxScore; configuration is validated before
// this is reached.
func New(collectors []signals.Collector, maxScore int, opts ...Option) *Scorer {
	if maxScore <= 0 {
		panic("scorer.New: maxScore must be positive")
	}
	s := &Scorer{
		collectors: collectors,
		maxScore:   maxScore,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score evaluates in. It never fails: collector errors are reported as
// events and scored as zero.
func (s *Scorer) Score(ctx context.Context, in signals.Input) Score {
	out := Score{max: s.maxScore, ReasonCodes: []string{}}
	sum := 0
	for _, c := range s.collectors {
		sigs, err := s.collect(ctx, c, in)
		if err != nil {
			s.reportFailure(ctx, c.Name(), in, err)
			out.Failed = append(out.Failed, c.Name())
			continue
		}
		for _, sig := range sigs {
			out.Signals = append(out.Signals, sig)
			if sig.Fired {
				sum += sig.Contribution()
				out.ReasonCodes = append(out.ReasonCodes, sig.Reason)
				s.metrics.IncrementSignalFired(sig.Name)
			}
		}
	}
	out.Value = max(0, min(sum, s.maxScore))
	return out
}

func (s *Scorer) collect(ctx context.Context, c signals.Collector, in signals.Input) (sigs []signals.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = dErrors.SignalError(c.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	return c.Collect(ctx, in)
}

func (s *Scorer) reportFailure(ctx context.Context, name string, in signals.Input, err error) {
	s.metrics.IncrementSignalError(name)
	s.logger.Warn("signal_failed",
		"signal", name,
		"ip", privacy.AnonymizeIP(in.Request.IP),
		"error", err,
	)
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, events.SignalError(name, in.Request.IP, err, in.Now))
	if dErrors.HasCode(err, dErrors.CodeStoreUnavailable) {
		_ = s.publisher.Publish(ctx, events.StoreUnavailable(storeFor(name), "collect", in.Request.IP, err, in.Now))
	}
}

func storeFor(signal string) string {
	switch signal {
	case signals.NameBlacklist:
		return "ban"
	case signals.NameDeviceTrust:
		return "device"
	default:
		return "window"
	}
}
