// Package sweeper runs the periodic maintenance pass over the risk engine's
// state: stale windows, the threat snapshot, expired bans and old offenses.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"warden/internal/risk/config"
	"warden/internal/risk/events"
	"warden/internal/risk/metrics"
	"warden/internal/risk/models"
	"warden/internal/risk/ports"
)

// Task names, used in logs, metrics and the SWEEP_COMPLETED payload.
const (
	TaskExpireWindows   = "expire_windows"
	TaskRefreshSnapshot = "refresh_snapshot"
	TaskExpireBans      = "expire_bans"
	TaskForgetOffenses  = "forget_offenses"

	// TaskPurgeClassifierCache is registered by cmd/server through WithTask.
	TaskPurgeClassifierCache = "purge_classifier_cache"
)

// TaskFunc is one unit of sweep work. It returns how many items it touched.
type TaskFunc func(ctx context.Context) (int, error)

// SnapshotSink receives each recomputed threat snapshot.
type SnapshotSink interface {
	StoreSnapshot(s models.ThreatSnapshot)
}

// TaskResult is the outcome of one task in one sweep.
type TaskResult struct {
	Count int
	Err   error
}

// Result is the outcome of one sweep. Tasks is keyed by task name.
type Result struct {
	Tasks    map[string]TaskResult
	Snapshot *models.ThreatSnapshot
	Duration time.Duration
}

// Failed reports whether any task failed.
func (r Result) Failed() bool {
	for _, t := range r.Tasks {
		if t.Err != nil {
			return true
		}
	}
	return false
}

type Sweeper struct {
	windows   ports.WindowStore
	bans      ports.BanStore
	offenses  ports.OffenseLedger
	snapshots SnapshotSink
	publisher ports.Publisher
	cfg       config.SweeperConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	extra     map[string]TaskFunc
}

type Option func(*Sweeper)

// WithTask adds a task that runs alongside the built-in ones. Built-in names
// cannot be replaced.
func WithTask(name string, fn TaskFunc) Option {
	return func(s *Sweeper) {
		if name == "" || fn == nil {
			return
		}
		if s.extra == nil {
			s.extra = make(map[string]TaskFunc)
		}
		s.extra[name] = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithPublisher(p ports.Publisher) Option {
	return func(s *Sweeper) {
		s.publisher = p
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func New(
	windows ports.WindowStore,
	bans ports.BanStore,
	offenses ports.OffenseLedger,
	snapshots SnapshotSink,
	cfg config.SweeperConfig,
	opts ...Option,
) *Sweeper {
	s := &Sweeper{
		windows:   windows,
		bans:      bans,
		offenses:  offenses,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps every cfg.Interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res := s.RunOnce(ctx)
			if res.Failed() {
				s.logger.Warn("risk_sweep_completed_with_errors", resultAttrs(res)...)
				continue
			}
			s.logger.Info("risk_sweep_completed", resultAttrs(res)...)
		case <-ctx.Done():
			s.logger.Info("risk sweeper stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce runs every task concurrently. A failing or panicking task never
// stops the others.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	start := time.Now()
	now := s.now()

	var (
		mu       sync.Mutex
		results  = make(map[string]TaskResult, 4)
		snapshot *models.ThreatSnapshot
	)
	record := func(name string, count int, err error) {
		mu.Lock()
		results[name] = TaskResult{Count: count, Err: err}
		mu.Unlock()
	}

	tasks := map[string]TaskFunc{
		TaskExpireWindows: func(ctx context.Context) (int, error) {
			n, err := s.windows.ExpireStale(ctx, now.Add(-s.cfg.StaleAfter))
			s.metrics.AddPatternsExpired(n)
			return n, err
		},
		TaskRefreshSnapshot: func(ctx context.Context) (int, error) {
			suspicious, tracked, err := s.windows.ActivitySnapshot(ctx, s.cfg.SuspicionThreshold)
			if err != nil {
				return 0, err
			}
			snap := models.ThreatSnapshot{
				GeneratedAt:   now,
				Threshold:     s.cfg.SuspicionThreshold,
				TrackedIPs:    tracked,
				SuspiciousIPs: suspicious,
			}
			if s.snapshots != nil {
				s.snapshots.StoreSnapshot(snap)
			}
			s.metrics.SetSnapshot(tracked, len(suspicious))
			mu.Lock()
			snapshot = &snap
			mu.Unlock()
			return len(suspicious), nil
		},
		TaskExpireBans: func(ctx context.Context) (int, error) {
			n, err := s.bans.ExpireBefore(ctx, now)
			s.metrics.AddBansExpired(n)
			return n, err
		},
		TaskForgetOffenses: func(ctx context.Context) (int, error) {
			return s.offenses.ForgetBefore(ctx, now.Add(-s.cfg.OffenseMemory))
		},
	}

	for name, fn := range s.extra {
		if _, builtin := tasks[name]; !builtin {
			tasks[name] = fn
		}
	}

	var g errgroup.Group
	for name, task := range tasks {
		g.Go(func() error {
			n, err := s.runTask(ctx, name, task)
			record(name, n, err)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Tasks: results, Snapshot: snapshot, Duration: time.Since(start)}
	s.metrics.ObserveSweepDuration(res.Duration.Seconds())
	s.publishCompleted(ctx, res, now)
	return res
}

func (s *Sweeper) runTask(ctx context.Context, name string, task TaskFunc) (n int, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("sweep task %s panicked: %v", name, r)
		}
		status := "success"
		if err != nil {
			status = "error"
			s.logger.Error("risk_sweep_task_failed", "task", name, "error", err)
		}
		s.metrics.IncrementSweepTask(name, status)
	}()
	return task(ctx)
}

func (s *Sweeper) publishCompleted(ctx context.Context, res Result, now time.Time) {
	if s.publisher == nil {
		return
	}
	tasks := make(map[string]any, len(res.Tasks))
	for name, t := range res.Tasks {
		entry := map[string]any{"status": "ok", "count": t.Count}
		if t.Err != nil {
			entry["status"] = "error"
			entry["error"] = t.Err.Error()
		}
		tasks[name] = entry
	}
	if err := s.publisher.Publish(ctx, events.SweepCompleted(tasks, res.Duration, now)); err != nil {
		s.logger.Warn("risk_event_publish_failed", "event_type", models.EventSweepCompleted, "error", err)
	}
}

func resultAttrs(res Result) []any {
	attrs := []any{"duration_ms", res.Duration.Milliseconds()}
	for name, t := range res.Tasks {
		attrs = append(attrs, name, t.Count)
	}
	return attrs
}
