// Package engine is the entry point of the risk engine: it scores a request,
// dispatches the action and keeps device profiles current.
package engine

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"warden/internal/platform/privacy"
	"warden/internal/platform/tracing"
	"warden/internal/risk/config"
	"warden/internal/risk/events"
	"warden/internal/risk/metrics"
	"warden/internal/risk/models"
	"warden/internal/risk/ports"
	"warden/internal/risk/service/dispatcher"
	"warden/internal/risk/service/scorer"
	"warden/internal/risk/signals"
	dErrors "warden/pkg/domain-errors"
)

// Deps are the stores and collaborators the engine needs. All are required.
type Deps struct {
	Bans       ports.BanStore
	Windows    ports.WindowStore
	Devices    ports.DeviceStore
	Offenses   ports.OffenseLedger
	Classifier ports.IPClassifier
	Publisher  ports.Publisher
}

type Engine struct {
	cfg        *config.Config
	bans       ports.BanStore
	windows    ports.WindowStore
	devices    ports.DeviceStore
	publisher  ports.Publisher
	scorer     *scorer.Scorer
	dispatcher *dispatcher.Dispatcher

	collectors []signals.Collector
	tracer     tracing.Tracer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	snapshot atomic.Pointer[models.ThreatSnapshot]
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t tracing.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCollectors replaces the default collector set.
func WithCollectors(c ...signals.Collector) Option {
	return func(e *Engine) {
		e.collectors = c
	}
}

// New validates cfg and wires the scorer and dispatcher. An invalid
// configuration is a CodeConfiguration error.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Bans == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "ban store is required")
	case deps.Windows == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "window store is required")
	case deps.Devices == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "device store is required")
	case deps.Offenses == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "offense ledger is required")
	case deps.Classifier == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "ip classifier is required")
	case deps.Publisher == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "event publisher is required")
	}

	e := &Engine{
		cfg:       cfg,
		bans:      deps.Bans,
		windows:   deps.Windows,
		devices:   deps.Devices,
		publisher: deps.Publisher,
		tracer:    tracing.NewNoop(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.collectors == nil {
		e.collectors = signals.Default(cfg, signals.Deps{
			Bans:       deps.Bans,
			Windows:    deps.Windows,
			Devices:    deps.Devices,
			Classifier: deps.Classifier,
		})
	}

	e.scorer = scorer.New(e.collectors, cfg.Thresholds.MaxScore,
		scorer.WithPublisher(deps.Publisher),
		scorer.WithMetrics(e.metrics),
		scorer.WithLogger(e.logger),
	)
	e.dispatcher = dispatcher.New(deps.Bans, deps.Windows, deps.Offenses, cfg,
		dispatcher.WithPublisher(deps.Publisher),
		dispatcher.WithMetrics(e.metrics),
		dispatcher.WithLogger(e.logger),
	)
	return e, nil
}

// fallbackVerdict is returned when evaluation itself breaks. It neither lets
// the request through unexamined nor bans anyone.
func fallbackVerdict() models.Verdict {
	return models.Verdict{
		Action:      models.ActionChallenge,
		Score:       0,
		ReasonCodes: []string{models.ReasonEngineError},
	}
}

// Evaluate scores req and returns the verdict. It never panics and never
// fails: store and collector failures degrade the score, and a panic anywhere
// below produces a CHALLENGE with ENGINE_ERROR.
func (e *Engine) Evaluate(ctx context.Context, req models.RequestContext) (verdict models.Verdict) {
	// A client that disconnects mid-evaluation must not change the verdict or
	// skip the ban it earned.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	now := e.now()
	req = req.Normalized(now)

	ctx, span := e.tracer.Start(ctx, tracing.SpanEvaluate,
		tracing.String(tracing.AttrIP, privacy.AnonymizeIP(req.IP)),
		tracing.String(tracing.AttrFingerprint, tracing.HashFingerprint(req.DeviceFingerprint)),
	)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluate_panicked",
				"ip", privacy.AnonymizeIP(req.IP),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			verdict = fallbackVerdict()
			_ = e.publisher.Publish(ctx, events.EngineError(req.IP, r, now))
		}
		span.SetAttributes(
			tracing.String(tracing.AttrAction, string(verdict.Action)),
			tracing.Int(tracing.AttrScore, verdict.Score),
			tracing.Strings(tracing.AttrReasonCodes, verdict.ReasonCodes),
		)
		span.End(nil)
		e.metrics.ObserveEvaluation(string(verdict.Action), verdict.Score, time.Since(start).Seconds())
	}()

	count := e.countRequest(ctx, req)
	span.SetAttributes(tracing.Int(tracing.AttrRateCount, count))

	score := e.scorer.Score(ctx, signals.Input{
		Request:          req,
		Now:              now,
		RequestsInWindow: count,
	})
	if len(score.Failed) > 0 {
		span.SetAttributes(tracing.Strings(tracing.AttrFailedSignal, score.Failed))
	}

	verdict = e.dispatcher.Dispatch(ctx, req, score, now)
	e.touchDevice(ctx, req.DeviceFingerprint, now)

	e.logger.Debug("request_evaluated",
		"ip", privacy.AnonymizeIP(req.IP),
		"action", verdict.Action,
		"score", verdict.Score,
		"reason_codes", verdict.ReasonCodes,
	)
	return verdict
}

func (e *Engine) countRequest(ctx context.Context, req models.RequestContext) int {
	if req.IP == "" {
		return signals.UnknownCount
	}
	count, err := e.windows.CountRequest(ctx, req.IP, req.Timestamp)
	if err != nil {
		e.storeFailed(ctx, "window", "count_request", req.IP, err)
		return signals.UnknownCount
	}
	return count
}

// touchDevice records a sighting of fingerprint after scoring, so the first
// request from a new device is scored at baseline trust.
func (e *Engine) touchDevice(ctx context.Context, fingerprint string, now time.Time) {
	if fingerprint == "" {
		return
	}
	if _, err := e.devices.GetOrCreate(ctx, fingerprint, now); err != nil {
		e.storeFailed(ctx, "device", "get_or_create", "", err)
	}
}

// RecordLoginOutcome feeds an authentication result into the device profile.
func (e *Engine) RecordLoginOutcome(ctx context.Context, outcome models.LoginOutcome) (err error) {
	fp := models.NormalizeFingerprint(outcome.DeviceFingerprint)
	if fp == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "device fingerprint is required")
	}
	at := outcome.At
	if at.IsZero() {
		at = e.now()
	}
	ctx = context.WithoutCancel(ctx)

	ctx, span := e.tracer.Start(ctx, tracing.SpanLoginOutcome,
		tracing.String(tracing.AttrFingerprint, tracing.HashFingerprint(fp)),
		tracing.Bool("login.success", outcome.Success),
	)
	defer func() { span.End(err) }()

	profile, err := e.devices.RecordLogin(ctx, fp, outcome.Success, at)
	if err != nil {
		e.storeFailed(ctx, "device", "record_login", "", err)
		return dErrors.StoreUnavailable("device", err)
	}

	e.logger.Info("login_outcome_recorded",
		"fingerprint", privacy.AnonymizeFingerprint(fp),
		"success", outcome.Success,
		"trust_score", profile.TrustScore,
	)
	return nil
}

// ReportChallengeOutcome applies a challenge result for ip. A failure moves
// the IP one rung up the ban ladder; the new ban is returned.
func (e *Engine) ReportChallengeOutcome(ctx context.Context, ip string, passed bool) (record *models.BanRecord, err error) {
	ip = models.NormalizeIP(ip)
	if ip == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ip is required")
	}
	ctx = context.WithoutCancel(ctx)

	ctx, span := e.tracer.Start(ctx, tracing.SpanChallengeReport,
		tracing.String(tracing.AttrIP, privacy.AnonymizeIP(ip)),
		tracing.Bool("challenge.passed", passed),
	)
	defer func() {
		if record != nil {
			span.SetAttributes(tracing.String(tracing.AttrBanLevel, string(record.Level)))
		}
		span.End(err)
	}()

	return e.dispatcher.ReportChallenge(ctx, ip, passed, e.now())
}

// Ban returns the ban record for ip, or a CodeNotFound error.
func (e *Engine) Ban(ctx context.Context, ip string) (*models.BanRecord, error) {
	ip = models.NormalizeIP(ip)
	record, err := e.bans.Get(ctx, ip)
	if err != nil {
		return nil, dErrors.StoreUnavailable("ban", err)
	}
	if record == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no ban for ip")
	}
	return record, nil
}

// ThreatSnapshot returns the last snapshot stored by the sweeper. Before the
// first sweep it is empty.
func (e *Engine) ThreatSnapshot() models.ThreatSnapshot {
	if s := e.snapshot.Load(); s != nil {
		return *s
	}
	return models.ThreatSnapshot{
		Threshold:     e.cfg.Sweeper.SuspicionThreshold,
		SuspiciousIPs: []models.IPActivity{},
	}
}

// StoreSnapshot replaces the current threat snapshot.
func (e *Engine) StoreSnapshot(s models.ThreatSnapshot) {
	if s.SuspiciousIPs == nil {
		s.SuspiciousIPs = []models.IPActivity{}
	}
	e.snapshot.Store(&s)
}

func (e *Engine) storeFailed(ctx context.Context, store, op, ip string, err error) {
	e.metrics.IncrementStoreFailure(store, op)
	e.logger.Warn("store_unavailable",
		"store", store,
		"operation", op,
		"ip", privacy.AnonymizeIP(ip),
		"error", err,
	)
	_ = e.publisher.Publish(ctx, events.StoreUnavailable(store, op, ip, err, e.now()))
}
