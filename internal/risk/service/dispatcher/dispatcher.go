// Package dispatcher maps a score to an action and applies the side effects
// that go with it: permanent bans and alerts on BLOCK, window recording on
// ALLOW, and the escalation ladder for failed challenges.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"warden/internal/platform/privacy"
	"warden/internal/risk/config"
	"warden/internal/risk/events"
	"warden/internal/risk/metrics"
	"warden/internal/risk/models"
	"warden/internal/risk/ports"
	"warden/internal/risk/service/scorer"
	"warden/internal/risk/signals"
	dErrors "warden/pkg/domain-errors"
)

type Dispatcher struct {
	bans       ports.BanStore
	windows    ports.WindowStore
	offenses   ports.OffenseLedger
	thresholds config.ThresholdConfig
	ladder     config.LadderConfig
	publisher  ports.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Dispatcher)

func WithPublisher(p ports.Publisher) Option {
	return func(d *Dispatcher) {
		d.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(
	bans ports.BanStore,
	windows ports.WindowStore,
	offenses ports.OffenseLedger,
	cfg *config.Config,
	opts ...Option,
) *Dispatcher {
	if bans == nil {
		panic("dispatcher.New: ban store is required")
	}
	if windows == nil {
		panic("dispatcher.New: window store is required")
	}
	if offenses == nil {
		panic("dispatcher.New: offense ledger is required")
	}
	d := &Dispatcher{
		bans:       bans,
		windows:    windows,
		offenses:   offenses,
		thresholds: cfg.Thresholds,
		ladder:     cfg.Ladder,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ActionFor maps a score to an action.
func (d *Dispatcher) ActionFor(score int) models.Action {
	switch {
	case score >= d.thresholds.BlockScore:
		return models.ActionBlock
	case score >= d.thresholds.ChallengeScore:
		return models.ActionChallenge
	default:
		return models.ActionAllow
	}
}

// Dispatch turns score into a verdict for req. Store failures never change
// the action: BLOCK stays BLOCK without a ban write and ALLOW stays ALLOW
// without window recording.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.RequestContext, score scorer.Score, now time.Time) models.Verdict {
	verdict := models.Verdict{
		Action:      d.ActionFor(score.Value),
		Score:       score.Value,
		ReasonCodes: score.ReasonCodes,
	}

	switch verdict.Action {
	case models.ActionBlock:
		d.onBlock(ctx, req, score, now)
	case models.ActionAllow:
		d.onAllow(ctx, req)
	}
	return verdict
}

// onBlock issues a permanent ban when the block is earned by current
// behaviour. A block carried only by an existing ban re-blocks without
// touching the record, so repeated requests from a banned IP stay idempotent
// and a ladder ban is not silently promoted.
//
// The alert goes out whenever a block is earned and the IP is not already
// permanently banned, whether or not the ban could be stored. An unreadable
// ban store means every earned block alerts.
func (d *Dispatcher) onBlock(ctx context.Context, req models.RequestContext, score scorer.Score, now time.Time) {
	if req.IP == "" || score.Excluding(signals.NameBlacklist) < d.thresholds.BlockScore {
		return
	}

	existing, err := d.bans.Get(ctx, req.IP)
	if err != nil {
		d.storeFailed(ctx, "ban", "get", req.IP, err, now)
		d.alert(ctx, req, score, now)
		return
	}
	if existing.IsActive(now) && existing.IsPermanent() {
		return
	}

	record := models.NewBanRecord(req.IP, models.BanLevelPermanent, models.BanReasonHighThreat, now)
	if existing != nil {
		record = existing.Clone()
		record.Promote(models.BanLevelPermanent, models.BanReasonHighThreat, now)
	}
	if err := d.bans.Put(ctx, record); err != nil {
		d.storeFailed(ctx, "ban", "put", req.IP, err, now)
	} else {
		d.metrics.IncrementBansIssued(string(models.BanLevelPermanent))
		d.logger.Warn("permanent_ban_issued",
			"ip", privacy.AnonymizeIP(req.IP),
			"score", score.Value,
			"reason_codes", score.ReasonCodes,
		)
	}
	d.alert(ctx, req, score, now)
}

func (d *Dispatcher) alert(ctx context.Context, req models.RequestContext, score scorer.Score, now time.Time) {
	d.publish(ctx, events.HighThreatAlert(req.IP, score.Value, score.ReasonCodes, now))
}

func (d *Dispatcher) onAllow(ctx context.Context, req models.RequestContext) {
	if req.IP == "" {
		return
	}
	if err := d.windows.RecordRequest(ctx, req.IP, req.UserAgent, req.Timestamp); err != nil {
		d.storeFailed(ctx, "window", "record_request", req.IP, err, req.Timestamp)
	}
	if err := d.windows.RecordClick(ctx, req.IP, req.Timestamp); err != nil {
		d.storeFailed(ctx, "window", "record_click", req.IP, err, req.Timestamp)
	}
}

// ReportChallenge applies a challenge outcome for ip. A failure climbs the
// ladder one rung from the higher of the IP's last offense and its current
// ban; a pass changes nothing. The returned record is nil when no ban was
// issued.
func (d *Dispatcher) ReportChallenge(ctx context.Context, ip string, passed bool, now time.Time) (*models.BanRecord, error) {
	if passed || !d.ladder.EscalateChallengeFailures {
		return nil, nil
	}

	existing, err := d.bans.Get(ctx, ip)
	if err != nil {
		d.storeFailed(ctx, "ban", "get", ip, err, now)
		return nil, dErrors.StoreUnavailable("ban", err)
	}
	if existing.IsActive(now) && existing.IsPermanent() {
		return existing, nil
	}

	offense, err := d.offenses.Get(ctx, ip)
	if err != nil {
		return nil, dErrors.StoreUnavailable("offense", err)
	}
	level := nextLevel(offense, existing, now)

	record := models.NewBanRecord(ip, level, models.BanReasonChallengeFailure, now)
	if existing != nil {
		record = existing.Clone()
		if !record.Promote(level, models.BanReasonChallengeFailure, now) {
			// Expired record at a higher rung than the ledger remembers.
			record = models.NewBanRecord(ip, level, models.BanReasonChallengeFailure, now)
			record.ID = existing.ID
			record.Offenses = existing.Offenses + 1
		}
	}

	if err := d.bans.Put(ctx, record); err != nil {
		d.storeFailed(ctx, "ban", "put", ip, err, now)
		return nil, dErrors.StoreUnavailable("ban", err)
	}
	if _, err := d.offenses.Record(ctx, ip, level, now); err != nil {
		d.logger.Warn("offense_record_failed", "ip", privacy.AnonymizeIP(ip), "error", err)
	}

	d.metrics.IncrementBansIssued(string(level))
	d.logger.Info("ban_escalated",
		"ip", privacy.AnonymizeIP(ip),
		"level", level,
		"offenses", record.Offenses,
	)
	d.publish(ctx, events.BanEscalated(record, now))
	if level == models.BanLevelPermanent {
		d.publish(ctx, events.HighThreatAlert(ip, d.thresholds.MaxScore, []string{models.BanReasonChallengeFailure}, now))
	}
	return record, nil
}

// nextLevel is one rung above the most severe of the remembered offense and
// any active ban. A first offense is L1.
func nextLevel(offense *models.OffenseRecord, existing *models.BanRecord, now time.Time) models.BanLevel {
	var current models.BanLevel
	if offense != nil {
		current = offense.Level
	}
	if existing.IsActive(now) && existing.Level.Rank() > current.Rank() {
		current = existing.Level
	}
	if current == "" {
		return models.BanLevel1
	}
	return current.Next()
}

func (d *Dispatcher) storeFailed(ctx context.Context, store, op, ip string, err error, at time.Time) {
	d.metrics.IncrementStoreFailure(store, op)
	d.logger.Warn("store_unavailable",
		"store", store,
		"operation", op,
		"ip", privacy.AnonymizeIP(ip),
		"error", err,
	)
	d.publish(ctx, events.StoreUnavailable(store, op, ip, err, at))
}

func (d *Dispatcher) publish(ctx context.Context, event models.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Warn("risk_event_publish_failed", "event_type", event.Type, "error", err)
	}
}
