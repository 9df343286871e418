package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the risk engine collectors. All methods are safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	EvaluationsTotal          *prometheus.CounterVec
	EvaluationDurationSeconds prometheus.Histogram
	ScoreDistribution         prometheus.Histogram
	SignalsFiredTotal         *prometheus.CounterVec
	SignalErrorsTotal         *prometheus.CounterVec
	BansIssuedTotal           *prometheus.CounterVec
	BansExpiredTotal          prometheus.Counter
	StoreFailuresTotal        *prometheus.CounterVec

	SweepRunsTotal        *prometheus.CounterVec
	SweepDurationSeconds  prometheus.Histogram
	PatternsExpiredTotal  prometheus.Counter
	TrackedIPs            prometheus.Gauge
	SuspiciousIPs         prometheus.Gauge
	EventsPublishedTotal  *prometheus.CounterVec
	EventsDroppedTotal    prometheus.Counter
	WriteBehindQueueDepth prometheus.Gauge
	WriteBehindOpsTotal   *prometheus.CounterVec
	CircuitState          *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_evaluations_total",
			Help: "Total number of evaluated requests by verdict action",
		}, []string{"action"}),
		EvaluationDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_risk_evaluation_duration_seconds",
			Help:    "Time spent producing a verdict",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		}),
		ScoreDistribution: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_risk_score",
			Help:    "Distribution of capped risk scores",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		SignalsFiredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_signals_fired_total",
			Help: "Total number of times each signal contributed to a score",
		}, []string{"signal"}),
		SignalErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_signal_errors_total",
			Help: "Total number of signal computations that failed open",
		}, []string{"signal"}),
		BansIssuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_bans_issued_total",
			Help: "Total number of bans created or promoted by level",
		}, []string{"level"}),
		BansExpiredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_risk_bans_expired_total",
			Help: "Total number of non-permanent bans removed by the sweeper",
		}),
		StoreFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_store_failures_total",
			Help: "Total number of store operations that failed",
		}, []string{"store", "operation"}),
		SweepRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_sweep_task_runs_total",
			Help: "Total number of sweep task runs by task and status",
		}, []string{"task", "status"}),
		SweepDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name: "warden_risk_sweep_duration_seconds",
			Help: "Duration of sweep ticks in seconds",
		}),
		PatternsExpiredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_risk_patterns_expired_total",
			Help: "Total number of stale attack pattern records removed",
		}),
		TrackedIPs: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_risk_tracked_ips",
			Help: "Number of IPs with live attack pattern records",
		}),
		SuspiciousIPs: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_risk_suspicious_ips",
			Help: "Number of IPs above the suspicion threshold in the last snapshot",
		}),
		EventsPublishedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_events_published_total",
			Help: "Total number of events accepted by the publisher by type",
		}, []string{"type"}),
		EventsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_risk_events_dropped_total",
			Help: "Total number of events dropped because the buffer was full",
		}),
		WriteBehindQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_risk_writebehind_queue_depth",
			Help: "Pending durable writes",
		}),
		WriteBehindOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_risk_writebehind_ops_total",
			Help: "Durable write outcomes by status (ok, error, dropped, rejected)",
		}, []string{"status"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warden_risk_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half open)",
		}, []string{"name"}),
	}
}

func (m *Metrics) ObserveEvaluation(action string, score int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(action).Inc()
	m.ScoreDistribution.Observe(float64(score))
	m.EvaluationDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) IncrementSignalFired(signal string) {
	if m == nil {
		return
	}
	m.SignalsFiredTotal.WithLabelValues(signal).Inc()
}

func (m *Metrics) IncrementSignalError(signal string) {
	if m == nil {
		return
	}
	m.SignalErrorsTotal.WithLabelValues(signal).Inc()
}

func (m *Metrics) IncrementBansIssued(level string) {
	if m == nil {
		return
	}
	m.BansIssuedTotal.WithLabelValues(level).Inc()
}

func (m *Metrics) AddBansExpired(n int) {
	if m == nil {
		return
	}
	m.BansExpiredTotal.Add(float64(n))
}

func (m *Metrics) IncrementStoreFailure(store, operation string) {
	if m == nil {
		return
	}
	m.StoreFailuresTotal.WithLabelValues(store, operation).Inc()
}

func (m *Metrics) IncrementSweepTask(task, status string) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(task, status).Inc()
}

func (m *Metrics) ObserveSweepDuration(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SweepDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) AddPatternsExpired(n int) {
	if m == nil {
		return
	}
	m.PatternsExpiredTotal.Add(float64(n))
}

func (m *Metrics) SetSnapshot(tracked, suspicious int) {
	if m == nil {
		return
	}
	m.TrackedIPs.Set(float64(tracked))
	m.SuspiciousIPs.Set(float64(suspicious))
}

func (m *Metrics) IncrementEventsPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.WriteBehindQueueDepth.Set(float64(n))
}

func (m *Metrics) IncrementWriteBehind(status string) {
	if m == nil {
		return
	}
	m.WriteBehindOpsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(name).Set(float64(state))
}
