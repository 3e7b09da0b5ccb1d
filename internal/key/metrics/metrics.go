package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for transitions.
const (
	OutcomeApplied    = "applied"
	OutcomeIdempotent = "idempotent"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "gateway_failure"
	OutcomeError      = "error"
)

type Metrics struct {
	TransitionsTotal      *prometheus.CounterVec
	GatewayCallDuration   *prometheus.HistogramVec
	GatewayFailuresTotal  *prometheus.CounterVec
	VerificationLockouts  prometheus.Counter
	VerificationAttempts  *prometheus.CounterVec
	SweepMutatedTotal     *prometheus.CounterVec
	SweepFailuresTotal    *prometheus.CounterVec
	SweepSkippedTotal     *prometheus.CounterVec
	SweepDurationSeconds  *prometheus.HistogramVec
	CallbacksHandledTotal *prometheus.CounterVec
}

// New registers the key module collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_key_transitions_total",
			Help: "Trigger invocations by outcome",
		}, []string{"trigger", "outcome"}),
		GatewayCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictkeys_directory_call_duration_seconds",
			Help:    "Latency of directory gateway calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
		GatewayFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_directory_call_failures_total",
			Help: "Failed directory gateway calls by category",
		}, []string{"call", "category"}),
		VerificationLockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "dictkeys_verification_lockouts_total",
			Help: "Keys locked after too many wrong verification codes",
		}),
		VerificationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_verification_attempts_total",
			Help: "Verification code submissions by outcome",
		}, []string{"outcome"}),
		SweepMutatedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_sweep_mutated_total",
			Help: "Keys moved by the expiration sweeper",
		}, []string{"kind"}),
		SweepFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_sweep_failures_total",
			Help: "Keys the expiration sweeper failed to move",
		}, []string{"kind"}),
		SweepSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_sweep_skipped_total",
			Help: "Sweep cycles skipped because another instance held the lock",
		}, []string{"kind"}),
		SweepDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictkeys_sweep_duration_seconds",
			Help:    "Duration of sweep cycles",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		CallbacksHandledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dictkeys_directory_callbacks_total",
			Help: "Directory callbacks consumed by outcome",
		}, []string{"trigger", "outcome"}),
	}
}

// The helpers below tolerate a nil receiver so services can run without
// metrics in tests.

func (m *Metrics) IncrementTransition(trigger, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) ObserveGatewayCall(call string, elapsed time.Duration, category string) {
	if m == nil {
		return
	}
	m.GatewayCallDuration.WithLabelValues(call).Observe(elapsed.Seconds())
	if category != "" {
		m.GatewayFailuresTotal.WithLabelValues(call, category).Inc()
	}
}

func (m *Metrics) IncrementVerificationAttempt(outcome string) {
	if m == nil {
		return
	}
	m.VerificationAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLockouts() {
	if m == nil {
		return
	}
	m.VerificationLockouts.Inc()
}

func (m *Metrics) ObserveSweep(kind string, mutated, failures int, skipped bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if skipped {
		m.SweepSkippedTotal.WithLabelValues(kind).Inc()
		return
	}
	m.SweepMutatedTotal.WithLabelValues(kind).Add(float64(mutated))
	m.SweepFailuresTotal.WithLabelValues(kind).Add(float64(failures))
	m.SweepDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementCallback(trigger, outcome string) {
	if m == nil {
		return
	}
	m.CallbacksHandledTotal.WithLabelValues(trigger, outcome).Inc()
}
