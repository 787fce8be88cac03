package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the security pipeline's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	DecisionsTotal         *prometheus.CounterVec
	EventsTotal            *prometheus.CounterVec
	CheckDurationSeconds   prometheus.Histogram
	FailOpenTotal          *prometheus.CounterVec
	BlocksTotal            *prometheus.CounterVec
	UnblocksTotal          prometheus.Counter
	BlockedClients         prometheus.Gauge
	DependencyErrorsTotal  *prometheus.CounterVec
	CircuitTransitions     *prometheus.CounterVec
	TokenWaitsTotal        *prometheus.CounterVec
	TrackedKeys            *prometheus.GaugeVec
	CleanupRunsTotal       *prometheus.CounterVec
	CleanupDurationSeconds prometheus.Histogram
	CleanupRemovedTotal    *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_security_decisions_total",
			Help: "Security pipeline decisions by deciding stage and outcome",
		}, []string{"stage", "outcome"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_security_events_total",
			Help: "Security events emitted by type and severity",
		}, []string{"type", "severity"}),
		CheckDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgeguard_security_check_duration_seconds",
			Help:    "Time spent deciding a single request",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		FailOpenTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_security_fail_open_total",
			Help: "Requests allowed because a stage or dependency failed",
		}, []string{"stage"}),
		BlocksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_blocks_total",
			Help: "Client blocks created by source",
		}, []string{"source"}),
		UnblocksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeguard_unblocks_total",
			Help: "Client blocks removed by an operator",
		}),
		BlockedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgeguard_blocked_clients",
			Help: "Currently active client blocks as of the last cleanup run",
		}),
		DependencyErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_dependency_errors_total",
			Help: "Failed calls to external dependencies",
		}, []string{"dependency", "operation"}),
		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"name", "state"}),
		TokenWaitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_token_bucket_waits_total",
			Help: "Blocking token acquisitions by outcome",
		}, []string{"outcome"}),
		TrackedKeys: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgeguard_tracked_keys",
			Help: "Client keys held by each in-memory store",
		}, []string{"store"}),
		CleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name: "edgeguard_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
		CleanupRemovedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_cleanup_removed_total",
			Help: "Entries removed by the cleanup worker per store",
		}, []string{"store"}),
	}
}

func (m *Metrics) ObserveDecision(stage string, allowed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.DecisionsTotal.WithLabelValues(stage, outcome).Inc()
	m.CheckDurationSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementEvent(eventType, severity string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, severity).Inc()
}

func (m *Metrics) IncrementFailOpen(stage string) {
	if m == nil {
		return
	}
	m.FailOpenTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncrementBlocks(source string) {
	if m == nil {
		return
	}
	m.BlocksTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementUnblocks() {
	if m == nil {
		return
	}
	m.UnblocksTotal.Inc()
}

func (m *Metrics) SetBlockedClients(count int) {
	if m == nil {
		return
	}
	m.BlockedClients.Set(float64(count))
}

func (m *Metrics) IncrementDependencyError(dependency, operation string) {
	if m == nil {
		return
	}
	m.DependencyErrorsTotal.WithLabelValues(dependency, operation).Inc()
}

func (m *Metrics) IncrementCircuitTransition(name, state string) {
	if m == nil {
		return
	}
	m.CircuitTransitions.WithLabelValues(name, state).Inc()
}

func (m *Metrics) IncrementTokenWait(outcome string) {
	if m == nil {
		return
	}
	m.TokenWaitsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetTrackedKeys(store string, count int) {
	if m == nil {
		return
	}
	m.TrackedKeys.WithLabelValues(store).Set(float64(count))
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	if m == nil {
		return
	}
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	if m == nil {
		return
	}
	m.CleanupDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) AddCleanupRemoved(store string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.CleanupRemovedTotal.WithLabelValues(store).Add(float64(count))
}
