package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit sink. A nil *Metrics
// records nothing.
type Metrics struct {
	QueueDepth        prometheus.Gauge
	Enqueued          *prometheus.CounterVec
	Written           *prometheus.CounterVec
	Dropped           prometheus.Counter
	DroppedAfterRetry *prometheus.CounterVec
	Retries           prometheus.Counter
	FlushDuration     prometheus.Histogram
	Streamed          *prometheus.CounterVec
}

// NewMetrics registers the sink metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgeguard_audit_queue_depth",
			Help: "Current number of records waiting in the audit buffer",
		}),
		Enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_audit_enqueued_total",
			Help: "Records accepted into the audit buffer by kind",
		}, []string{"kind"}),
		Written: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_audit_written_total",
			Help: "Records persisted to the audit store by kind",
		}, []string{"kind"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeguard_audit_dropped_total",
			Help: "Records overwritten because the audit buffer was full",
		}),
		DroppedAfterRetry: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_audit_dropped_after_retry_total",
			Help: "Records dropped after exhausting store retries",
		}, []string{"kind"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeguard_audit_retries_total",
			Help: "Total number of audit store retry attempts",
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgeguard_audit_flush_duration_seconds",
			Help:    "Time taken to flush a batch of audit records",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		Streamed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeguard_audit_streamed_total",
			Help: "Security events forwarded to the event stream by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) IncEnqueued(kind string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddWritten(kind string, n int) {
	if m == nil {
		return
	}
	m.Written.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) AddDroppedAfterRetry(kind string, n int) {
	if m == nil {
		return
	}
	m.DroppedAfterRetry.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) ObserveFlushDuration(seconds float64) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(seconds)
}

// IncStreamed counts one forwarded event; outcome is "delivered" or "failed".
func (m *Metrics) IncStreamed(outcome string) {
	if m == nil {
		return
	}
	m.Streamed.WithLabelValues(outcome).Inc()
}
