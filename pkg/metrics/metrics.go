package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AppliedIndex is the last applied log index, per (table, partition).
	AppliedIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keel_applied_index",
			Help: "Last applied log index for this engine instance",
		},
		[]string{"table", "partition"},
	)

	ApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_apply_total",
			Help: "Total number of apply_op invocations",
		},
		[]string{"table", "partition"},
	)

	ApplyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_apply_errors_total",
			Help: "Total number of applies whose backend call returned an error",
		},
		[]string{"table", "partition"},
	)

	GapErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_gap_errors_total",
			Help: "Total number of fatal ordering violations observed before termination",
		},
		[]string{"table", "partition"},
	)

	ApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keel_apply_duration_seconds",
			Help:    "Time taken to dispatch and apply one command",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "partition"},
	)

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_snapshots_total",
			Help: "Total number of snapshots created",
		},
		[]string{"table", "partition"},
	)

	SnapshotErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_snapshot_errors_total",
			Help: "Total number of failed snapshot create/open operations",
		},
		[]string{"table", "partition", "op"},
	)

	PendingReads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keel_pending_reads",
			Help: "Number of delayed reads currently parked in the acceptor queue",
		},
		[]string{"table", "partition"},
	)

	ExecuteErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_execute_errors_total",
			Help: "Total number of Execute command failures by module/function",
		},
		[]string{"module", "function"},
	)
)

func init() {
	prometheus.MustRegister(AppliedIndex)
	prometheus.MustRegister(ApplyTotal)
	prometheus.MustRegister(ApplyErrorsTotal)
	prometheus.MustRegister(GapErrorsTotal)
	prometheus.MustRegister(ApplyDuration)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(SnapshotErrorsTotal)
	prometheus.MustRegister(PendingReads)
	prometheus.MustRegister(ExecuteErrorsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
