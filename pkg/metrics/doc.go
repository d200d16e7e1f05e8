/*
Package metrics provides Prometheus metrics collection and exposition for
the apply engine.

Metrics are package-level prometheus.New* vars registered at package init
and exposed for scraping via Handler(). pkg/engine periodically samples
queue depth into the gauges via its own collector; counters and
histograms are updated inline as applies, reads, and snapshots happen.

# Metric families

  - keel_applied_index: last_applied.index per (table, partition).
  - keel_apply_total / keel_apply_errors_total: apply outcomes.
  - keel_gap_errors_total: fatal ordering violations, incremented just
    before the instance terminates.
  - keel_apply_duration_seconds: dispatcher latency histogram.
  - keel_snapshots_total / keel_snapshot_errors_total: snapshot outcomes.
  - keel_pending_reads: parked delayed-read count, sampled by pkg/engine's
    periodic metrics collector.
  - keel_execute_errors_total: Execute command failures by module/function.

# Usage

	metrics.Handler() // mount at /metrics
	timer := metrics.NewTimer()
	// ... dispatch a command ...
	timer.ObserveDurationVec(metrics.ApplyDuration, table, partition)
*/
package metrics
