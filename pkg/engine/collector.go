package engine

import (
	"context"
	"time"

	"github.com/cuemby/keel/pkg/acceptor"
	"github.com/cuemby/keel/pkg/metrics"
)

// StartMetricsCollector periodically samples gauges that have no natural
// update point elsewhere — the parked-read count in particular, since
// nothing increments or decrements it inline the way ApplyTotal or
// ApplyErrorsTotal are. This lives here rather than in pkg/metrics
// because a metrics-side collector importing the engine it samples would
// create an import cycle: this package already imports metrics for its
// gauges.
func (e *Engine) StartMetricsCollector(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		e.sampleMetrics()
		for {
			select {
			case <-ticker.C:
				e.sampleMetrics()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) sampleMetrics() {
	if q, ok := e.queue.(*acceptor.InMemoryQueue); ok {
		metrics.PendingReads.WithLabelValues(e.tableLabel, e.partitionLabel).Set(float64(q.PendingReads()))
	}
}
