// Package metricsink holds optional exporters for the metrics snapshot
// document (SPEC_FULL.md §6). These are external collaborators in the sense
// spec.md §1 describes ("metric storage backends and serialization ... are
// external collaborators"): the core only emits the snapshot; everything in
// this package is a thin periodic publisher of that already-assembled
// document, grounded in the teacher's own output producers
// (src/common/elasticsearch.go, src/common/kafka.go, src/common/aliyun_sls.go).
package metricsink

import (
	"context"
	"time"

	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
)

// SnapshotFunc produces the current metrics snapshot, usually
// dispatch.Dispatcher.Snapshot.
type SnapshotFunc func() metrics.Snapshot

// runLoop is the shape every sink below reuses: take a snapshot on a fixed
// interval and hand it to publish, stopping when ctx is cancelled. Mirrors
// the teacher's producer goroutines (ElasticsearchProducer.run,
// KafkaProducer.run), which loop until their input channel or context says
// stop, except here the cache itself is the producer: there is no input
// channel to drain, just a clock.
func runLoop(ctx context.Context, interval time.Duration, snap SnapshotFunc, publish func(metrics.Snapshot) error, sinkName string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("metrics sink stopping", "sink", sinkName)
			return
		case <-ticker.C:
			if err := publish(snap()); err != nil {
				logging.Warn("metrics sink publish failed", "sink", sinkName, "error", err)
			}
		}
	}
}
