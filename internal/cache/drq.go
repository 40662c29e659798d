package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
	"github.com/ebwi11/patterncache/internal/pattern"
)

// drq is the Deferred-Release Queue (SPEC_FULL.md §4.4): a holding area
// for records that outlived their cache residency but still had live
// handles at eviction time. Keyed by record identity, not by hash key,
// because two distinct Records may legitimately share the same pattern key
// — one sitting in DRQ while a fresh recompile of the same source lives in
// PC (I1 forbids any single Record from existing in both, not distinct
// Records sharing a key).
type drq struct {
	mu      sync.Mutex
	records map[*pattern.Record]struct{}
	bytes   uint64

	deferredTTL time.Duration
	metrics     *metrics.Registry
	active      *atomic.Int64 // shared active-pattern counter, decremented on release
}

func newDRQ(deferredTTL time.Duration, reg *metrics.Registry, active *atomic.Int64) *drq {
	return &drq{
		records:     make(map[*pattern.Record]struct{}),
		deferredTTL: deferredTTL,
		metrics:     reg,
		active:      active,
	}
}

// add registers an already-Evicted record in the queue. The caller (PC) is
// responsible for calling r.MarkEvicted before it releases the cache-hold
// reference — a concurrent release that then drops the refcount to 0
// observes Evicted and leaves the record to DRQ, instead of destroying it
// as a Live record a second time. DRQ takes its own lock internally; lock discipline (SPEC_FULL.md
// §5) requires PC's lock never be held while acquiring DRQ's, so this call
// happens after PC has released its lock.
func (d *drq) add(r *pattern.Record) {
	d.mu.Lock()
	d.records[r] = struct{}{}
	d.bytes += r.ApproxBytes
	d.mu.Unlock()
	logging.Debug("pattern moved to deferred-release queue", "key", r.Key, "refcount", r.Refcount())
}

// reclaim performs the two-phase sweep from SPEC_FULL.md §4.4: records
// whose refcount has already dropped to zero are released immediately;
// records that have overstayed deferredTTL are force-released regardless
// of refcount, a strong signal of a caller leak.
func (d *drq) reclaim(now time.Time) (immediateCount, forcedCount int, bytesFreed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for r := range d.records {
		if r.Refcount() <= 0 {
			delete(d.records, r)
			d.bytes -= r.ApproxBytes
			r.MarkReleased()
			d.active.Add(-1)
			immediateCount++
			bytesFreed += r.ApproxBytes
			d.metrics.ObserveDeferredImmediateRelease(r.ApproxBytes)
			logging.Debug("deferred pattern released", "key", r.Key)
			continue
		}
		if now.Sub(r.EvictedAt()) >= d.deferredTTL {
			delete(d.records, r)
			d.bytes -= r.ApproxBytes
			r.MarkReleased()
			d.active.Add(-1)
			forcedCount++
			bytesFreed += r.ApproxBytes
			d.metrics.ObserveDeferredForcedRelease(r.ApproxBytes)
			logging.Warn("forced release: handle leak suspected", "key", r.Key, "refcount", r.Refcount())
		}
	}
	return immediateCount, forcedCount, bytesFreed
}

func (d *drq) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func (d *drq) currentBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}

// drainAll moves every still-tracked record into destruction, used only
// at shutdown to force-release anything left outstanding.
func (d *drq) drainAll() (count int, bytesFreed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for r := range d.records {
		delete(d.records, r)
		d.bytes -= r.ApproxBytes
		r.MarkReleased()
		d.active.Add(-1)
		count++
		bytesFreed += r.ApproxBytes
	}
	return count, bytesFreed
}
