// Package metrics defines the event surface the cache emits, per
// SPEC_FULL.md §6 ("Metrics events"). Events are go-kit metrics.Counter /
// metrics.Histogram values backed by the prometheus client, the same
// counter/histogram split the teacher's dependency graph already commits
// to (go-kit/kit + prometheus/client_golang), rather than hand-rolled
// atomic counters doing the exporting themselves.
package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// addFloat accumulates v into a float64 stored as raw bits in an
// atomic.Uint64, via compare-and-swap — atomic.Uint64 has no native float
// variant.
func addFloat(a *atomic.Uint64, v float64) {
	for {
		old := a.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if a.CompareAndSwap(old, next) {
			return
		}
	}
}

func loadFloat(a *atomic.Uint64) float64 {
	return math.Float64frombits(a.Load())
}

const namespace = "patterncache"

// EvictionTrigger labels the `evictions_total` counter: which policy
// selected this victim, independent of whether it was destroyed
// immediately or moved to the deferred-release queue.
type EvictionTrigger string

const (
	TriggerTTL      EvictionTrigger = "ttl"
	TriggerCapacity EvictionTrigger = "capacity"
)

// InputKind labels per-operation counters/latencies, per SPEC_FULL.md §6
// ("split by input kind (decoded-text / borrowed-memory / bulk)").
type InputKind string

const (
	InputDecodedText    InputKind = "decoded_text"
	InputBorrowedMemory InputKind = "borrowed_memory"
	InputBulk           InputKind = "bulk"
)

// Registry bundles every counter/histogram the cache and dispatch layer
// emit. One Registry is created per process (see Default) but nothing here
// prevents constructing an isolated one for tests.
type Registry struct {
	CompileTotal    metrics.Counter
	CompileFailures metrics.Counter
	CompileLatency  metrics.Histogram

	CacheHits   metrics.Counter
	CacheMisses metrics.Counter

	EvictionTrigger metrics.Counter // labeled "reason": ttl | capacity

	ImmediateEviction      metrics.Counter // PC destroyed a victim directly (refcount hit 0)
	ImmediateEvictionBytes metrics.Counter
	MovedToDeferred        metrics.Counter // PC moved a victim into the DRQ (refcount still > 0)

	DeferredImmediateRelease      metrics.Counter // DRQ phase 1: refcount reached 0
	DeferredImmediateReleaseBytes metrics.Counter
	DeferredForcedRelease         metrics.Counter // DRQ phase 2: deferred_TTL exceeded (leak signal)
	DeferredForcedReleaseBytes    metrics.Counter

	OpCount   metrics.Counter   // labeled "op", "input_kind"
	OpLatency metrics.Histogram // labeled "op", "input_kind"

	// Plain atomic mirrors of the above, read back by Snapshot. go-kit's
	// prometheus-backed Counter/Histogram expose no query API of their own
	// (they are write-only adapters over the prometheus registry), so every
	// Observe* call below except ObserveOp also updates one of these
	// alongside the corresponding labeled metric. OpCount/OpLatency have no
	// mirror and do not appear in the snapshot.
	plain plainStats
}

// plainStats mirrors the compile, cache hit/miss, eviction and DRQ release
// counters into atomics the JSON metrics snapshot (snapshot.go) reads
// directly, without scraping prometheus's own text-exposition path.
type plainStats struct {
	compileTotal      atomic.Uint64
	compileFailures   atomic.Uint64
	compileLatencySum atomic.Uint64 // bits of a float64, via math.Float64bits

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	evictionsTTL      atomic.Uint64
	evictionsCapacity atomic.Uint64

	immediateEviction      atomic.Uint64
	immediateEvictionBytes atomic.Uint64
	movedToDeferred        atomic.Uint64

	deferredImmediateRelease      atomic.Uint64
	deferredImmediateReleaseBytes atomic.Uint64
	deferredForcedRelease         atomic.Uint64
	deferredForcedReleaseBytes    atomic.Uint64
}

// NewRegistry builds counters/histograms registered against the default
// prometheus registerer, mirroring kitprometheus.NewCounterFrom's usual
// call shape.
func NewRegistry() *Registry {
	return &Registry{
		CompileTotal: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "compile_total", Help: "Total pattern compilations attempted.",
		}, nil),
		CompileFailures: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "compile_failures_total", Help: "Total pattern compilation failures.",
		}, nil),
		CompileLatency: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace, Name: "compile_latency_seconds", Help: "Pattern compilation latency.",
			Buckets: stdprometheus.DefBuckets,
		}, nil),
		CacheHits: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Pattern cache hits.",
		}, nil),
		CacheMisses: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Pattern cache misses.",
		}, nil),
		EvictionTrigger: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "evictions_total", Help: "Pattern cache evictions by trigger.",
		}, []string{"reason"}),
		ImmediateEviction: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "immediate_eviction_total", Help: "Evictions destroyed directly (refcount reached 0).",
		}, nil),
		ImmediateEvictionBytes: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "immediate_eviction_bytes_total", Help: "Bytes freed by immediate evictions.",
		}, nil),
		MovedToDeferred: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "moved_to_deferred_total", Help: "Evictions moved into the deferred-release queue.",
		}, nil),
		DeferredImmediateRelease: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_immediate_release_total", Help: "DRQ releases where refcount reached 0.",
		}, nil),
		DeferredImmediateReleaseBytes: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_immediate_release_bytes_total", Help: "Bytes freed by DRQ immediate releases.",
		}, nil),
		DeferredForcedRelease: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_forced_release_total", Help: "DRQ forced releases (handle leak signal).",
		}, nil),
		DeferredForcedReleaseBytes: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_forced_release_bytes_total", Help: "Bytes freed by DRQ forced releases.",
		}, nil),
		OpCount: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace, Name: "op_total", Help: "Dispatch operations by op and input kind.",
		}, []string{"op", "input_kind"}),
		OpLatency: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace, Name: "op_latency_seconds", Help: "Dispatch operation latency by op and input kind.",
			Buckets: stdprometheus.DefBuckets,
		}, []string{"op", "input_kind"}),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide Registry.
func Default() *Registry { return defaultRegistry }

func (r *Registry) ObserveCompile(d time.Duration, failed bool) {
	r.CompileTotal.Add(1)
	r.CompileLatency.Observe(d.Seconds())
	r.plain.compileTotal.Add(1)
	addFloat(&r.plain.compileLatencySum, d.Seconds())
	if failed {
		r.CompileFailures.Add(1)
		r.plain.compileFailures.Add(1)
	}
}

func (r *Registry) ObserveImmediateEviction(trigger EvictionTrigger, bytesFreed uint64) {
	r.EvictionTrigger.With("reason", string(trigger)).Add(1)
	r.ImmediateEviction.Add(1)
	r.ImmediateEvictionBytes.Add(float64(bytesFreed))
	switch trigger {
	case TriggerTTL:
		r.plain.evictionsTTL.Add(1)
	case TriggerCapacity:
		r.plain.evictionsCapacity.Add(1)
	}
	r.plain.immediateEviction.Add(1)
	r.plain.immediateEvictionBytes.Add(bytesFreed)
}

func (r *Registry) ObserveMovedToDeferred(trigger EvictionTrigger) {
	r.EvictionTrigger.With("reason", string(trigger)).Add(1)
	r.MovedToDeferred.Add(1)
	switch trigger {
	case TriggerTTL:
		r.plain.evictionsTTL.Add(1)
	case TriggerCapacity:
		r.plain.evictionsCapacity.Add(1)
	}
	r.plain.movedToDeferred.Add(1)
}

func (r *Registry) ObserveDeferredImmediateRelease(bytesFreed uint64) {
	r.DeferredImmediateRelease.Add(1)
	r.DeferredImmediateReleaseBytes.Add(float64(bytesFreed))
	r.plain.deferredImmediateRelease.Add(1)
	r.plain.deferredImmediateReleaseBytes.Add(bytesFreed)
}

func (r *Registry) ObserveDeferredForcedRelease(bytesFreed uint64) {
	r.DeferredForcedRelease.Add(1)
	r.DeferredForcedReleaseBytes.Add(float64(bytesFreed))
	r.plain.deferredForcedRelease.Add(1)
	r.plain.deferredForcedReleaseBytes.Add(bytesFreed)
}

func (r *Registry) ObserveOp(op string, kind InputKind, d time.Duration) {
	r.OpCount.With("op", op, "input_kind", string(kind)).Add(1)
	r.OpLatency.With("op", op, "input_kind", string(kind)).Observe(d.Seconds())
}

// ObserveCacheHit/ObserveCacheMiss mirror CacheHits/CacheMisses into the
// plain stats; call sites in internal/cache increment the go-kit counters
// directly (CacheHits.Add(1)) and these alongside, since cache hit/miss
// bookkeeping happens on the hot path inside pc.go rather than through a
// single Observe wrapper.
func (r *Registry) ObserveCacheHit()  { r.plain.cacheHits.Add(1) }
func (r *Registry) ObserveCacheMiss() { r.plain.cacheMisses.Add(1) }

// snapshotCounters is the read-only view Snapshot assembles from, kept
// unexported since it is an implementation seam between metrics.go and
// snapshot.go rather than a public API.
type snapshotCounters struct {
	compileTotal       uint64
	compileFailures    uint64
	compileLatencyMean float64

	cacheHits   uint64
	cacheMisses uint64

	evictionsTTL      uint64
	evictionsCapacity uint64

	immediateEviction      uint64
	immediateEvictionBytes uint64
	movedToDeferred        uint64

	deferredImmediateRelease      uint64
	deferredImmediateReleaseBytes uint64
	deferredForcedRelease         uint64
	deferredForcedReleaseBytes    uint64
}

func (r *Registry) readCounters() snapshotCounters {
	ct := r.plain.compileTotal.Load()
	mean := 0.0
	if ct > 0 {
		mean = loadFloat(&r.plain.compileLatencySum) / float64(ct)
	}
	return snapshotCounters{
		compileTotal:                   ct,
		compileFailures:                r.plain.compileFailures.Load(),
		compileLatencyMean:             mean,
		cacheHits:                      r.plain.cacheHits.Load(),
		cacheMisses:                    r.plain.cacheMisses.Load(),
		evictionsTTL:                   r.plain.evictionsTTL.Load(),
		evictionsCapacity:              r.plain.evictionsCapacity.Load(),
		immediateEviction:              r.plain.immediateEviction.Load(),
		immediateEvictionBytes:         r.plain.immediateEvictionBytes.Load(),
		movedToDeferred:                r.plain.movedToDeferred.Load(),
		deferredImmediateRelease:       r.plain.deferredImmediateRelease.Load(),
		deferredImmediateReleaseBytes:  r.plain.deferredImmediateReleaseBytes.Load(),
		deferredForcedRelease:          r.plain.deferredForcedRelease.Load(),
		deferredForcedReleaseBytes:     r.plain.deferredForcedReleaseBytes.Load(),
	}
}
