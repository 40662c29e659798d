package metrics

import (
	"time"

	"github.com/bytedance/sonic"
)

// Snapshot is the single structured metrics document spec.md §6 requires,
// sectioned as pattern_result_cache, pattern_cache, deferred_cache,
// engine_library, plus a generated_at timestamp. Unlike the raw Registry
// counters (which the prometheus adapter exposes for scraping), Snapshot is
// a point-in-time read-only projection meant for the JSON GET /metrics
// surface and the optional metricsink exporters.
type Snapshot struct {
	PatternResultCache ResultCacheSection  `json:"pattern_result_cache"`
	PatternCache       PatternCacheSection `json:"pattern_cache"`
	DeferredCache      DeferredCacheSection `json:"deferred_cache"`
	EngineLibrary      EngineLibrarySection `json:"engine_library"`
	GeneratedAt        string               `json:"generated_at"`
}

// ResultCacheSection reports the boolean-match LRU's occupancy and hit
// ratio (internal/dispatch.ResultCache.Stats).
type ResultCacheSection struct {
	Size     int     `json:"size"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// NewResultCacheSection computes HitRatio from raw hit/miss counts, used by
// callers that only have ResultCache.Stats()'s three return values.
func NewResultCacheSection(size int, hits, misses uint64) ResultCacheSection {
	s := ResultCacheSection{Size: size, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRatio = float64(hits) / float64(total)
	}
	return s
}

// PatternCacheSection reports PC occupancy, byte budget, and eviction
// counters by trigger, per spec.md §6's "cache hits/misses, current entry
// count, current actual_bytes, target_bytes, utilization" and "evictions by
// reason" lines.
type PatternCacheSection struct {
	EntryCount             int     `json:"entry_count"`
	ActualBytes            uint64  `json:"actual_bytes"`
	TargetBytes            uint64  `json:"target_bytes"`
	Utilization            float64 `json:"utilization"`
	Hits                   uint64  `json:"hits"`
	Misses                 uint64  `json:"misses"`
	CompileTotal           uint64  `json:"compile_total"`
	CompileFailures        uint64  `json:"compile_failures"`
	CompileLatencyMean     float64 `json:"compile_latency_mean_seconds"`
	EvictionsTTL           uint64  `json:"evictions_ttl"`
	EvictionsCapacity      uint64  `json:"evictions_capacity"`
	ImmediateEvictions     uint64  `json:"immediate_evictions"`
	ImmediateEvictionBytes uint64  `json:"immediate_eviction_bytes"`
	MovedToDeferred        uint64  `json:"moved_to_deferred"`
}

// DeferredCacheSection reports DRQ occupancy and its two-phase release
// counters (spec.md §6: "deferred-immediate / deferred-forced" eviction
// reasons).
type DeferredCacheSection struct {
	EntryCount            int    `json:"entry_count"`
	ActualBytes           uint64 `json:"actual_bytes"`
	ImmediateReleases     uint64 `json:"immediate_releases"`
	ImmediateReleaseBytes uint64 `json:"immediate_release_bytes"`
	ForcedReleases        uint64 `json:"forced_releases"`
	ForcedReleaseBytes    uint64 `json:"forced_release_bytes"`
}

// EngineLibrarySection names the backing engine(s), letting an exporter or
// operator tell which library produced a given snapshot without inspecting
// build metadata.
type EngineLibrarySection struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// NewSnapshot assembles the document spec.md §6 requires from this
// Registry's mirrored plain counters plus the caller-supplied cache/DRQ/
// result-cache occupancy numbers — the Registry has no access to PC/DRQ
// occupancy, which lives in internal/cache.
func (r *Registry) NewSnapshot(
	resultCache ResultCacheSection,
	entryCount int, actualBytes, targetBytes uint64,
	drqEntryCount int, drqBytes uint64,
	now time.Time,
) Snapshot {
	c := r.readCounters()

	util := 0.0
	if targetBytes > 0 {
		util = float64(actualBytes) / float64(targetBytes)
	}

	return Snapshot{
		PatternResultCache: resultCache,
		PatternCache: PatternCacheSection{
			EntryCount:             entryCount,
			ActualBytes:            actualBytes,
			TargetBytes:            targetBytes,
			Utilization:            util,
			Hits:                   c.cacheHits,
			Misses:                 c.cacheMisses,
			CompileTotal:           c.compileTotal,
			CompileFailures:        c.compileFailures,
			CompileLatencyMean:     c.compileLatencyMean,
			EvictionsTTL:           c.evictionsTTL,
			EvictionsCapacity:      c.evictionsCapacity,
			ImmediateEvictions:     c.immediateEviction,
			ImmediateEvictionBytes: c.immediateEvictionBytes,
			MovedToDeferred:        c.movedToDeferred,
		},
		DeferredCache: DeferredCacheSection{
			EntryCount:            drqEntryCount,
			ActualBytes:           drqBytes,
			ImmediateReleases:     c.deferredImmediateRelease,
			ImmediateReleaseBytes: c.deferredImmediateReleaseBytes,
			ForcedReleases:        c.deferredForcedRelease,
			ForcedReleaseBytes:    c.deferredForcedReleaseBytes,
		},
		EngineLibrary: EngineLibrarySection{
			Primary:   "coregx/coregex",
			Secondary: "BurntSushi/rure-go",
		},
		GeneratedAt: now.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// MarshalJSON serializes via sonic, the teacher's JSON library, rather than
// encoding/json.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return sonic.Marshal(alias(s))
}
