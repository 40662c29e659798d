// Package cache implements the Pattern Cache, Deferred-Release Queue, and
// Reclamation Worker described in SPEC_FULL.md §4.2-§4.5, wired together
// behind a single process-wide Cache singleton (SPEC_FULL.md §9's "Global
// state" design note: one live cache at a time, explicit Init/Shutdown).
// Init is rejected while an instance is live; Shutdown clears the
// singleton, after which a new Init builds a fresh instance.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebwi11/patterncache/internal/config"
	"github.com/ebwi11/patterncache/internal/engine"
	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
	"github.com/ebwi11/patterncache/internal/pattern"
)

// Cache is the process-wide pattern cache: Pattern Cache, Deferred-Release
// Queue, and their shared reclamation worker, plus the active-pattern
// counter ResourceExhausted checks against.
type Cache struct {
	pc     *pc
	drq    *drq
	worker *reclaimWorker
	active atomic.Int64
	cfg    config.CacheConfig
	eng    engine.Engine
	reg    *metrics.Registry

	shutdownOnce sync.Once
}

var (
	globalMu sync.Mutex
	global   *Cache
)

// Init constructs the process-wide Cache from cfg, wiring the Pattern Cache,
// Deferred-Release Queue, and Reclamation Worker together, and — when
// auto_start_eviction_thread is set — starts the worker immediately. A call
// while an instance is live returns a ConfigurationError rather than
// silently replacing live state out from under callers holding handles.
// Init after Shutdown is not rejected: Shutdown clears the singleton and
// the next Init constructs a new Cache.
func Init(cfg config.CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return nil, &config.ConfigurationError{Field: "(cache)", Message: "cache already initialized; call Shutdown before re-Init"}
	}

	c := newCache(cfg, engine.Hybrid)
	if cfg.AutoStartEviction {
		c.worker.Start()
	}
	global = c
	logging.Info("pattern cache initialized",
		"cache_enabled", cfg.CacheEnabled,
		"target_capacity_bytes", cfg.TargetCapacityBytes,
		"auto_start_eviction_thread", cfg.AutoStartEviction)
	return c, nil
}

// newCache wires PC, DRQ, and the reclamation worker against a shared
// metrics Registry and active-pattern counter, without touching global
// singleton state — used by Init and directly by tests that want an
// isolated instance.
func newCache(cfg config.CacheConfig, eng engine.Engine) *Cache {
	reg := metrics.Default()
	c := &Cache{cfg: cfg, eng: eng, reg: reg}
	c.drq = newDRQ(cfg.DeferredCacheTTL(), reg, &c.active)
	c.pc = newPC(cfg, c.drq, reg, &c.active, eng)
	c.worker = newReclaimWorker(cfg.EvictionInterval(), c.pc, c.drq)
	return c
}

// Metrics exposes the Registry backing this Cache, used by the dispatch
// layer and cmd/patterncached to assemble the JSON metrics snapshot
// (metrics.Registry.NewSnapshot) without internal/cache importing
// internal/dispatch (which would create an import cycle, since dispatch
// depends on cache for handles).
func (c *Cache) Metrics() *metrics.Registry { return c.reg }

// Default returns the process-wide Cache, or nil if Init has not been
// called.
func Default() *Cache {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// GetOrCompile implements get_or_compile (SPEC_FULL.md §4.2): returns a
// Handle pinning a Live compiled pattern, compiling on a miss. Concurrent
// misses for the same key single-flight onto one compilation.
func (c *Cache) GetOrCompile(source []byte, opts *pattern.Options) (*pattern.Handle, error) {
	return c.pc.getOrCompile(source, opts, time.Now())
}

// Release implements release_pattern (SPEC_FULL.md §4.3): decrements the
// handle's record's refcount, destroying it synchronously if it was the
// cache's uncached direct-compile path and this was the last reference.
func (c *Cache) Release(h *pattern.Handle) error {
	return c.pc.release(h)
}

// Engine exposes the backing Engine Interface so the dispatch layer can
// drive match/replace operations against a handle's artifact without this
// package importing dispatch (which would create an import cycle).
func (c *Cache) Engine() engine.Engine { return c.eng }

// ReclaimNow runs one PC+DRQ sweep synchronously, independent of the
// reclamation worker's ticker. Exposed for tests and for an operator-
// triggered forced sweep; the worker calls the same two methods on its own
// schedule.
func (c *Cache) ReclaimNow() {
	now := time.Now()
	c.pc.reclaim(now)
	c.drq.reclaim(now)
}

// Stats reports the counts and byte totals the metrics snapshot's
// pattern_cache and deferred_cache sections need (SPEC_FULL.md §6).
type Stats struct {
	PatternCacheSize   int
	PatternCacheBytes  uint64
	DeferredQueueSize  int
	DeferredQueueBytes uint64
	ActivePatterns     int64
}

// TargetCapacityBytes reports the configured PC soft cap, used by the
// metrics snapshot's utilization calculation.
func (c *Cache) TargetCapacityBytes() uint64 { return c.cfg.TargetCapacityBytes }

func (c *Cache) Stats() Stats {
	return Stats{
		PatternCacheSize:   c.pc.sizeOf(),
		PatternCacheBytes:  c.pc.currentBytes(),
		DeferredQueueSize:  c.drq.size(),
		DeferredQueueBytes: c.drq.currentBytes(),
		ActivePatterns:     c.active.Load(),
	}
}

// Shutdown stops the reclamation worker, then drains every Live record in
// PC into the DRQ (SPEC_FULL.md §9: "shutdown stops the worker, clears PC
// (moving in-use entries to DRQ)..."), and finally force-releases whatever
// is left outstanding in DRQ. Safe to call once; subsequent calls are a
// no-op.
func (c *Cache) Shutdown() {
	c.shutdownOnce.Do(func() {
		if err := c.worker.Stop(); err != nil {
			logging.Warn("reclamation worker did not stop cleanly", "error", err)
		}
		c.pc.drainLiveInto(time.Now())
		count, bytesFreed := c.drq.drainAll()
		if count > 0 {
			logging.Warn("forced release of outstanding patterns at shutdown", "count", count, "bytes_freed", bytesFreed)
		}

		globalMu.Lock()
		if global == c {
			global = nil
		}
		globalMu.Unlock()
	})
}
