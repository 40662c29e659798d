package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebwi11/patterncache/internal/config"
	"github.com/ebwi11/patterncache/internal/engine"
	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
	"github.com/ebwi11/patterncache/internal/pattern"
)

// pending is the single-flight marker installed on a cache miss (Open
// Question 2, resolved toward single-flight per SPEC_FULL.md). Concurrent
// get_or_compile calls for the same new key wait on done rather than
// racing duplicate compiles.
type pending struct {
	done   chan struct{}
	record *pattern.Record
	err    error
}

// pc is the Pattern Cache (SPEC_FULL.md §4.2): a keyed store with TTL +
// LRU/capacity eviction, grounded in the shape of AgentSmith-HUB's
// regexCache (RWMutex-guarded map + LRU order list) but generalized to
// carry refcounted records and single-flight misses instead of a bare
// compiled-regex pointer.
type pc struct {
	mu      sync.RWMutex
	index   map[uint64]*pattern.Record
	order   *list.List // container/list, front = most recently used
	elemOf  map[uint64]*list.Element
	pending map[uint64]*pending
	bytes   uint64

	cfg     config.CacheConfig
	drq     *drq
	metrics *metrics.Registry
	active  *atomic.Int64
	eng     engine.Engine
}

func newPC(cfg config.CacheConfig, d *drq, reg *metrics.Registry, active *atomic.Int64, eng engine.Engine) *pc {
	return &pc{
		index:   make(map[uint64]*pattern.Record),
		order:   list.New(),
		elemOf:  make(map[uint64]*list.Element),
		pending: make(map[uint64]*pending),
		cfg:     cfg,
		drq:     d,
		metrics: reg,
		active:  active,
		eng:     eng,
	}
}

// getOrCompile implements SPEC_FULL.md §4.2's algorithm.
func (p *pc) getOrCompile(source []byte, opts *pattern.Options, now time.Time) (*pattern.Handle, error) {
	if !p.cfg.CacheEnabled {
		return p.compileUncached(source, opts, now)
	}

	key := pattern.Key(source, opts)

	for {
		p.mu.Lock()
		if r, ok := p.index[key]; ok {
			r.IncrefForHit(now)
			if elem, ok2 := p.elemOf[key]; ok2 {
				p.order.MoveToFront(elem)
			}
			p.mu.Unlock()
			p.metrics.CacheHits.Add(1)
			p.metrics.ObserveCacheHit()
			return pattern.NewHandle(r), nil
		}
		if pend, ok := p.pending[key]; ok {
			p.mu.Unlock()
			<-pend.done
			if pend.err != nil {
				return nil, pend.err
			}
			// The winner's record is already installed in the index with
			// its own refcount bump for the handle it returned; loop back
			// around so this caller takes the normal hit path and bumps
			// refcount for its own handle under the lock (I3).
			continue
		}

		// First miss for this key: become the compiling goroutine.
		mine := &pending{done: make(chan struct{})}
		p.pending[key] = mine
		p.mu.Unlock()
		p.metrics.CacheMisses.Add(1)
		p.metrics.ObserveCacheMiss()

		record, err := p.compileAndInstall(key, source, opts, now, mine)
		if err != nil {
			return nil, err
		}
		return pattern.NewHandle(record), nil
	}
}

func (p *pc) compileAndInstall(key uint64, source []byte, opts *pattern.Options, now time.Time, mine *pending) (*pattern.Record, error) {
	if int(p.active.Load()) >= p.cfg.ActivePatternCeiling {
		err := &ResourceExhausted{ActivePatterns: int(p.active.Load()), Ceiling: p.cfg.ActivePatternCeiling}
		p.finishPending(key, mine, nil, err)
		return nil, err
	}

	start := time.Now()
	eo := opts.ToEngineOptions()
	artifact, compErr := p.eng.Compile(source, &eo)
	p.metrics.ObserveCompile(time.Since(start), compErr != nil)
	if compErr != nil {
		err := &CompilationError{Message: compErr.Error(), OffendingPattern: string(source)}
		p.finishPending(key, mine, nil, err)
		return nil, err
	}

	approxBytes := p.eng.Introspect(artifact).ApproxBytes
	record := pattern.NewRecord(key, source, *opts, artifact, approxBytes, now, p.cfg.ProtectionWindow())
	// refcount=1 is the cache's own hold (from NewRecord); bump for the
	// handle we are about to return.
	record.IncrefForHit(now)

	p.mu.Lock()
	p.index[key] = record
	elem := p.order.PushFront(record)
	p.elemOf[key] = elem
	p.bytes += approxBytes
	delete(p.pending, key)
	p.mu.Unlock()
	p.active.Add(1)

	mine.record = record
	close(mine.done)
	logging.Debug("pattern compiled", "key", key, "bytes", approxBytes)
	return record, nil
}

func (p *pc) finishPending(key uint64, mine *pending, record *pattern.Record, err error) {
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
	mine.record = record
	mine.err = err
	close(mine.done)
	if err != nil {
		logging.Warn("pattern compilation failed", "key", key, "error", err)
	}
}

// compileUncached serves get_or_compile when cache_enabled is false: every
// call compiles directly and hands back a record owned solely by its
// handle (refcount=1, no cache hold), destroyed synchronously on release.
func (p *pc) compileUncached(source []byte, opts *pattern.Options, now time.Time) (*pattern.Handle, error) {
	if int(p.active.Load()) >= p.cfg.ActivePatternCeiling {
		return nil, &ResourceExhausted{ActivePatterns: int(p.active.Load()), Ceiling: p.cfg.ActivePatternCeiling}
	}
	start := time.Now()
	eo := opts.ToEngineOptions()
	artifact, compErr := p.eng.Compile(source, &eo)
	p.metrics.ObserveCompile(time.Since(start), compErr != nil)
	if compErr != nil {
		return nil, &CompilationError{Message: compErr.Error(), OffendingPattern: string(source)}
	}
	approxBytes := p.eng.Introspect(artifact).ApproxBytes
	key := pattern.Key(source, opts)
	record := pattern.NewRecord(key, source, *opts, artifact, approxBytes, now, 0)
	p.active.Add(1)
	return pattern.NewHandle(record), nil
}

// release decrements a handle's record's refcount. If the record is Live
// and the decrement reaches 0, it can only be the uncached direct-compile
// path (the cache-held reference always keeps a PC-resident Live record's
// refcount >= 1), so it is destroyed synchronously here. If the record is
// Evicted, DRQ's own reclaim loop observes the refcount drop on its next
// tick — there is no synchronous destruction across PC/DRQ boundary by
// design (SPEC_FULL.md §5: "no guarantee memory drops synchronously with
// the last release unless the PR has already been evicted from PC").
func (p *pc) release(h *pattern.Handle) error {
	if h == nil {
		return &InvalidHandle{Reason: "nil handle"}
	}
	if !h.Consume() {
		return &InvalidHandle{Reason: "handle already released"}
	}
	r := h.Record
	n := r.Decref()
	if r.State() == pattern.StateLive && n == 0 {
		r.MarkReleased()
		p.active.Add(-1)
	}
	return nil
}

func (p *pc) sizeOf() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.index)
}

func (p *pc) currentBytes() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytes
}

// reclaim implements SPEC_FULL.md §4.2's eviction pass: TTL-expired
// entries are always eligible; capacity eviction walks the LRU tail while
// current_bytes exceeds target_capacity_bytes. Entries inside their
// protection window are skipped by both passes.
func (p *pc) reclaim(now time.Time) (evictedCount int, bytesFreed uint64) {
	p.mu.Lock()

	victims := make(map[uint64]metrics.EvictionTrigger)

	for key, r := range p.index {
		if r.Protected(now) {
			continue
		}
		if now.Sub(r.LastUsedAt()) >= p.cfg.PatternCacheTTL() {
			victims[key] = metrics.TriggerTTL
		}
	}

	if p.bytes > p.cfg.TargetCapacityBytes {
		projected := p.bytes
		for e := p.order.Back(); e != nil; e = e.Prev() {
			r := e.Value.(*pattern.Record)
			if _, already := victims[r.Key]; already {
				continue
			}
			if r.Protected(now) {
				continue
			}
			if projected <= p.cfg.TargetCapacityBytes {
				break
			}
			victims[r.Key] = metrics.TriggerCapacity
			projected -= r.ApproxBytes
		}
	}

	type destroyed struct {
		bytes uint64
	}
	var toDRQ []*pattern.Record
	var immediate []destroyed

	for key, trigger := range victims {
		r, ok := p.index[key]
		if !ok {
			continue
		}
		delete(p.index, key)
		if elem, ok2 := p.elemOf[key]; ok2 {
			p.order.Remove(elem)
			delete(p.elemOf, key)
		}
		p.bytes -= r.ApproxBytes

		// Mark Evicted before releasing the cache-hold reference: release
		// takes no lock, and a release can only drop the refcount to 0
		// after this decref, so it always observes Evicted and never
		// destroys the record as Live while it is headed for DRQ (see
		// drq.add's doc comment).
		r.MarkEvicted(now)
		n := r.Decref() // release the cache-hold reference
		if n == 0 {
			r.MarkReleased()
			immediate = append(immediate, destroyed{bytes: r.ApproxBytes})
			p.metrics.ObserveImmediateEviction(trigger, r.ApproxBytes)
		} else {
			toDRQ = append(toDRQ, r)
			p.metrics.ObserveMovedToDeferred(trigger)
		}
	}
	p.mu.Unlock()

	for _, d := range immediate {
		p.active.Add(-1)
		evictedCount++
		bytesFreed += d.bytes
	}
	// DRQ's own lock is acquired only after PC's has been released, per the
	// lock-ordering rule in SPEC_FULL.md §5.
	for _, r := range toDRQ {
		p.drq.add(r)
		evictedCount++
	}

	return evictedCount, bytesFreed
}

// drainLiveInto moves every currently Live record into the DRQ regardless
// of TTL/capacity, used only at shutdown (SPEC_FULL.md §9's "Global state"
// design note: "shutdown stops the worker, clears PC (moving in-use
// entries to DRQ)...").
func (p *pc) drainLiveInto(now time.Time) {
	p.mu.Lock()
	records := make([]*pattern.Record, 0, len(p.index))
	for key, r := range p.index {
		records = append(records, r)
		delete(p.index, key)
	}
	p.order = list.New()
	p.elemOf = make(map[uint64]*list.Element)
	p.bytes = 0
	p.mu.Unlock()

	for _, r := range records {
		r.MarkEvicted(now)
		n := r.Decref()
		if n == 0 {
			r.MarkReleased()
			p.active.Add(-1)
			continue
		}
		p.drq.add(r)
	}
}
