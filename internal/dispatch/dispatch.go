// Package dispatch is the Dispatch Layer (DL, SPEC_FULL.md §4.6): a small
// stateless routing layer that validates handles, converts caller inputs
// into an engine.View, calls the Engine Interface, and threads timing
// events through metrics. It never mutates a Pattern Record and never
// itself manages PR lifetime — that is internal/cache's job.
package dispatch

import (
	"time"

	"github.com/ebwi11/patterncache/internal/cache"
	"github.com/ebwi11/patterncache/internal/engine"
	"github.com/ebwi11/patterncache/internal/metrics"
	"github.com/ebwi11/patterncache/internal/pattern"
)

// InputKind labels which routing rule produced a View, per SPEC_FULL.md
// §4.6's three input kinds.
type InputKind = metrics.InputKind

const (
	OwnedOrBorrowed = metrics.InputBorrowedMemory
	DecodedText     = metrics.InputDecodedText
)

// Dispatcher drives match/replace operations against handles issued by a
// Cache. It is stateless except for an optional boolean-result LRU and a
// metrics registry, both safe to share across goroutines.
type Dispatcher struct {
	c           *cache.Cache
	reg         *metrics.Registry
	resultCache *ResultCache // optional; nil disables the pre-check entirely
}

// NewDispatcher wires a Dispatcher against c. resultCacheCapacity of 0
// disables the boolean-match pre-check.
func NewDispatcher(c *cache.Cache, resultCacheCapacity int) *Dispatcher {
	return &Dispatcher{
		c:           c,
		reg:         c.Metrics(),
		resultCache: NewResultCache(resultCacheCapacity),
	}
}

// Group is one capture group's result: either a participating ByteRange or
// the "did not participate" sentinel, plus its name if the pattern named
// it. SPEC_FULL.md §4.6's capture-group result shape ("groups:
// Vec<Option<ByteRange>>", name mapping "shared with the PR, not copied").
type Group struct {
	Range       engine.ByteRange
	Participated bool
	Name        string // empty if the group is unnamed
}

// MatchResult is the capture-group result shape SPEC_FULL.md §4.6
// describes: matched flag and per-group ranges. The ranges index into the
// caller's view, which the result does not retain.
// GroupNames is the same map the compiled Artifact carries — not copied per
// result, per spec.
type MatchResult struct {
	Matched    bool
	Groups     []Group
	GroupNames map[string]int
}

// ByIndex returns group i's range, or AbsentRange with ok=false if i is out
// of bounds.
func (m MatchResult) ByIndex(i int) (engine.ByteRange, bool) {
	if i < 0 || i >= len(m.Groups) {
		return engine.AbsentRange, false
	}
	return m.Groups[i].Range, m.Groups[i].Participated
}

// ByName returns the range for a named group, or ok=false if the name is
// unknown to this pattern — never a panic, per SPEC_FULL.md §4.6 ("name
// lookup yields None if the name is unknown").
func (m MatchResult) ByName(name string) (engine.ByteRange, bool) {
	idx, known := m.GroupNames[name]
	if !known {
		return engine.AbsentRange, false
	}
	return m.ByIndex(idx)
}

// ReplaceResult is the replace result shape SPEC_FULL.md §4.6 describes:
// always a fresh owned byte sequence plus a count; Replaced is the
// first-variant "bool replaced" reading of Count > 0.
type ReplaceResult struct {
	Output   []byte
	Count    int
	Replaced bool
}

func viewAndKind(v engine.View) (engine.View, InputKind) {
	if v.IsText() {
		return v, DecodedText
	}
	return v, OwnedOrBorrowed
}

func (d *Dispatcher) observe(op string, kind InputKind, start time.Time) {
	d.reg.ObserveOp(op, kind, time.Since(start))
}

// FullMatch implements the full-match operation: the entire view must
// match. A nil or already-released handle is InvalidHandle, never a silent
// false — programmer errors and "no match" are distinct kinds (SPEC_FULL.md
// §4.6's "Failure surfaces").
func (d *Dispatcher) FullMatch(h *pattern.Handle, v engine.View) (bool, error) {
	start := time.Now()
	if h == nil || !h.Valid() {
		return false, &cache.InvalidHandle{Reason: "nil or released handle"}
	}
	view, kind := viewAndKind(v)

	if d.resultCache != nil {
		if cached, ok := d.resultCache.Get(h.Record.Key, view.AsBytes()); ok {
			d.observe("full_match", kind, start)
			return cached, nil
		}
	}

	eng := d.c.Engine()
	matched := eng.FullMatch(h.Record.Artifact, view)
	if d.resultCache != nil {
		d.resultCache.Put(h.Record.Key, view.AsBytes(), matched)
	}
	d.observe("full_match", kind, start)
	return matched, nil
}

// PartialMatch implements the partial-match operation: any substring of the
// view may match.
func (d *Dispatcher) PartialMatch(h *pattern.Handle, v engine.View) (bool, error) {
	start := time.Now()
	if h == nil || !h.Valid() {
		return false, &cache.InvalidHandle{Reason: "nil or released handle"}
	}
	view, kind := viewAndKind(v)

	if d.resultCache != nil {
		if cached, ok := d.resultCache.Get(h.Record.Key, view.AsBytes()); ok {
			d.observe("partial_match", kind, start)
			return cached, nil
		}
	}

	eng := d.c.Engine()
	matched := eng.PartialMatch(h.Record.Artifact, view)
	if d.resultCache != nil {
		d.resultCache.Put(h.Record.Key, view.AsBytes(), matched)
	}
	d.observe("partial_match", kind, start)
	return matched, nil
}

// MatchWithCaptures implements the capturing match operation, producing the
// §4.6 capture-group result shape.
func (d *Dispatcher) MatchWithCaptures(h *pattern.Handle, v engine.View, mode engine.MatchMode) (MatchResult, error) {
	start := time.Now()
	if h == nil || !h.Valid() {
		return MatchResult{}, &cache.InvalidHandle{Reason: "nil or released handle"}
	}
	view, kind := viewAndKind(v)

	eng := d.c.Engine()
	ranges, ok := eng.MatchWithCaptures(h.Record.Artifact, view, mode)
	introspect := eng.Introspect(h.Record.Artifact)
	d.observe("match_with_captures", kind, start)
	if !ok {
		return MatchResult{Matched: false, GroupNames: introspect.NamedGroups}, nil
	}

	groups := make([]Group, len(ranges))
	for i, r := range ranges {
		groups[i] = Group{Range: r, Participated: r.Participated(), Name: introspect.GroupNames[i]}
	}
	return MatchResult{Matched: true, Groups: groups, GroupNames: introspect.NamedGroups}, nil
}

// FindAll implements bulk non-overlapping match discovery within a single
// view, returning one MatchResult per match (always Matched=true entries).
func (d *Dispatcher) FindAll(h *pattern.Handle, v engine.View) ([]MatchResult, error) {
	start := time.Now()
	if h == nil || !h.Valid() {
		return nil, &cache.InvalidHandle{Reason: "nil or released handle"}
	}
	view, kind := viewAndKind(v)

	eng := d.c.Engine()
	all := eng.FindAll(h.Record.Artifact, view)
	introspect := eng.Introspect(h.Record.Artifact)
	d.observe("find_all", kind, start)

	results := make([]MatchResult, len(all))
	for i, ranges := range all {
		groups := make([]Group, len(ranges))
		for j, r := range ranges {
			groups[j] = Group{Range: r, Participated: r.Participated(), Name: introspect.GroupNames[j]}
		}
		results[i] = MatchResult{Matched: true, Groups: groups, GroupNames: introspect.NamedGroups}
	}
	return results, nil
}

// ReplaceFirst implements the first-variant replace operation: replaces
// only the first match, returning replaced=false (Count=0) on no match.
func (d *Dispatcher) ReplaceFirst(h *pattern.Handle, v engine.View, rewrite []byte) (ReplaceResult, error) {
	start := time.Now()
	if h == nil || !h.Valid() {
		return ReplaceResult{}, &cache.InvalidHandle{Reason: "nil or released handle"}
	}
	view, kind := viewAndKind(v)

	eng := d.c.Engine()
	out, replaced := eng.ReplaceFirst(h.Record.Artifact, view, rewrite)
	d.observe("replace_first", kind, start)

	count := 0
	if replaced {
		count = 1
	}
	return ReplaceResult{Output: out, Count: count, Replaced: replaced}, nil
}

// ReplaceAll implements the all-variant replace operation.
func (d *Dispatcher) ReplaceAll(h *pattern.Handle, v engine.View, rewrite []byte) (ReplaceResult, error) {
	start := time.Now()
	if h == nil || !h.Valid() {
		return ReplaceResult{}, &cache.InvalidHandle{Reason: "nil or released handle"}
	}
	view, kind := viewAndKind(v)

	eng := d.c.Engine()
	out, count := eng.ReplaceAll(h.Record.Artifact, view, rewrite)
	d.observe("replace_all", kind, start)

	return ReplaceResult{Output: out, Count: count, Replaced: count > 0}, nil
}

// ResultCacheSnapshot reports the boolean-match LRU's occupancy, used to
// fill the metrics snapshot's pattern_result_cache section.
func (d *Dispatcher) ResultCacheSnapshot() metrics.ResultCacheSection {
	if d.resultCache == nil {
		return metrics.ResultCacheSection{}
	}
	size, hits, misses := d.resultCache.Stats()
	return metrics.NewResultCacheSection(size, hits, misses)
}

// Snapshot assembles the full metrics snapshot document (SPEC_FULL.md §6),
// combining this Dispatcher's result-cache occupancy with the Cache's PC/
// DRQ occupancy and the shared Registry's counters.
func (d *Dispatcher) Snapshot() metrics.Snapshot {
	st := d.c.Stats()
	return d.reg.NewSnapshot(
		d.ResultCacheSnapshot(),
		st.PatternCacheSize, st.PatternCacheBytes, d.c.TargetCapacityBytes(),
		st.DeferredQueueSize, st.DeferredQueueBytes,
		time.Now(),
	)
}
