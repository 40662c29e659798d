package pattern

import (
	"sync/atomic"
	"time"

	"github.com/ebwi11/patterncache/internal/engine"
)

// State is one of the three Pattern Record states described in
// SPEC_FULL.md §4.3.
type State int32

const (
	StateLive State = iota
	StateEvicted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateEvicted:
		return "evicted"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Record is the cached entity: a compiled artifact plus its source,
// options, reference count, and lifecycle bookkeeping (SPEC_FULL.md §3).
type Record struct {
	Key      uint64
	Source   []byte
	Options  Options
	Artifact *engine.Artifact

	ApproxBytes uint64
	CreatedAt   time.Time

	refcount     atomic.Int64
	state        atomic.Int32
	lastUsedAt   atomic.Int64 // unix nanoseconds
	evictedAt    atomic.Int64 // unix nanoseconds; meaningful once state == Evicted
	protectUntil int64        // unix nanoseconds; fixed at construction
}

// NewRecord constructs a Live record with refcount=1 — the cache's own
// hold described in SPEC_FULL.md §3's Lifecycle note. The caller bumps the
// refcount a second time when handing out the first Handle.
func NewRecord(key uint64, source []byte, opts Options, artifact *engine.Artifact, approxBytes uint64, now time.Time, protectWindow time.Duration) *Record {
	r := &Record{
		Key:         key,
		Source:      source,
		Options:     opts,
		Artifact:    artifact,
		ApproxBytes: approxBytes,
		CreatedAt:   now,
	}
	r.refcount.Store(1)
	r.state.Store(int32(StateLive))
	r.lastUsedAt.Store(now.UnixNano())
	r.protectUntil = now.Add(protectWindow).UnixNano()
	return r
}

func (r *Record) State() State      { return State(r.state.Load()) }
func (r *Record) setState(s State)  { r.state.Store(int32(s)) }
func (r *Record) Refcount() int64   { return r.refcount.Load() }
func (r *Record) LastUsedAt() time.Time { return time.Unix(0, r.lastUsedAt.Load()) }
func (r *Record) EvictedAt() time.Time  { return time.Unix(0, r.evictedAt.Load()) }

// IncrefForHit atomically increments refcount and refreshes last_used_at.
// The caller must hold the cache index lock across this call and release
// the lock only after it returns — invariant I3 requires the increment to
// land before any lock an evictor also takes is released.
func (r *Record) IncrefForHit(now time.Time) int64 {
	n := r.refcount.Add(1)
	r.lastUsedAt.Store(now.UnixNano())
	return n
}

// Decref decrements refcount and returns the resulting value.
func (r *Record) Decref() int64 { return r.refcount.Add(-1) }

// Protected reports whether now falls inside the post-compile eviction
// grace period (SPEC_FULL.md §4.2 "Protection window").
func (r *Record) Protected(now time.Time) bool { return now.UnixNano() < r.protectUntil }

// MarkEvicted transitions Live -> Evicted and stamps the eviction time DRQ
// uses for its forced-release deadline.
func (r *Record) MarkEvicted(now time.Time) {
	r.setState(StateEvicted)
	r.evictedAt.Store(now.UnixNano())
}

// MarkReleased transitions to the terminal Released state. Per I5, a
// Released record never re-enters PC or DRQ.
func (r *Record) MarkReleased() { r.setState(StateReleased) }

// ToEngineOptions bridges the cache's key-hashing Options to the engine
// package's compile-time Options, keeping internal/engine free of a
// dependency on internal/pattern's hashing concerns.
func (o Options) ToEngineOptions() engine.Options {
	return engine.Options{
		PosixSyntax:       o.PosixSyntax,
		LongestMatch:      o.LongestMatch,
		Literal:           o.Literal,
		NeverNewline:      o.NeverNewline,
		DotMatchesNewline: o.DotMatchesNewline,
		NeverCapture:      o.NeverCapture,
		CaseSensitive:     o.CaseSensitive,
		PerlClasses:       o.PerlClasses,
		WordBoundary:      o.WordBoundary,
		OneLine:           o.OneLine,
		Latin1:            o.Encoding == EncodingLatin1,
		MaxMemoryBytes:    o.MaxMemoryBytes,
	}
}

// Handle is a pinned, single-ownership reference to a Record, returned to
// callers by the cache. It is valid until exactly one Release call consumes
// it; a second Release or a use-after-release is InvalidHandle (property
// P1), never a silent no-op.
type Handle struct {
	Record *Record

	released atomic.Bool
}

// NewHandle wraps r in a fresh, unreleased Handle.
func NewHandle(r *Record) *Handle { return &Handle{Record: r} }

// Consume marks the handle released exactly once. It returns false if the
// handle had already been released, which the caller must surface as
// InvalidHandle rather than silently ignore.
func (h *Handle) Consume() bool { return h.released.CompareAndSwap(false, true) }

// Valid reports whether the handle has not yet been released, without
// consuming it. The dispatch layer checks this before every engine call.
func (h *Handle) Valid() bool { return !h.released.Load() }
