// Package engine is the Engine Interface (EI) adapter described in
// SPEC_FULL.md §4.1. It hides the underlying regex engine(s) behind a small
// capability interface; everything above this package (the pattern cache,
// the dispatch layer) talks only to Engine and never imports a regex library
// directly.
package engine

import "fmt"

// ByteRange is a half-open [start, end) byte index pair into a View. A group
// that did not participate in a match is the sentinel AbsentRange.
type ByteRange struct {
	Start int
	End   int
}

// AbsentRange is the "did-not-participate" sentinel for an optional capture
// group.
var AbsentRange = ByteRange{Start: -1, End: -1}

// Participated reports whether the range refers to real match text.
func (r ByteRange) Participated() bool { return r.Start >= 0 && r.End >= 0 }

// MatchMode selects whether a captures search must consume the view from
// its first byte.
type MatchMode int

const (
	Unanchored MatchMode = iota
	Anchored
)

// View is a caller-supplied input. Exactly one of Bytes or Text is the
// view's native representation; the other accessor performs a bounded
// temporary copy. DL (internal/dispatch) is the only caller that constructs
// a View directly — see its routing rules in SPEC_FULL.md §4.6.
type View struct {
	bytes []byte
	text  string
	isStr bool
}

// BytesView wraps an owned or borrowed byte slice. The slice must remain
// valid only for the duration of the call; the engine never retains it.
func BytesView(b []byte) View { return View{bytes: b} }

// TextView wraps a decoded Go string (UTF-8 by construction).
func TextView(s string) View { return View{text: s, isStr: true} }

// AsBytes returns the view's bytes, converting from string only if this
// View was constructed from decoded text.
func (v View) AsBytes() []byte {
	if !v.isStr {
		return v.bytes
	}
	return []byte(v.text)
}

// AsString returns the view as a string, converting from bytes only if this
// View was constructed from a byte slice.
func (v View) AsString() string {
	if v.isStr {
		return v.text
	}
	return string(v.bytes)
}

// IsText reports whether the view's native representation is a Go string.
func (v View) IsText() bool { return v.isStr }

// Len reports the view's length without forcing a conversion.
func (v View) Len() int {
	if v.isStr {
		return len(v.text)
	}
	return len(v.bytes)
}

// Introspection summarizes a compiled artifact, per SPEC_FULL.md §4.1.
type Introspection struct {
	GroupCount  int
	NamedGroups map[string]int
	GroupNames  map[int]string
	ApproxBytes uint64
	ProgramSize int
}

// CompileError reports a rejected pattern source, carrying the offending
// fragment the way SPEC_FULL.md's CompilationError requires.
type CompileError struct {
	Message          string
	OffendingPattern string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern compilation failed: %s (pattern: %q)", e.Message, e.OffendingPattern)
}

// RewriteError reports an invalid rewrite template (out-of-range group
// reference, malformed escape).
type RewriteError struct {
	Message string
}

func (e *RewriteError) Error() string { return "invalid rewrite template: " + e.Message }

// Engine is the capability every backing regex library must provide. It
// maps 1:1 onto the operations in SPEC_FULL.md §4.1; "artifact" there is the
// opaque *Artifact returned by Compile.
type Engine interface {
	// Compile turns a pattern source plus options into an immutable,
	// concurrently-readable artifact. Pure: never mutates global state.
	Compile(source []byte, opts *Options) (*Artifact, error)

	FullMatch(a *Artifact, v View) bool
	PartialMatch(a *Artifact, v View) bool

	// MatchWithCaptures returns the ranges for the whole match (index 0)
	// and each capturing group in syntactic order, or ok=false on no match.
	MatchWithCaptures(a *Artifact, v View, mode MatchMode) (ranges []ByteRange, ok bool)

	// FindAll returns the capture ranges for every non-overlapping match,
	// restartable by calling again; it is not an open iterator.
	FindAll(a *Artifact, v View) [][]ByteRange

	ReplaceFirst(a *Artifact, v View, rewrite []byte) (result []byte, replaced bool)
	ReplaceAll(a *Artifact, v View, rewrite []byte) (result []byte, count int)

	// QuoteLiteral escapes bytes so they match themselves literally when
	// compiled as a pattern.
	QuoteLiteral(src []byte) []byte

	// Rewrite applies a rewrite template against explicit capture ranges
	// into view, independent of the artifact's own match state. SPEC_FULL.md
	// underspecifies which buffer the supplied ByteRanges index into (§4.1
	// describes ByteRange generically as indexing "into view" but the
	// rewrite operation signature omits a view parameter); this
	// implementation resolves the ambiguity by requiring the caller to pass
	// the same view the ranges were produced against.
	Rewrite(a *Artifact, view View, rewrite []byte, captures []ByteRange) (result []byte, ok bool)

	ValidateRewrite(a *Artifact, rewrite []byte) error

	Introspect(a *Artifact) Introspection
}

// Options mirrors pattern.Options without importing the pattern package,
// keeping engine free of a dependency on the cache's key-hashing concerns.
// internal/pattern.Options converts to it via Options.ToEngineOptions
// (internal/pattern/record.go), which internal/cache calls before Compile.
type Options struct {
	PosixSyntax       bool
	LongestMatch      bool
	Literal           bool
	NeverNewline      bool
	DotMatchesNewline bool
	NeverCapture      bool
	CaseSensitive     bool
	PerlClasses       bool
	WordBoundary      bool
	OneLine           bool
	Latin1            bool
	MaxMemoryBytes    uint64
}
