package cache

import (
	"fmt"

	"github.com/ebwi11/patterncache/internal/config"
)

// The five error kinds are kept as distinct types (never conflated) per
// SPEC_FULL.md §7, so callers can type-switch instead of string-matching.

// CompilationError reports a pattern source rejected by the engine. Never
// retried.
type CompilationError struct {
	Message          string
	OffendingPattern string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation error: %s (pattern: %q)", e.Message, e.OffendingPattern)
}

// InvalidHandle reports a handle used after release, used twice, or nil.
// This is a programmer error, surfaced as a fatal signal rather than a
// match miss.
type InvalidHandle struct {
	Reason string
}

func (e *InvalidHandle) Error() string { return "invalid handle: " + e.Reason }

// ResourceExhausted reports that compilation would exceed the configured
// active-pattern ceiling. Emitted before any artifact is allocated; not
// auto-recoverable.
type ResourceExhausted struct {
	ActivePatterns int
	Ceiling        int
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("resource exhausted: %d active patterns at ceiling %d", e.ActivePatterns, e.Ceiling)
}

// ConfigurationError reports an invalid configuration rejected at load
// time. It is the same type internal/config returns from Validate, kept as
// an alias here so callers of this package need only import cache to
// type-switch on every error kind in SPEC_FULL.md §7.
type ConfigurationError = config.ConfigurationError

// EngineError reports an unexpected failure from the Engine Interface
// during match/replace. Rare; propagated verbatim to the caller.
type EngineError struct {
	Op      string
	Wrapped error
}

func (e *EngineError) Error() string { return fmt.Sprintf("engine error during %s: %v", e.Op, e.Wrapped) }
func (e *EngineError) Unwrap() error { return e.Wrapped }
