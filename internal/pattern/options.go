// Package pattern defines the compilation key (source + options) and the
// cached Record that the pattern cache stores, per the data model described
// in SPEC_FULL.md §3.
package pattern

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Encoding selects how input bytes are interpreted.
type Encoding uint8

const (
	EncodingUTF8 Encoding = iota
	EncodingLatin1
)

// Options enumerates the engine-relevant compilation flags. Options is part
// of the compilation key: two Options values with identical fields must hash
// identically regardless of which Options value instance is used.
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
	Encoding          Encoding
	MaxMemoryBytes    uint64

	// hash caches the packed options hash. 0 means "not yet computed" (see
	// Hash). This mirrors the source's own memoized-hash-on-the-options-
	// value scheme; in the rare case the real packed value is 0 (every flag
	// false, UTF-8 encoding, zero byte budget) the cache simply recomputes
	// it on every call, which is correct, just not memoized.
	hash atomic.Uint64
}

// DefaultOptions returns the engine's default compilation options:
// case-sensitive, leftmost-first, UTF-8, unbounded memory budget.
func DefaultOptions() Options {
	return Options{
		CaseSensitive: true,
		PerlClasses:   true,
		WordBoundary:  true,
		OneLine:       true,
		Encoding:      EncodingUTF8,
	}
}

// Hash returns the packed 64-bit representation of o, computing and caching
// it on first use. Bits 0-9 hold the boolean fields in declaration order,
// bit 11 holds Encoding, and bits 13-44 hold the low 32 bits of
// MaxMemoryBytes.
func (o *Options) Hash() uint64 {
	if h := o.hash.Load(); h != 0 {
		return h
	}
	h := o.computeHash()
	o.hash.Store(h)
	return h
}

func (o *Options) computeHash() uint64 {
	var h uint64
	setBit := func(bit uint, v bool) {
		if v {
			h |= 1 << bit
		}
	}
	setBit(0, o.PosixSyntax)
	setBit(1, o.LongestMatch)
	setBit(2, o.Literal)
	setBit(3, o.NeverNewline)
	setBit(4, o.DotMatchesNewline)
	setBit(5, o.NeverCapture)
	setBit(6, o.CaseSensitive)
	setBit(7, o.PerlClasses)
	setBit(8, o.WordBoundary)
	setBit(9, o.OneLine)
	if o.Encoding == EncodingLatin1 {
		h |= 1 << 11
	}
	h |= (o.MaxMemoryBytes & 0xFFFFFFFF) << 13
	return h
}

// Key computes the 64-bit cache key for (source, o): the compilation key
// described in SPEC_FULL.md §3. It streams the source bytes and the packed
// options hash through a single xxhash digest rather than concatenating
// them, avoiding an allocation per lookup.
func Key(source []byte, o *Options) uint64 {
	d := xxhash.New()
	_, _ = d.Write(source)
	var buf [8]byte
	oh := o.Hash()
	buf[0] = byte(oh)
	buf[1] = byte(oh >> 8)
	buf[2] = byte(oh >> 16)
	buf[3] = byte(oh >> 24)
	buf[4] = byte(oh >> 32)
	buf[5] = byte(oh >> 40)
	buf[6] = byte(oh >> 48)
	buf[7] = byte(oh >> 56)
	_, _ = d.Write(buf[:])
	return d.Sum64()
}
