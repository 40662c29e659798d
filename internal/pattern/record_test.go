package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRecordStartsLiveWithRefcountOne(t *testing.T) {
	now := time.Now()
	r := NewRecord(1, []byte(`\d+`), DefaultOptions(), nil, 128, now, 0)
	require.Equal(t, StateLive, r.State())
	require.EqualValues(t, 1, r.Refcount())
}

func TestIncrefForHitBumpsRefcountAndLastUsed(t *testing.T) {
	now := time.Now()
	r := NewRecord(1, []byte(`\d+`), DefaultOptions(), nil, 128, now, 0)
	later := now.Add(time.Second)
	n := r.IncrefForHit(later)
	require.EqualValues(t, 2, n)
	require.WithinDuration(t, later, r.LastUsedAt(), 0)
}

func TestDecrefReturnsNewCount(t *testing.T) {
	now := time.Now()
	r := NewRecord(1, []byte(`\d+`), DefaultOptions(), nil, 128, now, 0)
	r.IncrefForHit(now)
	require.EqualValues(t, 1, r.Decref())
	require.EqualValues(t, 0, r.Decref())
}

func TestProtectedWindow(t *testing.T) {
	now := time.Now()
	r := NewRecord(1, []byte(`\d+`), DefaultOptions(), nil, 128, now, 50*time.Millisecond)
	require.True(t, r.Protected(now))
	require.False(t, r.Protected(now.Add(100*time.Millisecond)))
}

func TestMarkEvictedThenReleased(t *testing.T) {
	now := time.Now()
	r := NewRecord(1, []byte(`\d+`), DefaultOptions(), nil, 128, now, 0)
	r.MarkEvicted(now)
	require.Equal(t, StateEvicted, r.State())
	require.WithinDuration(t, now, r.EvictedAt(), 0)

	r.MarkReleased()
	require.Equal(t, StateReleased, r.State())
}

// TestHandleConsumeIsIdempotent covers property P1: releasing the same
// handle twice must be detectable by the caller (Consume returns false the
// second time) rather than silently decrementing the refcount twice.
func TestHandleConsumeIsIdempotent(t *testing.T) {
	now := time.Now()
	r := NewRecord(1, []byte(`\d+`), DefaultOptions(), nil, 128, now, 0)
	h := NewHandle(r)

	require.True(t, h.Valid())
	require.True(t, h.Consume())
	require.False(t, h.Valid())
	require.False(t, h.Consume())
}

func TestToEngineOptionsMapsAllFields(t *testing.T) {
	o := Options{
		PosixSyntax:       true,
		LongestMatch:      true,
		Literal:           true,
		NeverNewline:      true,
		DotMatchesNewline: true,
		NeverCapture:      true,
		CaseSensitive:     true,
		PerlClasses:       true,
		WordBoundary:      true,
		OneLine:           true,
		Encoding:          EncodingLatin1,
		MaxMemoryBytes:    4096,
	}
	eo := o.ToEngineOptions()
	require.True(t, eo.PosixSyntax)
	require.True(t, eo.LongestMatch)
	require.True(t, eo.Literal)
	require.True(t, eo.NeverNewline)
	require.True(t, eo.DotMatchesNewline)
	require.True(t, eo.NeverCapture)
	require.True(t, eo.CaseSensitive)
	require.True(t, eo.PerlClasses)
	require.True(t, eo.WordBoundary)
	require.True(t, eo.OneLine)
	require.True(t, eo.Latin1)
	require.EqualValues(t, 4096, eo.MaxMemoryBytes)
}
