package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebwi11/patterncache/internal/cache"
	"github.com/ebwi11/patterncache/internal/config"
	"github.com/ebwi11/patterncache/internal/engine"
	"github.com/ebwi11/patterncache/internal/pattern"
)

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Init(config.DefaultCacheConfig())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func compile(t *testing.T, c *cache.Cache, source string) *pattern.Handle {
	t.Helper()
	o := pattern.DefaultOptions()
	h, err := c.GetOrCompile([]byte(source), &o)
	require.NoError(t, err)
	return h
}

func TestFullMatchAndPartialMatch(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 64)
	h := compile(t, c, `\d+`)
	defer c.Release(h)

	ok, err := d.FullMatch(h, engine.BytesView([]byte("12345")))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.PartialMatch(h, engine.BytesView([]byte("abc 42")))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNilOrReleasedHandleIsInvalidHandle(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)

	_, err := d.FullMatch(nil, engine.BytesView([]byte("x")))
	require.Error(t, err)
	var ih *cache.InvalidHandle
	require.ErrorAs(t, err, &ih)

	h := compile(t, c, `\d+`)
	require.NoError(t, c.Release(h))

	_, err = d.PartialMatch(h, engine.BytesView([]byte("1")))
	require.Error(t, err)
	require.ErrorAs(t, err, &ih)
}

// P8: capture order and name lookup parity at the dispatch layer.
func TestMatchWithCapturesGroupShape(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)
	h := compile(t, c, `(?P<year>\d{4})-(?P<month>\d{2})`)
	defer c.Release(h)

	res, err := d.MatchWithCaptures(h, engine.BytesView([]byte("2025-11")), engine.Unanchored)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Len(t, res.Groups, 3)

	b := []byte("2025-11")
	yr, ok := res.ByName("year")
	require.True(t, ok)
	require.Equal(t, "2025", string(b[yr.Start:yr.End]))

	mo, ok := res.ByIndex(2)
	require.True(t, ok)
	require.Equal(t, "11", string(b[mo.Start:mo.End]))

	_, ok = res.ByName("unknown")
	require.False(t, ok)

	_, ok = res.ByIndex(99)
	require.False(t, ok)
}

func TestMatchWithCapturesNoMatchStillReturnsGroupNames(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)
	h := compile(t, c, `(?P<year>\d{4})`)
	defer c.Release(h)

	res, err := d.MatchWithCaptures(h, engine.BytesView([]byte("no digits")), engine.Unanchored)
	require.NoError(t, err)
	require.False(t, res.Matched)
	require.Contains(t, res.GroupNames, "year")
}

func TestReplaceFirstAndReplaceAllResultShape(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)
	h := compile(t, c, `\d+`)
	defer c.Release(h)

	first, err := d.ReplaceFirst(h, engine.BytesView([]byte("a1 b2")), []byte("N"))
	require.NoError(t, err)
	require.True(t, first.Replaced)
	require.Equal(t, 1, first.Count)
	require.Equal(t, "aN b2", string(first.Output))

	all, err := d.ReplaceAll(h, engine.BytesView([]byte("a1 b2")), []byte("N"))
	require.NoError(t, err)
	require.True(t, all.Replaced)
	require.Equal(t, 2, all.Count)
	require.Equal(t, "aN bN", string(all.Output))

	noMatch, err := d.ReplaceFirst(h, engine.BytesView([]byte("none")), []byte("N"))
	require.NoError(t, err)
	require.False(t, noMatch.Replaced)
	require.Equal(t, 0, noMatch.Count)
}

func TestFindAllReturnsMatchedEntries(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)
	h := compile(t, c, `\d+`)
	defer c.Release(h)

	results, err := d.FindAll(h, engine.BytesView([]byte("a1 b22 c333")))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.True(t, r.Matched)
	}
}

// P6: bulk dispatch never drops a slot — absent slots resolve to
// Matched=false rather than shrinking the result slice or aborting the
// batch on one slot's error.
func TestBulkFullMatchPartialSuccessNeverDropsSlots(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)
	h := compile(t, c, `\d+`)
	defer c.Release(h)

	inputs := []BulkInput{
		{View: engine.BytesView([]byte("123"))},
		{Absent: true},
		{View: engine.BytesView([]byte("abc"))},
		{View: engine.BytesView([]byte("456"))},
	}
	results := d.BulkFullMatch(h, inputs)
	require.Len(t, results, len(inputs))
	require.True(t, results[0].Matched)
	require.False(t, results[1].Matched)
	require.NoError(t, results[1].Err)
	require.False(t, results[2].Matched)
	require.True(t, results[3].Matched)
}

func TestBulkPartialMatchLargeBatch(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 0)
	h := compile(t, c, `foo`)
	defer c.Release(h)

	inputs := make([]BulkInput, 500)
	for i := range inputs {
		if i%7 == 0 {
			inputs[i] = BulkInput{Absent: true}
			continue
		}
		text := "xxfooxx"
		if i%3 == 0 {
			text = "no match here"
		}
		inputs[i] = BulkInput{View: engine.BytesView([]byte(text))}
	}

	results := d.BulkPartialMatch(h, inputs)
	require.Len(t, results, len(inputs))
	for i, r := range results {
		switch {
		case inputs[i].Absent:
			require.False(t, r.Matched)
		case i%3 == 0:
			require.False(t, r.Matched)
		default:
			require.True(t, r.Matched)
		}
	}
}

func TestResultCacheServesRepeatedFullMatch(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 64)
	h := compile(t, c, `\d+`)
	defer c.Release(h)

	_, err := d.FullMatch(h, engine.BytesView([]byte("777")))
	require.NoError(t, err)
	size, _, misses := d.resultCache.Stats()
	require.Equal(t, 1, size)
	require.EqualValues(t, 1, misses)

	ok, err := d.FullMatch(h, engine.BytesView([]byte("777")))
	require.NoError(t, err)
	require.True(t, ok)
	_, hits, _ := d.resultCache.Stats()
	require.EqualValues(t, 1, hits)
}

func TestSnapshotAssemblesSections(t *testing.T) {
	c := testCache(t)
	d := NewDispatcher(c, 64)
	h := compile(t, c, `\d+`)
	defer c.Release(h)

	_, err := d.FullMatch(h, engine.BytesView([]byte("1")))
	require.NoError(t, err)

	snap := d.Snapshot()
	require.Equal(t, 1, snap.PatternCache.EntryCount)
	require.Equal(t, "coregx/coregex", snap.EngineLibrary.Primary)
}
