package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ebwi11/patterncache/internal/config"
	"github.com/ebwi11/patterncache/internal/engine"
	"github.com/ebwi11/patterncache/internal/pattern"
)

func testConfig() config.CacheConfig {
	cfg := config.DefaultCacheConfig()
	cfg.PatternCacheTTLMS = 60_000
	cfg.DeferredCacheTTLMS = 120_000
	cfg.EvictionIntervalMS = 1_000
	cfg.AutoStartEviction = false
	cfg.ProtectionWindowMS = 0
	cfg.TargetCapacityBytes = 1 << 30
	cfg.ActivePatternCeiling = 100_000
	return cfg
}

func opts() *pattern.Options {
	o := pattern.DefaultOptions()
	return &o
}

// P2: for any source+options pair, while a handle is alive, every concurrent
// get_or_compile resolves to the same record, and refcount equals the
// number of live handles plus one for the cache hold.
func TestGetOrCompileHitIdentity(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)

	h1, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)
	h2, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	require.Same(t, h1.Record, h2.Record)
	require.EqualValues(t, 3, h1.Record.Refcount()) // cache hold + 2 handles

	require.NoError(t, c.Release(h1))
	require.NoError(t, c.Release(h2))
	require.EqualValues(t, 1, h1.Record.Refcount())
}

// P1: releasing the same handle twice is InvalidHandle, never a double
// decrement.
func TestReleaseTwiceIsInvalidHandle(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)

	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	require.NoError(t, c.Release(h))
	err = c.Release(h)
	require.Error(t, err)
	var ih *InvalidHandle
	require.ErrorAs(t, err, &ih)
}

func TestReleaseNilHandleIsInvalidHandle(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)
	err := c.Release(nil)
	require.Error(t, err)
	var ih *InvalidHandle
	require.ErrorAs(t, err, &ih)
}

func TestCompilationErrorSurfacesOffendingFragment(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)

	_, err := c.GetOrCompile([]byte(`(unterminated`), opts())
	require.Error(t, err)
	var ce *CompilationError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "(unterminated", ce.OffendingPattern)
}

// P2 under concurrency: many goroutines racing the same miss all resolve to
// one record, with correct final refcount accounting.
func TestConcurrentGetOrCompileSingleFlight(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)

	const n = 50
	handles := make([]*pattern.Handle, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			h, err := c.GetOrCompile([]byte(`[a-z]+@[a-z]+\.[a-z]+`), opts())
			require.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	first := handles[0].Record
	for _, h := range handles {
		require.Same(t, first, h.Record)
	}
	require.EqualValues(t, n+1, first.Refcount())

	for _, h := range handles {
		require.NoError(t, c.Release(h))
	}
	require.EqualValues(t, 1, first.Refcount())
}

// P3 / scenario 7: a pattern held across a reclamation tick that evicts it
// on TTL continues to serve matches through the still-held handle, then is
// destroyed once released and swept again.
func TestHeldHandleSurvivesEvictionAndReclaimsOnRelease(t *testing.T) {
	cfg := testConfig()
	cfg.PatternCacheTTLMS = 1
	c := newCache(cfg, engine.Hybrid)

	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// First reclaim: TTL has expired while the handle is still held, so the
	// record moves to DRQ rather than being destroyed (refcount > 0).
	c.pc.reclaim(time.Now())
	require.Equal(t, pattern.StateEvicted, h.Record.State())
	require.Equal(t, 0, c.pc.sizeOf())
	require.Equal(t, 1, c.drq.size())

	matched := c.Engine().FullMatch(h.Record.Artifact, engine.BytesView([]byte("12345")))
	require.True(t, matched)

	require.NoError(t, c.Release(h))

	immediate, forced, _ := c.drq.reclaim(time.Now())
	require.Equal(t, 1, immediate)
	require.Equal(t, 0, forced)
	require.Equal(t, pattern.StateReleased, h.Record.State())
}

// P5 / scenario 8: a handle leaked past deferred_TTL is force-released
// regardless of refcount.
func TestLeakedHandleForceReleasedAfterDeferredTTL(t *testing.T) {
	cfg := testConfig()
	cfg.PatternCacheTTLMS = 1
	cfg.DeferredCacheTTLMS = 5
	c := newCache(cfg, engine.Hybrid)

	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	c.pc.reclaim(time.Now())
	require.Equal(t, 1, c.drq.size())

	time.Sleep(10 * time.Millisecond)
	immediate, forced, _ := c.drq.reclaim(time.Now())
	require.Equal(t, 0, immediate)
	require.Equal(t, 1, forced)
	require.Equal(t, pattern.StateReleased, h.Record.State())

	// The leaked handle was never released by the caller; releasing it now
	// must still be detected as already-terminal rather than corrupting
	// accounting further. Consume() on the handle itself still succeeds
	// exactly once (it was never consumed), matching single-ownership
	// semantics even though the record underneath is already gone.
	require.NoError(t, c.Release(h))
}

// P4 / scenario 6: after a reclamation tick, once callers release every
// handle, current_bytes never exceeds target_capacity_bytes.
func TestCapacityReclaimDrivesBytesBelowTarget(t *testing.T) {
	cfg := testConfig()
	cfg.TargetCapacityBytes = 2000
	c := newCache(cfg, engine.Hybrid)

	for i := 0; i < 100; i++ {
		h, err := c.GetOrCompile([]byte(fmt.Sprintf("literal-pattern-number-%03d", i)), opts())
		require.NoError(t, err)
		require.NoError(t, c.Release(h))
	}

	evicted, _ := c.pc.reclaim(time.Now())
	require.Greater(t, evicted, 0)
	require.LessOrEqual(t, c.pc.currentBytes(), cfg.TargetCapacityBytes)
}

func TestProtectionWindowSkipsCapacityEviction(t *testing.T) {
	cfg := testConfig()
	cfg.TargetCapacityBytes = 1
	cfg.ProtectionWindowMS = 10_000
	c := newCache(cfg, engine.Hybrid)

	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)
	require.NoError(t, c.Release(h))

	evicted, _ := c.pc.reclaim(time.Now())
	require.Equal(t, 0, evicted)
	require.Equal(t, pattern.StateLive, h.Record.State())
}

// P6 / bulk partial success is exercised at the dispatch layer, but the
// cache-level contract it depends on — ResourceExhausted firing before any
// artifact is allocated — is tested here.
func TestResourceExhaustedBeforeCompile(t *testing.T) {
	cfg := testConfig()
	cfg.ActivePatternCeiling = 1
	c := newCache(cfg, engine.Hybrid)

	h1, err := c.GetOrCompile([]byte(`a+`), opts())
	require.NoError(t, err)

	_, err = c.GetOrCompile([]byte(`b+`), opts())
	require.Error(t, err)
	var re *ResourceExhausted
	require.ErrorAs(t, err, &re)

	require.NoError(t, c.Release(h1))
}

func TestCacheDisabledBypassesCacheHold(t *testing.T) {
	cfg := testConfig()
	cfg.CacheEnabled = false
	c := newCache(cfg, engine.Hybrid)

	h1, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)
	h2, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	require.NotSame(t, h1.Record, h2.Record)
	require.EqualValues(t, 1, h1.Record.Refcount())

	require.NoError(t, c.Release(h1))
	require.NoError(t, c.Release(h2))
}

func TestShutdownDrainsLiveIntoDeferredAndForceReleases(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)

	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	c.Shutdown()

	require.Equal(t, pattern.StateReleased, h.Record.State())
	require.Equal(t, 0, c.pc.sizeOf())
	require.Equal(t, 0, c.drq.size())
}

func TestConfigValidateRejectsDeferredTTLNotExceedingPCTTL(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.PatternCacheTTLMS = 1000
	cfg.DeferredCacheTTLMS = 1000
	require.Error(t, cfg.Validate())
}
