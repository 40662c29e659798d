package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ebwi11/patterncache/internal/engine"
)

func TestReclaimWorkerTicksAndEvictsOnTTL(t *testing.T) {
	cfg := testConfig()
	cfg.PatternCacheTTLMS = 1
	cfg.EvictionIntervalMS = 5
	c := newCache(cfg, engine.Hybrid)

	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)
	require.NoError(t, c.Release(h))

	c.worker.Start()
	defer c.worker.Stop()

	require.Eventually(t, func() bool {
		return c.pc.sizeOf() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestReclaimWorkerStopIsIdempotentWithinTimeout(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)
	c.worker.Start()
	require.NoError(t, c.worker.Stop())
	require.NoError(t, c.worker.Stop())
}

func TestReclaimWorkerTickRunsWithoutPanicking(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)
	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)

	require.NotPanics(t, func() {
		c.worker.tick()
	})
	require.NoError(t, c.Release(h))
}

func TestHandleValidBecomesFalseAfterRelease(t *testing.T) {
	c := newCache(testConfig(), engine.Hybrid)
	h, err := c.GetOrCompile([]byte(`\d+`), opts())
	require.NoError(t, err)
	require.True(t, h.Valid())
	require.NoError(t, c.Release(h))
	require.False(t, h.Valid())
}
