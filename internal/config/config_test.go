package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultCacheConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTTLs(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.PatternCacheTTLMS = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultCacheConfig()
	cfg.DeferredCacheTTLMS = -1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroCapacity(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.TargetCapacityBytes = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeIntervals(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.EvictionIntervalMS = -1
	require.Error(t, cfg.Validate())

	cfg = DefaultCacheConfig()
	cfg.ProtectionWindowMS = -1
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresDeferredTTLExceedsPatternTTL(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.PatternCacheTTLMS = 1000
	cfg.DeferredCacheTTLMS = 1000
	require.Error(t, cfg.Validate())

	cfg.DeferredCacheTTLMS = 1001
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveCeiling(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.ActivePatternCeiling = 0
	require.Error(t, cfg.Validate())
}

func TestLoadYAMLHappyPath(t *testing.T) {
	doc := []byte(`
cache_enabled: true
pattern_cache_target_capacity_bytes: 1048576
pattern_cache_ttl_ms: 30000
deferred_cache_ttl_ms: 60000
eviction_check_interval_ms: 2000
auto_start_eviction_thread: false
protection_window_ms: 100
active_pattern_ceiling: 5000
`)
	cfg, err := LoadYAML(doc)
	require.NoError(t, err)
	require.True(t, cfg.CacheEnabled)
	require.EqualValues(t, 1048576, cfg.TargetCapacityBytes)
	require.EqualValues(t, 30000, cfg.PatternCacheTTLMS)
	require.False(t, cfg.AutoStartEviction)
	require.EqualValues(t, 5000, cfg.ActivePatternCeiling)
}

func TestLoadYAMLRejectsWrongType(t *testing.T) {
	doc := []byte(`pattern_cache_ttl_ms: "not a number"`)
	_, err := LoadYAML(doc)
	require.Error(t, err)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestLoadYAMLRejectsInvalidConfig(t *testing.T) {
	doc := []byte(`
pattern_cache_ttl_ms: 1000
deferred_cache_ttl_ms: 1000
pattern_cache_target_capacity_bytes: 1024
active_pattern_ceiling: 10
`)
	_, err := LoadYAML(doc)
	require.Error(t, err)
}

func TestLoadJSONHappyPath(t *testing.T) {
	doc := []byte(`{
		"cache_enabled": false,
		"pattern_cache_target_capacity_bytes": 2048,
		"pattern_cache_ttl_ms": 1000,
		"deferred_cache_ttl_ms": 5000,
		"eviction_check_interval_ms": 500,
		"auto_start_eviction_thread": true,
		"protection_window_ms": 0,
		"active_pattern_ceiling": 10
	}`)
	cfg, err := LoadJSON(doc)
	require.NoError(t, err)
	require.False(t, cfg.CacheEnabled)
	require.EqualValues(t, 2048, cfg.TargetCapacityBytes)
	require.True(t, cfg.AutoStartEviction)
}

func TestLoadJSONRejectsMalformedDocument(t *testing.T) {
	_, err := LoadJSON([]byte(`{not json`))
	require.Error(t, err)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := DefaultCacheConfig()
	require.Equal(t, int64(60_000), cfg.PatternCacheTTL().Milliseconds())
	require.Equal(t, int64(120_000), cfg.DeferredCacheTTL().Milliseconds())
	require.Equal(t, int64(5_000), cfg.EvictionInterval().Milliseconds())
	require.Equal(t, int64(250), cfg.ProtectionWindow().Milliseconds())
}
