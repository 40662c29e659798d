// Package config loads and validates the cache's runtime configuration,
// following the teacher's output-config loading idiom: YAML via
// gopkg.in/yaml.v3, with *yaml.TypeError unwrapped field-by-field into an
// actionable error, plus a JSON load path for the document shape
// SPEC_FULL.md §6 names directly (cache_enabled, pattern_cache_target_capacity_bytes, ...).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// CacheConfig is the recognized configuration document described in
// SPEC_FULL.md §6.
type CacheConfig struct {
	CacheEnabled bool `yaml:"cache_enabled" json:"cache_enabled"`

	TargetCapacityBytes uint64 `yaml:"pattern_cache_target_capacity_bytes" json:"pattern_cache_target_capacity_bytes"`
	PatternCacheTTLMS   int64  `yaml:"pattern_cache_ttl_ms" json:"pattern_cache_ttl_ms"`
	DeferredCacheTTLMS  int64  `yaml:"deferred_cache_ttl_ms" json:"deferred_cache_ttl_ms"`
	EvictionIntervalMS  int64  `yaml:"eviction_check_interval_ms" json:"eviction_check_interval_ms"`
	AutoStartEviction   bool   `yaml:"auto_start_eviction_thread" json:"auto_start_eviction_thread"`
	ProtectionWindowMS  int64  `yaml:"protection_window_ms" json:"protection_window_ms"`

	// ActivePatternCeiling bounds the number of simultaneously Live+Evicted
	// records; exceeding it returns ResourceExhausted before compilation.
	// Not named in spec.md's config table but required by §7's
	// ResourceExhausted kind, so it is carried here as a SPEC_FULL.md
	// addition rather than invented ad hoc inside the cache package.
	ActivePatternCeiling int `yaml:"active_pattern_ceiling" json:"active_pattern_ceiling"`
}

// DefaultCacheConfig mirrors the defaults used throughout SPEC_FULL.md's
// worked scenarios.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		CacheEnabled:         true,
		TargetCapacityBytes:  64 << 20,
		PatternCacheTTLMS:    60_000,
		DeferredCacheTTLMS:   120_000,
		EvictionIntervalMS:   5_000,
		AutoStartEviction:    true,
		ProtectionWindowMS:   250,
		ActivePatternCeiling: 100_000,
	}
}

func (c CacheConfig) PatternCacheTTL() time.Duration  { return time.Duration(c.PatternCacheTTLMS) * time.Millisecond }
func (c CacheConfig) DeferredCacheTTL() time.Duration { return time.Duration(c.DeferredCacheTTLMS) * time.Millisecond }
func (c CacheConfig) EvictionInterval() time.Duration { return time.Duration(c.EvictionIntervalMS) * time.Millisecond }
func (c CacheConfig) ProtectionWindow() time.Duration { return time.Duration(c.ProtectionWindowMS) * time.Millisecond }

// Validate enforces SPEC_FULL.md §6's validation rules: non-negative
// intervals, positive TTLs and capacity, deferred_TTL strictly greater than
// pc_TTL.
func (c CacheConfig) Validate() error {
	if c.PatternCacheTTLMS <= 0 {
		return &ConfigurationError{Field: "pattern_cache_ttl_ms", Message: "must be positive"}
	}
	if c.DeferredCacheTTLMS <= 0 {
		return &ConfigurationError{Field: "deferred_cache_ttl_ms", Message: "must be positive"}
	}
	if c.TargetCapacityBytes == 0 {
		return &ConfigurationError{Field: "pattern_cache_target_capacity_bytes", Message: "must be positive"}
	}
	if c.EvictionIntervalMS < 0 {
		return &ConfigurationError{Field: "eviction_check_interval_ms", Message: "must be non-negative"}
	}
	if c.ProtectionWindowMS < 0 {
		return &ConfigurationError{Field: "protection_window_ms", Message: "must be non-negative"}
	}
	if c.DeferredCacheTTLMS <= c.PatternCacheTTLMS {
		return &ConfigurationError{Field: "deferred_cache_ttl_ms", Message: "must exceed pattern_cache_ttl_ms"}
	}
	if c.ActivePatternCeiling <= 0 {
		return &ConfigurationError{Field: "active_pattern_ceiling", Message: "must be positive"}
	}
	return nil
}

// LoadYAML parses a YAML configuration document, following
// AgentSmith-HUB's output.Verify pattern of unwrapping *yaml.TypeError into
// a message that names the offending field.
func LoadYAML(data []byte) (CacheConfig, error) {
	cfg := DefaultCacheConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CacheConfig{}, wrapYAMLError(err)
	}
	if err := cfg.Validate(); err != nil {
		return CacheConfig{}, err
	}
	return cfg, nil
}

// LoadJSON parses the JSON document shape spec.md §6 names directly, using
// the teacher's chosen JSON library (bytedance/sonic) rather than
// encoding/json.
func LoadJSON(data []byte) (CacheConfig, error) {
	cfg := DefaultCacheConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return CacheConfig{}, &ConfigurationError{Field: "(document)", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return CacheConfig{}, err
	}
	return cfg, nil
}

func wrapYAMLError(err error) error {
	var typeErr *yaml.TypeError
	if te, ok := err.(*yaml.TypeError); ok {
		typeErr = te
	}
	if typeErr != nil && len(typeErr.Errors) > 0 {
		msg := typeErr.Errors[0]
		line := ""
		for _, e := range typeErr.Errors {
			if strings.Contains(e, "line") {
				line = e
				break
			}
		}
		return &ConfigurationError{Field: "(yaml)", Message: fmt.Sprintf("%s (location: %s)", msg, line)}
	}
	return &ConfigurationError{Field: "(yaml)", Message: err.Error()}
}
