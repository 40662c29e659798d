package config

import "fmt"

// ConfigurationError reports an invalid configuration document rejected at
// load time, per SPEC_FULL.md §7.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: field %q: %s", e.Field, e.Message)
}
