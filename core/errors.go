package core

import (
	"fmt"
	"strings"
)

// ConfigError reports required context attributes that were absent when a
// handler needed them. Absent attributes are a legal sentinel state, so the
// failure is surfaced by an explicit context check rather than an
// attribute-not-found crash.
type ConfigError struct {
	// Paths lists the missing dotted attribute paths, e.g. "iteration.total".
	Paths []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required context attributes: %s", strings.Join(e.Paths, ", "))
}

// NewConfigError creates a ConfigError for the given missing paths.
func NewConfigError(paths ...string) *ConfigError {
	return &ConfigError{Paths: paths}
}
