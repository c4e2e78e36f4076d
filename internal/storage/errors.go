// Package storage holds what the store and archive backends share: typed
// reads of their string options and the error a bad option is reported with.
package storage

import (
	"fmt"
	"slices"
	"strings"
)

// ConfigError reports a backend option that is missing, malformed or could
// not be acted on.
type ConfigError struct {
	Backend string
	Field   string
	Value   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Backend)
	if e.Field != "" {
		b.WriteString(": " + e.Field)
		if e.Value != "" {
			fmt.Fprintf(&b, "=%q", e.Value)
		}
	}
	b.WriteString(": " + e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// UnknownBackend reports a backend name no package registered. kind is
// "store" or "archive".
func UnknownBackend(kind, name string, available []string) *ConfigError {
	available = slices.Clone(available)
	slices.Sort(available)
	return &ConfigError{
		Backend: name,
		Message: fmt.Sprintf("unknown %s backend (available: %s)", kind, strings.Join(available, ", ")),
	}
}
