package core

import "fmt"

// ConfigurationError reports a setup value the pipeline cannot run with.
// It is only ever returned at configure time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a ConfigurationError for callers outside this package.
func ConfigErrorf(field, format string, args ...any) error {
	return configErrorf(field, format, args...)
}
