package domain

import (
	"errors"
	"fmt"
)

// ErrNoData signals that the source holds no samples for the requested
// region and window (outage, or outside product coverage). It is recorded as
// a missing value and never retried.
var ErrNoData = errors.New("no data for window")

// ConfigError is a fatal configuration problem detected before extraction.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
