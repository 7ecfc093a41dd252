package domain

import "fmt"

// ConfigError is a fatal misconfiguration: a missing required parameter for
// a requested derived computation, an inconsistent drizzle/PSF factor pair,
// an unknown model name. It propagates as a hard failure and is never
// converted into a rejection sentinel.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Configf constructs a ConfigError with a formatted message.
func Configf(op, format string, args ...any) *ConfigError {
	return &ConfigError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
