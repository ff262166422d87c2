package barclock

import "fmt"

// ConfigurationError is returned when a module cannot be constructed from
// its configuration.
type ConfigurationError struct {
	Module string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return "module " + e.Module + ": configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ConfigErrorf is shorthand for a ConfigurationError wrapping a formatted
// error.
func ConfigErrorf(module, format string, a ...any) error {
	return &ConfigurationError{Module: module, Err: fmt.Errorf(format, a...)}
}

// UnknownTagError is reported when a module's format references a tag it
// cannot build.
type UnknownTagError struct {
	Module string
	Tag    string
}

func (e *UnknownTagError) Error() string {
	return "module " + e.Module + ": unknown format tag " + e.Tag
}
