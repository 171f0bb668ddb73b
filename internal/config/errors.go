package config

import (
	"fmt"
)

// ConfigurationError reports a config.yaml that could not be read or written.
type ConfigurationError struct {
	FilePath  string
	ErrorType string // "io", "parse" or "validation"
	Err       error
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s error in %s: %v", ce.ErrorType, ce.FilePath, ce.Err)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}
