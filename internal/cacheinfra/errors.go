package cacheinfra

import (
	"errors"
	"fmt"
)

var (
	// ErrMiss is returned by Get when the key holds no value.
	ErrMiss = errors.New("cache: miss")

	// ErrUnavailable marks failures talking to the backing store. Callers are
	// expected to degrade rather than fail the request.
	ErrUnavailable = errors.New("cache: store unavailable")
)

// StoreError wraps a backend failure with the command that produced it.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports every StoreError as ErrUnavailable.
func (e *StoreError) Is(target error) bool { return target == ErrUnavailable }

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
