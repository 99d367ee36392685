package rediskv

import (
	"errors"
	"fmt"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// Storage errors, re-exported for callers of the facade
var (
	ErrNotFound          = storage.ErrNotFound
	ErrNotANumber        = storage.ErrNotANumber
	ErrMalformedInput    = storage.ErrMalformedInput
	ErrInvalidExpiry     = storage.ErrInvalidExpiry
	ErrIncrementOverflow = storage.ErrIncrementOverflow
)

var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the store has been closed
	ErrClosed = errors.New("store is closed")
)

// NotANumberError is returned by Increment for non-integer values
type NotANumberError = storage.NotANumberError

// MalformedInputError is returned by ZAdd for a pair without '='
type MalformedInputError = storage.MalformedInputError

// ConfigError names the option that failed validation
type ConfigError struct {
	Option string
	Err    error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("option %s: %v", e.Option, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// errorKind maps an error to the label used for error metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotANumber):
		return "not_a_number"
	case errors.Is(err, ErrIncrementOverflow):
		return "overflow"
	case errors.Is(err, ErrInvalidExpiry):
		return "invalid_expiry"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}
