package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("key not found")

	// ErrNotANumber is matched by NotANumberError through errors.Is
	ErrNotANumber = errors.New("value is not an integer")

	// ErrMalformedInput is matched by MalformedInputError through errors.Is
	ErrMalformedInput = errors.New("malformed member=value pair")

	// ErrInvalidExpiry indicates a non-positive time to live
	ErrInvalidExpiry = errors.New("invalid expire time")

	// ErrIncrementOverflow indicates the increment would overflow int64
	ErrIncrementOverflow = errors.New("increment would overflow")
)

// NotANumberError is returned by Increment when the stored value
// cannot be parsed as a base-10 integer
type NotANumberError struct {
	Value string
	Err   error
}

// Error implements the error interface
func (e *NotANumberError) Error() string {
	return fmt.Sprintf("value is not an integer: %q", e.Value)
}

// Unwrap returns the underlying parse error
func (e *NotANumberError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrNotANumber
func (e *NotANumberError) Is(target error) bool {
	return target == ErrNotANumber
}

// MalformedInputError is returned when a ranked pair has no '=' separator
type MalformedInputError struct {
	Input string
}

// Error implements the error interface
func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed member=value pair: %q", e.Input)
}

// Is reports whether target is ErrMalformedInput
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}
