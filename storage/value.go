package storage

import (
	"math"
	"strings"
	"time"
)

// TTLFromSeconds converts a time to live in whole seconds to a Duration.
// Non-positive values and values a Duration cannot hold return
// ErrInvalidExpiry.
func TTLFromSeconds(seconds int64) (time.Duration, error) {
	if seconds <= 0 || seconds > math.MaxInt64/int64(time.Second) {
		return 0, ErrInvalidExpiry
	}
	return time.Duration(seconds) * time.Second, nil
}

// ExpiryPolicy decides what a firing expiration does when the key
// was written again after the expiration was scheduled
type ExpiryPolicy int

const (
	// ExpiryVersioned removes the key only if it still holds the value
	// written by the SetWithExpiry call that scheduled the expiration
	ExpiryVersioned ExpiryPolicy = iota
	// ExpiryBlind removes the key unconditionally when the expiration fires
	ExpiryBlind
)

// String returns the policy name used in configuration
func (p ExpiryPolicy) String() string {
	switch p {
	case ExpiryVersioned:
		return "versioned"
	case ExpiryBlind:
		return "blind"
	default:
		return "unknown"
	}
}

// ParseExpiryPolicy converts a configuration name into an ExpiryPolicy
func ParseExpiryPolicy(name string) (ExpiryPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "versioned":
		return ExpiryVersioned, true
	case "blind":
		return ExpiryBlind, true
	default:
		return ExpiryVersioned, false
	}
}

// Entry is a scalar key/value pair as returned by DumpAll
type Entry struct {
	Key   string
	Value string
}

// Member is a single member of a ranked set
type Member struct {
	Name  string
	Value string
}

// RankedSet is a ranked set as returned by RankedStorage.DumpAll
type RankedSet struct {
	Key     string
	Members []Member
}

// scalarValue represents a stored scalar with metadata
type scalarValue struct {
	data    string
	version uint64
	expiry  *time.Time
}

// isExpired returns true if the value has a deadline in the past
func (v *scalarValue) isExpired(now time.Time) bool {
	return v.expiry != nil && !now.Before(*v.expiry)
}
