package storage

import "time"

// Storage defines the scalar key/value operations
type Storage interface {
	// String operations
	Get(key string) (string, error)
	Set(key string, value string)
	SetWithExpiry(key string, value string, ttl time.Duration) error
	Delete(key string) error
	Increment(key string) (int64, error)

	// Key operations
	Size() int
	Keys(pattern string) []string
	DumpAll() []Entry

	// Shutdown
	Close() error
}

// Ranked defines the ranked set operations. Members are ordered by
// member name, ranks and ranges are computed over that order.
type Ranked interface {
	Add(key, member, value string)
	AddPair(key, pair string) error
	Cardinality(key string) int
	Rank(key, value string) int
	Range(key string, start, stop int) []string
	DumpAll() []RankedSet
}

// StorageObserver provides hooks for storage events
type StorageObserver interface {
	OnKeySet(key string)
	OnKeyDeleted(key string)
	OnKeyExpired(key string)
}

// ExpiryConfig holds configuration for the expiry scheduler
type ExpiryConfig struct {
	// Workers is the number of expiry workers, each with its own queue
	Workers int
	// Policy decides how expirations race with later writes
	Policy ExpiryPolicy
}

// ExpiryConfigDefault is used when no expiry options are given
var ExpiryConfigDefault = ExpiryConfig{
	Workers: 2,
	Policy:  ExpiryVersioned,
}

// MaxExpiryWorkers bounds the size of the expiry worker pool
const MaxExpiryWorkers = 16
