package storage

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStorage implements Storage with a single map guarded by one
// RWMutex. Every operation is linearized against every other one.
type MemoryStorage struct {
	mu      sync.RWMutex
	data    map[string]*scalarValue
	version uint64

	expiryConfig ExpiryConfig
	expiry       *expiryScheduler

	observers []StorageObserver
	logger    *zap.Logger

	// now is replaced in tests
	now func() time.Time

	closeOnce sync.Once
}

// MemoryOption is a function that configures a MemoryStorage instance
type MemoryOption func(*MemoryStorage)

// WithExpiryWorkers sets the size of the expiry worker pool.
// Values are clamped to [1, MaxExpiryWorkers].
func WithExpiryWorkers(n int) MemoryOption {
	return func(s *MemoryStorage) {
		s.expiryConfig.Workers = n
	}
}

// WithExpiryPolicy sets how expirations race with later writes
func WithExpiryPolicy(p ExpiryPolicy) MemoryOption {
	return func(s *MemoryStorage) {
		s.expiryConfig.Policy = p
	}
}

// WithLogger sets the logger used for expiry failures
func WithLogger(logger *zap.Logger) MemoryOption {
	return func(s *MemoryStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a storage observer
func WithObserver(observer StorageObserver) MemoryOption {
	return func(s *MemoryStorage) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// NewMemory creates a new in-memory scalar store and starts its expiry workers
func NewMemory(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		data:         make(map[string]*scalarValue),
		expiryConfig: ExpiryConfigDefault,
		logger:       zap.NewNop(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.expiry = newExpiryScheduler(s.expiryConfig.Workers, s.logger.Named("expiry"), s.expire)

	return s
}

// ExpiryConfig returns the effective expiry configuration
func (s *MemoryStorage) ExpiryConfig() ExpiryConfig {
	return ExpiryConfig{
		Workers: len(s.expiry.workers),
		Policy:  s.expiryConfig.Policy,
	}
}

// PendingExpirations returns the number of scheduled, not yet fired expirations
func (s *MemoryStorage) PendingExpirations() int {
	return s.expiry.Pending()
}

// lookup returns a live value. Must hold at least the read lock.
func (s *MemoryStorage) lookup(key string, now time.Time) (*scalarValue, bool) {
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	// Blind expiry only removes through the timer, reads never hide a key
	if s.expiryConfig.Policy == ExpiryVersioned && v.isExpired(now) {
		return nil, false
	}
	return v, true
}

// put stores a value and returns its version. Must hold the write lock.
func (s *MemoryStorage) put(key, value string, expiry *time.Time) uint64 {
	s.version++
	s.data[key] = &scalarValue{data: value, version: s.version, expiry: expiry}
	return s.version
}

// Get retrieves a value by key
func (s *MemoryStorage) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.lookup(key, s.now())
	if !ok {
		return "", ErrNotFound
	}
	return v.data, nil
}

// Set stores a value without expiry
func (s *MemoryStorage) Set(key string, value string) {
	s.mu.Lock()
	s.put(key, value, nil)
	s.mu.Unlock()

	s.notifySet(key)
}

// SetWithExpiry stores a value that is removed after ttl. The value is
// visible as soon as the call returns; removal happens on an expiry worker.
func (s *MemoryStorage) SetWithExpiry(key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidExpiry
	}

	s.mu.Lock()
	deadline := s.now().Add(ttl)
	version := s.put(key, value, &deadline)
	s.mu.Unlock()

	s.expiry.Schedule(key, version, deadline)
	s.notifySet(key)

	return nil
}

// Delete removes a key
func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	_, ok := s.lookup(key, s.now())
	if ok {
		delete(s.data, key)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	for _, observer := range s.observers {
		observer.OnKeyDeleted(key)
	}
	return nil
}

// Increment adds one to the integer stored at key. A missing key is
// created with value "0" and 0 is returned.
func (s *MemoryStorage) Increment(key string) (int64, error) {
	s.mu.Lock()

	v, ok := s.lookup(key, s.now())
	if !ok {
		s.put(key, "0", nil)
		s.mu.Unlock()
		s.notifySet(key)
		return 0, nil
	}

	n, err := strconv.ParseInt(v.data, 10, 64)
	if err != nil {
		s.mu.Unlock()
		return 0, &NotANumberError{Value: v.data, Err: err}
	}
	if n == math.MaxInt64 {
		s.mu.Unlock()
		return 0, ErrIncrementOverflow
	}

	n++
	// The deadline of a volatile key survives an increment
	deadline := v.expiry
	version := s.put(key, strconv.FormatInt(n, 10), deadline)
	s.mu.Unlock()

	if deadline != nil && s.expiryConfig.Policy == ExpiryVersioned {
		s.expiry.Schedule(key, version, *deadline)
	}
	s.notifySet(key)
	return n, nil
}

// Size returns the number of live keys
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.expiryConfig.Policy == ExpiryBlind {
		return len(s.data)
	}

	now := s.now()
	count := 0
	for _, v := range s.data {
		if !v.isExpired(now) {
			count++
		}
	}
	return count
}

// Keys returns the sorted keys matching a glob pattern.
// An empty pattern matches every key.
func (s *MemoryStorage) Keys(pattern string) []string {
	s.mu.RLock()
	now := s.now()
	keys := make([]string, 0)
	for key := range s.data {
		if _, ok := s.lookup(key, now); !ok {
			continue
		}
		if pattern == "" || matchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// DumpAll returns every live entry sorted by key
func (s *MemoryStorage) DumpAll() []Entry {
	s.mu.RLock()
	now := s.now()
	entries := make([]Entry, 0, len(s.data))
	for key := range s.data {
		if v, ok := s.lookup(key, now); ok {
			entries = append(entries, Entry{Key: key, Value: v.data})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Close stops the expiry workers
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(s.expiry.Close)
	return nil
}

// expire is the removal pass run by an expiry worker
func (s *MemoryStorage) expire(key string, version uint64) {
	s.mu.Lock()
	v, ok := s.data[key]
	remove := ok && (s.expiryConfig.Policy == ExpiryBlind || v.version == version)
	if remove {
		delete(s.data, key)
	}
	s.mu.Unlock()

	if !remove {
		return
	}

	s.logger.Debug("key expired", zap.String("key", key), zap.Uint64("version", version))
	for _, observer := range s.observers {
		observer.OnKeyExpired(key)
	}
}

func (s *MemoryStorage) notifySet(key string) {
	for _, observer := range s.observers {
		observer.OnKeySet(key)
	}
}
