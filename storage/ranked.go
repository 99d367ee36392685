package storage

import (
	"sort"
	"sync"
)

// RankedStorage implements Ranked. Each set is an order-statistics
// tree of members keyed by member name; all sets share one RWMutex.
type RankedStorage struct {
	mu   sync.RWMutex
	sets map[string]*memberTree
}

// NewRanked creates an empty ranked set store
func NewRanked() *RankedStorage {
	return &RankedStorage{
		sets: make(map[string]*memberTree),
	}
}

// Add inserts member into the set at key or overwrites its value.
// The set is created on first use.
func (r *RankedStorage) Add(key, member, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[key]
	if !ok {
		set = newMemberTree()
		r.sets[key] = set
	}
	set.Put(member, value)
}

// AddPair parses a "member=value" payload and adds it to the set at key
func (r *RankedStorage) AddPair(key, pair string) error {
	member, value, err := ParsePair(pair)
	if err != nil {
		return err
	}
	r.Add(key, member, value)
	return nil
}

// Cardinality returns the number of members, 0 for a missing set
func (r *RankedStorage) Cardinality(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[key]
	if !ok {
		return 0
	}
	return set.Len()
}

// Rank returns the position of the first member whose value equals
// value, or -1 when the set or the value does not exist
func (r *RankedStorage) Rank(key, value string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[key]
	if !ok {
		return -1
	}
	return set.IndexOfValue(value)
}

// Range returns the values at positions start through stop inclusive.
// A negative stop counts from the end as size+stop; a stop past the
// last position is clamped to it.
func (r *RankedStorage) Range(key string, start, stop int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[key]
	if !ok {
		return []string{}
	}

	lo, hi, ok := resolveRange(set.Len(), start, stop)
	if !ok {
		return []string{}
	}
	return set.Values(lo, hi)
}

// DumpAll returns every set sorted by key, members in name order
func (r *RankedStorage) DumpAll() []RankedSet {
	r.mu.RLock()
	sets := make([]RankedSet, 0, len(r.sets))
	for key, set := range r.sets {
		sets = append(sets, RankedSet{Key: key, Members: set.Members()})
	}
	r.mu.RUnlock()

	sort.Slice(sets, func(i, j int) bool {
		return sets[i].Key < sets[j].Key
	})
	return sets
}

// resolveRange turns start/stop into inclusive bounds within [0, size)
func resolveRange(size, start, stop int) (int, int, bool) {
	end := stop
	if stop < 0 {
		end = size + stop
	}
	if end > size-1 {
		end = size - 1
	}

	if start < 0 || start > end {
		return 0, 0, false
	}
	return start, end, true
}
