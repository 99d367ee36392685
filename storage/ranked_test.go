package storage_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

func newScenario(t *testing.T) *storage.RankedStorage {
	t.Helper()

	r := storage.NewRanked()
	for _, pair := range []string{"a=1", "b=2", "c=3", "d=4"} {
		require.NoError(t, r.AddPair("x", pair))
	}
	return r
}

func TestRankedStorageScenario(t *testing.T) {
	r := newScenario(t)

	assert.Equal(t, 4, r.Cardinality("x"))
	assert.Equal(t, 2, r.Rank("x", "3"))
	assert.Equal(t, []string{"2", "3", "4"}, r.Range("x", 1, 3))
	assert.Equal(t, []string{"1", "2", "3", "4"}, r.Range("x", 0, -1))
}

func TestRankedStorageMissingKey(t *testing.T) {
	r := storage.NewRanked()

	assert.Equal(t, 0, r.Cardinality("nope"))
	assert.Equal(t, -1, r.Rank("nope", "1"))
	assert.Empty(t, r.Range("nope", 0, -1))
	assert.NotNil(t, r.Range("nope", 0, -1))
}

func TestRankedStorageOrdersByMemberName(t *testing.T) {
	r := storage.NewRanked()

	// Inserted out of order, values deliberately unsorted
	r.Add("z", "delta", "10")
	r.Add("z", "alpha", "30")
	r.Add("z", "charlie", "20")
	r.Add("z", "bravo", "40")

	assert.Equal(t, []string{"30", "40", "20", "10"}, r.Range("z", 0, -1))
	assert.Equal(t, 0, r.Rank("z", "30"))
	assert.Equal(t, 3, r.Rank("z", "10"))
	assert.Equal(t, -1, r.Rank("z", "99"))
}

func TestRankedStorageUpdateMember(t *testing.T) {
	r := newScenario(t)

	require.NoError(t, r.AddPair("x", "b=20"))

	assert.Equal(t, 4, r.Cardinality("x"))
	assert.Equal(t, []string{"1", "20", "3", "4"}, r.Range("x", 0, -1))
	assert.Equal(t, -1, r.Rank("x", "2"))
	assert.Equal(t, 1, r.Rank("x", "20"))
}

func TestRankedStorageRankFirstMatch(t *testing.T) {
	r := storage.NewRanked()
	r.Add("dup", "b", "same")
	r.Add("dup", "a", "other")
	r.Add("dup", "c", "same")

	assert.Equal(t, 1, r.Rank("dup", "same"))
}

func TestRankedStorageRange(t *testing.T) {
	r := newScenario(t)

	tests := []struct {
		name        string
		start, stop int
		want        []string
	}{
		{"full range", 0, 3, []string{"1", "2", "3", "4"}},
		{"negative stop counts from the end", 0, -1, []string{"1", "2", "3", "4"}},
		{"negative stop minus two", 0, -2, []string{"1", "2", "3"}},
		{"single element", 2, 2, []string{"3"}},
		{"stop past size is clamped", 1, 100, []string{"2", "3", "4"}},
		{"stop equal to size is clamped", 2, 4, []string{"3", "4"}},
		{"start after end", 3, 1, []string{}},
		{"negative stop before start", 2, -3, []string{}},
		{"start past size", 10, 20, []string{}},
		{"negative start", -1, 3, []string{}},
		{"stop far negative", 0, -10, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Range("x", tt.start, tt.stop))
		})
	}
}

func TestRankedStorageAddPair(t *testing.T) {
	r := storage.NewRanked()

	// Only the first '=' separates member from value
	require.NoError(t, r.AddPair("k", "url=a=b=c"))
	assert.Equal(t, []string{"a=b=c"}, r.Range("k", 0, -1))

	// Empty value is allowed
	require.NoError(t, r.AddPair("k", "empty="))
	assert.Equal(t, 2, r.Cardinality("k"))

	// Missing separator fails and stores nothing
	err := r.AddPair("k2", "novalue")
	require.ErrorIs(t, err, storage.ErrMalformedInput)

	var malformed *storage.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "novalue", malformed.Input)
	assert.Equal(t, 0, r.Cardinality("k2"))
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		in            string
		member, value string
		wantErr       bool
	}{
		{"a=1", "a", "1", false},
		{"a==1", "a", "=1", false},
		{"=1", "", "1", false},
		{"a=", "a", "", false},
		{"a", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			member, value, err := storage.ParsePair(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, storage.ErrMalformedInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.member, member)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestRankedStorageDumpAll(t *testing.T) {
	r := storage.NewRanked()
	r.Add("y", "b", "2")
	r.Add("y", "a", "1")
	r.Add("x", "m", "v")

	want := []storage.RankedSet{
		{Key: "x", Members: []storage.Member{{Name: "m", Value: "v"}}},
		{Key: "y", Members: []storage.Member{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}},
	}
	assert.Equal(t, want, r.DumpAll())
}

func TestRankedStorageConcurrentAdd(t *testing.T) {
	r := storage.NewRanked()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Add("set", fmt.Sprintf("m-%02d-%02d", id, j), fmt.Sprint(j))
				_ = r.Cardinality("set")
				_ = r.Range("set", 0, -1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, r.Cardinality("set"))
}
