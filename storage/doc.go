// Package storage holds the in-memory data stores behind the key-value
// server.
//
// Two independent stores are provided:
//
//   - MemoryStorage maps string keys to string values, with optional
//     per-key expiry handled by a small pool of timer workers.
//   - RankedStorage maps a key to a set of member/value pairs ordered by
//     member name, supporting rank and range queries by position.
//
// Basic usage:
//
//	s := storage.NewMemory()
//	defer s.Close()
//	s.Set("greeting", "hello")
//	_ = s.SetWithExpiry("session", "abc", 30*time.Second)
//	v, err := s.Get("greeting")
//
//	r := storage.NewRanked()
//	_ = r.AddPair("scores", "alice=10")
//	values := r.Range("scores", 0, -1)
//
// Both stores are safe for concurrent use.
package storage
