// Package rediskv provides an in-memory key-value store with two keyspaces:
// scalar string keys with optional expiry, and ranked sets whose members
// are ordered by member name.
//
// The store can be used directly as a library or served over RESP (so
// standard Redis clients can talk to it) and plain HTTP.
//
// Basic usage:
//
//	store, err := rediskv.New(
//		rediskv.WithServerAddr(":6380"),
//		rediskv.WithHTTPAddr(":8080"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
//	store.Set("greeting", "hello")
//	_ = store.SetWithExpiry("session", "abc", 30)
//
//	_ = store.ZAdd("scores", "alice=10")
//	fmt.Println(store.ZRange("scores", 0, -1))
//
// The library supports:
//
//   - Per-key expiry on a bounded pool of expiry workers
//   - Rank and range queries over ranked sets
//   - A RESP server and an HTTP API over the same stores
//   - Lua scripting with redis.call access to both keyspaces
//   - Structured logging with zap and pluggable metrics
//
// For more examples and advanced usage, see the examples/ directory.
package rediskv
