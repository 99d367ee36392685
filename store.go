package rediskv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raniellyferreira/redis-inmemory-kv/httpapi"
	"github.com/raniellyferreira/redis-inmemory-kv/lua"
	"github.com/raniellyferreira/redis-inmemory-kv/server"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// Store owns the scalar and ranked stores and the optional RESP and HTTP
// listeners that serve them
type Store struct {
	// Configuration
	config *config

	// Components
	scalar *storage.MemoryStorage
	ranked *storage.RankedStorage
	lua    *lua.Engine
	server *server.Server
	http   *http.Server

	// State
	mu       sync.RWMutex
	started  bool
	closed   atomic.Bool
	httpAddr net.Addr
	httpDone chan struct{}
}

// New creates a new Store with the given options
//
// The stores are usable immediately. Listeners configured through
// WithServerAddr and WithHTTPAddr only accept connections after Start.
//
// Example:
//
//	store, err := rediskv.New(
//		rediskv.WithServerAddr(":6380"),
//		rediskv.WithHTTPAddr(":8080"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
func New(opts ...Option) (*Store, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	scalar := storage.NewMemory(
		storage.WithExpiryWorkers(cfg.expiryWorkers),
		storage.WithExpiryPolicy(cfg.expiryPolicy),
		storage.WithLogger(cfg.logger.Named("storage")),
		storage.WithObserver(&observerAdapter{logger: cfg.logger, metrics: cfg.metrics}),
	)
	ranked := storage.NewRanked()

	engine := lua.NewEngine(scalar, ranked,
		lua.WithTimeout(cfg.scriptTimeout),
		lua.WithLogger(cfg.logger.Named("lua")),
	)

	s := &Store{
		config: cfg,
		scalar: scalar,
		ranked: ranked,
		lua:    engine,
	}

	// Create RESP server if an address is provided
	if cfg.serverAddr != "" {
		s.server = server.NewServer(cfg.serverAddr, scalar, ranked)
		s.server.SetLogger(cfg.logger.Named("server"))
		s.server.SetLuaEngine(engine)
		s.server.SetMaxBulkSize(cfg.maxBodySize)
		if cfg.serverPassword != "" {
			s.server.SetPassword(cfg.serverPassword)
		}
		if cfg.idleTimeout != nil {
			s.server.SetIdleTimeout(*cfg.idleTimeout)
		}
		if cfg.metrics != nil {
			s.server.SetMetrics(cfg.metrics)
		}
	}

	// Create HTTP server if an address is provided
	if cfg.httpAddr != "" {
		sugar := cfg.logger.Named("http").Sugar()

		var recorder httpapi.Recorder
		if r, ok := cfg.metrics.(httpapi.Recorder); ok {
			recorder = r
		}

		handler := httpapi.NewHandler(s, sugar, cfg.metricsHandler)
		handler.SetMaxBodySize(cfg.maxBodySize)
		s.http = &http.Server{
			Addr:              cfg.httpAddr,
			Handler:           handler.Routes(httpapi.NewMiddleware(sugar, recorder), cfg.corsOrigins, cfg.rateLimitRPM),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Start opens the configured listeners. It returns once they are bound;
// connections are served in the background until Close.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	if s.started {
		return nil // Already started
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.server != nil {
		if err := s.server.Start(); err != nil {
			s.config.logger.Error("Failed to start server", zap.Error(err), zap.String("addr", s.config.serverAddr))
			return err
		}
	}

	if s.http != nil {
		listener, err := net.Listen("tcp", s.http.Addr)
		if err != nil {
			if s.server != nil {
				_ = s.server.Stop()
			}
			s.config.logger.Error("Failed to start HTTP server", zap.Error(err), zap.String("addr", s.http.Addr))
			return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
		}
		s.httpAddr = listener.Addr()
		s.httpDone = make(chan struct{})

		go func() {
			defer close(s.httpDone)
			if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.config.logger.Error("HTTP server stopped", zap.Error(err))
			}
		}()
		s.config.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))
	}

	s.started = true
	return nil
}

// Close stops the listeners and the expiry workers. Pending expirations
// are dropped. Close is equivalent to Shutdown with a background context.
func (s *Store) Close() error {
	return s.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. In-flight HTTP requests are drained
// until ctx is done.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	var errs []error

	// Stop listeners first
	if s.http != nil && s.httpDone != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.config.logger.Error("Error stopping HTTP server", zap.Error(err))
			errs = append(errs, err)
		}
		<-s.httpDone
	}

	if s.server != nil && s.started {
		if err := s.server.Stop(); err != nil {
			s.config.logger.Error("Error stopping server", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if err := s.scalar.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ServerAddr returns the bound RESP address once started, the configured
// address before that, and "" when the server is disabled
func (s *Store) ServerAddr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// HTTPAddr returns the bound HTTP address, or "" when the API is disabled
// or not started
func (s *Store) HTTPAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpAddr == nil {
		return ""
	}
	return s.httpAddr.String()
}

// Set stores value under key with no expiry
func (s *Store) Set(key, value string) {
	t := s.track("SET")
	s.scalar.Set(key, value)
	t.done(nil)
}

// SetWithExpiry stores value under key and removes it after ttlSeconds.
// The value is visible immediately. A non-positive ttl returns
// ErrInvalidExpiry and stores nothing.
func (s *Store) SetWithExpiry(key, value string, ttlSeconds int64) error {
	t := s.track("SETEX")

	if s.isClosed() {
		return t.done(ErrClosed)
	}
	ttl, err := storage.TTLFromSeconds(ttlSeconds)
	if err != nil {
		return t.done(err)
	}
	return t.done(s.scalar.SetWithExpiry(key, value, ttl))
}

// Get returns the value stored under key or ErrNotFound
func (s *Store) Get(key string) (string, error) {
	t := s.track("GET")
	value, err := s.scalar.Get(key)
	return value, t.done(err)
}

// Delete removes key or returns ErrNotFound
func (s *Store) Delete(key string) error {
	t := s.track("DEL")
	return t.done(s.scalar.Delete(key))
}

// Size returns the number of scalar keys
func (s *Store) Size() int {
	t := s.track("DBSIZE")
	n := s.scalar.Size()
	t.done(nil)
	return n
}

// Increment adds one to the integer stored under key. An absent key is
// initialized to 0 and 0 is returned.
func (s *Store) Increment(key string) (int64, error) {
	t := s.track("INCR")
	n, err := s.scalar.Increment(key)
	return n, t.done(err)
}

// Keys returns the sorted keys matching a glob pattern
func (s *Store) Keys(pattern string) []string {
	t := s.track("KEYS")
	keys := s.scalar.Keys(pattern)
	t.done(nil)
	return keys
}

// ZAdd adds or updates one member of the ranked set at key. pair has the
// form member=value and is split on the first '='.
func (s *Store) ZAdd(key, pair string) error {
	t := s.track("ZADD")
	return t.done(s.ranked.AddPair(key, pair))
}

// ZCardinality returns the number of members of the set, 0 when absent
func (s *Store) ZCardinality(key string) int {
	t := s.track("ZCARD")
	n := s.ranked.Cardinality(key)
	t.done(nil)
	return n
}

// ZRank returns the position of the first member holding value, -1 when
// there is none
func (s *Store) ZRank(key, value string) int {
	t := s.track("ZRANK")
	rank := s.ranked.Rank(key, value)
	t.done(nil)
	return rank
}

// ZRange returns the values at positions start..stop inclusive. A negative
// stop counts from the end and a stop past the end is clamped.
func (s *Store) ZRange(key string, start, stop int) []string {
	t := s.track("ZRANGE")
	values := s.ranked.Range(key, start, stop)
	t.done(nil)
	return values
}

// DumpAll returns every scalar entry sorted by key
func (s *Store) DumpAll() []storage.Entry {
	t := s.track("DUMPALL")
	entries := s.scalar.DumpAll()
	t.done(nil)
	return entries
}

// DumpAllRanked returns every ranked set sorted by key
func (s *Store) DumpAllRanked() []storage.RankedSet {
	t := s.track("ZDUMPALL")
	sets := s.ranked.DumpAll()
	t.done(nil)
	return sets
}

// Eval runs a Lua script with access to both stores through redis.call
func (s *Store) Eval(ctx context.Context, script string, keys, args []string) (interface{}, error) {
	t := s.track("EVAL")
	result, err := s.lua.EvalContext(ctx, script, keys, args)
	if err != nil {
		return nil, t.fail("script", err)
	}
	return result, t.done(nil)
}

// Info returns key counts, expiry settings and listener statistics
func (s *Store) Info() map[string]interface{} {
	expiry := s.scalar.ExpiryConfig()

	info := map[string]interface{}{
		"keys":                s.scalar.Size(),
		"ranked_sets":         len(s.ranked.DumpAll()),
		"expiry_workers":      expiry.Workers,
		"expiry_policy":       expiry.Policy.String(),
		"pending_expirations": s.scalar.PendingExpirations(),
		"version":             VersionInfo(),
	}

	if s.server != nil {
		info["server"] = s.server.Stats()
	}

	return info
}

func (s *Store) isClosed() bool {
	return s.closed.Load()
}
