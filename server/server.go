package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raniellyferreira/redis-inmemory-kv/lua"
	"github.com/raniellyferreira/redis-inmemory-kv/protocol"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// DefaultIdleTimeout closes connections that send nothing for this long
const DefaultIdleTimeout = 5 * time.Minute

// Metrics receives per-command measurements
type Metrics interface {
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordError(errorType string)
}

// Server accepts RESP connections and executes commands against the stores
type Server struct {
	scalar storage.Storage
	ranked storage.Ranked
	lua    *lua.Engine

	addr        string
	password    string
	idleTimeout time.Duration
	maxBulkSize int64

	logger  *zap.Logger
	metrics Metrics

	listener net.Listener
	clients  sync.Map // map[net.Conn]*Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
}

// Client represents a connected client
type Client struct {
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	server *Server

	authenticated bool
	name          string

	closeOnce sync.Once
}

// NewServer creates a RESP server over the given stores
func NewServer(addr string, scalar storage.Storage, ranked storage.Ranked) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		scalar:      scalar,
		ranked:      ranked,
		lua:         lua.NewEngine(scalar, ranked),
		addr:        addr,
		idleTimeout: DefaultIdleTimeout,
		maxBulkSize: protocol.DefaultMaxBulkSize,
		logger:      zap.NewNop(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetPassword sets the authentication password for the server
func (s *Server) SetPassword(password string) {
	s.password = password
}

// SetLogger sets the server logger
func (s *Server) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics sets the command metrics sink
func (s *Server) SetMetrics(metrics Metrics) {
	s.metrics = metrics
}

// SetLuaEngine replaces the default scripting engine
func (s *Server) SetLuaEngine(engine *lua.Engine) {
	if engine != nil {
		s.lua = engine
	}
}

// SetIdleTimeout sets the read deadline applied before each command.
// Zero disables it.
func (s *Server) SetIdleTimeout(d time.Duration) {
	s.idleTimeout = d
}

// SetMaxBulkSize bounds a single bulk string read from a client.
// Non-positive values are ignored.
func (s *Server) SetMaxBulkSize(n int64) {
	if n > 0 {
		s.maxBulkSize = n
	}
}

// Start starts listening
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("RESP server listening", zap.String("addr", s.listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop closes the listener and every client connection
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.clients.Range(func(_, value interface{}) bool {
		if client, ok := value.(*Client); ok {
			client.Close()
		}
		return true
	})

	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	clientCount := 0
	s.clients.Range(func(_, _ interface{}) bool {
		clientCount++
		return true
	})

	return map[string]interface{}{
		"connected_clients": clientCount,
		"total_commands":    s.commandCount.Load(),
		"total_errors":      s.errorCount.Load(),
		"total_connections": s.connCount.Load(),
	}
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Error("accept failed", zap.Error(err))
			return
		}

		s.handleNewClient(conn)
	}
}

func (s *Server) handleNewClient(conn net.Conn) {
	s.connCount.Add(1)

	client := &Client{
		conn:          conn,
		reader:        protocol.NewReader(conn, protocol.WithMaxBulkSize(s.maxBulkSize)),
		writer:        protocol.NewWriter(conn),
		server:        s,
		authenticated: s.password == "",
	}

	s.clients.Store(conn, client)

	s.wg.Add(1)
	go client.handle()
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.server.clients.Delete(c.conn)
	})
}

func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()

	logger := c.server.logger.With(zap.String("remote", c.conn.RemoteAddr().String()))
	logger.Debug("client connected")

	for {
		if c.server.ctx.Err() != nil {
			return
		}

		if d := c.server.idleTimeout; d > 0 {
			c.conn.SetReadDeadline(time.Now().Add(d))
		}

		cmd, err := c.reader.ReadCommand()
		if err != nil {
			var perr *protocol.ProtocolError
			switch {
			case errors.As(err, &perr):
				c.server.metricError("protocol")
				c.writeError("ERR " + perr.Error())
				c.writer.Flush()
			case errors.Is(err, io.EOF), c.server.ctx.Err() != nil:
			default:
				logger.Debug("client read failed", zap.Error(err))
			}
			return
		}

		quit := c.executeCommand(cmd)
		if err := c.writer.Flush(); err != nil {
			logger.Debug("client write failed", zap.Error(err))
			return
		}
		if quit {
			return
		}
	}
}

// knownCommands bounds the command label reported to metrics
var knownCommands = map[string]struct{}{
	"AUTH": {}, "PING": {}, "ECHO": {}, "HELLO": {}, "CLIENT": {}, "QUIT": {},
	"SET": {}, "GET": {}, "DEL": {}, "INCR": {}, "DBSIZE": {}, "KEYS": {},
	"ZADD": {}, "ZCARD": {}, "ZRANK": {}, "ZRANGE": {},
	"EVAL": {}, "EVALSHA": {}, "SCRIPT": {},
}

func commandLabel(name string) string {
	if _, ok := knownCommands[name]; ok {
		return name
	}
	return "unknown"
}

// executeCommand runs one command and reports whether the connection
// should be closed afterwards
func (c *Client) executeCommand(cmd *protocol.Command) bool {
	c.server.commandCount.Add(1)
	start := time.Now()
	defer func() {
		if c.server.metrics != nil {
			c.server.metrics.RecordCommandProcessed(commandLabel(cmd.Name), time.Since(start))
		}
	}()

	if !c.authenticated && cmd.Name != "AUTH" && cmd.Name != "QUIT" {
		c.writeError("NOAUTH Authentication required.")
		return false
	}

	switch cmd.Name {
	case "AUTH":
		c.handleAuth(cmd)
	case "PING":
		c.handlePing(cmd)
	case "ECHO":
		c.handleEcho(cmd)
	case "HELLO":
		c.writeError("NOPROTO unsupported protocol version")
	case "CLIENT":
		c.handleClient(cmd)
	case "QUIT":
		c.writer.WriteOK()
		return true

	case "SET":
		c.handleSet(cmd)
	case "GET":
		c.handleGet(cmd)
	case "DEL":
		c.handleDel(cmd)
	case "INCR":
		c.handleIncr(cmd)
	case "DBSIZE":
		c.handleDBSize(cmd)
	case "KEYS":
		c.handleKeys(cmd)

	case "ZADD":
		c.handleZAdd(cmd)
	case "ZCARD":
		c.handleZCard(cmd)
	case "ZRANK":
		c.handleZRank(cmd)
	case "ZRANGE":
		c.handleZRange(cmd)

	case "EVAL":
		c.handleEval(cmd)
	case "EVALSHA":
		c.handleEvalSHA(cmd)
	case "SCRIPT":
		c.handleScript(cmd)

	default:
		c.writeError(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd.Name)))
	}
	return false
}

func (c *Client) wrongArgs(cmd *protocol.Command) {
	c.writeError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd.Name)))
}

// Connection commands

func (c *Client) handleAuth(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.wrongArgs(cmd)
		return
	}

	if c.server.password == "" {
		c.writeError("ERR Client sent AUTH, but no password is set")
		return
	}

	if cmd.Arg(0) != c.server.password {
		c.server.metricError("auth")
		c.writeError("WRONGPASS invalid password")
		return
	}

	c.authenticated = true
	c.writer.WriteOK()
}

func (c *Client) handlePing(cmd *protocol.Command) {
	switch len(cmd.Args) {
	case 0:
		c.writer.WriteSimpleString("PONG")
	case 1:
		c.writer.WriteBulkString(cmd.Args[0])
	default:
		c.wrongArgs(cmd)
	}
}

func (c *Client) handleEcho(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.wrongArgs(cmd)
		return
	}
	c.writer.WriteBulkString(cmd.Args[0])
}

func (c *Client) handleClient(cmd *protocol.Command) {
	if len(cmd.Args) == 0 {
		c.wrongArgs(cmd)
		return
	}

	switch strings.ToUpper(cmd.Arg(0)) {
	case "SETNAME":
		if len(cmd.Args) != 2 {
			c.wrongArgs(cmd)
			return
		}
		c.name = cmd.Arg(1)
		c.writer.WriteOK()
	case "GETNAME":
		if c.name == "" {
			c.writer.WriteNull()
			return
		}
		c.writer.WriteBulkStringFromString(c.name)
	case "SETINFO":
		c.writer.WriteOK()
	default:
		c.writeError(fmt.Sprintf("ERR unknown subcommand '%s'", cmd.Arg(0)))
	}
}

// Scalar commands

// handleSet supports SET key value [EX seconds]
func (c *Client) handleSet(cmd *protocol.Command) {
	switch len(cmd.Args) {
	case 2:
		c.server.scalar.Set(cmd.Arg(0), cmd.Arg(1))
		c.writer.WriteOK()

	case 4:
		if !strings.EqualFold(cmd.Arg(2), "EX") {
			c.writeError("ERR syntax error")
			return
		}
		seconds, err := cmd.ArgInt(3)
		if err != nil {
			c.writeError("ERR value is not an integer or out of range")
			return
		}
		ttl, err := storage.TTLFromSeconds(seconds)
		if err != nil {
			c.writeStorageError(err, "set")
			return
		}
		if err := c.server.scalar.SetWithExpiry(cmd.Arg(0), cmd.Arg(1), ttl); err != nil {
			c.writeStorageError(err, "set")
			return
		}
		c.writer.WriteOK()

	default:
		if len(cmd.Args) < 2 {
			c.wrongArgs(cmd)
			return
		}
		c.writeError("ERR syntax error")
	}
}

func (c *Client) handleGet(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.wrongArgs(cmd)
		return
	}

	value, err := c.server.scalar.Get(cmd.Arg(0))
	if err != nil {
		c.writer.WriteNull()
		return
	}
	c.writer.WriteBulkStringFromString(value)
}

func (c *Client) handleDel(cmd *protocol.Command) {
	if len(cmd.Args) == 0 {
		c.wrongArgs(cmd)
		return
	}

	var deleted int64
	for _, key := range cmd.StringArgs(0) {
		if c.server.scalar.Delete(key) == nil {
			deleted++
		}
	}
	c.writer.WriteInteger(deleted)
}

func (c *Client) handleIncr(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.wrongArgs(cmd)
		return
	}

	n, err := c.server.scalar.Increment(cmd.Arg(0))
	if err != nil {
		c.writeStorageError(err, "incr")
		return
	}
	c.writer.WriteInteger(n)
}

func (c *Client) handleDBSize(cmd *protocol.Command) {
	if len(cmd.Args) != 0 {
		c.wrongArgs(cmd)
		return
	}
	c.writer.WriteInteger(int64(c.server.scalar.Size()))
}

func (c *Client) handleKeys(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.wrongArgs(cmd)
		return
	}
	c.writer.WriteStrings(c.server.scalar.Keys(cmd.Arg(0)))
}

// Ranked commands

// handleZAdd supports ZADD key member=value [member=value ...]. Pairs are
// validated before any is stored.
func (c *Client) handleZAdd(cmd *protocol.Command) {
	if len(cmd.Args) < 2 {
		c.wrongArgs(cmd)
		return
	}

	pairs := cmd.StringArgs(1)
	members := make([]storage.Member, 0, len(pairs))
	for _, pair := range pairs {
		member, value, err := storage.ParsePair(pair)
		if err != nil {
			c.writeStorageError(err, "zadd")
			return
		}
		members = append(members, storage.Member{Name: member, Value: value})
	}

	key := cmd.Arg(0)
	for _, m := range members {
		c.server.ranked.Add(key, m.Name, m.Value)
	}
	c.writer.WriteInteger(int64(len(members)))
}

func (c *Client) handleZCard(cmd *protocol.Command) {
	if len(cmd.Args) != 1 {
		c.wrongArgs(cmd)
		return
	}
	c.writer.WriteInteger(int64(c.server.ranked.Cardinality(cmd.Arg(0))))
}

func (c *Client) handleZRank(cmd *protocol.Command) {
	if len(cmd.Args) != 2 {
		c.wrongArgs(cmd)
		return
	}
	c.writer.WriteInteger(int64(c.server.ranked.Rank(cmd.Arg(0), cmd.Arg(1))))
}

func (c *Client) handleZRange(cmd *protocol.Command) {
	if len(cmd.Args) != 3 {
		c.wrongArgs(cmd)
		return
	}

	start, err1 := strconv.Atoi(cmd.Arg(1))
	stop, err2 := strconv.Atoi(cmd.Arg(2))
	if err1 != nil || err2 != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}

	c.writer.WriteStrings(c.server.ranked.Range(cmd.Arg(0), start, stop))
}

// Scripting commands

// scriptArgs splits EVAL/EVALSHA arguments into keys and argv
func (c *Client) scriptArgs(cmd *protocol.Command) ([]string, []string, bool) {
	if len(cmd.Args) < 2 {
		c.wrongArgs(cmd)
		return nil, nil, false
	}

	numKeys, err := strconv.Atoi(cmd.Arg(1))
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return nil, nil, false
	}

	if numKeys < 0 || len(cmd.Args) < 2+numKeys {
		c.writeError("ERR Number of keys can't be negative or greater than args")
		return nil, nil, false
	}

	all := cmd.StringArgs(2)
	return all[:numKeys], all[numKeys:], true
}

func (c *Client) handleEval(cmd *protocol.Command) {
	keys, args, ok := c.scriptArgs(cmd)
	if !ok {
		return
	}

	result, err := c.server.lua.EvalContext(c.server.ctx, cmd.Arg(0), keys, args)
	if err != nil {
		c.server.metricError("script")
		c.writeError(fmt.Sprintf("ERR %v", err))
		return
	}
	c.writeResult(result)
}

func (c *Client) handleEvalSHA(cmd *protocol.Command) {
	keys, args, ok := c.scriptArgs(cmd)
	if !ok {
		return
	}

	result, err := c.server.lua.EvalSHA(cmd.Arg(0), keys, args)
	if err != nil {
		c.server.metricError("script")
		if errors.Is(err, lua.ErrNoScript) {
			c.writeError(err.Error())
			return
		}
		c.writeError(fmt.Sprintf("ERR %v", err))
		return
	}
	c.writeResult(result)
}

func (c *Client) handleScript(cmd *protocol.Command) {
	if len(cmd.Args) == 0 {
		c.wrongArgs(cmd)
		return
	}

	subCmd := strings.ToUpper(cmd.Arg(0))

	switch subCmd {
	case "LOAD":
		if len(cmd.Args) != 2 {
			c.writeError("ERR wrong number of arguments for 'script load' command")
			return
		}
		c.writer.WriteBulkStringFromString(c.server.lua.LoadScript(cmd.Arg(1)))

	case "EXISTS":
		if len(cmd.Args) < 2 {
			c.writeError("ERR wrong number of arguments for 'script exists' command")
			return
		}
		results := c.server.lua.ScriptExists(cmd.StringArgs(1))

		values := make([]protocol.Value, len(results))
		for i, exists := range results {
			if exists {
				values[i] = protocol.Integer(1)
			} else {
				values[i] = protocol.Integer(0)
			}
		}
		c.writer.WriteArray(values)

	case "FLUSH":
		c.server.lua.ScriptFlush()
		c.writer.WriteOK()

	default:
		c.writeError(fmt.Sprintf("ERR unknown SCRIPT subcommand '%s'", subCmd))
	}
}

// Response writers

// metricError records the kind of a failed command. The error counter
// itself is bumped by writeError.
func (s *Server) metricError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}

func (c *Client) writeError(msg string) {
	c.server.errorCount.Add(1)
	c.writer.WriteError(msg)
}

// writeStorageError maps store errors to error replies
func (c *Client) writeStorageError(err error, cmd string) {
	switch {
	case errors.Is(err, storage.ErrNotANumber):
		c.server.metricError("not_a_number")
		c.writeError("ERR value is not an integer or out of range")
	case errors.Is(err, storage.ErrIncrementOverflow):
		c.server.metricError("overflow")
		c.writeError("ERR increment or decrement would overflow")
	case errors.Is(err, storage.ErrInvalidExpiry):
		c.server.metricError("invalid_expiry")
		c.writeError(fmt.Sprintf("ERR invalid expire time in '%s' command", cmd))
	case errors.Is(err, storage.ErrMalformedInput):
		c.server.metricError("malformed_input")
		c.writeError("ERR " + err.Error())
	default:
		c.server.metricError("internal")
		c.writeError(fmt.Sprintf("ERR %v", err))
	}
}

func toValue(item interface{}) protocol.Value {
	switch v := item.(type) {
	case nil:
		return protocol.Null()
	case string:
		return protocol.Bulk(v)
	case int64:
		return protocol.Integer(v)
	case int:
		return protocol.Integer(int64(v))
	case float64:
		// Lua numbers are truncated to integers in replies
		return protocol.Integer(int64(v))
	case bool:
		if v {
			return protocol.Integer(1)
		}
		return protocol.Null()
	case []interface{}:
		values := make([]protocol.Value, len(v))
		for i, elem := range v {
			values[i] = toValue(elem)
		}
		return protocol.Value{Type: protocol.TypeArray, Array: values}
	case map[string]interface{}:
		// Tables with non sequential keys have no reply form
		return protocol.Value{Type: protocol.TypeArray, Array: []protocol.Value{}}
	default:
		return protocol.Bulk(fmt.Sprintf("%v", v))
	}
}

func (c *Client) writeResult(result interface{}) {
	c.writer.WriteValue(toValue(result))
}
