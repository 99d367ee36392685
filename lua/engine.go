package lua

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// ErrNoScript is returned by EvalSHA for an unknown digest
var ErrNoScript = errors.New("NOSCRIPT No matching script. Please use EVAL")

// DefaultTimeout bounds a single script execution
const DefaultTimeout = 5 * time.Second

// Engine runs Lua scripts against the scalar and ranked stores
type Engine struct {
	scalar  storage.Storage
	ranked  storage.Ranked
	scripts sync.Map // SHA1 -> script source

	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeout sets the maximum run time of a script
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger for script failures
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a new Lua execution engine
func NewEngine(scalar storage.Storage, ranked storage.Ranked, opts ...Option) *Engine {
	e := &Engine{
		scalar:  scalar,
		ranked:  ranked,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval executes a Lua script with the given keys and arguments
func (e *Engine) Eval(script string, keys []string, args []string) (interface{}, error) {
	return e.EvalContext(context.Background(), script, keys, args)
}

// EvalContext is Eval with a caller supplied context. The engine timeout
// still applies.
func (e *Engine) EvalContext(ctx context.Context, script string, keys []string, args []string) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	L := newState()
	defer L.Close()
	L.SetContext(ctx)

	e.setupRedisAPI(L, keys, args)

	if err := L.DoString(script); err != nil {
		e.logger.Debug("script failed", zap.Error(err))
		return nil, fmt.Errorf("script execution error: %w", err)
	}

	return e.convertResult(L.Get(-1))
}

// EvalSHA executes a previously loaded script by its SHA1 hash
func (e *Engine) EvalSHA(sha string, keys []string, args []string) (interface{}, error) {
	script, exists := e.scripts.Load(strings.ToLower(sha))
	if !exists {
		return nil, ErrNoScript
	}
	return e.Eval(script.(string), keys, args)
}

// LoadScript caches a script and returns its SHA1 hash
func (e *Engine) LoadScript(script string) string {
	sum := sha1.Sum([]byte(script))
	hash := hex.EncodeToString(sum[:])
	e.scripts.Store(hash, script)
	return hash
}

// ScriptExists checks if scripts with given SHA1 hashes exist
func (e *Engine) ScriptExists(hashes []string) []bool {
	results := make([]bool, len(hashes))
	for i, hash := range hashes {
		_, results[i] = e.scripts.Load(strings.ToLower(hash))
	}
	return results
}

// ScriptFlush removes all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Range(func(key, _ interface{}) bool {
		e.scripts.Delete(key)
		return true
	})
}

// newState opens a state with only the base, table, string and math libraries
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			panic(err)
		}
	}
	// Scripts must not load code from disk
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	return L
}

// setupRedisAPI installs KEYS, ARGV and the redis table
func (e *Engine) setupRedisAPI(L *lua.LState, keys []string, args []string) {
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key))
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call":  e.redisCall,
		"pcall": e.redisPCall,
	})
	L.SetGlobal("redis", redisTable)
}

// redisCall implements redis.call(), raising a Lua error on failure
func (e *Engine) redisCall(L *lua.LState) int {
	result, err := e.executeRedisCommand(L)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(e.convertToLuaValue(L, result))
	return 1
}

// redisPCall implements redis.pcall(), returning {err = msg} on failure
func (e *Engine) redisPCall(L *lua.LState) int {
	result, err := e.executeRedisCommand(L)
	if err != nil {
		errTable := L.NewTable()
		errTable.RawSetString("err", lua.LString(err.Error()))
		L.Push(errTable)
		return 1
	}
	L.Push(e.convertToLuaValue(L, result))
	return 1
}

func (e *Engine) executeRedisCommand(L *lua.LState) (interface{}, error) {
	argc := L.GetTop()
	if argc == 0 {
		return nil, errors.New("wrong number of arguments for redis command")
	}

	cmdName := L.ToString(1)
	if cmdName == "" {
		return nil, errors.New("command name must be a string")
	}

	args := make([]string, argc-1)
	for i := 2; i <= argc; i++ {
		args[i-2] = L.ToString(i)
	}

	return e.executeCommand(strings.ToUpper(cmdName), args)
}

func wrongArgs(cmd string) error {
	return fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

// executeCommand runs one command against the stores
func (e *Engine) executeCommand(cmd string, args []string) (interface{}, error) {
	switch cmd {
	case "GET":
		if len(args) != 1 {
			return nil, wrongArgs(cmd)
		}
		value, err := e.scalar.Get(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return value, err

	case "SET":
		switch {
		case len(args) == 2:
			e.scalar.Set(args[0], args[1])
		case len(args) == 4 && strings.EqualFold(args[2], "EX"):
			seconds, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				return nil, errors.New("value is not an integer or out of range")
			}
			ttl, err := storage.TTLFromSeconds(seconds)
			if err != nil {
				return nil, err
			}
			if err := e.scalar.SetWithExpiry(args[0], args[1], ttl); err != nil {
				return nil, err
			}
		default:
			return nil, wrongArgs(cmd)
		}
		return "OK", nil

	case "DEL":
		if len(args) == 0 {
			return nil, wrongArgs(cmd)
		}
		var deleted int64
		for _, key := range args {
			if e.scalar.Delete(key) == nil {
				deleted++
			}
		}
		return deleted, nil

	case "INCR":
		if len(args) != 1 {
			return nil, wrongArgs(cmd)
		}
		return e.scalar.Increment(args[0])

	case "DBSIZE":
		return int64(e.scalar.Size()), nil

	case "KEYS":
		if len(args) != 1 {
			return nil, wrongArgs(cmd)
		}
		return stringList(e.scalar.Keys(args[0])), nil

	case "ZADD":
		if len(args) < 2 {
			return nil, wrongArgs(cmd)
		}
		members := make([]storage.Member, 0, len(args)-1)
		for _, pair := range args[1:] {
			member, value, err := storage.ParsePair(pair)
			if err != nil {
				return nil, err
			}
			members = append(members, storage.Member{Name: member, Value: value})
		}
		for _, m := range members {
			e.ranked.Add(args[0], m.Name, m.Value)
		}
		return int64(len(members)), nil

	case "ZCARD":
		if len(args) != 1 {
			return nil, wrongArgs(cmd)
		}
		return int64(e.ranked.Cardinality(args[0])), nil

	case "ZRANK":
		if len(args) != 2 {
			return nil, wrongArgs(cmd)
		}
		return int64(e.ranked.Rank(args[0], args[1])), nil

	case "ZRANGE":
		if len(args) != 3 {
			return nil, wrongArgs(cmd)
		}
		start, err1 := strconv.Atoi(args[1])
		stop, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return nil, errors.New("value is not an integer or out of range")
		}
		return stringList(e.ranked.Range(args[0], start, stop)), nil

	default:
		return nil, fmt.Errorf("unknown or unsupported command: %s", cmd)
	}
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// convertToLuaValue converts a Go value to a Lua value
func (e *Engine) convertToLuaValue(L *lua.LState, value interface{}) lua.LValue {
	if value == nil {
		return lua.LFalse // nil reply becomes false in Lua
	}

	switch v := value.(type) {
	case string:
		return lua.LString(v)
	case int64:
		return lua.LNumber(float64(v))
	case int:
		return lua.LNumber(float64(v))
	case float64:
		return lua.LNumber(v)
	case bool:
		return lua.LBool(v)
	case []interface{}:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, e.convertToLuaValue(L, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// convertResult converts the script's return value. A table carrying an
// err field becomes an error, one carrying ok becomes a status string.
func (e *Engine) convertResult(lv lua.LValue) (interface{}, error) {
	if t, ok := lv.(*lua.LTable); ok {
		if msg, ok := t.RawGetString("err").(lua.LString); ok {
			return nil, errors.New(string(msg))
		}
		if status, ok := t.RawGetString("ok").(lua.LString); ok {
			return string(status), nil
		}
	}
	return e.convertLuaValue(lv), nil
}

// convertLuaValue converts a Lua value to a Go value
func (e *Engine) convertLuaValue(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case *lua.LNilType:
		return nil
	case *lua.LTable:
		if isArrayLikeTable(v) {
			result := make([]interface{}, 0, v.Len())
			for i := 1; i <= v.Len(); i++ {
				result = append(result, e.convertLuaValue(v.RawGetInt(i)))
			}
			return result
		}
		result := make(map[string]interface{})
		v.ForEach(func(k, val lua.LValue) {
			result[k.String()] = e.convertLuaValue(val)
		})
		return result
	default:
		return lv.String()
	}
}

// isArrayLikeTable reports whether the table only has keys 1..n
func isArrayLikeTable(table *lua.LTable) bool {
	length := table.Len()
	arrayLike := true
	table.ForEach(func(k, _ lua.LValue) {
		num, ok := k.(lua.LNumber)
		if !ok {
			arrayLike = false
			return
		}
		idx := int(num)
		if float64(idx) != float64(num) || idx < 1 || idx > length {
			arrayLike = false
		}
	})
	return arrayLike
}
