package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP2 value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a parsed RESP value
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// Bulk returns a bulk string value
func Bulk(s string) Value {
	return Value{Type: TypeBulkString, Data: []byte(s)}
}

// Integer returns an integer value
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// Null returns a null bulk string
func Null() Value {
	return Value{Type: TypeBulkString, IsNull: true}
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString, TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// Command represents a command parsed from a RESP array or an inline line
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command
func ParseCommand(v Value) (*Command, error) {
	if v.Type != TypeArray || len(v.Array) == 0 {
		return nil, &ProtocolError{Message: "invalid command format"}
	}

	cmd := &Command{
		Args: make([][]byte, len(v.Array)-1),
	}

	if v.Array[0].Type != TypeBulkString {
		return nil, &ProtocolError{Message: "command name must be bulk string"}
	}
	cmd.Name = strings.ToUpper(string(v.Array[0].Data))

	for i := 1; i < len(v.Array); i++ {
		if v.Array[i].Type != TypeBulkString {
			return nil, &ProtocolError{Message: "command arguments must be bulk strings"}
		}
		cmd.Args[i-1] = v.Array[i].Data
	}

	return cmd, nil
}

// Arg returns argument i as a string
func (c *Command) Arg(i int) string {
	return string(c.Args[i])
}

// ArgInt parses argument i as a base-10 integer
func (c *Command) ArgInt(i int) (int64, error) {
	return strconv.ParseInt(string(c.Args[i]), 10, 64)
}

// StringArgs returns the arguments from index i onwards as strings
func (c *Command) StringArgs(i int) []string {
	if i >= len(c.Args) {
		return []string{}
	}
	out := make([]string, len(c.Args)-i)
	for j, arg := range c.Args[i:] {
		out[j] = string(arg)
	}
	return out
}

// String returns a string representation of the command
func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.StringArgs(0), " ")
}

// ProtocolError is returned for malformed RESP input
type ProtocolError struct {
	Message string
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Message
}
