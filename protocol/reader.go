package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

const (
	// CRLF is the RESP line terminator
	CRLF = "\r\n"

	// DefaultMaxBulkSize is the largest bulk string accepted by default (512MB)
	DefaultMaxBulkSize = 512 * 1024 * 1024

	// maxArraySize is the maximum size for arrays
	maxArraySize = 1024 * 1024
)

var (
	crlfBytes = []byte(CRLF)
)

// Reader is a streaming RESP reader. Besides RESP arrays it accepts
// inline commands, so plain telnet sessions work.
type Reader struct {
	br          *bufio.Reader
	maxBulkSize int64
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithMaxBulkSize limits the size of a single bulk string
func WithMaxBulkSize(n int64) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxBulkSize = n
		}
	}
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{
		br:          bufio.NewReader(r),
		maxBulkSize: DefaultMaxBulkSize,
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// ReadCommand reads the next command. Empty inline lines are skipped.
func (r *Reader) ReadCommand() (*Command, error) {
	for {
		typeByte, err := r.br.ReadByte()
		if err != nil {
			return nil, err
		}

		if ValueType(typeByte) == TypeArray {
			value, err := r.readArray()
			if err != nil {
				return nil, err
			}
			return ParseCommand(value)
		}

		if err := r.br.UnreadByte(); err != nil {
			return nil, err
		}
		cmd, err := r.readInline()
		if err != nil {
			return nil, err
		}
		if cmd != nil {
			return cmd, nil
		}
	}
}

// readInline parses a whitespace separated command line. Lines longer
// than the read buffer are rejected. It returns nil for a blank line.
func (r *Reader) readInline() (*Command, error) {
	line, err := r.br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return nil, &ProtocolError{Message: "too big inline request"}
	}
	if err != nil {
		return nil, err
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	cmd := &Command{
		Name: string(bytes.ToUpper(fields[0])),
		Args: make([][]byte, len(fields)-1),
	}
	for i, f := range fields[1:] {
		cmd.Args[i] = append([]byte(nil), f...)
	}
	return cmd, nil
}

// ReadNext reads the next RESP value from the stream
func (r *Reader) ReadNext() (Value, error) {
	typeByte, err := r.br.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch ValueType(typeByte) {
	case TypeSimpleString:
		return r.readLineValue(TypeSimpleString)
	case TypeError:
		return r.readLineValue(TypeError)
	case TypeInteger:
		return r.readInteger()
	case TypeBulkString:
		return r.readBulkString()
	case TypeArray:
		return r.readArray()
	default:
		return Value{}, &ProtocolError{Message: fmt.Sprintf("unknown RESP type: %q", typeByte)}
	}
}

func (r *Reader) readLineValue(t ValueType) (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	return Value{
		Type: t,
		Data: append([]byte(nil), line...),
	}, nil
}

func (r *Reader) readInteger() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	integer, err := parseInt64(line)
	if err != nil {
		return Value{}, &ProtocolError{Message: fmt.Sprintf("invalid integer: %s", line)}
	}

	return Integer(integer), nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}
		n = n*10 + int64(b[i]-'0')
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

func (r *Reader) readBulkString() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	length, err := parseInt64(line)
	if err != nil {
		return Value{}, &ProtocolError{Message: fmt.Sprintf("invalid bulk string length: %s", line)}
	}

	if length == -1 {
		return Null(), nil
	}

	if length < 0 || length > r.maxBulkSize {
		return Value{}, &ProtocolError{Message: fmt.Sprintf("invalid bulk string length: %d", length)}
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.br, data); err != nil {
		return Value{}, err
	}

	if err := r.expectCRLF(); err != nil {
		return Value{}, err
	}

	return Value{
		Type: TypeBulkString,
		Data: data,
	}, nil
}

func (r *Reader) readArray() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	length, err := parseInt64(line)
	if err != nil {
		return Value{}, &ProtocolError{Message: fmt.Sprintf("invalid array length: %s", line)}
	}

	if length == -1 {
		return Value{Type: TypeArray, IsNull: true}, nil
	}

	if length < 0 || length > maxArraySize {
		return Value{}, &ProtocolError{Message: fmt.Sprintf("invalid array length: %d", length)}
	}

	array := make([]Value, length)
	for i := int64(0); i < length; i++ {
		value, err := r.ReadNext()
		if err != nil {
			return Value{}, err
		}
		array[i] = value
	}

	return Value{
		Type:  TypeArray,
		Array: array,
	}, nil
}

// readLine reads a line terminated by CRLF. The returned slice is only
// valid until the next read.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, &ProtocolError{Message: "line too long"}
		}
		return nil, err
	}

	if !bytes.HasSuffix(line, crlfBytes) {
		return nil, &ProtocolError{Message: "missing CRLF terminator"}
	}

	return line[:len(line)-2], nil
}

func (r *Reader) expectCRLF() error {
	var crlf [2]byte
	if _, err := io.ReadFull(r.br, crlf[:]); err != nil {
		return err
	}

	if crlf[0] != '\r' || crlf[1] != '\n' {
		return &ProtocolError{Message: fmt.Sprintf("expected CRLF terminator, got %q", crlf[:])}
	}
	return nil
}
