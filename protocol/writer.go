package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Writer buffers RESP replies. Callers must Flush.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
	}
}

// WriteValue writes a RESP value to the output stream
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return w.WriteSimpleString(string(v.Data))
	case TypeError:
		return w.WriteError(string(v.Data))
	case TypeInteger:
		return w.WriteInteger(v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return w.WriteNull()
		}
		return w.WriteBulkString(v.Data)
	case TypeArray:
		if v.IsNull {
			return w.WriteNullArray()
		}
		return w.WriteArray(v.Array)
	default:
		return fmt.Errorf("unsupported value type: %c", v.Type)
	}
}

// WriteSimpleString writes a simple string
func (w *Writer) WriteSimpleString(s string) error {
	return w.writeLine('+', s)
}

// WriteError writes an error reply. Line breaks in msg are replaced so
// the reply stays a single RESP line.
func (w *Writer) WriteError(msg string) error {
	msg = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
	return w.writeLine('-', msg)
}

// WriteInteger writes an integer
func (w *Writer) WriteInteger(n int64) error {
	return w.writeLine(':', strconv.FormatInt(n, 10))
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	if err := w.writeLine('$', strconv.Itoa(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteBulkStringFromString writes a bulk string from a string
func (w *Writer) WriteBulkStringFromString(s string) error {
	if err := w.writeLine('$', strconv.Itoa(len(s))); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(s); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteNull writes a null bulk string
func (w *Writer) WriteNull() error {
	return w.writeLine('$', "-1")
}

// WriteArray writes an array of values
func (w *Writer) WriteArray(values []Value) error {
	if err := w.writeLine('*', strconv.Itoa(len(values))); err != nil {
		return err
	}
	for _, value := range values {
		if err := w.WriteValue(value); err != nil {
			return err
		}
	}
	return nil
}

// WriteStrings writes an array of bulk strings
func (w *Writer) WriteStrings(values []string) error {
	if err := w.writeLine('*', strconv.Itoa(len(values))); err != nil {
		return err
	}
	for _, s := range values {
		if err := w.WriteBulkStringFromString(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteNullArray writes a null array
func (w *Writer) WriteNullArray() error {
	return w.writeLine('*', "-1")
}

// WriteOK writes a simple "OK" response
func (w *Writer) WriteOK() error {
	return w.WriteSimpleString("OK")
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Reset resets the writer to write to a new underlying writer
func (w *Writer) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}

func (w *Writer) writeLine(prefix byte, s string) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(s); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *Writer) writeCRLF() error {
	_, err := w.bw.WriteString(CRLF)
	return err
}
