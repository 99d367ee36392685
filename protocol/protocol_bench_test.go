package protocol_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/raniellyferreira/redis-inmemory-kv/protocol"
)

func BenchmarkReadCommand(b *testing.B) {
	input := "*4\r\n$4\r\nZADD\r\n$6\r\nscores\r\n$8\r\nalice=10\r\n$6\r\nbob=20\r\n"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader := protocol.NewReader(strings.NewReader(input))
		if _, err := reader.ReadCommand(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReadCommandInline(b *testing.B) {
	input := "SET key value\r\n"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader := protocol.NewReader(strings.NewReader(input))
		if _, err := reader.ReadCommand(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriterStrings(b *testing.B) {
	values := make([]string, 100)
	for i := range values {
		values[i] = strings.Repeat("v", 16)
	}
	writer := protocol.NewWriter(io.Discard)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		writer.WriteStrings(values)
		writer.Flush()
	}
}

func BenchmarkWriterBulkString(b *testing.B) {
	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf)
	data := bytes.Repeat([]byte("x"), 1024)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		writer.Reset(&buf)
		writer.WriteBulkString(data)
		writer.Flush()
	}
}
