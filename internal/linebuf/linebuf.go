// Package linebuf reassembles arbitrary chunks of process output into
// discrete lines.
package linebuf

import (
	"bytes"

	"golang.org/x/text/encoding"
)

// Buffer accumulates chunks for one stream and emits every complete line
// to its sink. After each Append the buffer holds at most a partial
// trailing fragment.
//
// A Buffer is not safe for concurrent use; each stream owns its own.
type Buffer struct {
	buf     []byte
	sink    func(string)
	decoder *encoding.Decoder
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithEncoding decodes each complete line from enc before it reaches the
// sink. Each Buffer gets its own decoder. The encoding must be
// ASCII-compatible so that '\n' and '\r' keep their meaning in the raw
// bytes.
func WithEncoding(enc encoding.Encoding) Option {
	return func(b *Buffer) {
		b.decoder = enc.NewDecoder()
	}
}

// New returns a Buffer that emits lines to sink.
func New(sink func(string), opts ...Option) *Buffer {
	b := &Buffer{sink: sink}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Append adds a raw chunk and emits every line it completes.
func (b *Buffer) Append(chunk []byte) {
	b.buf = append(b.buf, chunk...)
	b.drain()
}

// AppendString adds a text chunk and emits every line it completes.
func (b *Buffer) AppendString(chunk string) {
	b.buf = append(b.buf, chunk...)
	b.drain()
}

// Flush emits the remaining fragment, if any, as a final line.
func (b *Buffer) Flush() {
	if len(b.buf) == 0 {
		return
	}
	rest := b.buf
	b.buf = nil
	b.emit(rest)
}

// Pending returns the size in bytes of the buffered partial line.
func (b *Buffer) Pending() int {
	return len(b.buf)
}

func (b *Buffer) drain() {
	start := 0
	for {
		idx := bytes.IndexByte(b.buf[start:], '\n')
		if idx < 0 {
			break
		}
		line := b.buf[start : start+idx]
		start += idx + 1
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		b.emit(line)
	}
	if start == 0 {
		return
	}
	// Keep only the fragment; copy so the consumed prefix can be collected.
	b.buf = append([]byte(nil), b.buf[start:]...)
}

func (b *Buffer) emit(line []byte) {
	if b.decoder != nil {
		if decoded, err := b.decoder.Bytes(line); err == nil {
			b.sink(string(decoded))
			return
		}
	}
	b.sink(string(line))
}
