package hostfuncs

import (
	"bytes"
)

// DefaultMaxMessageSize limits the text a script can pass to the Log builtin.
const DefaultMaxMessageSize = 4 * 1024

// BoundedBuffer is a bytes.Buffer wrapper that limits the size of written data.
// It backs call-site labels and script log messages.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{
		limit: limit,
	}
}

// Write implements io.Writer.
// It writes data up to the limit and then silently discards any additional data.
// The Truncated field is set to true if any data was discarded.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	if b.buffer.Len() >= b.limit {
		b.Truncated = b.Truncated || len(p) > 0
		return len(p), nil
	}

	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.Truncated = true
		n, err = b.buffer.Write(p[:remaining])
		if err != nil {
			return n, err
		}
		return len(p), nil
	}

	return b.buffer.Write(p)
}

// WriteString implements io.StringWriter.
func (b *BoundedBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Set replaces the contents with s, truncated to the limit.
func (b *BoundedBuffer) Set(s string) {
	b.Reset()
	_, _ = b.WriteString(s)
}

func (b *BoundedBuffer) String() string {
	return b.buffer.String()
}

func (b *BoundedBuffer) Bytes() []byte {
	return b.buffer.Bytes()
}

func (b *BoundedBuffer) Len() int {
	return b.buffer.Len()
}

// Reset resets the buffer and clears the Truncated flag.
func (b *BoundedBuffer) Reset() {
	b.buffer.Reset()
	b.Truncated = false
}
