package hostfuncs

import (
	"bytes"
)

// DefaultMaxOutputSize caps captured stdout and stderr of a process_exec call (10MB), each.
const DefaultMaxOutputSize = 10 * 1024 * 1024

// DefaultMaxRequestSize caps a host import request read out of guest memory (1MB).
// A guest cannot make the host allocate more than this by claiming a huge length.
const DefaultMaxRequestSize = 1 * 1024 * 1024

// BoundedBuffer is an io.Writer that keeps at most limit bytes and counts
// the rest. It never returns a short write, so exec.Cmd keeps draining the
// pipe after the limit is hit.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Dropped   int64
	Truncated bool
}

// NewBoundedBuffer creates a BoundedBuffer holding at most limit bytes.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{limit: max(limit, 0)}
}

// Write implements io.Writer.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	keep := min(len(p), b.limit-b.buffer.Len())
	if keep > 0 {
		if _, err := b.buffer.Write(p[:keep]); err != nil {
			return 0, err
		}
	} else {
		keep = 0
	}
	if dropped := len(p) - keep; dropped > 0 {
		b.Truncated = true
		b.Dropped += int64(dropped)
	}
	return len(p), nil
}

// String returns the kept bytes as a string.
func (b *BoundedBuffer) String() string {
	return b.buffer.String()
}

// Bytes returns the kept bytes.
func (b *BoundedBuffer) Bytes() []byte {
	return b.buffer.Bytes()
}

// Len returns the number of kept bytes.
func (b *BoundedBuffer) Len() int {
	return b.buffer.Len()
}

// Reset empties the buffer and clears the truncation state.
func (b *BoundedBuffer) Reset() {
	b.buffer.Reset()
	b.Truncated = false
	b.Dropped = 0
}
