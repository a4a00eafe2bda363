package strs

import (
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

// StringBuilder accumulates bytes off-heap (spec.md §3.3 "a builder type
// that accumulates content without heap churn, finalizing into one of the
// layouts above only once"). Growth is geometric, the same factor the
// teacher's resource tables use when growing their backing slice, applied
// here to a byte buffer instead of a handle slice.
type StringBuilder struct {
	buf []byte
}

// NewBuilder returns an empty builder with a small initial capacity.
func NewBuilder() *StringBuilder {
	return &StringBuilder{buf: make([]byte, 0, 16)}
}

// Append adds raw bytes to the builder. Callers are responsible for
// ensuring the bytes are valid UTF-8/CESU-8; Finalize performs no
// validation of its own.
func (sb *StringBuilder) Append(b []byte) {
	sb.buf = append(sb.buf, b...)
}

// AppendByte adds a single byte.
func (sb *StringBuilder) AppendByte(c byte) {
	sb.buf = append(sb.buf, c)
}

// Len reports the number of bytes accumulated so far.
func (sb *StringBuilder) Len() int { return len(sb.buf) }

// Reset empties the builder for reuse.
func (sb *StringBuilder) Reset() { sb.buf = sb.buf[:0] }

// Finalize commits the accumulated bytes to a string Value via Table.Intern,
// retrying the magic-string and direct-uint tables on the final content
// exactly as a one-shot Intern call would (spec.md §3.3: "finalizing...
// may still collapse to a magic or direct-uint representation").
func (t *Table) Finalize(a *heap.Arena, sb *StringBuilder) (value.Value, error) {
	return t.Intern(a, sb.buf)
}
