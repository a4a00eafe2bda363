// Package errvalue implements spec.md §7: the engine-internal structured
// error used by allocator/GC/string/property diagnostics, and the carrier
// shape for script-visible ECMAScript exceptions.
//
// The structured Error/Builder pair is modeled directly on the teacher's
// errors/errors.go (Phase/Kind/Builder, fluent setters, Is/Unwrap support),
// generalized from WIT/transcoder phases to the engine's own phases.
package errvalue

import (
	"fmt"
	"strings"
)

// Phase indicates where in core processing the error occurred.
type Phase string

const (
	PhaseAlloc       Phase = "alloc"
	PhaseGC          Phase = "gc"
	PhaseString      Phase = "string"
	PhaseProperty    Phase = "property"
	PhaseHashmap     Phase = "hashmap"
	PhaseParseNumber Phase = "parse_number"
	PhasePrintNumber Phase = "print_number"
	PhaseObject      Phase = "object"
	PhaseHost        Phase = "host"
)

// Kind categorizes an internal error.
type Kind string

const (
	KindOOM            Kind = "out_of_memory"
	KindRefOverflow    Kind = "refcount_overflow"
	KindInvalidPointer Kind = "invalid_pointer"
	KindCorruptHeap    Kind = "corrupt_heap"
	KindBadUTF8        Kind = "invalid_utf8"
	KindNotFound       Kind = "not_found"
	KindUnsupported    Kind = "unsupported"
	KindInvalidArg     Kind = "invalid_argument"
)

// Error is the structured internal error type used throughout the core.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// OutOfMemory constructs the error the allocation-retry protocol (§4.H)
// escalates to the host fatal callback after a second failed alloc.
func OutOfMemory(phase Phase, size uint32) *Error {
	return New(phase, KindOOM).Detail("failed to allocate %d bytes after gc(high) retry", size).Build()
}

// RefCountOverflow constructs the error raised when an object's or string's
// reference counter saturates (spec.md §4.G).
func RefCountOverflow(phase Phase) *Error {
	return New(phase, KindRefOverflow).Build()
}

// ECMAKind enumerates the script-visible exception kinds of spec.md §7.
type ECMAKind uint8

const (
	KindCommon ECMAKind = iota
	KindEval
	KindRange
	KindReference
	KindSyntax
	KindType
	KindURI
	KindAggregate
)

var ecmaKindNames = [...]string{
	KindCommon:    "Error",
	KindEval:      "EvalError",
	KindRange:     "RangeError",
	KindReference: "ReferenceError",
	KindSyntax:    "SyntaxError",
	KindType:      "TypeError",
	KindURI:       "URIError",
	KindAggregate: "AggregateError",
}

func (k ECMAKind) String() string {
	if int(k) < len(ecmaKindNames) {
		return ecmaKindNames[k]
	}
	return "Error"
}

// Carrier is the payload referenced by an ERROR-tagged Value (spec.md §3.2,
// §7). It is never itself heap-allocated by this package — the object
// layer stores its Kind, Message and Abort in an error object's extension
// region (object.Heap.CreateError; Stack is not stored) — this type only
// fixes its shape and toString contract.
type Carrier struct {
	Kind    ECMAKind
	Message string
	Stack   []string // populated only when line-info is enabled
	Abort   bool     // distinguished unwind-through-all-catches flag (§7)
}

// String implements the "Name: message" toString contract (§7).
func (c *Carrier) String() string {
	if c.Message == "" {
		return c.Kind.String()
	}
	return c.Kind.String() + ": " + c.Message
}
