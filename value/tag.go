// Package value implements spec.md §3.2 and §4.C: the 32-bit tagged Value
// union and its arithmetic/equality semantics.
//
// The tag enum below plays the same role as the teacher's tagged `Kind`
// enum (transcoder/internal/types/kind.go) — a small closed set of
// discriminators with a derived String()/predicate layer — generalized
// from the Canonical ABI's value-shape kinds to spec.md §3.2's Value tags.
package value

// Tag is the 3-bit discriminator occupying a Value's top bits.
type Tag uint8

const (
	// Direct holds an inline integer or one of the Simple constants.
	Direct Tag = iota
	// String points (CP) to a string descriptor (strs package).
	String
	// Float points (CP) to a boxed 64-bit float.
	Float
	// Object points (CP) to an object descriptor (object package).
	ObjectTag
	// Symbol points (CP) to a symbol descriptor (ES2015+).
	Symbol
	// DirectString inlines a magic-string id or a small unsigned integer.
	DirectString
	// BigInt points (CP) to a bigint primitive (optional).
	BigInt
	// Error points (CP) to an exception carrier.
	ErrorTag
)

var tagNames = [...]string{
	Direct:       "direct",
	String:       "string",
	Float:        "float",
	ObjectTag:    "object",
	Symbol:       "symbol",
	DirectString: "direct_string",
	BigInt:       "bigint",
	ErrorTag:     "error",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// IsPointer reports whether the tag's payload is a compressed pointer into
// the managed heap, as opposed to an inline value.
func (t Tag) IsPointer() bool {
	switch t {
	case String, Float, ObjectTag, Symbol, BigInt, ErrorTag:
		return true
	default:
		return false
	}
}

// Simple enumerates the DIRECT subtag space: integer-or-simple-constant
// (spec.md §3.2). Consecutive False/True values are deliberate — they
// differ only in the lowest bit, so IsBoolean can test via a
// bitwise OR rather than a branch, matching spec.md's documented
// "false and true differ by one bit" invariant.
type Simple uint8

const (
	SimpleEmpty Simple = iota
	SimpleErrorMarker
	SimpleFalse // even: lowest bit 0
	SimpleTrue  // odd: lowest bit 1
	SimpleUndefined
	SimpleNull
	SimpleUninitialized
	SimpleNotFound
	SimpleArrayHole
	SimpleRegisterRef
)
