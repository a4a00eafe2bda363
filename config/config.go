// Package config holds the engine's compile-time-shaped build knobs.
//
// The teacher's canonical ABI calculator ties type layout to a fixed set
// of width constants (transcoder/internal/layout). This package plays the
// same role for the compressed-pointer heap: every hard-coded width named
// in spec.md §9 ("Configurable build flags") becomes a typed constant here
// instead of a scattered literal, so a single place documents the engine's
// memory/feature tier.
package config

// PointerWidth selects the compressed-pointer encoding width.
type PointerWidth uint8

const (
	// CP16 is the default: 16-bit compressed pointers, 512 KiB max heap.
	CP16 PointerWidth = iota
	// CP32 widens compressed pointers to 32 bits for larger heaps.
	CP32
)

// FloatWidth selects the boxed-number representation.
type FloatWidth uint8

const (
	// Float64 boxes overflowed/fractional numbers as IEEE-754 binary64.
	Float64 FloatWidth = iota
	// Float32 boxes them as binary32, narrowing the codec's rounding and
	// the direct-integer range (see spec.md §9 Open Questions).
	Float32
)

// ECMAVariant selects the language feature tier exposed above the core.
type ECMAVariant uint8

const (
	ES5_1 ECMAVariant = iota
	ES2015
)

// Config bundles the build knobs for one engine instance. The zero value
// (CP16, Float64, ES5_1) is the default production tier.
type Config struct {
	PointerWidth PointerWidth
	FloatWidth   FloatWidth
	Variant      ECMAVariant

	// HeapBytes is the arena size in bytes. Must be a multiple of 8.
	// Ignored (and computed from PointerWidth) when zero.
	HeapBytes uint32
}

// DefaultHeapBytes returns the maximum addressable heap for the configured
// pointer width: 2^16 * 8 for CP16, 2^32 * 8 (capped to a sane default for
// a host slice) for CP32.
func (c Config) DefaultHeapBytes() uint32 {
	if c.HeapBytes != 0 {
		return c.HeapBytes
	}
	switch c.PointerWidth {
	case CP32:
		return 64 << 20 // 64 MiB default for the widened mode
	default:
		return 1 << 16 * 8 // 512 KiB
	}
}

// IntegerBits returns the signed direct-integer payload width for the
// configured float tier (spec.md §3.2).
func (c Config) IntegerBits() int {
	if c.FloatWidth == Float32 {
		return 20
	}
	return 28
}

// Normalize fills in defaults and rounds HeapBytes up to a multiple of 8.
func (c Config) Normalize() Config {
	if c.HeapBytes == 0 {
		c.HeapBytes = c.DefaultHeapBytes()
	}
	if c.HeapBytes%8 != 0 {
		c.HeapBytes += 8 - c.HeapBytes%8
	}
	return c
}
