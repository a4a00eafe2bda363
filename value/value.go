package value

import (
	"math"

	"github.com/nanojs/corevm/heap"
)

// Value is the 32-bit tagged union of spec.md §3.2: tag:3 | payload:29.
type Value uint32

const (
	tagShift     = 29
	payloadMask  = 1<<tagShift - 1
	simpleFlag   = 1 << 28 // top bit of the 29-bit payload
	intSignBit   = 1 << 27
	intMagMask   = 1<<27 - 1
	uintFlagBit  = 1 << 28 // DIRECT_STRING payload: 0=magic id, 1=small uint
	directIDMask = 1<<28 - 1
)

// MaxInt and MinInt bound the symmetric DIRECT integer range of spec.md
// §3.2: "±(2^27-1) in 64-bit-float builds". Note -2^27 itself is excluded
// (it has no positive counterpart at this width) and boxes as FLOAT.
const (
	MaxInt int32 = 1<<27 - 1
	MinInt int32 = -(1<<27 - 1)
)

func makeValue(tag Tag, payload uint32) Value {
	return Value(uint32(tag)<<tagShift | (payload & payloadMask))
}

// Tag returns the value's 3-bit discriminator.
func (v Value) Tag() Tag { return Tag(uint32(v) >> tagShift) }

func (v Value) payload() uint32 { return uint32(v) & payloadMask }

// IsDirect reports whether v's payload is inline (not a heap pointer).
func (v Value) IsDirect() bool { return v.Tag() == Direct }

// --- DIRECT: integer ---

// Int constructs a DIRECT integer Value. ok is false if i falls outside
// [MinInt, MaxInt]; the caller must box as FLOAT in that case.
func Int(i int32) (Value, bool) {
	if i > MaxInt || i < MinInt {
		return 0, false
	}
	sign := uint32(0)
	mag := uint32(i)
	if i < 0 {
		sign = 1
		mag = uint32(-i)
	}
	return makeValue(Direct, (sign<<27)|(mag&intMagMask)), true
}

// IsInt reports whether v is a DIRECT integer (as opposed to a simple
// constant).
func (v Value) IsInt() bool {
	return v.Tag() == Direct && v.payload()&simpleFlag == 0
}

// AsInt decodes a DIRECT integer payload. Only valid when IsInt(v).
func (v Value) AsInt() int32 {
	p := v.payload()
	mag := int32(p & intMagMask)
	if p&intSignBit != 0 {
		return -mag
	}
	return mag
}

// --- DIRECT: simple constants ---

func simple(s Simple) Value {
	return makeValue(Direct, simpleFlag|uint32(s))
}

var (
	Empty         = simple(SimpleEmpty)
	ErrorMarker   = simple(SimpleErrorMarker)
	False         = simple(SimpleFalse)
	True          = simple(SimpleTrue)
	Undefined     = simple(SimpleUndefined)
	Null          = simple(SimpleNull)
	Uninitialized = simple(SimpleUninitialized)
	NotFound      = simple(SimpleNotFound)
	ArrayHole     = simple(SimpleArrayHole)
	RegisterRef   = simple(SimpleRegisterRef)
)

// IsSimple reports whether v is a DIRECT simple constant.
func (v Value) IsSimple() bool {
	return v.Tag() == Direct && v.payload()&simpleFlag != 0
}

func (v Value) simpleSubtag() Simple {
	return Simple(v.payload() & 0xF)
}

// IsBoolean reports whether v is True or False. Grounded on spec.md §4.C:
// "Boolean values differ by a single bit so is_boolean(v) = is_true(v |
// bit)" — here realized as masking the subtag's low bit to True's value.
func (v Value) IsBoolean() bool {
	return v.IsSimple() && (v.simpleSubtag()|1) == SimpleTrue
}

// IsTrue reports whether v is exactly the True constant.
func (v Value) IsTrue() bool { return v == True }

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func (v Value) IsUndefined() bool { return v == Undefined }
func (v Value) IsNull() bool      { return v == Null }

// --- FLOAT (boxed) ---

// MakeNumber implements spec.md §4.C make_number: if x round-trips
// through a valid DIRECT integer and is not negative zero, return a
// DIRECT value; otherwise box it as FLOAT (spec.md §8 property 2 and 3).
func MakeNumber(a *heap.Arena, x float64) (Value, error) {
	if x == 0 && math.Signbit(x) {
		return boxFloat(a, x) // -0.0 must never become DIRECT (§8 property 3)
	}
	if i := int32(x); float64(i) == x {
		if v, ok := Int(i); ok {
			return v, nil
		}
	}
	return boxFloat(a, x)
}

func boxFloat(a *heap.Arena, x float64) (Value, error) {
	cp := a.TryAlloc(8)
	if cp == heap.Null {
		return 0, errOOM()
	}
	if err := a.WriteU64(cp, 0, math.Float64bits(x)); err != nil {
		return 0, err
	}
	return makeValue(Float, uint32(cp)), nil
}

// IsFloat reports whether v is a boxed float.
func (v Value) IsFloat() bool { return v.Tag() == Float }

// FloatCP returns the compressed pointer to the boxed float payload.
func (v Value) FloatCP() heap.CP { return heap.CP(v.payload()) }

// AsFloat reads the boxed float's value.
func AsFloat(a *heap.Arena, v Value) (float64, error) {
	bits, err := a.ReadU64(v.FloatCP(), 0)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// UpdateFloatValue implements spec.md §4.C update_float_value. The caller
// pre-commits that v is FLOAT. If x is now integer-representable, the
// boxed float is freed and a DIRECT value returned; otherwise the boxed
// payload is overwritten in place and the same CP returned.
func UpdateFloatValue(a *heap.Arena, v Value, x float64) (Value, error) {
	if !(x == 0 && math.Signbit(x)) {
		if i := int32(x); float64(i) == x {
			if nv, ok := Int(i); ok {
				a.Free(v.FloatCP(), 8)
				return nv, nil
			}
		}
	}
	if err := a.WriteU64(v.FloatCP(), 0, math.Float64bits(x)); err != nil {
		return 0, err
	}
	return v, nil
}

// --- DIRECT_STRING ---

// DirectMagic constructs a DIRECT_STRING carrying a magic-string table id.
func DirectMagic(id uint32) Value {
	return makeValue(DirectString, id&directIDMask)
}

// DirectUint constructs a DIRECT_STRING carrying a small unsigned integer
// whose canonical decimal string is materialized on demand (spec.md §3.3).
func DirectUint(n uint32) (Value, bool) {
	if n > directIDMask {
		return 0, false
	}
	return makeValue(DirectString, uintFlagBit|n), true
}

func (v Value) IsDirectString() bool { return v.Tag() == DirectString }

// IsDirectUint reports whether a DIRECT_STRING value carries a small
// unsigned integer rather than a magic-string id.
func (v Value) IsDirectUint() bool {
	return v.Tag() == DirectString && v.payload()&uintFlagBit != 0
}

// DirectStringID returns the magic-string table id (when !IsDirectUint)
// or the small unsigned integer payload (when IsDirectUint).
func (v Value) DirectStringID() uint32 {
	return v.payload() & directIDMask
}

// --- pointer tags ---

// CP returns the compressed pointer payload of a pointer-tagged Value.
// Only meaningful when v.Tag().IsPointer().
func (v Value) CP() heap.CP { return heap.CP(v.payload()) }

func fromCP(tag Tag, cp heap.CP) Value { return makeValue(tag, uint32(cp)) }

func NewString(cp heap.CP) Value { return fromCP(String, cp) }
func NewObject(cp heap.CP) Value { return fromCP(ObjectTag, cp) }
func NewSymbol(cp heap.CP) Value { return fromCP(Symbol, cp) }
func NewBigInt(cp heap.CP) Value { return fromCP(BigInt, cp) }
func NewError(cp heap.CP) Value  { return fromCP(ErrorTag, cp) }

func (v Value) IsString() bool { return v.Tag() == String }
func (v Value) IsObject() bool { return v.Tag() == ObjectTag }
func (v Value) IsError() bool  { return v.Tag() == ErrorTag }
