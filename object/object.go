// Package object implements spec.md §3.4 and §4.G: the object descriptor
// and its lexical-environment variant. Native-info attachment lives in the
// nativeinfo package.
//
// The descriptor layout and refcount/gc_next bookkeeping are grounded on
// the teacher's (deleted) component package, which kept a type/flags
// registry per handle alongside a GC-reachable chain, generalized here
// from WASM component instances to ECMAScript object descriptors;
// ref/deref policy follows resource/table.go's borrow-count saturation
// check, applied to an 11-bit field instead of an int32.
package object

import (
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/strs"
	"github.com/nanojs/corevm/value"
)

// Type enumerates the object type tag of spec.md §3.4.
type Type uint8

const (
	TypeGeneral Type = iota
	TypeClass
	TypeArray
	TypeFunction
	TypeBoundFunction
	TypeNativeFunction
	TypeProxy
)

// Flag bits (spec.md §3.4 "flags (built-in, extensible, lexical-env marker)").
type Flag uint8

const (
	FlagBuiltin Flag = 1 << iota
	FlagExtensible
	FlagLexicalEnv
)

// refcountMask isolates the 11-bit refcount from the GC color bits packed
// into the same field (spec.md §4.H: "object color is encoded in the high
// bits of the refcount field").
const (
	refcountBits = 11
	refcountMask = 1<<refcountBits - 1
	maxRefcount  = refcountMask - 1 // one value reserved as the overflow sentinel
)

// Descriptor header layout (24 bytes, 8-byte aligned):
//
//	0  uint16  refcountAndColor
//	2  uint8   typeTag
//	3  uint8   flags
//	4  uint16  gcNext   (CP, next object in the GC sweep chain)
//	6  uint16  reserved
//	8  uint16  propertyList (CP, or bound-target CP for bound functions)
//	10 uint16  reserved
//	12 uint16  prototype (CP, or outer lexical environment CP)
//	14 uint16  reserved (native-info lists are tracked in nativeinfo.Registry,
//	           keyed by this descriptor's own CP — native_p values are host
//	           pointers, not arena CPs, so there is nothing arena-addressable
//	           to store here)
//	16 uint16  builtinID
//	18 uint16  reserved
//	20 uint32  extension size in bytes (payload immediately follows)
const headerSize = 24

// Heap is the per-engine object table: it knows how to lay out
// descriptors in an Arena, walks the GC chain, and (via strings) compares
// and hashes property names.
type Heap struct {
	arena   *heap.Arena
	strings *strs.Table
	head    heap.CP // GC object chain head
}

func New(a *heap.Arena, strings *strs.Table) *Heap {
	return &Heap{arena: a, strings: strings}
}

// Head returns the GC object chain head, used by the gc package to walk
// every live descriptor during sweep.
func (h *Heap) Head() heap.CP { return h.head }

// Create implements spec.md §4.G object creation: prototype CP, an
// extension size, and a type tag; the extension region is zeroed, the
// refcount starts at 1, and the descriptor is linked at the GC chain head.
func (h *Heap) Create(typ Type, flags Flag, prototype heap.CP, extSize uint32) (heap.CP, error) {
	cp := h.arena.TryAlloc(headerSize + extSize)
	if cp == heap.Null {
		return heap.Null, errvalue.New(errvalue.PhaseObject, errvalue.KindOOM).Detail("object descriptor (%d bytes)", headerSize+extSize).Build()
	}
	// Refcount starts at 1; color starts at White so a collector epoch of
	// 0 (which cycles back to after 31 collections) never mistakes a
	// freshly created, not-yet-marked object for already-marked.
	if err := h.arena.WriteU16(cp, 0, uint16(White)<<colorShift|1); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU8(cp, 2, uint8(typ)); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU8(cp, 3, uint8(flags)); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU16(cp, 4, uint16(h.head)); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU16(cp, 8, 0); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU16(cp, 12, uint16(prototype)); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU16(cp, 14, 0); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU16(cp, 16, 0); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU32(cp, 20, extSize); err != nil {
		return heap.Null, err
	}
	if extSize > 0 {
		zero := make([]byte, extSize)
		if err := h.arena.Write(extCP(cp), zero); err != nil {
			return heap.Null, err
		}
	}
	h.head = cp
	return cp, nil
}

// CreateLexicalEnvironment creates an object with FlagLexicalEnv set,
// whose "prototype" slot instead carries the outer environment's CP
// (spec.md §3.4).
func (h *Heap) CreateLexicalEnvironment(outer heap.CP, extSize uint32) (heap.CP, error) {
	return h.Create(TypeGeneral, FlagLexicalEnv, outer, extSize)
}

func extCP(cp heap.CP) heap.CP {
	return heap.CP(uint32(cp) + headerSize/heap.Align)
}

// Extension returns the extra per-type payload region following the
// common header.
func (h *Heap) Extension(cp heap.CP, size uint32) ([]byte, error) {
	return h.arena.Read(extCP(cp), size)
}

func (h *Heap) WriteExtension(cp heap.CP, data []byte) error {
	return h.arena.Write(extCP(cp), data)
}

// Type returns the object's type tag.
func (h *Heap) Type(cp heap.CP) (Type, error) {
	b, err := h.arena.ReadU8(cp, 2)
	return Type(b), err
}

func (h *Heap) flags(cp heap.CP) (Flag, error) {
	b, err := h.arena.ReadU8(cp, 3)
	return Flag(b), err
}

// IsLexicalEnv reports whether cp carries the lexical-env flag.
func (h *Heap) IsLexicalEnv(cp heap.CP) (bool, error) {
	f, err := h.flags(cp)
	return f&FlagLexicalEnv != 0, err
}

// IsExtensible reports whether new own properties may be added.
func (h *Heap) IsExtensible(cp heap.CP) (bool, error) {
	f, err := h.flags(cp)
	return f&FlagExtensible != 0, err
}

// Prototype returns the prototype CP (or, for a lexical environment, the
// outer environment CP — the two share a slot per spec.md §3.4).
func (h *Heap) Prototype(cp heap.CP) (heap.CP, error) {
	v, err := h.arena.ReadU16(cp, 12)
	return heap.CP(v), err
}

func (h *Heap) SetPrototype(cp heap.CP, proto heap.CP) error {
	return h.arena.WriteU16(cp, 12, uint16(proto))
}

// PropertyList returns the head CP of the object's property-pair chain.
func (h *Heap) PropertyList(cp heap.CP) (heap.CP, error) {
	v, err := h.arena.ReadU16(cp, 8)
	return heap.CP(v), err
}

func (h *Heap) SetPropertyList(cp heap.CP, list heap.CP) error {
	return h.arena.WriteU16(cp, 8, uint16(list))
}

// BuiltinID returns the built-in identifier, valid only when FlagBuiltin
// is set.
func (h *Heap) BuiltinID(cp heap.CP) (uint16, error) {
	return h.arena.ReadU16(cp, 16)
}

func (h *Heap) SetBuiltinID(cp heap.CP, id uint16) error {
	f, err := h.flags(cp)
	if err != nil {
		return err
	}
	if err := h.arena.WriteU8(cp, 3, uint8(f|FlagBuiltin)); err != nil {
		return err
	}
	return h.arena.WriteU16(cp, 16, id)
}

// GCNext returns the next descriptor in the GC sweep chain.
func (h *Heap) GCNext(cp heap.CP) (heap.CP, error) {
	v, err := h.arena.ReadU16(cp, 4)
	return heap.CP(v), err
}

// SetGCNext forcibly repoints cp's sweep-chain link — used by the gc
// package to unlink a freed descriptor from its predecessor during sweep.
func (h *Heap) SetGCNext(cp heap.CP, next heap.CP) error {
	return h.arena.WriteU16(cp, 4, uint16(next))
}

// SetHead forcibly repoints the GC chain head — used by the gc package
// after an unlink during sweep.
func (h *Heap) SetHead(cp heap.CP) { h.head = cp }

// ExtensionSize returns the byte size of cp's type-specific payload
// region, as recorded at Create time.
func (h *Heap) ExtensionSize(cp heap.CP) (uint32, error) {
	return h.arena.ReadU32(cp, 20)
}

// Free reclaims a descriptor's arena block (header plus extension
// region). It does not touch the property list or native-info chain —
// the gc package is responsible for releasing those first.
func (h *Heap) Free(cp heap.CP) error {
	extSize, err := h.ExtensionSize(cp)
	if err != nil {
		return err
	}
	h.arena.Free(cp, headerSize+extSize)
	return nil
}

func (h *Heap) refcountWord(cp heap.CP) (uint16, error) {
	return h.arena.ReadU16(cp, 0)
}

func (h *Heap) setRefcountWord(cp heap.CP, w uint16) error {
	return h.arena.WriteU16(cp, 0, w)
}

// colorShift/colorMask carve the remaining 5 bits of the refcount word
// for the GC mark color (spec.md §4.H: "object color is encoded in the
// high bits of the refcount field").
const (
	colorShift = 11
	colorMask  = 0x1F
)

// White is the non-visited sentinel color: the maximum representable
// value, so that "any smaller value is black-at-current-epoch" holds for
// every real epoch number.
const White uint8 = colorMask

// Color returns cp's current GC mark color.
func (h *Heap) Color(cp heap.CP) (uint8, error) {
	w, err := h.refcountWord(cp)
	return uint8(w>>colorShift) & colorMask, err
}

// SetColor overwrites cp's GC mark color without disturbing the refcount.
func (h *Heap) SetColor(cp heap.CP, c uint8) error {
	w, err := h.refcountWord(cp)
	if err != nil {
		return err
	}
	w = (w &^ (colorMask << colorShift)) | (uint16(c&colorMask) << colorShift)
	return h.setRefcountWord(cp, w)
}

// Refcount returns the count of direct (non-traced) holds on cp: the
// creator's own hold from Create, plus any VM stack slot or embedding
// handle that later called AddRef. Property-graph edges do NOT bump this
// — reachability through properties, prototypes, and lexical-environment
// links is established only by gc's mark phase. A nonzero Refcount seeds
// gc's mark phase as an implicit root; the creator (or whoever pops a
// stack slot, or the embed package on handle release) must call Deref
// once its own hold ends, or the object is kept permanently reachable.
func (h *Heap) Refcount(cp heap.CP) (uint32, error) {
	w, err := h.refcountWord(cp)
	return uint32(w & refcountMask), err
}

// AddRef increments cp's refcount, escalating to the host fatal callback
// (via a RefCountOverflow error) at saturation per spec.md §4.G.
func (h *Heap) AddRef(cp heap.CP) error {
	w, err := h.refcountWord(cp)
	if err != nil {
		return err
	}
	rc := w & refcountMask
	if rc >= maxRefcount {
		return errvalue.RefCountOverflow(errvalue.PhaseObject)
	}
	return h.setRefcountWord(cp, (w &^ refcountMask) | (rc + 1))
}

// Deref decrements cp's refcount. It does not free the descriptor —
// reclamation only happens during gc sweep (spec.md §3.6: "freed only
// during sweep").
func (h *Heap) Deref(cp heap.CP) error {
	w, err := h.refcountWord(cp)
	if err != nil {
		return err
	}
	rc := w & refcountMask
	if rc == 0 {
		return nil
	}
	return h.setRefcountWord(cp, (w &^ refcountMask) | (rc - 1))
}

// ObjectValue wraps cp as a value.Value with the OBJECT tag.
func ObjectValue(cp heap.CP) value.Value {
	return value.NewObject(cp)
}

// errorExtHeaderSize is the fixed prefix of an ERROR object's extension
// region: a one-byte ECMAKind plus a one-byte abort flag. The message
// bytes follow immediately after, sized by the extension's own recorded
// ExtensionSize (spec.md §7, errvalue.Carrier's shape).
const errorExtHeaderSize = 2

// CreateError creates the backing descriptor for an ERROR-tagged value
// (spec.md §7): kind, message, and the unwind-through-all-catches abort
// flag are packed into the generic extension region (the same payload
// region TypeArray/TypeFunction descriptors use for their own per-type
// data), so an error object is reclaimed and walked by the ordinary
// Create/Free path with no special case in gc.
func (h *Heap) CreateError(kind errvalue.ECMAKind, message string, abort bool) (heap.CP, error) {
	ext := make([]byte, errorExtHeaderSize+len(message))
	ext[0] = uint8(kind)
	if abort {
		ext[1] = 1
	}
	copy(ext[errorExtHeaderSize:], message)

	cp, err := h.Create(TypeClass, FlagExtensible, heap.Null, uint32(len(ext)))
	if err != nil {
		return heap.Null, err
	}
	if err := h.WriteExtension(cp, ext); err != nil {
		return heap.Null, err
	}
	return cp, nil
}

// ErrorCarrier reconstructs the errvalue.Carrier payload of an ERROR
// object created via CreateError, implementing spec.md §7's toString
// contract ("Name: message") on top of the stored kind/message.
func (h *Heap) ErrorCarrier(cp heap.CP) (*errvalue.Carrier, error) {
	size, err := h.ExtensionSize(cp)
	if err != nil {
		return nil, err
	}
	if size < errorExtHeaderSize {
		return nil, errvalue.New(errvalue.PhaseObject, errvalue.KindInvalidArg).Detail("object %d has no error extension", cp).Build()
	}
	ext, err := h.Extension(cp, size)
	if err != nil {
		return nil, err
	}
	return &errvalue.Carrier{
		Kind:    errvalue.ECMAKind(ext[0]),
		Abort:   ext[1] != 0,
		Message: string(ext[errorExtHeaderSize:]),
	}, nil
}
