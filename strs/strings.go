// Package strs implements spec.md §3.3 and §4.D: the string subsystem —
// five physical layouts hidden behind one logical string handle
// (value.Value), magic-string interning, direct-uint materialization, a
// 16-bit hash, and a non-GC-visible builder. The hash is always computed
// over a string's complete bytes; a concatenation's hash is not derived
// from the hashes of its parts.
//
// Heap-resident descriptors are modeled as an explicit fixed-header Go
// struct laid out by hand into the arena (offsets below), the same idiom
// the teacher's transcoder/internal/layout package uses to compute field
// offsets for the Canonical ABI rather than relying on Go struct padding —
// spec.md §9's design note ("ASCII vs UTF-8 vs magic-ex physical layouts:
// model as a tagged enum of string descriptors... do not reproduce the
// type-byte polymorphism via function pointers") is realized here as a
// single kind byte plus one Bytes()/Length() accessor pair per kind,
// dispatched by a plain switch.
package strs

import (
	"bytes"
	"strconv"

	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

type kind uint8

const (
	kindASCII kind = iota
	kindUTF8Short
	kindUTF8Long
	kindExternal
)

// Descriptor header layout (16 bytes, 8-byte aligned):
//
//	0  uint16  refcount
//	2  uint16  hash
//	4  uint8   kind
//	5  uint8   reserved
//	6  uint16  reserved
//	8  uint32  size   (bytes, or external id when kind == kindExternal)
//	12 uint32  length (code units)
const headerSize = 16

// directUintMax is the largest value DirectUint can carry (spec.md §3.3
// "Direct uint"): the 28-bit DIRECT_STRING payload space.
const directUintMax = 1<<28 - 1

// Table owns magic-string interning plus the (host-owned) external-string
// registry (spec.md §3.3 layout 5, "bytes live outside the heap").
type Table struct {
	externals [][]byte
}

func NewTable() *Table {
	return &Table{}
}

// Intern implements spec.md §4.D string construction from bytes: magic
// match, then direct-uint, then the narrowest heap layout that fits.
func (t *Table) Intern(a *heap.Arena, b []byte) (value.Value, error) {
	if v, ok := lookupMagic(b); ok {
		return v, nil
	}
	if v, ok := tryDirectUint(b); ok {
		return v, nil
	}
	return t.allocHeap(a, b)
}

func tryDirectUint(b []byte) (value.Value, bool) {
	if len(b) == 0 || len(b) > 10 {
		return 0, false
	}
	if b[0] == '0' && len(b) > 1 {
		return 0, false // leading zero: not a canonical decimal
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil || n > directUintMax {
		return 0, false
	}
	return value.DirectUint(uint32(n))
}

func (t *Table) allocHeap(a *heap.Arena, b []byte) (value.Value, error) {
	stored := b
	if hasAstral(b) {
		var err error
		stored, err = toCESU8(b)
		if err != nil {
			return 0, errvalue.New(errvalue.PhaseString, errvalue.KindBadUTF8).Cause(err).Build()
		}
	}

	size := uint32(len(stored))
	length := codeUnitCount(stored)
	k := classify(stored, size, length)

	cp := a.TryAlloc(headerSize + size)
	if cp == heap.Null {
		return 0, errvalue.New(errvalue.PhaseAlloc, errvalue.KindOOM).Detail("string descriptor (%d bytes)", size).Build()
	}

	h := hashFresh(stored)
	if err := writeHeader(a, cp, 1, h, k, size, length); err != nil {
		return 0, err
	}
	payload, err := bytesCP(cp, size)
	if err != nil {
		return 0, err
	}
	if err := a.Write(payload, stored); err != nil {
		return 0, err
	}
	return value.NewString(cp), nil
}

func classify(stored []byte, size, length uint32) kind {
	if size == length {
		ascii := true
		for _, c := range stored {
			if c >= 0x80 {
				ascii = false
				break
			}
		}
		if ascii {
			return kindASCII
		}
	}
	if size <= 0xFFFF {
		return kindUTF8Short
	}
	return kindUTF8Long
}

func writeHeader(a *heap.Arena, cp heap.CP, refcount uint16, h uint16, k kind, size, length uint32) error {
	if err := a.WriteU16(cp, 0, refcount); err != nil {
		return err
	}
	if err := a.WriteU16(cp, 2, h); err != nil {
		return err
	}
	if err := a.WriteU8(cp, 4, uint8(k)); err != nil {
		return err
	}
	if err := a.WriteU32(cp, 8, size); err != nil {
		return err
	}
	return a.WriteU32(cp, 12, length)
}

func bytesCP(cp heap.CP, size uint32) (heap.CP, error) {
	off := uint32(cp)<<heap.AlignShift + headerSize
	if off%heap.Align != 0 {
		return 0, errvalue.New(errvalue.PhaseString, errvalue.KindCorruptHeap).Detail("misaligned string payload").Build()
	}
	return heap.CP(off >> heap.AlignShift), nil
}

// Bytes returns the logical byte content of the heap string at cp.
func (t *Table) Bytes(a *heap.Arena, cp heap.CP) ([]byte, error) {
	k, err := readKind(a, cp)
	if err != nil {
		return nil, err
	}
	if k == kindExternal {
		id, err := a.ReadU32(cp, 8)
		if err != nil {
			return nil, err
		}
		if int(id) >= len(t.externals) {
			return nil, errvalue.New(errvalue.PhaseString, errvalue.KindNotFound).Detail("external string id %d", id).Build()
		}
		return t.externals[id], nil
	}
	size, err := a.ReadU32(cp, 8)
	if err != nil {
		return nil, err
	}
	payload, err := bytesCP(cp, size)
	if err != nil {
		return nil, err
	}
	return a.Read(payload, size)
}

// Length returns the code-unit length (ECMAScript .length semantics).
func (t *Table) Length(a *heap.Arena, cp heap.CP) (uint32, error) {
	k, err := readKind(a, cp)
	if err != nil {
		return 0, err
	}
	if k == kindExternal {
		id, err := a.ReadU32(cp, 8)
		if err != nil {
			return 0, err
		}
		if int(id) >= len(t.externals) {
			return 0, errvalue.New(errvalue.PhaseString, errvalue.KindNotFound).Build()
		}
		return codeUnitCount(t.externals[id]), nil
	}
	return a.ReadU32(cp, 12)
}

// Hash returns the 16-bit descriptor hash.
func (t *Table) Hash(a *heap.Arena, cp heap.CP) (uint16, error) {
	return a.ReadU16(cp, 2)
}

// HashValue returns the 16-bit probe hash for any string-tagged Value,
// regardless of physical layout: heap strings return their stored
// descriptor hash, direct strings (magic/uint) hash their materialized
// bytes on the fly (spec.md §4.D: "non-heap strings derive their hash
// deterministically from the payload").
func (t *Table) HashValue(a *heap.Arena, v value.Value) (uint16, error) {
	if v.Tag() == value.String {
		return t.Hash(a, v.CP())
	}
	b, err := t.Materialize(a, v)
	if err != nil {
		return 0, err
	}
	return hashFresh(b), nil
}

func readKind(a *heap.Arena, cp heap.CP) (kind, error) {
	b, err := a.ReadU8(cp, 4)
	return kind(b), err
}

// AddExternal registers host-owned bytes as an external string (spec.md
// §3.3 layout 5) and returns its descriptor CP.
func (t *Table) AddExternal(a *heap.Arena, b []byte) (value.Value, error) {
	id := uint32(len(t.externals))
	t.externals = append(t.externals, b)
	cp := a.TryAlloc(headerSize)
	if cp == heap.Null {
		return 0, errvalue.New(errvalue.PhaseAlloc, errvalue.KindOOM).Build()
	}
	if err := writeHeader(a, cp, 1, hashFresh(b), kindExternal, id, codeUnitCount(b)); err != nil {
		return 0, err
	}
	return value.NewString(cp), nil
}

// AddRefCP increments a heap string descriptor's refcount.
func (t *Table) AddRefCP(a *heap.Arena, cp heap.CP) error {
	rc, err := a.ReadU16(cp, 0)
	if err != nil {
		return err
	}
	if rc == 0xFFFF {
		return errvalue.RefCountOverflow(errvalue.PhaseString)
	}
	return a.WriteU16(cp, 0, rc+1)
}

// ReleaseCP decrements a heap string descriptor's refcount, freeing its
// backing bytes immediately when the count reaches zero (spec.md §3.6:
// "Strings are reference-counted and freed immediately when the count
// reaches zero").
func (t *Table) ReleaseCP(a *heap.Arena, cp heap.CP) error {
	rc, err := a.ReadU16(cp, 0)
	if err != nil {
		return err
	}
	if rc > 1 {
		return a.WriteU16(cp, 0, rc-1)
	}

	k, err := readKind(a, cp)
	if err != nil {
		return err
	}
	if k == kindExternal {
		a.Free(cp, headerSize)
		return nil
	}

	size, err := a.ReadU32(cp, 8)
	if err != nil {
		return err
	}
	// Header and payload were allocated as one contiguous block
	// (TryAlloc(headerSize+size)); free them as one block too.
	a.Free(cp, headerSize+size)
	return nil
}

// Equal implements string equality per spec.md §3.3: identity is
// sufficient for two DIRECT_STRING values (magic or direct-uint both
// compare equal only via ==, since interning guarantees there is exactly
// one handle per magic/uint content); otherwise hash then memcmp.
func (t *Table) Equal(a *heap.Arena, x, y value.Value) (bool, error) {
	if x.Tag() == value.DirectString && y.Tag() == value.DirectString {
		return x == y, nil
	}
	if x.Tag() != value.String && x.Tag() != value.DirectString {
		return false, nil
	}
	if y.Tag() != value.String && y.Tag() != value.DirectString {
		return false, nil
	}
	if x.Tag() == value.String && y.Tag() == value.String {
		if x == y {
			return true, nil
		}
		hx, err := t.Hash(a, x.CP())
		if err != nil {
			return false, err
		}
		hy, err := t.Hash(a, y.CP())
		if err != nil {
			return false, err
		}
		if hx != hy {
			return false, nil
		}
		bx, err := t.Bytes(a, x.CP())
		if err != nil {
			return false, err
		}
		by, err := t.Bytes(a, y.CP())
		if err != nil {
			return false, err
		}
		return bytes.Equal(bx, by), nil
	}
	// Mixed DIRECT_STRING/String comparison: only reachable for external
	// strings that bypassed Intern's magic-table check; fall back to a
	// full materialize+compare.
	bx, err := t.Materialize(a, x)
	if err != nil {
		return false, err
	}
	by, err := t.Materialize(a, y)
	if err != nil {
		return false, err
	}
	return bytes.Equal(bx, by), nil
}

// Materialize returns the logical byte content of v regardless of which
// of the five physical layouts it uses.
func (t *Table) Materialize(a *heap.Arena, v value.Value) ([]byte, error) {
	switch {
	case v.Tag() == value.DirectString && v.IsDirectUint():
		return []byte(strconv.FormatUint(uint64(v.DirectStringID()), 10)), nil
	case v.Tag() == value.DirectString:
		return []byte(MagicString(v.DirectStringID())), nil
	case v.Tag() == value.String:
		return t.Bytes(a, v.CP())
	default:
		return nil, errvalue.New(errvalue.PhaseString, errvalue.KindUnsupported).Detail("not a string value").Build()
	}
}

// Append implements spec.md §4.D append(a, b): takes ownership of a's
// reference and returns a new (possibly re-interned) string. Concatenated
// bytes are retried against the magic/direct-uint tables so e.g.
// "" + "length" collapses back to the magic string (spec.md §8 S1).
func (t *Table) Append(a *heap.Arena, x, y value.Value) (value.Value, error) {
	bx, err := t.Materialize(a, x)
	if err != nil {
		return 0, err
	}
	by, err := t.Materialize(a, y)
	if err != nil {
		return 0, err
	}

	combined := make([]byte, 0, len(bx)+len(by))
	combined = append(combined, bx...)
	combined = append(combined, by...)

	if err := t.release(a, x); err != nil {
		return 0, err
	}
	return t.Intern(a, combined)
}

func (t *Table) release(a *heap.Arena, v value.Value) error {
	if v.Tag() == value.String {
		return t.ReleaseCP(a, v.CP())
	}
	return nil
}

// ReleaseValue drops one reference to v if it is a heap string, and is a
// no-op for every other tag (magic/direct strings, numbers, objects —
// objects are refcounted by the object package, not this table).
func (t *Table) ReleaseValue(a *heap.Arena, v value.Value) error {
	return t.release(a, v)
}
