// Package heap implements spec.md §4.A: the compressed-pointer heap.
//
// All heap-resident objects are 8-byte aligned, so a compressed pointer
// (CP) needs only 16 bits to address the full 512 KiB arena. Decoding a CP
// is base + (cp << 3); CP zero is reserved as the null reference, so the
// arena's first 8 bytes are never handed out by Alloc.
//
// The split between a small-block pool (fixed size classes, freelist
// reuse) and a general first-fit allocator mirrors the teacher's
// Memory/Allocator interface pair (wasm.go) generalized from WASM linear
// memory to an engine-private arena, plus resource/backend_local.go's
// freeList-of-Handle reuse-on-create idiom applied to size-classed CPs
// instead of table slots.
package heap

import (
	"encoding/binary"

	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/internal/log"
)

// CP is a compressed pointer: a 16-bit offset into the arena, encoded as
// cp<<3 bytes from the arena base. CP(0) is the null reference.
type CP uint16

// Null is the reserved null compressed pointer.
const Null CP = 0

// AlignShift is log2 of the mandatory 8-byte alignment (spec.md §3.1).
const AlignShift = 3

// Align is the mandatory heap block alignment in bytes.
const Align = 1 << AlignShift

// MaxHeapBytes is the largest arena a 16-bit CP can address.
const MaxHeapBytes = 1 << 16 << AlignShift // 512 KiB

// smallClasses lists the fixed block sizes serviced by the small-block
// pool: 8 bytes (a boxed float), 16, 24 (an object descriptor header, or
// a property pair per spec.md §3.5 "two properties packed to share
// padding"), and 32.
var smallClasses = [...]uint32{8, 16, 24, 32}

func classIndex(size uint32) int {
	for i, c := range smallClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// freeBlockHeader is written into the first 4 bytes of a freed general
// block: the CP of the next free block in the same free list (0 = end).
const freeBlockHeaderSize = 4

// Arena is a fixed-size, 8-byte-aligned byte arena addressed by CP.
// One Arena backs exactly one engine instance (spec.md §5: "the engine
// heap... belongs to its single thread").
type Arena struct {
	mem  []byte
	bump uint32 // next never-yet-used byte offset

	smallFree [len(smallClasses)][]CP // per-size-class freelist stacks
	genFree   CP                      // head of the general first-fit free list

	highWater uint32
}

// NewArena allocates an arena of the given size, rounded up to a multiple
// of Align and capped at MaxHeapBytes.
func NewArena(size uint32) *Arena {
	if size == 0 || size > MaxHeapBytes {
		size = MaxHeapBytes
	}
	if rem := size % Align; rem != 0 {
		size += Align - rem
	}
	a := &Arena{mem: make([]byte, size)}
	a.bump = Align // reserve offset 0 so CP(0) stays unambiguously null
	return a
}

// Cap returns the arena's total byte capacity.
func (a *Arena) Cap() uint32 { return uint32(len(a.mem)) }

// Used returns the number of bytes currently bump-allocated (including
// blocks sitting on a free list, which remain "committed" until reused by
// a different consumer — matching the teacher's Table.Len() accessor
// which counts live entries, not bytes, but the same "what have we
// committed" intent).
func (a *Arena) Used() uint32 { return a.bump }

// HighWater returns the largest Used() value ever observed.
func (a *Arena) HighWater() uint32 { return a.highWater }

func encodeCP(offset uint32) CP {
	return CP(offset >> AlignShift)
}

// Resolve decodes cp into a byte slice of the given length, or an error if
// cp is null or the range falls outside the arena.
func (a *Arena) Resolve(cp CP, length uint32) ([]byte, error) {
	if cp == Null {
		return nil, errvalue.New(errvalue.PhaseAlloc, errvalue.KindInvalidPointer).Detail("null CP dereferenced").Build()
	}
	off := uint32(cp) << AlignShift
	if off+length > uint32(len(a.mem)) {
		return nil, errvalue.New(errvalue.PhaseAlloc, errvalue.KindInvalidPointer).Detail("cp %d+%d out of range", cp, length).Build()
	}
	return a.mem[off : off+length], nil
}

// Read returns a copy of length bytes starting at cp.
func (a *Arena) Read(cp CP, length uint32) ([]byte, error) {
	s, err := a.Resolve(cp, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, s)
	return out, nil
}

// Write copies data into the arena starting at cp.
func (a *Arena) Write(cp CP, data []byte) error {
	s, err := a.Resolve(cp, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(s, data)
	return nil
}

func (a *Arena) ReadU8(cp CP, offset uint32) (uint8, error) {
	s, err := a.Resolve(cp, offset+1)
	if err != nil {
		return 0, err
	}
	return s[offset], nil
}

func (a *Arena) ReadU16(cp CP, offset uint32) (uint16, error) {
	s, err := a.Resolve(cp, offset+2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(s[offset:]), nil
}

func (a *Arena) ReadU32(cp CP, offset uint32) (uint32, error) {
	s, err := a.Resolve(cp, offset+4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s[offset:]), nil
}

func (a *Arena) ReadU64(cp CP, offset uint32) (uint64, error) {
	s, err := a.Resolve(cp, offset+8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s[offset:]), nil
}

func (a *Arena) WriteU8(cp CP, offset uint32, v uint8) error {
	s, err := a.Resolve(cp, offset+1)
	if err != nil {
		return err
	}
	s[offset] = v
	return nil
}

func (a *Arena) WriteU16(cp CP, offset uint32, v uint16) error {
	s, err := a.Resolve(cp, offset+2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(s[offset:], v)
	return nil
}

func (a *Arena) WriteU32(cp CP, offset uint32, v uint32) error {
	s, err := a.Resolve(cp, offset+4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s[offset:], v)
	return nil
}

func (a *Arena) WriteU64(cp CP, offset uint32, v uint64) error {
	s, err := a.Resolve(cp, offset+8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(s[offset:], v)
	return nil
}

// TryAlloc reserves size bytes (rounded up to Align) and returns their CP,
// or Null on exhaustion. It never triggers GC — this is the "null-on-error
// variant... for callers that must distinguish OOM from 'GC will help'"
// named in spec.md §4.A.
func (a *Arena) TryAlloc(size uint32) CP {
	if size == 0 {
		size = Align
	}
	if rem := size % Align; rem != 0 {
		size += Align - rem
	}

	if idx := classIndex(size); idx >= 0 {
		size = smallClasses[idx]
		if n := len(a.smallFree[idx]); n > 0 {
			cp := a.smallFree[idx][n-1]
			a.smallFree[idx] = a.smallFree[idx][:n-1]
			return cp
		}
		return a.bumpAlloc(size)
	}

	if cp := a.takeFromGeneralFreeList(size); cp != Null {
		return cp
	}
	return a.bumpAlloc(size)
}

func (a *Arena) bumpAlloc(size uint32) CP {
	if a.bump+size > uint32(len(a.mem)) {
		return Null
	}
	off := a.bump
	a.bump += size
	if a.bump > a.highWater {
		a.highWater = a.bump
	}
	return encodeCP(off)
}

// takeFromGeneralFreeList does a first-fit walk of the general free list.
// Blocks are singly linked through their first freeBlockHeaderSize bytes;
// the list is small in practice because most engine allocations fall into
// a fixed size class.
func (a *Arena) takeFromGeneralFreeList(size uint32) CP {
	var prev CP
	cur := a.genFree
	for cur != Null {
		off := uint32(cur) << AlignShift
		blockSize := binary.LittleEndian.Uint32(a.mem[off+4:])
		next := CP(binary.LittleEndian.Uint32(a.mem[off:]))
		if blockSize >= size {
			if prev == Null {
				a.genFree = next
			} else {
				poff := uint32(prev) << AlignShift
				binary.LittleEndian.PutUint32(a.mem[poff:], uint32(next))
			}
			return cur
		}
		prev = cur
		cur = next
	}
	return Null
}

// AllocPair allocates a fixed-size property pair (spec.md §3.5).
func (a *Arena) AllocPair() CP {
	return a.TryAlloc(24)
}

// Free releases a block of size bytes back to the appropriate free list.
func (a *Arena) Free(cp CP, size uint32) {
	if cp == Null {
		return
	}
	if rem := size % Align; rem != 0 {
		size += Align - rem
	}
	if idx := classIndex(size); idx >= 0 {
		size = smallClasses[idx]
		a.smallFree[idx] = append(a.smallFree[idx], cp)
		return
	}

	off := uint32(cp) << AlignShift
	if off+8 > uint32(len(a.mem)) {
		log.Debugf("heap: free of out-of-range cp %d size %d ignored", cp, size)
		return
	}
	binary.LittleEndian.PutUint32(a.mem[off:], uint32(a.genFree))
	binary.LittleEndian.PutUint32(a.mem[off+4:], size)
	a.genFree = cp
}

// Realloc grows or shrinks a block in place when possible, otherwise
// allocates fresh and copies the overlap, freeing the old block.
func (a *Arena) Realloc(cp CP, oldSize, newSize uint32) CP {
	if cp == Null {
		return a.TryAlloc(newSize)
	}
	if newSize <= oldSize {
		return cp
	}
	newCP := a.TryAlloc(newSize)
	if newCP == Null {
		return Null
	}
	old, err := a.Resolve(cp, oldSize)
	if err == nil {
		dst, _ := a.Resolve(newCP, oldSize)
		copy(dst, old)
	}
	a.Free(cp, oldSize)
	return newCP
}
