// Package propmap implements spec.md §4.F: the property hashmap that
// accelerates name lookup once an object's property count passes a
// threshold, attached as a single CP hanging off the object's
// hashmap-header property pair (see object.Heap).
//
// Open addressing with prime-stepping probing is grounded on
// resource/backend_local.go's handle-reuse freelist instincts generalized
// to a hash table, with tombstone-vs-empty distinction following the
// teacher's "terminates on a truly empty slot" pattern echoed in the
// other_examples slotcache file's tombstone handling.
package propmap

import (
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

// NameEqual compares two string-tagged property-name values. strs.Table
// satisfies this directly, keeping propmap decoupled from the string
// subsystem the way value.Releaser keeps the value package decoupled
// from strs/object.
type NameEqual interface {
	Equal(a *heap.Arena, x, y value.Value) (bool, error)
}

// emptyMarker and tombstoneMarker are DIRECT-tagged (tag bits zero)
// Values that can never legally appear as a property name (names are
// always STRING or DIRECT_STRING tagged), so they are safe sentinels.
const (
	emptyMarker     = value.Value(0)
	tombstoneMarker = value.Value(1)
)

// entrySize is the per-slot size: 4-byte name Value, 2-byte pair CP,
// 1-byte slot index, 1-byte reserved.
const (
	entrySize  = 8
	headerSize = 8 // maxCount, liveCount, nullCount, reserved (all uint16)
)

var primes = [8]uint16{3, 5, 7, 11, 13, 17, 19, 23}

func nextPow2(n uint16) uint16 {
	p := uint16(8)
	for p < n {
		p <<= 1
	}
	return p
}

// New allocates a hashmap of at least the given capacity, all slots empty.
func New(a *heap.Arena, capacity uint16) (heap.CP, error) {
	cap2 := nextPow2(capacity)
	size := uint32(headerSize) + uint32(cap2)*entrySize
	cp := a.TryAlloc(size)
	if cp == heap.Null {
		return heap.Null, errvalue.New(errvalue.PhaseHashmap, errvalue.KindOOM).Detail("hashmap capacity %d", cap2).Build()
	}
	zero := make([]byte, size)
	if err := a.Write(cp, zero); err != nil {
		return heap.Null, err
	}
	if err := a.WriteU16(cp, 0, cap2); err != nil {
		return heap.Null, err
	}
	if err := a.WriteU16(cp, 4, cap2); err != nil { // nullCount starts full
		return heap.Null, err
	}
	return cp, nil
}

func entryOffset(slot uint16) uint32 {
	return headerSize + uint32(slot)*entrySize
}

// Free reclaims a hashmap block. Callers must not reference header after
// this (used by object.Heap.ReleaseProperties when a descriptor is swept).
func Free(a *heap.Arena, header heap.CP) error {
	cap2, err := MaxCount(a, header)
	if err != nil {
		return err
	}
	size := uint32(headerSize) + uint32(cap2)*entrySize
	a.Free(header, size)
	return nil
}

// MaxCount returns the hashmap's slot capacity.
func MaxCount(a *heap.Arena, cp heap.CP) (uint16, error) { return a.ReadU16(cp, 0) }

func liveCount(a *heap.Arena, cp heap.CP) (uint16, error) { return a.ReadU16(cp, 2) }
func nullCount(a *heap.Arena, cp heap.CP) (uint16, error) { return a.ReadU16(cp, 4) }

func readEntry(a *heap.Arena, cp heap.CP, slot uint16) (value.Value, heap.CP, uint8, error) {
	off := entryOffset(slot)
	name, err := a.ReadU32(cp, off)
	if err != nil {
		return 0, 0, 0, err
	}
	pairCP, err := a.ReadU16(cp, off+4)
	if err != nil {
		return 0, 0, 0, err
	}
	s, err := a.ReadU8(cp, off+6)
	if err != nil {
		return 0, 0, 0, err
	}
	return value.Value(name), heap.CP(pairCP), s, nil
}

func writeEntry(a *heap.Arena, cp heap.CP, slot uint16, name value.Value, pairCP heap.CP, pairSlot uint8) error {
	off := entryOffset(slot)
	if err := a.WriteU32(cp, off, uint32(name)); err != nil {
		return err
	}
	if err := a.WriteU16(cp, off+4, uint16(pairCP)); err != nil {
		return err
	}
	return a.WriteU8(cp, off+6, pairSlot)
}

func probeStart(hash uint16, cap uint16) (idx uint16, step uint16) {
	idx = hash & (cap - 1)
	step = primes[hash&7]
	return
}

// Find returns the property pair CP and slot registered under name, or
// ok=false if no such entry exists.
func Find(a *heap.Arena, header heap.CP, hash uint16, name value.Value, eq NameEqual) (pairCP heap.CP, pairSlot uint8, ok bool, err error) {
	cap, err := MaxCount(a, header)
	if err != nil {
		return 0, 0, false, err
	}
	idx, step := probeStart(hash, cap)
	for i := uint16(0); i < cap; i++ {
		entryName, entryPairCP, entrySlot, err := readEntry(a, header, idx)
		if err != nil {
			return 0, 0, false, err
		}
		if entryName == emptyMarker {
			return 0, 0, false, nil
		}
		if entryName != tombstoneMarker {
			eqOK, err := eq.Equal(a, entryName, name)
			if err != nil {
				return 0, 0, false, err
			}
			if eqOK {
				return entryPairCP, entrySlot, true, nil
			}
		}
		idx = (idx + step) & (cap - 1)
	}
	return 0, 0, false, nil
}

// NeedsRebuild reports whether inserting one more entry would push
// nullCount below 1/8 of capacity (spec.md §4.F rebuild trigger).
func NeedsRebuild(a *heap.Arena, header heap.CP) (bool, error) {
	cap, err := MaxCount(a, header)
	if err != nil {
		return false, err
	}
	nulls, err := nullCount(a, header)
	if err != nil {
		return false, err
	}
	return nulls <= cap/8, nil
}

// Insert registers (name -> pairCP, pairSlot) in the hashmap. Caller must
// have already confirmed via Find that name is not already present and,
// when NeedsRebuild reports true, called Rebuild first.
func Insert(a *heap.Arena, header heap.CP, hash uint16, name value.Value, pairCP heap.CP, pairSlot uint8) error {
	cap, err := MaxCount(a, header)
	if err != nil {
		return err
	}
	idx, step := probeStart(hash, cap)
	for i := uint16(0); i < cap; i++ {
		entryName, _, _, err := readEntry(a, header, idx)
		if err != nil {
			return err
		}
		if entryName == emptyMarker || entryName == tombstoneMarker {
			wasEmpty := entryName == emptyMarker
			if err := writeEntry(a, header, idx, name, pairCP, pairSlot); err != nil {
				return err
			}
			live, err := liveCount(a, header)
			if err != nil {
				return err
			}
			if err := a.WriteU16(header, 2, live+1); err != nil {
				return err
			}
			if wasEmpty {
				nulls, err := nullCount(a, header)
				if err != nil {
					return err
				}
				if err := a.WriteU16(header, 4, nulls-1); err != nil {
					return err
				}
			}
			return nil
		}
		idx = (idx + step) & (cap - 1)
	}
	return errvalue.New(errvalue.PhaseHashmap, errvalue.KindOOM).Detail("hashmap full, rebuild should have run first").Build()
}

// Delete marks name's entry as a tombstone (distinct from empty, per
// spec.md §4.F), or reports ok=false if not present.
func Delete(a *heap.Arena, header heap.CP, hash uint16, name value.Value, eq NameEqual) (ok bool, err error) {
	cap, err := MaxCount(a, header)
	if err != nil {
		return false, err
	}
	idx, step := probeStart(hash, cap)
	for i := uint16(0); i < cap; i++ {
		entryName, _, _, err := readEntry(a, header, idx)
		if err != nil {
			return false, err
		}
		if entryName == emptyMarker {
			return false, nil
		}
		if entryName != tombstoneMarker {
			eqOK, err := eq.Equal(a, entryName, name)
			if err != nil {
				return false, err
			}
			if eqOK {
				if err := writeEntry(a, header, idx, tombstoneMarker, 0, 0); err != nil {
					return false, err
				}
				live, err := liveCount(a, header)
				if err != nil {
					return false, err
				}
				return true, a.WriteU16(header, 2, live-1)
			}
		}
		idx = (idx + step) & (cap - 1)
	}
	return false, nil
}

// HashOf computes the probe hash for a name, truncating per spec.md
// §4.F's "hash is left-shifted ... so small hashes do not cluster" once
// capacity exceeds hashLimit.
func HashOf(rawHash uint16, capacity uint16, hashLimit uint16) uint16 {
	if capacity <= hashLimit {
		return rawHash
	}
	shift := 0
	for c := hashLimit; c < capacity; c <<= 1 {
		shift++
	}
	return rawHash << uint(shift)
}

// Rebuild reallocates the hashmap at a larger capacity (the next power of
// two keeping at least 1/3 of slots empty) and reinserts every live entry
// under the hash rehash returns for its name, then frees the old block.
func Rebuild(a *heap.Arena, header heap.CP, rehash func(name value.Value) (uint16, error)) (heap.CP, error) {
	oldCap, err := MaxCount(a, header)
	if err != nil {
		return 0, err
	}
	live, err := liveCount(a, header)
	if err != nil {
		return 0, err
	}

	newCap := nextPow2(oldCap * 2)
	for int(live)*3 >= int(newCap)*2 { // keep live <= 2/3 capacity, i.e. >=33% empty
		newCap = nextPow2(newCap * 2)
	}

	type kept struct {
		name    value.Value
		pairCP  heap.CP
		slot    uint8
	}
	entries := make([]kept, 0, live)
	for i := uint16(0); i < oldCap; i++ {
		name, pairCP, slot, err := readEntry(a, header, i)
		if err != nil {
			return 0, err
		}
		if name != emptyMarker && name != tombstoneMarker {
			entries = append(entries, kept{name, pairCP, slot})
		}
	}

	newHeader, err := New(a, newCap)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		h, err := rehash(e.name)
		if err != nil {
			return 0, err
		}
		if err := Insert(a, newHeader, h, e.name, e.pairCP, e.slot); err != nil {
			return 0, err
		}
	}

	oldSize := uint32(headerSize) + uint32(oldCap)*entrySize
	a.Free(header, oldSize)
	return newHeader, nil
}
