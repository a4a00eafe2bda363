// Property pair storage and lookup (spec.md §3.5, §4.E), and hashmap
// attachment (§4.F) via the propmap package.
package object

import (
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/propmap"
	"github.com/nanojs/corevm/value"
)

// PropType is the type discriminator packed into a pair slot's
// type-and-flags byte.
type PropType uint8

const (
	PropNamedData PropType = iota
	PropNamedAccessor
	PropHashmapHeader
	PropDeleted // also the "never used" free-slot state
	PropInternal
)

// PropFlag bits share the low 5 bits of the type-and-flags byte with
// PropType in the high 3 bits.
type PropFlag uint8

const (
	FlagConfigurable PropFlag = 1 << iota
	FlagEnumerable
	FlagWritable
	FlagLCached
	FlagLCachePresent
)

const (
	pairTypeShift = 5
	pairFlagMask  = 0x1F
)

// hashmapAttachThreshold is the property count at which a hashmap header
// is attached (spec.md §4.F: "initial capacity 8").
const hashmapAttachThreshold = 8

// hashLimit is LIT_STRING_HASH_LIMIT: above this capacity, probe hashes
// are shifted to avoid clustering at low entries (spec.md §4.F).
const hashLimit = 32

// Pair header layout (24 bytes, matches heap.AllocPair's size class):
//
//	0  uint8   packed0 (type<<5 | flags)
//	1  uint8   packed1
//	2  uint16  next (CP)
//	4  uint32  name0 (raw Value)
//	8  uint32  name1
//	12 uint32  value0 (raw Value, or CP to getter/setter pair)
//	16 uint32  value1
//	20 uint16  reserved
//	22 uint16  reserved
const pairSize = 24

func nameOffset(slot int) uint32  { return 4 + uint32(slot)*4 }
func valueOffset(slot int) uint32 { return 12 + uint32(slot)*4 }

// allocPair allocates a fresh pair with both slots marked PropDeleted
// (i.e. free) and a null next pointer.
func (h *Heap) allocPair() (heap.CP, error) {
	cp := h.arena.AllocPair()
	if cp == heap.Null {
		return heap.Null, errvalue.New(errvalue.PhaseProperty, errvalue.KindOOM).Detail("property pair").Build()
	}
	zero := make([]byte, pairSize)
	if err := h.arena.Write(cp, zero); err != nil {
		return heap.Null, err
	}
	if err := h.setPairPacked(cp, 0, PropDeleted, 0); err != nil {
		return heap.Null, err
	}
	if err := h.setPairPacked(cp, 1, PropDeleted, 0); err != nil {
		return heap.Null, err
	}
	return cp, nil
}

func (h *Heap) pairPacked(cp heap.CP, slot int) (PropType, PropFlag, error) {
	b, err := h.arena.ReadU8(cp, uint32(slot))
	if err != nil {
		return 0, 0, err
	}
	return PropType(b >> pairTypeShift), PropFlag(b & pairFlagMask), nil
}

func (h *Heap) setPairPacked(cp heap.CP, slot int, typ PropType, flags PropFlag) error {
	b := uint8(typ)<<pairTypeShift | uint8(flags)&pairFlagMask
	return h.arena.WriteU8(cp, uint32(slot), b)
}

func (h *Heap) pairName(cp heap.CP, slot int) (value.Value, error) {
	v, err := h.arena.ReadU32(cp, nameOffset(slot))
	return value.Value(v), err
}

func (h *Heap) setPairName(cp heap.CP, slot int, name value.Value) error {
	return h.arena.WriteU32(cp, nameOffset(slot), uint32(name))
}

func (h *Heap) pairValue(cp heap.CP, slot int) (value.Value, error) {
	v, err := h.arena.ReadU32(cp, valueOffset(slot))
	return value.Value(v), err
}

func (h *Heap) setPairValue(cp heap.CP, slot int, v value.Value) error {
	return h.arena.WriteU32(cp, valueOffset(slot), uint32(v))
}

func (h *Heap) pairNext(cp heap.CP) (heap.CP, error) {
	v, err := h.arena.ReadU16(cp, 2)
	return heap.CP(v), err
}

func (h *Heap) setPairNext(cp heap.CP, next heap.CP) error {
	return h.arena.WriteU16(cp, 2, uint16(next))
}

// PropRef locates a live property within its pair.
type PropRef struct {
	Pair heap.CP
	Slot int
}

func (h *Heap) namesEqual(a, b value.Value) (bool, error) {
	return h.strings.Equal(h.arena, a, b)
}

// hashHeaderCP returns the propmap block CP stored in the chain's
// hashmap-header pair, or Null if none is attached.
func (h *Heap) hashHeaderCP(list heap.CP) (heap.CP, bool, error) {
	if list == heap.Null {
		return heap.Null, false, nil
	}
	typ, _, err := h.pairPacked(list, 0)
	if err != nil {
		return heap.Null, false, err
	}
	if typ != PropHashmapHeader {
		return heap.Null, false, nil
	}
	v, err := h.pairValue(list, 0)
	if err != nil {
		return heap.Null, false, err
	}
	return v.CP(), true, nil
}

func (h *Heap) hashOf(name value.Value, capacity uint16) (uint16, error) {
	raw, err := h.strings.HashValue(h.arena, name)
	if err != nil {
		return 0, err
	}
	return propmap.HashOf(raw, capacity, hashLimit), nil
}

// Find implements spec.md §4.E find(object, name): hashmap fast path when
// attached, else a linear scan of the pair chain.
func (h *Heap) Find(obj heap.CP, name value.Value) (PropRef, bool, error) {
	list, err := h.PropertyList(obj)
	if err != nil {
		return PropRef{}, false, err
	}
	if header, attached, err := h.hashHeaderCP(list); err != nil {
		return PropRef{}, false, err
	} else if attached {
		cap, err := propmap.MaxCount(h.arena, header)
		if err != nil {
			return PropRef{}, false, err
		}
		hv, err := h.hashOf(name, cap)
		if err != nil {
			return PropRef{}, false, err
		}
		pairCP, slot, ok, err := propmap.Find(h.arena, header, hv, name, h.strings)
		if err != nil || !ok {
			return PropRef{}, false, err
		}
		return PropRef{pairCP, int(slot)}, true, nil
	}

	cur := list
	for cur != heap.Null {
		for slot := 0; slot < 2; slot++ {
			typ, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return PropRef{}, false, err
			}
			if typ != PropNamedData && typ != PropNamedAccessor {
				continue
			}
			nm, err := h.pairName(cur, slot)
			if err != nil {
				return PropRef{}, false, err
			}
			eq, err := h.namesEqual(nm, name)
			if err != nil {
				return PropRef{}, false, err
			}
			if eq {
				return PropRef{cur, slot}, true, nil
			}
		}
		cur, err = h.pairNext(cur)
		if err != nil {
			return PropRef{}, false, err
		}
	}
	return PropRef{}, false, nil
}

// propertyCount walks the chain counting live (non-free) slots; used only
// to decide hashmap attachment, so an O(n) walk is acceptable (it runs at
// most once per attachment).
func (h *Heap) propertyCount(list heap.CP) (int, error) {
	n := 0
	cur := list
	for cur != heap.Null {
		for slot := 0; slot < 2; slot++ {
			typ, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return 0, err
			}
			if typ == PropNamedData || typ == PropNamedAccessor || typ == PropInternal {
				n++
			}
		}
		var err error
		cur, err = h.pairNext(cur)
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}

// CreateData implements spec.md §4.E create_data(name, attributes).
func (h *Heap) CreateData(obj heap.CP, name value.Value, v value.Value, flags PropFlag) (PropRef, error) {
	return h.createProperty(obj, name, PropNamedData, v, flags)
}

// allocAccessor stores a getter/setter pair in its own small arena block
// and returns its CP, reusing the small-block pool's 8-byte size class
// (heap.go's smallClasses). A PropNamedAccessor pair's value slot holds
// this CP directly rather than a tagged Value (pairSize's layout comment:
// "value0 ... raw Value, or CP to getter/setter pair").
func (h *Heap) allocAccessor(getter, setter value.Value) (heap.CP, error) {
	cp := h.arena.TryAlloc(8)
	if cp == heap.Null {
		return heap.Null, errvalue.New(errvalue.PhaseProperty, errvalue.KindOOM).Detail("accessor pair").Build()
	}
	if err := h.arena.WriteU32(cp, 0, uint32(getter)); err != nil {
		return heap.Null, err
	}
	if err := h.arena.WriteU32(cp, 4, uint32(setter)); err != nil {
		return heap.Null, err
	}
	return cp, nil
}

// Accessor returns the getter/setter pair stored at a PropNamedAccessor
// PropRef (meaningless for any other PropType).
func (h *Heap) Accessor(ref PropRef) (getter, setter value.Value, err error) {
	raw, err := h.pairValue(ref.Pair, ref.Slot)
	if err != nil {
		return 0, 0, err
	}
	accCP := heap.CP(uint32(raw))
	g, err := h.arena.ReadU32(accCP, 0)
	if err != nil {
		return 0, 0, err
	}
	s, err := h.arena.ReadU32(accCP, 4)
	if err != nil {
		return 0, 0, err
	}
	return value.Value(g), value.Value(s), nil
}

// CreateAccessor implements spec.md §3.5/§4.E's named-accessor property
// pair kind: getter and setter are boxed into their own small arena block
// (allocAccessor) and the pair's value slot stores that block's CP.
// Grounded on jerryscript's ecma_create_named_accessor_property /
// ecma_get_named_accessor_property_getter / ..._setter
// (original_source/jerry-core/ecma/base/ecma-helpers.h).
func (h *Heap) CreateAccessor(obj heap.CP, name value.Value, getter, setter value.Value, flags PropFlag) (PropRef, error) {
	accCP, err := h.allocAccessor(getter, setter)
	if err != nil {
		return PropRef{}, err
	}
	return h.createProperty(obj, name, PropNamedAccessor, value.Value(uint32(accCP)), flags)
}

// CreateInternal implements spec.md §3.5's third property-pair kind: an
// engine-internal data slot (e.g. a class's backing native state) that is
// traced and released exactly like a named data property, but is
// invisible to name-based Find/hashmap lookup — callers that create one
// must look it back up through FindInternal, never Find.
func (h *Heap) CreateInternal(obj heap.CP, name value.Value, v value.Value) (PropRef, error) {
	return h.createProperty(obj, name, PropInternal, v, 0)
}

// FindInternal looks up an internal property by name (see CreateInternal).
// Internal slots are rare enough that a linear scan is acceptable; unlike
// Find, this never consults the attached hashmap, which only indexes
// PropNamedData/PropNamedAccessor entries.
func (h *Heap) FindInternal(obj heap.CP, name value.Value) (PropRef, bool, error) {
	list, err := h.PropertyList(obj)
	if err != nil {
		return PropRef{}, false, err
	}
	cur := list
	for cur != heap.Null {
		for slot := 0; slot < 2; slot++ {
			typ, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return PropRef{}, false, err
			}
			if typ != PropInternal {
				continue
			}
			nm, err := h.pairName(cur, slot)
			if err != nil {
				return PropRef{}, false, err
			}
			eq, err := h.namesEqual(nm, name)
			if err != nil {
				return PropRef{}, false, err
			}
			if eq {
				return PropRef{cur, slot}, true, nil
			}
		}
		cur, err = h.pairNext(cur)
		if err != nil {
			return PropRef{}, false, err
		}
	}
	return PropRef{}, false, nil
}

// createProperty is the shared slot-reuse/allocate/link/hashmap-maintain
// body behind CreateData, CreateAccessor, and CreateInternal: reuse a free
// slot in the chain if one exists, else allocate and link a new pair at
// the head (after any hashmap header); attach a hashmap once the property
// count crosses hashmapAttachThreshold.
func (h *Heap) createProperty(obj heap.CP, name value.Value, typ PropType, v value.Value, flags PropFlag) (PropRef, error) {
	list, err := h.PropertyList(obj)
	if err != nil {
		return PropRef{}, err
	}

	_, attached, err := h.hashHeaderCP(list)
	if err != nil {
		return PropRef{}, err
	}

	// Reuse a free slot anywhere in the chain (spec.md only requires the
	// tail pair be checked; scanning the whole chain is a strict
	// refinement that never under-reuses space).
	cur := list
	if attached {
		// Skip the hashmap header pair itself: its slot 0 is not a real
		// property slot.
		cur, err = h.pairNext(list)
		if err != nil {
			return PropRef{}, err
		}
	}
	for cur != heap.Null {
		for slot := 0; slot < 2; slot++ {
			slotTyp, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return PropRef{}, err
			}
			if slotTyp == PropDeleted {
				if err := h.setPairPacked(cur, slot, typ, flags); err != nil {
					return PropRef{}, err
				}
				if err := h.setPairName(cur, slot, name); err != nil {
					return PropRef{}, err
				}
				if err := h.setPairValue(cur, slot, v); err != nil {
					return PropRef{}, err
				}
				ref := PropRef{cur, slot}
				if err := h.maybeAttachHashmap(obj, name, ref); err != nil {
					return PropRef{}, err
				}
				if attached && typ != PropInternal {
					if err := h.insertIntoHashmap(list, name, ref); err != nil {
						return PropRef{}, err
					}
				}
				return ref, nil
			}
		}
		cur, err = h.pairNext(cur)
		if err != nil {
			return PropRef{}, err
		}
	}

	// No free slot: allocate a new pair and link it after the hashmap
	// header (if any), otherwise at the chain head.
	pair, err := h.allocPair()
	if err != nil {
		return PropRef{}, err
	}
	if err := h.setPairPacked(pair, 0, typ, flags); err != nil {
		return PropRef{}, err
	}
	if err := h.setPairName(pair, 0, name); err != nil {
		return PropRef{}, err
	}
	if err := h.setPairValue(pair, 0, v); err != nil {
		return PropRef{}, err
	}

	if attached {
		next, err := h.pairNext(list)
		if err != nil {
			return PropRef{}, err
		}
		if err := h.setPairNext(pair, next); err != nil {
			return PropRef{}, err
		}
		if err := h.setPairNext(list, pair); err != nil {
			return PropRef{}, err
		}
	} else {
		if err := h.setPairNext(pair, list); err != nil {
			return PropRef{}, err
		}
		if err := h.SetPropertyList(obj, pair); err != nil {
			return PropRef{}, err
		}
	}

	ref := PropRef{pair, 0}
	if err := h.maybeAttachHashmap(obj, name, ref); err != nil {
		return PropRef{}, err
	}
	if attached && typ != PropInternal {
		if err := h.insertIntoHashmap(list, name, ref); err != nil {
			return PropRef{}, err
		}
	}
	return ref, nil
}

func (h *Heap) insertIntoHashmap(list heap.CP, name value.Value, ref PropRef) error {
	header, attached, err := h.hashHeaderCP(list)
	if err != nil || !attached {
		return err
	}
	if need, err := propmap.NeedsRebuild(h.arena, header); err != nil {
		return err
	} else if need {
		newHeader, err := propmap.Rebuild(h.arena, header, func(n value.Value) (uint16, error) {
			cap, err := propmap.MaxCount(h.arena, header)
			if err != nil {
				return 0, err
			}
			return h.hashOf(n, cap)
		})
		if err != nil {
			return err
		}
		if err := h.setPairValue(list, 0, value.NewObject(newHeader)); err != nil {
			return err
		}
		header = newHeader
	}
	cap, err := propmap.MaxCount(h.arena, header)
	if err != nil {
		return err
	}
	hv, err := h.hashOf(name, cap)
	if err != nil {
		return err
	}
	return propmap.Insert(h.arena, header, hv, name, ref.Pair, uint8(ref.Slot))
}

// maybeAttachHashmap attaches a hashmap header once the live property
// count crosses hashmapAttachThreshold (spec.md §4.F).
func (h *Heap) maybeAttachHashmap(obj heap.CP, name value.Value, justAdded PropRef) error {
	list, err := h.PropertyList(obj)
	if err != nil {
		return err
	}
	if _, attached, err := h.hashHeaderCP(list); err != nil || attached {
		return err
	}
	n, err := h.propertyCount(list)
	if err != nil || n < hashmapAttachThreshold {
		return err
	}

	mapCP, err := propmap.New(h.arena, hashmapAttachThreshold*2)
	if err != nil {
		return err
	}

	// Index every existing property into the new hashmap.
	cur := list
	for cur != heap.Null {
		for slot := 0; slot < 2; slot++ {
			typ, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return err
			}
			if typ != PropNamedData && typ != PropNamedAccessor {
				continue
			}
			nm, err := h.pairName(cur, slot)
			if err != nil {
				return err
			}
			cap, err := propmap.MaxCount(h.arena, mapCP)
			if err != nil {
				return err
			}
			hv, err := h.hashOf(nm, cap)
			if err != nil {
				return err
			}
			if err := propmap.Insert(h.arena, mapCP, hv, nm, cur, uint8(slot)); err != nil {
				return err
			}
		}
		var nextErr error
		cur, nextErr = h.pairNext(cur)
		if nextErr != nil {
			return nextErr
		}
	}

	header, err := h.allocPair()
	if err != nil {
		return err
	}
	if err := h.setPairPacked(header, 0, PropHashmapHeader, 0); err != nil {
		return err
	}
	if err := h.setPairValue(header, 0, value.NewObject(mapCP)); err != nil {
		return err
	}
	if err := h.setPairNext(header, list); err != nil {
		return err
	}
	return h.SetPropertyList(obj, header)
}

// Delete implements spec.md §4.E deletion: sets the slot's type to
// PropDeleted (also freeing it for reuse) and, if a hashmap is attached,
// marks its hashmap entry as a tombstone.
func (h *Heap) Delete(obj heap.CP, name value.Value) (bool, error) {
	ref, ok, err := h.Find(obj, name)
	if err != nil || !ok {
		return false, err
	}
	if err := h.setPairPacked(ref.Pair, ref.Slot, PropDeleted, 0); err != nil {
		return false, err
	}
	if err := h.setPairName(ref.Pair, ref.Slot, 0); err != nil {
		return false, err
	}
	if err := h.setPairValue(ref.Pair, ref.Slot, 0); err != nil {
		return false, err
	}

	list, err := h.PropertyList(obj)
	if err != nil {
		return false, err
	}
	if header, attached, err := h.hashHeaderCP(list); err != nil {
		return false, err
	} else if attached {
		cap, err := propmap.MaxCount(h.arena, header)
		if err != nil {
			return false, err
		}
		hv, err := h.hashOf(name, cap)
		if err != nil {
			return false, err
		}
		if _, err := propmap.Delete(h.arena, header, hv, name, h.strings); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Value returns the stored value at a PropRef (meaningful only for
// PropNamedData; accessor pairs store a getter/setter CP instead).
func (h *Heap) Value(ref PropRef) (value.Value, error) {
	return h.pairValue(ref.Pair, ref.Slot)
}

func (h *Heap) SetValue(ref PropRef, v value.Value) error {
	return h.setPairValue(ref.Pair, ref.Slot, v)
}

func (h *Heap) Flags(ref PropRef) (PropFlag, error) {
	_, flags, err := h.pairPacked(ref.Pair, ref.Slot)
	return flags, err
}

// WalkPropertyValues invokes fn with every live property's stored value
// (names are not reachable through the GC graph, only the string table's
// own refcounts matter for them). Used by the gc package to find
// OBJECT-tagged children to mark. The hashmap header's own slot, which
// carries the propmap block CP rather than a property value, is skipped.
func (h *Heap) WalkPropertyValues(obj heap.CP, fn func(value.Value) error) error {
	list, err := h.PropertyList(obj)
	if err != nil {
		return err
	}
	cur := list
	for cur != heap.Null {
		for slot := 0; slot < 2; slot++ {
			typ, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return err
			}
			if typ != PropNamedData && typ != PropNamedAccessor && typ != PropInternal {
				continue
			}
			v, err := h.pairValue(cur, slot)
			if err != nil {
				return err
			}
			if err := fn(v); err != nil {
				return err
			}
		}
		cur, err = h.pairNext(cur)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReleaseProperties walks obj's entire property chain, releasing every
// live slot's name and value (deref for OBJECT-tagged values, release for
// heap strings — both supplied by the caller so this package never needs
// to know how the object table or string table reclaim memory), frees
// the attached hashmap block if any, then frees every pair in the chain.
// Used by the gc package during sweep (spec.md §4.H).
func (h *Heap) ReleaseProperties(obj heap.CP, deref func(v value.Value) error, release func(v value.Value) error) error {
	list, err := h.PropertyList(obj)
	if err != nil {
		return err
	}
	if list == heap.Null {
		return nil
	}

	if header, attached, err := h.hashHeaderCP(list); err != nil {
		return err
	} else if attached {
		if err := propmap.Free(h.arena, header); err != nil {
			return err
		}
	}

	cur := list
	for cur != heap.Null {
		next, err := h.pairNext(cur)
		if err != nil {
			return err
		}
		for slot := 0; slot < 2; slot++ {
			typ, _, err := h.pairPacked(cur, slot)
			if err != nil {
				return err
			}
			if typ == PropHashmapHeader {
				continue // value0 here is the propmap CP, already freed above
			}
			if typ != PropNamedData && typ != PropNamedAccessor && typ != PropInternal {
				continue
			}
			nm, err := h.pairName(cur, slot)
			if err != nil {
				return err
			}
			if err := release(nm); err != nil {
				return err
			}
			v, err := h.pairValue(cur, slot)
			if err != nil {
				return err
			}
			if v.IsObject() {
				if err := deref(v); err != nil {
					return err
				}
			} else {
				if err := release(v); err != nil {
					return err
				}
			}
		}
		h.arena.Free(cur, pairSize)
		cur = next
	}
	return h.SetPropertyList(obj, heap.Null)
}
