// Package gc implements spec.md §4.H: the mark-sweep collector over the
// object chain, plus the allocation-retry protocol used by any client
// that may run during VM execution.
//
// The explicit worklist marking (rather than recursive marking) and the
// sweep-unlink-free sequence are grounded on the teacher's
// resource/table.go Observer/Event lifecycle notification, generalized
// from "notify subscribers on drop" to "walk a linked structure and
// release every unreachable entry", and on component's (deleted) handle
// registry which also kept a single forward-linked live-object chain.
package gc

import (
	"unsafe"

	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/internal/log"
	"github.com/nanojs/corevm/object"
	"github.com/nanojs/corevm/value"
)

// Pressure is the collection pressure passed to Collect. Low and High
// reclaim the same unreachable objects; neither frees the property
// hashmaps of objects that survive the sweep, and the pressure only
// selects the sweep's debug log message.
type Pressure int

const (
	Low Pressure = iota
	High
)

// NativeInfoLister is satisfied by the nativeinfo package: Sweep fires
// every registered free_cb before a descriptor is reclaimed, and Roots
// supplies any Value slots tracked by obj's native-info entries (a
// host-owned buffer described by an {count, offset} pair) so the mark
// phase can trace through them (spec.md §6.3's native-info root contract).
type NativeInfoLister interface {
	Sweep(obj heap.CP) error
	Roots(obj heap.CP, read func(nativeP uintptr, byteOffset uint32) (value.Value, error)) ([]value.Value, error)
}

// PropertyReleaser decrements refcounts held by an object's own property
// values (strings) and frees its property pairs; object values are only
// decremented, never recursively swept here (the sweep walks every
// object exactly once, in chain order).
type PropertyReleaser interface {
	ReleaseProperties(obj heap.CP, deref func(v value.Value) error, release func(v value.Value) error) error
}

// StringReleaser is satisfied by *strs.Table: drops one reference to a
// heap string value, a no-op for every other tag.
type StringReleaser interface {
	ReleaseValue(a *heap.Arena, v value.Value) error
}

// Collector runs mark-sweep over one engine's object chain.
type Collector struct {
	arena   *heap.Arena
	objects *object.Heap
	props   PropertyReleaser
	strings StringReleaser
	native  NativeInfoLister
	epoch   uint8

	// Roots supplies every GC root CP at the start of a cycle that isn't
	// already covered by a nonzero Refcount: the VM stack, the global
	// object, and context-data manager slots (spec.md §4.H). Objects with
	// a nonzero refcount are added automatically by mark(), so a VM stack
	// that keeps its live slots ref-counted need not duplicate them here.
	Roots func() []heap.CP
}

func New(a *heap.Arena, objects *object.Heap, props PropertyReleaser, strings StringReleaser, native NativeInfoLister) *Collector {
	return &Collector{arena: a, objects: objects, props: props, strings: strings, native: native}
}

func (c *Collector) strRelease(v value.Value) error {
	if c.strings == nil {
		return nil
	}
	return c.strings.ReleaseValue(c.arena, v)
}

// Collect runs one full mark-sweep cycle.
func (c *Collector) Collect(pressure Pressure) error {
	c.epoch = (c.epoch + 1) % object.White
	if err := c.mark(); err != nil {
		return err
	}
	return c.sweep(pressure)
}

// mark does an explicit-worklist traversal from every root (spec.md
// §4.H: "Mark phase: traverse from roots... Each visited object is
// flipped to the current-epoch color"). Roots are the VM/host-supplied
// set plus every object with a nonzero refcount — a nonzero refcount
// means something outside the traced graph (a VM stack slot, an
// embedding handle) holds it, so it must seed the mark just like an
// explicit root; its own prototype/property graph is then traced from
// there exactly as for any other root.
func (c *Collector) mark() error {
	var roots []heap.CP
	if c.Roots != nil {
		roots = c.Roots()
	}
	refRoots, err := c.refcountedRoots()
	if err != nil {
		return err
	}

	worklist := append(append([]heap.CP(nil), roots...), refRoots...)
	for len(worklist) > 0 {
		n := len(worklist) - 1
		cur := worklist[n]
		worklist = worklist[:n]

		if cur == heap.Null {
			continue
		}
		color, err := c.objects.Color(cur)
		if err != nil {
			return err
		}
		if color == c.epoch {
			continue // already visited this epoch
		}
		if err := c.objects.SetColor(cur, c.epoch); err != nil {
			return err
		}

		if proto, err := c.objects.Prototype(cur); err != nil {
			return err
		} else if proto != heap.Null {
			worklist = append(worklist, proto)
		}

		children, err := c.propertyChildren(cur)
		if err != nil {
			return err
		}
		worklist = append(worklist, children...)

		nativeChildren, err := c.nativeChildren(cur)
		if err != nil {
			return err
		}
		worklist = append(worklist, nativeChildren...)
	}
	return nil
}

// refcountedRoots walks the GC chain collecting every object whose
// refcount is currently nonzero, without yet marking it (mark() does that
// uniformly for every worklist entry, roots included).
func (c *Collector) refcountedRoots() ([]heap.CP, error) {
	var out []heap.CP
	cur := c.objects.Head()
	for cur != heap.Null {
		rc, err := c.objects.Refcount(cur)
		if err != nil {
			return nil, err
		}
		if rc > 0 {
			out = append(out, cur)
		}
		next, err := c.objects.GCNext(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return out, nil
}

// propertyChildren returns every pointer-tagged (OBJECT only — STRING and
// FLOAT descriptors are refcounted independently and not traced, per
// spec.md §4.H) value reachable from an object's own property list.
func (c *Collector) propertyChildren(obj heap.CP) ([]heap.CP, error) {
	var out []heap.CP
	err := c.objects.WalkPropertyValues(obj, func(v value.Value) error {
		if v.IsObject() && v.CP() != heap.Null {
			out = append(out, v.CP())
		}
		return nil
	})
	return out, err
}

// nativeChildren returns every OBJECT-tagged value reachable through
// obj's native-info-tracked slots (spec.md §6.3): a host-owned native
// buffer can itself hold engine values (e.g. a callback's closure data)
// that must stay alive as long as obj does, so mark must trace through
// them exactly like any other property edge.
func (c *Collector) nativeChildren(obj heap.CP) ([]heap.CP, error) {
	if c.native == nil {
		return nil, nil
	}
	values, err := c.native.Roots(obj, readNativeSlot)
	if err != nil {
		return nil, err
	}
	var out []heap.CP
	for _, v := range values {
		if v.IsObject() && v.CP() != heap.Null {
			out = append(out, v.CP())
		}
	}
	return out, nil
}

// readNativeSlot reads one Value-sized word directly out of a host-owned
// native buffer at nativeP+byteOffset. This memory lives outside the
// engine arena (the host allocated it, not heap.Arena), so reading it
// needs raw pointer arithmetic — the same unsafe.Pointer-offset idiom the
// teacher's transcoder package uses to read/write WASM linear-memory
// fields in place (transcoder/decode_into.go).
func readNativeSlot(nativeP uintptr, byteOffset uint32) (value.Value, error) {
	p := (*uint32)(unsafe.Pointer(nativeP + uintptr(byteOffset)))
	return value.Value(*p), nil
}

// sweep walks the GC object chain; unreached (non-epoch-colored, and with
// no outstanding external refcount) objects have their native free_cb
// fired, their property values released, and are unlinked and freed
// (spec.md §4.H sweep phase). Reachable descriptors are left alone except
// for having survived; the next mark cycle will recolor them.
func (c *Collector) sweep(pressure Pressure) error {
	var (
		prev    heap.CP = heap.Null
		newHead heap.CP = heap.Null
		freed   int
	)
	cur := c.objects.Head()
	for cur != heap.Null {
		next, err := c.objects.GCNext(cur)
		if err != nil {
			return err
		}

		color, err := c.objects.Color(cur)
		if err != nil {
			return err
		}

		if color == c.epoch {
			if newHead == heap.Null {
				newHead = cur
			} else if err := c.objects.SetGCNext(prev, cur); err != nil {
				return err
			}
			prev = cur
			cur = next
			continue
		}

		if c.native != nil {
			if err := c.native.Sweep(cur); err != nil {
				return err
			}
		}
		if err := c.releaseObjectProperties(cur); err != nil {
			return err
		}
		if err := c.objects.Free(cur); err != nil {
			return err
		}
		freed++
		cur = next
	}
	if prev != heap.Null {
		if err := c.objects.SetGCNext(prev, heap.Null); err != nil {
			return err
		}
	}
	c.objects.SetHead(newHead)

	if pressure == High {
		log.Debugf("gc: high-pressure sweep freed %d objects", freed)
	} else {
		log.Debugf("gc: sweep freed %d objects", freed)
	}
	return nil
}

func (c *Collector) releaseObjectProperties(obj heap.CP) error {
	if c.props == nil {
		return nil
	}
	return c.props.ReleaseProperties(obj,
		func(v value.Value) error {
			if v.IsObject() && v.CP() != heap.Null {
				return c.objects.Deref(v.CP())
			}
			return nil
		},
		c.strRelease,
	)
}

// AllocWithRetry implements spec.md §4.H's allocation-retry protocol:
// alloc, gc(high) on failure, alloc again, then escalate to the caller
// (which is expected to invoke the host fatal callback) on a second
// failure.
func (c *Collector) AllocWithRetry(size uint32) (heap.CP, error) {
	if cp := c.arena.TryAlloc(size); cp != heap.Null {
		return cp, nil
	}
	if err := c.Collect(High); err != nil {
		return heap.Null, err
	}
	if cp := c.arena.TryAlloc(size); cp != heap.Null {
		return cp, nil
	}
	return heap.Null, errvalue.OutOfMemory(errvalue.PhaseAlloc, size)
}
