// Package nativeinfo implements spec.md §4.G "Native-info attachment" and
// §6.3: a singly linked list of (native_info*, native_p) pairs per object,
// matched by native_info identity rather than content, plus the optional
// {count, offset} descriptor that names additional tracked value slots
// inside the native buffer for GC root tracing. The lists are kept in a
// Go-side map keyed by the owning object's CP; the object itself carries
// no property for them.
//
// Grounded on jerryscript's ecma-helpers-external-pointers.c
// (original_source/): one singly linked list per object, lookup by
// pointer identity, free_cb invoked unconditionally at sweep regardless of
// list order. The attach/detach bookkeeping style (a small owned struct
// per entry, chained via a Go pointer) follows the teacher's
// resource/types.go Dropper interface, generalized from a single typed
// handle's drop callback to a per-object multi-entry list.
package nativeinfo

import (
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

// FreeCallback is invoked exactly once, during sweep, when the owning
// object is collected. It must not allocate on the engine heap (spec.md
// §5: "they must not allocate on the engine heap").
type FreeCallback func(nativeP uintptr)

// Info is a native_info descriptor: identity-compared, shared by every
// object that registers against it. Count and Offset are the optional
// {count, offset} pair naming additional GC-traced Value slots inside the
// native buffer at nativeP (a host-owned region the engine does not
// allocate or read except at those offsets).
type Info struct {
	Free    FreeCallback
	Count   uint32 // number of tracked Value slots, 0 if none
	Offset  uint32 // byte offset of the first tracked slot within the native buffer
}

// entry is one (native_info*, native_p) pair in an object's list.
type entry struct {
	info    *Info
	nativeP uintptr
	next    *entry
}

// Registry owns every object's native-info list. Entries reference
// native_p by raw Go pointer-sized value (the host's own buffer,
// outside the engine arena), so this registry lives in Go memory, not the
// compressed-pointer arena — spec.md's native_info/native_p pair are
// themselves host-side data, not engine-heap data.
type Registry struct {
	lists map[heap.CP]*entry
}

func NewRegistry() *Registry {
	return &Registry{lists: make(map[heap.CP]*entry)}
}

// Attach registers (info, nativeP) against obj. Re-registering the same
// info identity on the same object replaces the prior nativeP rather than
// appending a duplicate (spec.md: "Lookup is by native_info* identity").
func (r *Registry) Attach(obj heap.CP, info *Info, nativeP uintptr) error {
	if info == nil {
		return errvalue.New(errvalue.PhaseObject, errvalue.KindInvalidArg).Detail("nil native_info").Build()
	}
	cur := r.lists[obj]
	for e := cur; e != nil; e = e.next {
		if e.info == info {
			e.nativeP = nativeP
			return nil
		}
	}
	r.lists[obj] = &entry{info: info, nativeP: nativeP, next: cur}
	return nil
}

// Lookup finds the nativeP registered under info on obj.
func (r *Registry) Lookup(obj heap.CP, info *Info) (uintptr, bool) {
	for e := r.lists[obj]; e != nil; e = e.next {
		if e.info == info {
			return e.nativeP, true
		}
	}
	return 0, false
}

// Detach removes a single (info, nativeP) registration without firing its
// free_cb — used when the host explicitly unregisters a pointer it is
// about to free itself.
func (r *Registry) Detach(obj heap.CP, info *Info) bool {
	var prev *entry
	for e := r.lists[obj]; e != nil; e = e.next {
		if e.info == info {
			if prev == nil {
				r.lists[obj] = e.next
			} else {
				prev.next = e.next
			}
			return true
		}
		prev = e
	}
	return false
}

// Sweep fires every free_cb attached to obj, in list order (spec.md
// leaves the order implementation-defined: "in no particular order"), and
// detaches the whole list. Satisfies gc.NativeInfoLister.
func (r *Registry) Sweep(obj heap.CP) error {
	e := r.lists[obj]
	delete(r.lists, obj)
	for e != nil {
		if e.info != nil && e.info.Free != nil {
			e.info.Free(e.nativeP)
		}
		e = e.next
	}
	return nil
}

// Roots returns obj's native-info-tracked Value slots (via each Info's
// {count, offset} pair) for gc's mark phase. read reads a single Value-sized slot from the host buffer at
// nativeP+offset+i*4; the host, not the engine arena, owns that memory, so
// this package takes a reader callback rather than touching heap.Arena.
func (r *Registry) Roots(obj heap.CP, read func(nativeP uintptr, byteOffset uint32) (value.Value, error)) ([]value.Value, error) {
	var out []value.Value
	for e := r.lists[obj]; e != nil; e = e.next {
		if e.info == nil || e.info.Count == 0 {
			continue
		}
		for i := uint32(0); i < e.info.Count; i++ {
			v, err := read(e.nativeP, e.info.Offset+i*4)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}
