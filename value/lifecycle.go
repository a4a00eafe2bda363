package value

import "github.com/nanojs/corevm/heap"

// Releaser decouples value's Free/Assign from the string and object
// packages' own refcounting, the way the teacher's resource.Backend
// interface decouples UnifiedTable from a concrete storage strategy
// (resource/types.go). The engine package wires the concrete
// implementations in; value itself only knows the dispatch contract.
type Releaser interface {
	ReleaseString(cp heap.CP)
	ReleaseObject(cp heap.CP)
	ReleaseSymbol(cp heap.CP)
	ReleaseBigInt(cp heap.CP)
	ReleaseError(cp heap.CP)
	AcquireString(cp heap.CP)
	AcquireObject(cp heap.CP)
}

// Free implements spec.md §4.C free(v): DIRECT is a no-op, FLOAT frees its
// boxed payload, pointer tags dispatch to r for refcount bookkeeping (the
// GC reclaims objects whose refcount reaches zero, not Free itself).
func Free(a *heap.Arena, v Value, r Releaser) {
	switch v.Tag() {
	case Direct, DirectString:
		return
	case Float:
		a.Free(v.FloatCP(), 8)
	case String:
		r.ReleaseString(v.CP())
	case ObjectTag:
		r.ReleaseObject(v.CP())
	case Symbol:
		r.ReleaseSymbol(v.CP())
	case BigInt:
		r.ReleaseBigInt(v.CP())
	case ErrorTag:
		r.ReleaseError(v.CP())
	}
}

// Assign implements spec.md §4.C assign(dst, src): if both sides are
// FLOAT, overwrite the payload in place (no allocation); if both are
// DIRECT, a plain copy suffices; otherwise the old value is freed and the
// new one's refcount bumped — except when both already refer to the same
// heap object, in which case neither ref nor deref run.
func Assign(a *heap.Arena, dst, src Value, r Releaser) (Value, error) {
	if dst.Tag() == Float && src.Tag() == Float {
		bits, err := a.ReadU64(src.FloatCP(), 0)
		if err != nil {
			return 0, err
		}
		if err := a.WriteU64(dst.FloatCP(), 0, bits); err != nil {
			return 0, err
		}
		return dst, nil
	}
	if dst.IsDirect() && src.IsDirect() {
		return src, nil
	}
	if dst == src {
		return dst, nil
	}
	Free(a, dst, r)
	acquire(src, r)
	return src, nil
}

func acquire(v Value, r Releaser) {
	switch v.Tag() {
	case String:
		r.AcquireString(v.CP())
	case ObjectTag:
		r.AcquireObject(v.CP())
	}
}

// Acquire bumps v's refcount when it is a String or Object, a no-op for
// every other tag. Exported for the embed package's public acquire()
// entry point (spec.md §6.2: "Strings and objects are ref-counted;
// acquire bumps the count").
func Acquire(v Value, r Releaser) { acquire(v, r) }

// Equal implements the DIRECT-tag fast path of spec.md §4.C: equality
// primitives only compare tag bits for DIRECT values (e.g. two Undefined
// values, or two identical small integers); callers must dispatch to a
// type-specific comparator (strs.Table.Equal, object identity, float value
// equality incl. NaN handling) for pointer-tagged values.
func Equal(a, b Value) bool {
	if a.Tag() == Direct && b.Tag() == Direct {
		return a == b
	}
	if a.Tag() == DirectString && b.Tag() == DirectString {
		return a == b
	}
	return false // pointer-tagged: caller must dispatch
}
