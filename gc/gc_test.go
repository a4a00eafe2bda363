package gc

import (
	"testing"
	"unsafe"

	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/nativeinfo"
	"github.com/nanojs/corevm/object"
	"github.com/nanojs/corevm/strs"
	"github.com/nanojs/corevm/value"
)

func TestCollect_FreesUnreachableKeepsRooted(t *testing.T) {
	a := heap.NewArena(1 << 16)
	st := strs.NewTable()
	objs := object.New(a, st)
	c := New(a, objs, objs, st, nil)

	root, err := objs.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	orphan, err := objs.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate the orphan having been popped off the VM stack (or
	// otherwise released by its creator) before this collection runs —
	// a freshly created object's refcount-of-1 represents the creator's
	// own hold, which must be dropped once that hold ends.
	if err := objs.Deref(orphan); err != nil {
		t.Fatal(err)
	}

	c.Roots = func() []heap.CP { return []heap.CP{root} }

	if err := c.Collect(Low); err != nil {
		t.Fatal(err)
	}

	if _, err := objs.Type(root); err != nil {
		t.Fatalf("rooted object should survive collection: %v", err)
	}

	// The orphan was unlinked from the GC chain; walking from Head()
	// should never reach it again.
	cur := objs.Head()
	for cur != heap.Null {
		if cur == orphan {
			t.Fatal("orphan object should have been unlinked from the GC chain")
		}
		var nextErr error
		cur, nextErr = objs.GCNext(cur)
		if nextErr != nil {
			t.Fatal(nextErr)
		}
	}
}

func TestCollect_PreservesObjectsWithExternalRefcount(t *testing.T) {
	a := heap.NewArena(1 << 16)
	st := strs.NewTable()
	objs := object.New(a, st)
	c := New(a, objs, objs, st, nil)

	held, err := objs.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := objs.AddRef(held); err != nil {
		t.Fatal(err)
	}

	c.Roots = func() []heap.CP { return nil }
	if err := c.Collect(Low); err != nil {
		t.Fatal(err)
	}

	if _, err := objs.Type(held); err != nil {
		t.Fatalf("externally-refcounted object should survive collection: %v", err)
	}
}

func TestCollect_TracesPrototypeChain(t *testing.T) {
	a := heap.NewArena(1 << 16)
	st := strs.NewTable()
	objs := object.New(a, st)
	c := New(a, objs, objs, st, nil)

	base, err := objs.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	derived, err := objs.Create(object.TypeGeneral, object.FlagExtensible, base, 0)
	if err != nil {
		t.Fatal(err)
	}

	c.Roots = func() []heap.CP { return []heap.CP{derived} }
	if err := c.Collect(Low); err != nil {
		t.Fatal(err)
	}

	if _, err := objs.Type(base); err != nil {
		t.Fatalf("prototype reachable via derived object should survive: %v", err)
	}
}

func TestCollect_TracesNativeInfoRoots(t *testing.T) {
	a := heap.NewArena(1 << 16)
	st := strs.NewTable()
	objs := object.New(a, st)
	native := nativeinfo.NewRegistry()
	c := New(a, objs, objs, st, native)

	root, err := objs.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	heldByNative, err := objs.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate the creator's hold ending; heldByNative's only remaining
	// reachability is through the native buffer below.
	if err := objs.Deref(heldByNative); err != nil {
		t.Fatal(err)
	}

	// A host-owned native buffer with a single tracked Value slot holding
	// heldByNative's OBJECT value, attached to root via native-info.
	buf := []uint32{uint32(value.NewObject(heldByNative))}
	info := &nativeinfo.Info{Count: 1, Offset: 0}
	if err := native.Attach(root, info, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		t.Fatal(err)
	}

	c.Roots = func() []heap.CP { return []heap.CP{root} }
	if err := c.Collect(Low); err != nil {
		t.Fatal(err)
	}

	if _, err := objs.Type(heldByNative); err != nil {
		t.Fatalf("object reachable only via native-info root should survive collection: %v", err)
	}
}

func TestAllocWithRetry_RunsGCOnExhaustionThenSucceeds(t *testing.T) {
	a := heap.NewArena(256) // deliberately tiny
	st := strs.NewTable()
	objs := object.New(a, st)
	c := New(a, objs, objs, st, nil)
	c.Roots = func() []heap.CP { return nil }

	// Fill the arena with objects, then drop every creator hold so they
	// are all garbage, until a plain TryAlloc would fail; confirm
	// AllocWithRetry recovers the space via gc(high).
	for i := 0; i < 32; i++ {
		cp, err := objs.Create(object.TypeGeneral, 0, heap.Null, 0)
		if err != nil {
			break
		}
		if err := objs.Deref(cp); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := c.AllocWithRetry(24); err != nil {
		t.Fatalf("AllocWithRetry should recover space via gc(high): %v", err)
	}
}
