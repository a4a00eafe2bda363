package nativeinfo

import (
	"testing"

	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

func TestAttachLookup_RoundTrip(t *testing.T) {
	r := NewRegistry()
	info := &Info{}
	const obj heap.CP = 7

	if err := r.Attach(obj, info, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	got, ok := r.Lookup(obj, info)
	if !ok || got != 0xdeadbeef {
		t.Fatalf("Lookup() = (%#x, %v), want (0xdeadbeef, true)", got, ok)
	}
}

func TestAttach_ReplacesSameIdentity(t *testing.T) {
	r := NewRegistry()
	info := &Info{}
	const obj heap.CP = 1

	if err := r.Attach(obj, info, 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Attach(obj, info, 2); err != nil {
		t.Fatal(err)
	}
	got, ok := r.Lookup(obj, info)
	if !ok || got != 2 {
		t.Fatalf("Lookup() after re-Attach = (%v, %v), want (2, true)", got, ok)
	}
}

func TestSweep_FiresFreeCallbackExactlyOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	var sawP uintptr
	info := &Info{Free: func(p uintptr) { calls++; sawP = p }}
	const obj heap.CP = 3

	if err := r.Attach(obj, info, 0x1234); err != nil {
		t.Fatal(err)
	}
	if err := r.Sweep(obj); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("free_cb fired %d times, want 1", calls)
	}
	if sawP != 0x1234 {
		t.Fatalf("free_cb saw nativeP %#x, want 0x1234", sawP)
	}

	// A second sweep of the same (now-detached) object must not refire.
	if err := r.Sweep(obj); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("free_cb refired on second Sweep, calls=%d", calls)
	}
}

func TestDetach_SkipsFreeCallback(t *testing.T) {
	r := NewRegistry()
	fired := false
	info := &Info{Free: func(uintptr) { fired = true }}
	const obj heap.CP = 9

	if err := r.Attach(obj, info, 1); err != nil {
		t.Fatal(err)
	}
	if !r.Detach(obj, info) {
		t.Fatal("Detach() = false, want true")
	}
	if err := r.Sweep(obj); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Fatal("free_cb should not fire for a detached entry")
	}
}

func TestRoots_ReadsTrackedSlots(t *testing.T) {
	r := NewRegistry()
	info := &Info{Count: 2, Offset: 8}
	const obj heap.CP = 2
	if err := r.Attach(obj, info, 0x100); err != nil {
		t.Fatal(err)
	}

	var seenOffsets []uint32
	roots, err := r.Roots(obj, func(nativeP uintptr, byteOffset uint32) (value.Value, error) {
		seenOffsets = append(seenOffsets, byteOffset)
		return value.NewObject(heap.CP(byteOffset)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 {
		t.Fatalf("len(roots) = %d, want 2", len(roots))
	}
	if seenOffsets[0] != 8 || seenOffsets[1] != 12 {
		t.Fatalf("offsets = %v, want [8 12]", seenOffsets)
	}
}
