package embed

import (
	"testing"

	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

// fakeEngine implements Engine with a no-op Releaser, enough to exercise
// Number/AsNumber/Acquire/Release without needing the full engine package
// (which in turn depends on embed — wiring a fake here avoids a cycle).
type fakeEngine struct {
	arena       *heap.Arena
	acquiredStr []heap.CP
	releasedStr []heap.CP
}

func (f *fakeEngine) Arena() *heap.Arena { return f.arena }
func (f *fakeEngine) Releaser() value.Releaser { return f }

func (f *fakeEngine) ReleaseString(cp heap.CP) { f.releasedStr = append(f.releasedStr, cp) }
func (f *fakeEngine) ReleaseObject(heap.CP)     {}
func (f *fakeEngine) ReleaseSymbol(heap.CP)     {}
func (f *fakeEngine) ReleaseBigInt(heap.CP)     {}
func (f *fakeEngine) ReleaseError(heap.CP)      {}
func (f *fakeEngine) AcquireString(cp heap.CP)  { f.acquiredStr = append(f.acquiredStr, cp) }
func (f *fakeEngine) AcquireObject(heap.CP)     {}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{arena: heap.NewArena(4096)}
}

func TestConstants_AreDirectEncoded(t *testing.T) {
	if !Undefined.IsUndefined() {
		t.Fatal("Undefined handle should report IsUndefined")
	}
	if !Null.IsNull() {
		t.Fatal("Null handle should report IsNull")
	}
	if !True.IsBoolean() || !False.IsBoolean() {
		t.Fatal("True/False handles should report IsBoolean")
	}
}

func TestInt_RoundTrip(t *testing.T) {
	h, ok := Int(42)
	if !ok {
		t.Fatal("Int(42) should be representable")
	}
	if !h.IsNumber() {
		t.Fatal("Int handle should report IsNumber")
	}
}

func TestNumber_DirectAndBoxedRoundTrip(t *testing.T) {
	e := newFakeEngine()

	h, err := Number(e, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := AsNumber(e, h)
	if err != nil || got != 3 {
		t.Fatalf("AsNumber(direct) = (%v, %v), want (3, nil)", got, err)
	}

	h2, err := Number(e, 3.5)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := AsNumber(e, h2)
	if err != nil || got2 != 3.5 {
		t.Fatalf("AsNumber(boxed) = (%v, %v), want (3.5, nil)", got2, err)
	}
}

func TestAsNumber_RejectsNonNumberHandle(t *testing.T) {
	e := newFakeEngine()
	if _, err := AsNumber(e, Undefined); err == nil {
		t.Fatal("expected error converting Undefined to a number")
	}
}

func TestRelease_IsNoOpForDirectHandles(t *testing.T) {
	e := newFakeEngine()
	// Must not panic or touch the releaser for direct-encoded handles.
	Release(e, Undefined)
	Release(e, True)
	if len(e.releasedStr) != 0 {
		t.Fatal("releasing a direct handle should not call ReleaseString")
	}
}

func TestAcquireRelease_StringHandle(t *testing.T) {
	e := newFakeEngine()
	h := FromValue(value.NewString(heap.CP(5)))

	Acquire(e, h)
	if len(e.acquiredStr) != 1 || e.acquiredStr[0] != 5 {
		t.Fatalf("acquiredStr = %v, want [5]", e.acquiredStr)
	}

	Release(e, h)
	if len(e.releasedStr) != 1 || e.releasedStr[0] != 5 {
		t.Fatalf("releasedStr = %v, want [5]", e.releasedStr)
	}
}
