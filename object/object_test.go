package object

import (
	"testing"

	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/strs"
)

func TestCreate_InitialState(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())

	cp, err := h.Create(TypeGeneral, FlagExtensible, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rc, err := h.Refcount(cp); err != nil || rc != 1 {
		t.Fatalf("Refcount() = (%d, %v), want (1, nil)", rc, err)
	}
	if typ, err := h.Type(cp); err != nil || typ != TypeGeneral {
		t.Fatalf("Type() = (%v, %v), want TypeGeneral", typ, err)
	}
	if ext, err := h.IsExtensible(cp); err != nil || !ext {
		t.Fatalf("IsExtensible() = (%v, %v), want true", ext, err)
	}
	if lex, err := h.IsLexicalEnv(cp); err != nil || lex {
		t.Fatalf("IsLexicalEnv() = (%v, %v), want false", lex, err)
	}
}

func TestCreate_LinksGCChainAtHead(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())

	first, err := h.Create(TypeGeneral, 0, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.Create(TypeGeneral, 0, heap.Null, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Head() != second {
		t.Fatal("Head() should be the most recently created object")
	}
	next, err := h.GCNext(second)
	if err != nil {
		t.Fatal(err)
	}
	if next != first {
		t.Fatal("second object's GCNext should chain to first")
	}
}

func TestCreateLexicalEnvironment(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())

	outer, _ := h.Create(TypeGeneral, FlagLexicalEnv, heap.Null, 0)
	inner, err := h.CreateLexicalEnvironment(outer, 0)
	if err != nil {
		t.Fatal(err)
	}
	if lex, err := h.IsLexicalEnv(inner); err != nil || !lex {
		t.Fatalf("IsLexicalEnv() = (%v, %v), want true", lex, err)
	}
	proto, err := h.Prototype(inner)
	if err != nil {
		t.Fatal(err)
	}
	if proto != outer {
		t.Fatal("lexical environment's prototype slot should carry the outer environment CP")
	}
}

func TestAddRef_OverflowsAtSaturation(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())
	cp, _ := h.Create(TypeGeneral, 0, heap.Null, 0)

	for i := 0; i < int(maxRefcount)-1; i++ {
		if err := h.AddRef(cp); err != nil {
			t.Fatalf("unexpected overflow at i=%d: %v", i, err)
		}
	}
	if err := h.AddRef(cp); err == nil {
		t.Fatal("expected RefCountOverflow once saturated")
	}
}

func TestDeref_NeverFreesDirectly(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())
	cp, _ := h.Create(TypeGeneral, 0, heap.Null, 0)

	if err := h.Deref(cp); err != nil {
		t.Fatal(err)
	}
	if rc, err := h.Refcount(cp); err != nil || rc != 0 {
		t.Fatalf("Refcount() = (%d, %v), want (0, nil)", rc, err)
	}
	// Descriptor must still be readable; reclamation is sweep's job only.
	if _, err := h.Type(cp); err != nil {
		t.Fatalf("descriptor should still be resolvable after Deref to zero: %v", err)
	}
}

func TestColor_PreservesRefcount(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())
	cp, _ := h.Create(TypeGeneral, 0, heap.Null, 0)

	if err := h.AddRef(cp); err != nil {
		t.Fatal(err)
	}
	if err := h.SetColor(cp, 5); err != nil {
		t.Fatal(err)
	}
	if rc, err := h.Refcount(cp); err != nil || rc != 2 {
		t.Fatalf("Refcount() after SetColor = (%d, %v), want (2, nil)", rc, err)
	}
	if c, err := h.Color(cp); err != nil || c != 5 {
		t.Fatalf("Color() = (%d, %v), want (5, nil)", c, err)
	}
}

func TestExtension_ZeroedAndWritable(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())
	cp, err := h.Create(TypeArray, 0, heap.Null, 8)
	if err != nil {
		t.Fatal(err)
	}
	ext, err := h.Extension(cp, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range ext {
		if b != 0 {
			t.Fatalf("extension byte %d = %d, want 0", i, b)
		}
	}
	if err := h.WriteExtension(cp, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}
	ext2, err := h.Extension(cp, 8)
	if err != nil {
		t.Fatal(err)
	}
	if ext2[0] != 1 || ext2[7] != 8 {
		t.Fatalf("extension round-trip failed: %v", ext2)
	}
}

func TestCreateError_CarrierRoundTrip(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())

	cp, err := h.CreateError(errvalue.KindRange, "index out of bounds", false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := h.ErrorCarrier(cp)
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind != errvalue.KindRange || c.Message != "index out of bounds" || c.Abort {
		t.Fatalf("ErrorCarrier() = %+v, want {Kind:RangeError Message:%q Abort:false}", c, "index out of bounds")
	}
	if want, got := "RangeError: index out of bounds", c.String(); got != want {
		t.Fatalf("Carrier.String() = %q, want %q", got, want)
	}
}

func TestCreateError_AbortFlag(t *testing.T) {
	a := heap.NewArena(4096)
	h := New(a, strs.NewTable())

	cp, err := h.CreateError(errvalue.KindCommon, "", true)
	if err != nil {
		t.Fatal(err)
	}
	c, err := h.ErrorCarrier(cp)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Abort {
		t.Fatal("expected Abort to round-trip as true")
	}
	if want, got := "Error", c.String(); got != want {
		t.Fatalf("Carrier.String() with empty message = %q, want %q", got, want)
	}
}
