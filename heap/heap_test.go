package heap

import "testing"

func TestArena_AllocWriteRead(t *testing.T) {
	a := NewArena(4096)

	cp := a.TryAlloc(16)
	if cp == Null {
		t.Fatal("expected non-null cp")
	}

	if err := a.WriteU32(cp, 0, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	got, err := a.ReadU32(cp, 0)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("got %x, want deadbeef", got)
	}
}

func TestArena_SmallBlockReuse(t *testing.T) {
	a := NewArena(4096)

	cp1 := a.TryAlloc(24)
	before := a.Used()
	a.Free(cp1, 24)
	cp2 := a.TryAlloc(24)

	if cp2 != cp1 {
		t.Fatalf("expected freed small block to be reused: cp1=%d cp2=%d", cp1, cp2)
	}
	if a.Used() != before {
		t.Fatalf("reuse should not bump the arena: before=%d after=%d", before, a.Used())
	}
}

func TestArena_GeneralFreeListFirstFit(t *testing.T) {
	a := NewArena(4096)

	big := a.TryAlloc(400)
	a.Free(big, 400)

	reused := a.TryAlloc(200)
	if reused != big {
		t.Fatalf("expected first-fit reuse of freed general block, got cp=%d want=%d", reused, big)
	}
}

func TestArena_ExhaustionReturnsNull(t *testing.T) {
	a := NewArena(64)

	var last CP
	for i := 0; i < 1000; i++ {
		cp := a.TryAlloc(32)
		if cp == Null {
			return
		}
		last = cp
	}
	t.Fatalf("expected exhaustion before 1000 allocations, last cp=%d", last)
}

func TestArena_NullDereferenceErrors(t *testing.T) {
	a := NewArena(4096)
	if _, err := a.Resolve(Null, 8); err == nil {
		t.Fatal("expected error resolving null cp")
	}
}

func TestCollection_PushPopGrow(t *testing.T) {
	a := NewArena(4096)
	c := NewCollection(a)

	for i := uint32(0); i < 10; i++ {
		if !c.Push(i * 2) {
			t.Fatalf("push %d failed", i)
		}
	}
	if c.Len() != 10 {
		t.Fatalf("len = %d, want 10", c.Len())
	}
	for i := uint32(0); i < 10; i++ {
		v, err := c.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if v != i*2 {
			t.Fatalf("Get(%d) = %d, want %d", i, v, i*2)
		}
	}
	for i := 10; i > 0; i-- {
		v, ok := c.Pop()
		if !ok {
			t.Fatalf("Pop at len %d failed", i)
		}
		if v != uint32(i-1)*2 {
			t.Fatalf("Pop = %d, want %d", v, uint32(i-1)*2)
		}
	}
	if _, ok := c.Pop(); ok {
		t.Fatal("Pop on empty collection should fail")
	}
}
