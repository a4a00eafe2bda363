package value

import (
	"math"
	"testing"

	"github.com/nanojs/corevm/heap"
)

type fakeStringLength struct{ lengths map[heap.CP]uint32 }

func (f fakeStringLength) Length(a *heap.Arena, cp heap.CP) (uint32, error) {
	return f.lengths[cp], nil
}

func TestToBoolean_Primitives(t *testing.T) {
	a := heap.NewArena(4096)
	strs := fakeStringLength{lengths: map[heap.CP]uint32{1: 0, 2: 3}}

	zero, _ := Int(0)
	one, _ := Int(1)
	directUint, _ := DirectUint(0)
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"undefined", Undefined, false},
		{"null", Null, false},
		{"true", True, true},
		{"false", False, false},
		{"int zero", zero, false},
		{"int nonzero", one, true},
		{"direct empty magic string", DirectMagic(0), false},
		{"direct nonempty magic string", DirectMagic(1), true},
		{"direct uint string", directUint, true},
		{"empty heap string", NewString(1), false},
		{"nonempty heap string", NewString(2), true},
		{"object", NewObject(7), true},
	}
	for _, c := range cases {
		got, err := ToBoolean(a, c.v, strs)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: ToBoolean = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestToBoolean_FloatZeroAndNaN(t *testing.T) {
	a := heap.NewArena(4096)
	strs := fakeStringLength{}

	negZero, err := boxFloat(a, math.Copysign(0, -1))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := ToBoolean(a, negZero, strs); err != nil || got {
		t.Fatalf("ToBoolean(-0.0 boxed) = (%v, %v), want (false, nil)", got, err)
	}

	nan, err := boxFloat(a, nan())
	if err != nil {
		t.Fatal(err)
	}
	if got, err := ToBoolean(a, nan, strs); err != nil || got {
		t.Fatalf("ToBoolean(NaN) = (%v, %v), want (false, nil)", got, err)
	}

	half, err := boxFloat(a, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := ToBoolean(a, half, strs); err != nil || !got {
		t.Fatalf("ToBoolean(0.5) = (%v, %v), want (true, nil)", got, err)
	}
}

func nan() float64 {
	var x float64
	return x / x
}
