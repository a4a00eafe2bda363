package value

import "github.com/nanojs/corevm/heap"

// StringLength is the slice of strs.Table that ToBoolean needs to decide
// whether a heap string is empty. Declared here (rather than importing
// strs directly) because strs already imports value for its own Intern/
// Materialize signatures — value must stay a leaf package.
type StringLength interface {
	Length(a *heap.Arena, cp heap.CP) (uint32, error)
}

// ToBoolean implements the ToBoolean abstract operation referenced by
// spec.md §4.C's coercion table: undefined/null are falsy, booleans pass
// through, numbers are falsy iff zero or NaN, strings are falsy iff
// empty, and every object is truthy. Grounded on jerryscript's
// ecma-helpers-value.c ecma_op_to_boolean dispatch, generalized to this
// engine's tag set. DIRECT_STRING small-uint strings are never empty (the
// shortest is "0"), but magic id 0 is the interned empty string itself
// (strs/magic.go's magicStrings table has "" at index 0), so that one
// magic id must still be special-cased.
func ToBoolean(a *heap.Arena, v Value, strs StringLength) (bool, error) {
	switch {
	case v.IsUndefined(), v.IsNull():
		return false, nil
	case v.IsBoolean():
		return v.IsTrue(), nil
	case v.IsInt():
		return v.AsInt() != 0, nil
	case v.IsFloat():
		x, err := AsFloat(a, v)
		if err != nil {
			return false, err
		}
		return x != 0 && !isNaN(x), nil
	case v.IsDirectString():
		return !(!v.IsDirectUint() && v.DirectStringID() == 0), nil
	case v.IsString():
		n, err := strs.Length(a, v.CP())
		if err != nil {
			return false, err
		}
		return n != 0, nil
	default:
		// Objects, symbols, bigints, errors: always truthy at this layer.
		return true, nil
	}
}

func isNaN(x float64) bool { return x != x }
