// Package embed implements spec.md §6.2: the embedding API shape exposed
// to a host. It is a thin, public wrapper around the internal 32-bit
// value.Value union, since script/VM-internal code and embedder code must
// not share a raw Value: the embedder's copies need acquire/release
// discipline the internal interpreter does not (internal references are
// tracked by the property graph and VM stack instead).
//
// Grounded on the (deleted) teacher runtime/runtime.go Runtime/Module
// wrapper shape: a small struct owning the underlying engine state,
// exposing typed constructors and an explicit release/close step per
// handle, rather than letting callers touch engine internals directly.
package embed

import (
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/value"
)

// Handle is the opaque 32-bit value handed to a host embedder. Its bit
// layout is exactly value.Value's, but the type is distinct so a host
// cannot accidentally feed a raw interpreter-internal Value across the
// embedding boundary without going through Acquire/Release.
type Handle uint32

func wrap(v value.Value) Handle  { return Handle(v) }
func (h Handle) raw() value.Value { return value.Value(h) }

// Engine is the minimal surface embed needs from the host engine: the
// arena pointer-tagged values resolve against, and a value.Releaser that
// dispatches refcounting to the string/object subsystems. The engine
// package implements this directly.
type Engine interface {
	Arena() *heap.Arena
	Releaser() value.Releaser
}

// Undefined, Null, True, False are the direct-encoded constant handles;
// Release on any of them is always a safe no-op per spec.md §6.2.
var (
	Undefined = wrap(value.Undefined)
	Null      = wrap(value.Null)
	True      = wrap(value.True)
	False     = wrap(value.False)
)

// Bool wraps a boolean as a direct-encoded handle.
func Bool(b bool) Handle { return wrap(value.Bool(b)) }

// Int constructs a direct-encoded integer handle. ok is false when i falls
// outside the representable DIRECT integer range; the caller should use
// Number instead.
func Int(i int32) (Handle, bool) {
	v, ok := value.Int(i)
	return wrap(v), ok
}

// Number constructs a handle for x, direct-encoded when possible and
// heap-boxed otherwise (spec.md §4.C make_number).
func Number(e Engine, x float64) (Handle, error) {
	v, err := value.MakeNumber(e.Arena(), x)
	if err != nil {
		return 0, err
	}
	return wrap(v), nil
}

// AsNumber reads a Number handle's float64 value. h must be a direct
// integer or boxed-float handle.
func AsNumber(e Engine, h Handle) (float64, error) {
	v := h.raw()
	if v.IsInt() {
		return float64(v.AsInt()), nil
	}
	if v.IsFloat() {
		return value.AsFloat(e.Arena(), v)
	}
	return 0, errvalue.New(errvalue.PhaseHost, errvalue.KindInvalidArg).Detail("handle is not a number").Build()
}

// IsUndefined/IsNull/IsBoolean mirror value's DIRECT predicates at the
// embedding boundary.
func (h Handle) IsUndefined() bool { return h.raw().IsUndefined() }
func (h Handle) IsNull() bool      { return h.raw().IsNull() }
func (h Handle) IsBoolean() bool   { return h.raw().IsBoolean() }
func (h Handle) IsNumber() bool    { return h.raw().IsInt() || h.raw().IsFloat() }
func (h Handle) IsString() bool    { return h.raw().IsString() || h.raw().IsDirectString() }
func (h Handle) IsObject() bool    { return h.raw().IsObject() }

// Acquire bumps the refcount of a string/object handle (spec.md §6.2:
// "acquire bumps the count"); a no-op for direct-encoded handles.
func Acquire(e Engine, h Handle) Handle {
	value.Acquire(h.raw(), e.Releaser())
	return h
}

// Release drops one reference to h. Per spec.md §6.2, this is always safe
// to call — direct-encoded handles treat it as an unconditional no-op
// rather than requiring the caller to track which handles need releasing.
func Release(e Engine, h Handle) {
	value.Free(e.Arena(), h.raw(), e.Releaser())
}

// FromValue and ToValue cross the embedding boundary for packages (engine,
// modresolve, snapshot) that must construct or inspect handles using the
// internal value representation directly.
func FromValue(v value.Value) Handle { return wrap(v) }
func ToValue(h Handle) value.Value   { return h.raw() }
