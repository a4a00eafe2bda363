// Package engine is the top-level wiring point: it owns one heap.Arena,
// one gc.Collector, the magic-string table, the object heap, and exposes
// the embed handle API to a host. Nothing in heap/value/strs/object/gc
// knows about the others directly — engine is where those packages'
// small interfaces (value.Releaser, gc.PropertyReleaser/StringReleaser/
// NativeInfoLister, embed.Engine) get concrete implementations.
//
// Grounded on the (deleted) teacher runtime/runtime.go + engine/wazero.go
// construction shape: a single constructor that allocates the owned
// resources up front and returns one struct the rest of the program
// drives, rather than a builder or options-object pattern.
package engine

import (
	"github.com/nanojs/corevm/config"
	"github.com/nanojs/corevm/embed"
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/gc"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/internal/log"
	"github.com/nanojs/corevm/nativeinfo"
	"github.com/nanojs/corevm/object"
	"github.com/nanojs/corevm/strs"
	"github.com/nanojs/corevm/value"
)

// Engine owns every resource a script execution needs below the VM/parser
// layer: the arena, the string and object tables, native-info tracking,
// and the collector that ties them together.
type Engine struct {
	cfg     config.Config
	arena   *heap.Arena
	strings *strs.Table
	objects *object.Heap
	native  *nativeinfo.Registry
	gc      *gc.Collector

	global heap.CP
	stack  []heap.CP // VM value-stack roots; slots hold Object-tagged CPs only
}

// New constructs an Engine from cfg (normalized to fill in defaults), with
// a fresh arena sized per config.Config.DefaultHeapBytes; heap.NewArena
// caps that size at heap.MaxHeapBytes (512 KiB).
func New(cfg config.Config) *Engine {
	cfg = cfg.Normalize()
	arena := heap.NewArena(cfg.DefaultHeapBytes())
	strings := strs.NewTable()
	objects := object.New(arena, strings)
	native := nativeinfo.NewRegistry()

	e := &Engine{cfg: cfg, arena: arena, strings: strings, objects: objects, native: native}
	e.gc = gc.New(arena, objects, objects, strings, native)
	e.gc.Roots = e.roots

	global, err := objects.Create(object.TypeGeneral, object.FlagExtensible, heap.Null, 0)
	if err != nil {
		log.Logger().Sugar().Errorf("engine: failed to create global object: %v", err)
	}
	e.global = global
	return e
}

// roots supplies gc.Collector with every root this Engine is responsible
// for beyond the automatic refcount-based roots: the global object and
// whatever is currently pushed on the embedding-visible value stack.
func (e *Engine) roots() []heap.CP {
	out := make([]heap.CP, 0, len(e.stack)+1)
	if e.global != heap.Null {
		out = append(out, e.global)
	}
	out = append(out, e.stack...)
	return out
}

// Arena implements embed.Engine.
func (e *Engine) Arena() *heap.Arena { return e.arena }

// Releaser implements embed.Engine.
func (e *Engine) Releaser() value.Releaser { return (*releaser)(e) }

// Strings exposes the magic-string/interning table to higher layers
// (modresolve, snapshot) that need to construct or compare property
// names without reaching into engine internals.
func (e *Engine) Strings() *strs.Table { return e.strings }

// Objects exposes the object/property heap for the same reason.
func (e *Engine) Objects() *object.Heap { return e.objects }

// Native exposes the native-info registry so host-defined constructors
// can attach free callbacks to objects they create.
func (e *Engine) Native() *nativeinfo.Registry { return e.native }

// Global returns the realm's global object as an embedding handle.
func (e *Engine) Global() embed.Handle { return embed.FromValue(value.NewObject(e.global)) }

// PushRoot pins h's underlying object on the engine's root stack so it
// survives collection even with a zero refcount — the embedding
// equivalent of a VM pushing a value onto its evaluation stack. PopRoot
// must be called once the caller's hold ends.
func (e *Engine) PushRoot(h embed.Handle) {
	v := embed.ToValue(h)
	if v.IsObject() && v.CP() != heap.Null {
		e.stack = append(e.stack, v.CP())
	}
}

// PopRoot removes the most recently pushed root.
func (e *Engine) PopRoot() {
	if n := len(e.stack); n > 0 {
		e.stack = e.stack[:n-1]
	}
}

// NewError constructs an ERROR-tagged value a host or built-in can raise
// as a script-visible exception (spec.md §7): kind and message are
// carried by the backing object descriptor (object.CreateError), and
// abort marks an unwind-through-all-catches exception (e.g. a stack
// exhaustion) rather than an ordinary catchable one.
func (e *Engine) NewError(kind errvalue.ECMAKind, message string, abort bool) (value.Value, error) {
	cp, err := e.objects.CreateError(kind, message, abort)
	if err != nil {
		return 0, err
	}
	return value.NewError(cp), nil
}

// ErrorCarrier reads back an ERROR-tagged value's Kind/Message/Abort
// payload, for a host printing an uncaught exception (spec.md §7's
// toString contract is errvalue.Carrier.String()).
func (e *Engine) ErrorCarrier(v value.Value) (*errvalue.Carrier, error) {
	return e.objects.ErrorCarrier(v.CP())
}

// Collect runs one garbage-collection pass at the given pressure.
func (e *Engine) Collect(pressure gc.Pressure) error {
	return e.gc.Collect(pressure)
}

// AllocWithRetry implements the §4.H allocation-retry protocol for
// callers that need raw arena space (e.g. a parser building bytecode).
func (e *Engine) AllocWithRetry(size uint32) (heap.CP, error) {
	return e.gc.AllocWithRetry(size)
}

// HeapStats mirrors jerry_get_memory_limits / the teacher's resource
// Table.Len() introspection idiom: coarse usage counters a host can poll
// for diagnostics without reaching into the arena directly.
type HeapStats struct {
	Used      uint32
	Committed uint32
	HighWater uint32
}

func (e *Engine) HeapStats() HeapStats {
	return HeapStats{
		Used:      e.arena.Used(),
		Committed: e.arena.Cap(),
		HighWater: e.arena.HighWater(),
	}
}

// releaser implements value.Releaser by dispatching to the owning
// Engine's string and object tables. Defined as a distinct named type
// (rather than Engine itself implementing Releaser) so Engine's public
// method set stays free of the seven single-purpose Release*/Acquire*
// methods callers should reach only through value.Free/value.Acquire.
type releaser Engine

func (r *releaser) eng() *Engine { return (*Engine)(r) }

func (r *releaser) ReleaseString(cp heap.CP) {
	if err := r.eng().strings.ReleaseCP(r.eng().arena, cp); err != nil {
		log.Debugf("engine: ReleaseString(%d): %v", cp, err)
	}
}

func (r *releaser) AcquireString(cp heap.CP) {
	if err := r.eng().strings.AddRefCP(r.eng().arena, cp); err != nil {
		log.Debugf("engine: AcquireString(%d): %v", cp, err)
	}
}

func (r *releaser) ReleaseObject(cp heap.CP) {
	if err := r.eng().objects.Deref(cp); err != nil {
		log.Debugf("engine: ReleaseObject(%d): %v", cp, err)
	}
}

func (r *releaser) AcquireObject(cp heap.CP) {
	if err := r.eng().objects.AddRef(cp); err != nil {
		log.Debugf("engine: AcquireObject(%d): %v", cp, err)
	}
}

// ReleaseSymbol, ReleaseBigInt, and ReleaseError share the object heap's
// refcount word layout (every heap-allocated, pointer-tagged value in this
// engine starts with the same 2-byte refcount-and-color header — see
// object.go's descriptor layout comment), so this compact engine reuses
// object.Heap's AddRef/Deref rather than standing up three more
// near-identical single-field refcount tables. See DESIGN.md.
func (r *releaser) ReleaseSymbol(cp heap.CP) { r.ReleaseObject(cp) }
func (r *releaser) ReleaseBigInt(cp heap.CP) { r.ReleaseObject(cp) }
func (r *releaser) ReleaseError(cp heap.CP)  { r.ReleaseObject(cp) }
