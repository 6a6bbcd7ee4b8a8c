package instance

import (
	"fmt"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/table"
	"github.com/wippyai/wasm-substrate/trap"
)

// Handle is an owning reference to an arena-held instance. Handles are
// small values and may be freely copied or Cloned across call sites;
// every alias refers to the same underlying instance. Exactly one
// Release must be issued for the whole alias set, after which any use
// of any alias panics.
//
// A Handle is not safe for concurrent mutation of the same instance;
// the execution model is one thread inside an instance at a time.
type Handle struct {
	arena *Arena
	key   uint64
}

// Key returns the instance's arena key. The key is what import records
// and function references carry; it stays valid until Release.
func (h Handle) Key() uint64 { return h.key }

// Clone returns another alias of the same instance.
func (h Handle) Clone() Handle { return h }

// Release removes the instance from its arena. Calling it more than
// once, or using the handle afterwards, panics.
func (h Handle) Release() {
	if !h.arena.release(h.key) {
		panic(fmt.Sprintf("instance: release of dead handle (key %d)", h.key))
	}
}

func (h Handle) inst() *Instance {
	inst, ok := h.arena.get(h.key)
	if !ok {
		panic(fmt.Sprintf("instance: use of released handle (key %d)", h.key))
	}
	return inst
}

// Module returns the descriptor this instance was built from.
func (h Handle) Module() *descriptor.Module { return h.inst().module }

// Context returns the instance's context region.
func (h Handle) Context() *VMContext { return h.inst().vmctx }

// HostState returns the opaque embedder value attached at creation.
func (h Handle) HostState() any { return h.inst().hostState }

// Lookup resolves an export by name.
func (h Handle) Lookup(name string) (Export, bool) { return h.inst().Lookup(name) }

// LookupByDeclaration resolves an export from its entity index without
// a name-table search.
func (h Handle) LookupByDeclaration(e descriptor.EntityIndex) Export {
	return h.inst().LookupByDeclaration(e)
}

// Exports returns the instance's export names.
func (h Handle) Exports() []string { return h.inst().ExportNames() }

// Initialize applies the module's table and memory initializers.
func (h Handle) Initialize(inits *descriptor.Initializers) error {
	return h.inst().Initialize(inits)
}

// FuncRef returns the reference value for function f.
func (h Handle) FuncRef(f descriptor.FuncIndex) substrate.FuncRef {
	return h.inst().FuncRef(f)
}

// MemoryGrow grows memory idx by delta pages, returning the previous
// page count.
func (h Handle) MemoryGrow(idx descriptor.MemoryIndex, delta uint64) (uint64, bool) {
	return h.inst().MemoryGrow(idx, delta)
}

// TableGrow grows table idx by delta elements filled with init,
// returning the previous element count.
func (h Handle) TableGrow(idx descriptor.TableIndex, delta uint32, init substrate.FuncRef) (uint32, bool) {
	return h.inst().TableGrow(idx, delta, init)
}

// TableGet reads table idx at element n.
func (h Handle) TableGet(idx descriptor.TableIndex, n uint32) (substrate.FuncRef, bool) {
	return h.inst().TableGet(idx, n)
}

// TableSet writes table idx at element n.
func (h Handle) TableSet(idx descriptor.TableIndex, n uint32, ref substrate.FuncRef) bool {
	return h.inst().TableSet(idx, n, ref)
}

// TableFill implements the table.fill operator.
func (h Handle) TableFill(idx descriptor.TableIndex, dst uint32, ref substrate.FuncRef, n uint32) error {
	return h.inst().TableFill(idx, dst, ref, n)
}

// TableInit implements the table.init operator.
func (h Handle) TableInit(idx descriptor.TableIndex, elem descriptor.ElemIndex, dst, src, n uint32) error {
	return h.inst().TableInit(idx, elem, dst, src, n)
}

// TableCopy implements the table.copy operator.
func (h Handle) TableCopy(dst, src descriptor.TableIndex, dstOff, srcOff, n uint32) error {
	return h.inst().TableCopy(dst, src, dstOff, srcOff, n)
}

// ElemDrop implements the elem.drop operator.
func (h Handle) ElemDrop(idx descriptor.ElemIndex) { h.inst().ElemDrop(idx) }

// MemoryCopy implements the memory.copy operator.
func (h Handle) MemoryCopy(dst descriptor.MemoryIndex, dstOff uint64, src descriptor.MemoryIndex, srcOff, n uint64) error {
	return h.inst().MemoryCopy(dst, dstOff, src, srcOff, n)
}

// MemoryFill implements the memory.fill operator.
func (h Handle) MemoryFill(idx descriptor.MemoryIndex, dst uint64, val byte, n uint64) error {
	return h.inst().MemoryFill(idx, dst, val, n)
}

// MemoryInit implements the memory.init operator.
func (h Handle) MemoryInit(idx descriptor.MemoryIndex, data descriptor.DataIndex, dst uint64, src, n uint32) error {
	return h.inst().MemoryInit(idx, data, dst, src, n)
}

// DataDrop implements the data.drop operator.
func (h Handle) DataDrop(idx descriptor.DataIndex) { h.inst().DataDrop(idx) }

// DefinedMemory returns defined memory i.
func (h Handle) DefinedMemory(i descriptor.DefinedMemoryIndex) substrate.LinearMemory {
	return h.inst().memories[i]
}

// DefinedTable returns defined table i.
func (h Handle) DefinedTable(i descriptor.DefinedTableIndex) *table.Table {
	return h.inst().tables[i]
}

// MemoryIndexFor finds the defined index of mem by identity.
func (h Handle) MemoryIndexFor(mem substrate.LinearMemory) (descriptor.DefinedMemoryIndex, bool) {
	for i, m := range h.inst().memories {
		if m == mem {
			return descriptor.DefinedMemoryIndex(i), true
		}
	}
	return 0, false
}

// TableIndexFor finds the defined index of t by identity.
func (h Handle) TableIndexFor(t *table.Table) (descriptor.DefinedTableIndex, bool) {
	for i, tab := range h.inst().tables {
		if tab == t {
			return descriptor.DefinedTableIndex(i), true
		}
	}
	return 0, false
}

// Run executes fn under the fault boundary with this instance's trap
// registry and fault handler active. It is the only supported way to
// enter guest code: faults inside fn surface as *trap.Trap errors
// instead of crashing the process.
func (h Handle) Run(fn func()) error {
	inst := h.inst()
	return trap.Run(trap.Context{
		Owner:    h.key,
		Registry: inst.registry,
		Handler:  inst.handler,
	}, fn)
}
