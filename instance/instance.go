package instance

import (
	"fmt"
	"math/bits"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/layout"
	"github.com/wippyai/wasm-substrate/metrics"
	"github.com/wippyai/wasm-substrate/table"
	"github.com/wippyai/wasm-substrate/trap"
)

// Instance is one instantiation of a module: its defined memories and
// tables, its passive segments, and the context region mirroring all
// of it for compiled code. Instances are reached through Handles; the
// struct itself never escapes the package.
//
// Memories and tables hold only *defined* entities. Operations taking
// a module-level index resolve imports through the context region's
// import records and the arena, so an op on an imported memory mutates
// the owning instance and mirrors into the owner's context region.
type Instance struct {
	module  *descriptor.Module
	offsets *layout.Offsets
	arena   *Arena
	key     uint64

	memories []substrate.LinearMemory
	tables   []*table.Table

	// Passive segments are dropped by deleting the map entry, so a
	// dropped or never-present index reads back as an empty segment.
	passiveElements map[descriptor.ElemIndex][]descriptor.FuncIndex
	passiveData     map[descriptor.DataIndex][]byte

	functions   []substrate.FunctionBody
	trampolines map[descriptor.SignatureIndex]substrate.Trampoline

	registry  *trap.Registry
	handler   trap.FaultHandler
	hostState any
	relaxed   bool

	vmctx *VMContext
}

// resolveMemory maps a module-level memory index to the instance that
// defines it. Import records are written at creation and owners must
// outlive importers, so a missing owner is a lifetime bug, not a
// recoverable condition.
func (i *Instance) resolveMemory(idx descriptor.MemoryIndex) (*Instance, descriptor.DefinedMemoryIndex) {
	if d, ok := i.module.DefinedMemoryIndex(idx); ok {
		return i, d
	}
	owner, d := i.vmctx.MemoryImport(idx)
	foreign, ok := i.arena.get(owner)
	if !ok {
		panic(fmt.Sprintf("instance: imported memory %d owned by released instance %d", idx, owner))
	}
	return foreign, d
}

func (i *Instance) resolveTable(idx descriptor.TableIndex) (*Instance, descriptor.DefinedTableIndex) {
	if d, ok := i.module.DefinedTableIndex(idx); ok {
		return i, d
	}
	owner, d := i.vmctx.TableImport(idx)
	foreign, ok := i.arena.get(owner)
	if !ok {
		panic(fmt.Sprintf("instance: imported table %d owned by released instance %d", idx, owner))
	}
	return foreign, d
}

func (i *Instance) resolveGlobal(idx descriptor.GlobalIndex) (*Instance, descriptor.DefinedGlobalIndex) {
	if d, ok := i.module.DefinedGlobalIndex(idx); ok {
		return i, d
	}
	owner, d := i.vmctx.GlobalImport(idx)
	foreign, ok := i.arena.get(owner)
	if !ok {
		panic(fmt.Sprintf("instance: imported global %d owned by released instance %d", idx, owner))
	}
	return foreign, d
}

func (i *Instance) mirrorMemory(d descriptor.DefinedMemoryIndex) {
	base, length := i.memories[d].Definition()
	i.vmctx.SetMemoryDefinition(d, base, length)
}

func (i *Instance) mirrorTable(d descriptor.DefinedTableIndex) {
	base, length := i.tables[d].Definition()
	i.vmctx.SetTableDefinition(d, base, length)
}

// MemoryGrow grows memory idx by delta pages. On success it returns
// the page count before the grow and mirrors the new {base, length}
// into the defining instance's context region; on failure nothing is
// mutated or mirrored.
func (i *Instance) MemoryGrow(idx descriptor.MemoryIndex, delta uint64) (uint64, bool) {
	inst, d := i.resolveMemory(idx)
	old, ok := inst.memories[d].Grow(delta)
	if !ok {
		metrics.MemoryGrows.WithLabelValues(metrics.ResultFailed).Inc()
		return 0, false
	}
	inst.mirrorMemory(d)
	metrics.MemoryGrows.WithLabelValues(metrics.ResultOK).Inc()
	debugf("memory grow: instance=%d memory=%d old_pages=%d delta=%d", inst.key, uint32(idx), old, delta)
	return old, true
}

// TableGrow grows table idx by delta elements, each set to init,
// returning the element count before the grow. The mirror in the
// defining instance's context region is updated only on success.
func (i *Instance) TableGrow(idx descriptor.TableIndex, delta uint32, init substrate.FuncRef) (uint32, bool) {
	inst, d := i.resolveTable(idx)
	old, ok := inst.tables[d].Grow(delta, init)
	if !ok {
		metrics.TableGrows.WithLabelValues(metrics.ResultFailed).Inc()
		return 0, false
	}
	inst.mirrorTable(d)
	metrics.TableGrows.WithLabelValues(metrics.ResultOK).Inc()
	return old, true
}

// TableGet reads element n of table idx. The second result is false
// when n is out of bounds.
func (i *Instance) TableGet(idx descriptor.TableIndex, n uint32) (substrate.FuncRef, bool) {
	inst, d := i.resolveTable(idx)
	return inst.tables[d].Get(n)
}

// TableSet writes element n of table idx and reports whether n was in
// bounds.
func (i *Instance) TableSet(idx descriptor.TableIndex, n uint32, ref substrate.FuncRef) bool {
	inst, d := i.resolveTable(idx)
	return inst.tables[d].Set(n, ref)
}

// TableFill sets n elements of table idx starting at dst to ref. An
// out-of-bounds range traps without writing anything.
func (i *Instance) TableFill(idx descriptor.TableIndex, dst uint32, ref substrate.FuncRef, n uint32) error {
	inst, d := i.resolveTable(idx)
	if !inst.tables[d].Fill(dst, ref, n) {
		return trap.Wasm(trap.Description{Code: trap.TableOutOfBounds})
	}
	return nil
}

// TableInit copies elements [src, src+n) of passive element segment
// elem into table idx at dst. Bounds are checked against both the
// segment and the table before any element is written; a dropped
// segment behaves as empty. Out of bounds traps with no partial write.
func (i *Instance) TableInit(idx descriptor.TableIndex, elem descriptor.ElemIndex, dst, src, n uint32) error {
	seg := i.passiveElements[elem]
	if !rangeOK(uint64(len(seg)), uint64(src), uint64(n)) {
		return trap.Wasm(trap.Description{Code: trap.TableOutOfBounds})
	}

	inst, d := i.resolveTable(idx)
	t := inst.tables[d]
	if !rangeOK(uint64(t.Size()), uint64(dst), uint64(n)) {
		return trap.Wasm(trap.Description{Code: trap.TableOutOfBounds})
	}

	refs := make([]substrate.FuncRef, n)
	for k := uint32(0); k < n; k++ {
		refs[k] = i.FuncRef(seg[src+k])
	}
	t.Init(dst, refs)
	return nil
}

// TableCopy copies n elements from table src at srcOff to table dst at
// dstOff. Overlapping ranges within one table copy as if through an
// intermediate buffer. Out of bounds traps with no partial write.
func (i *Instance) TableCopy(dst, src descriptor.TableIndex, dstOff, srcOff, n uint32) error {
	dstInst, dd := i.resolveTable(dst)
	srcInst, sd := i.resolveTable(src)
	if !table.CopyWithin(dstInst.tables[dd], srcInst.tables[sd], dstOff, srcOff, n) {
		return trap.Wasm(trap.Description{Code: trap.TableOutOfBounds})
	}
	return nil
}

// ElemDrop drops passive element segment idx. Dropping twice, or
// dropping an index the module never declared, is a no-op.
func (i *Instance) ElemDrop(idx descriptor.ElemIndex) {
	delete(i.passiveElements, idx)
}

// MemoryCopy copies n bytes from memory src at srcOff to memory dst at
// dstOff. Overlapping ranges are copied as if through an intermediate
// buffer. Out of bounds traps with no partial write.
func (i *Instance) MemoryCopy(dst descriptor.MemoryIndex, dstOff uint64, src descriptor.MemoryIndex, srcOff, n uint64) error {
	dstInst, dd := i.resolveMemory(dst)
	srcInst, sd := i.resolveMemory(src)
	dstBuf := dstInst.memories[dd].Bytes()
	srcBuf := srcInst.memories[sd].Bytes()
	if !rangeOK(uint64(len(dstBuf)), dstOff, n) || !rangeOK(uint64(len(srcBuf)), srcOff, n) {
		return trap.Wasm(trap.Description{Code: trap.MemoryOutOfBounds})
	}
	copy(dstBuf[dstOff:dstOff+n], srcBuf[srcOff:srcOff+n])
	return nil
}

// MemoryFill sets n bytes of memory idx starting at dst to val. Out of
// bounds traps with no partial write.
func (i *Instance) MemoryFill(idx descriptor.MemoryIndex, dst uint64, val byte, n uint64) error {
	inst, d := i.resolveMemory(idx)
	buf := inst.memories[d].Bytes()
	if !rangeOK(uint64(len(buf)), dst, n) {
		return trap.Wasm(trap.Description{Code: trap.MemoryOutOfBounds})
	}
	for k := range buf[dst : dst+n] {
		buf[dst+uint64(k)] = val
	}
	return nil
}

// MemoryInit copies bytes [src, src+n) of passive data segment data
// into memory idx at dst. A dropped segment behaves as empty. Out of
// bounds traps with no partial write.
func (i *Instance) MemoryInit(idx descriptor.MemoryIndex, data descriptor.DataIndex, dst uint64, src, n uint32) error {
	seg := i.passiveData[data]
	if !rangeOK(uint64(len(seg)), uint64(src), uint64(n)) {
		return trap.Wasm(trap.Description{Code: trap.MemoryOutOfBounds})
	}
	inst, d := i.resolveMemory(idx)
	buf := inst.memories[d].Bytes()
	if !rangeOK(uint64(len(buf)), dst, uint64(n)) {
		return trap.Wasm(trap.Description{Code: trap.MemoryOutOfBounds})
	}
	copy(buf[dst:dst+uint64(n)], seg[src:src+n])
	return nil
}

// DataDrop drops passive data segment idx. Dropping twice is a no-op.
func (i *Instance) DataDrop(idx descriptor.DataIndex) {
	delete(i.passiveData, idx)
}

// FuncRef returns the packed reference for function f. The reference
// names the anyfunc record at index f in this instance's context
// region; the record in turn carries the code index and key of the
// instance that actually defines the function.
func (i *Instance) FuncRef(f descriptor.FuncIndex) substrate.FuncRef {
	if f == descriptor.NullFunc {
		return substrate.NullFuncRef
	}
	return substrate.MakeFuncRef(i.key, uint32(f))
}

// ExportNames returns the module's export names in declaration order.
func (i *Instance) ExportNames() []string {
	return i.module.ExportNames
}

// Lookup resolves an export by name.
func (i *Instance) Lookup(name string) (Export, bool) {
	e, ok := i.module.Exports[name]
	if !ok {
		return nil, false
	}
	return i.LookupByDeclaration(e), true
}

// rangeOK reports whether [off, off+n) fits in size, rejecting
// arithmetic overflow of off+n.
func rangeOK(size, off, n uint64) bool {
	end, carry := bits.Add64(off, n, 0)
	return carry == 0 && end <= size
}
