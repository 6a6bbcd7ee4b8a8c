package instance

import (
	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/errors"
	"github.com/wippyai/wasm-substrate/trap"
)

// Initialize applies the module's active table and memory segments.
//
// In the default strict mode every segment's bounds are validated
// before the first write, so a failing initializer leaves all tables
// and memories exactly as New produced them. In relaxed bulk-memory
// mode segments apply in declaration order, tables before memories,
// and a trap leaves every earlier segment applied; either way a single
// segment is never partially written.
//
// Traps are returned as *trap.Trap errors rather than raised, since
// initialization runs outside the fault boundary.
func (i *Instance) Initialize(inits *descriptor.Initializers) error {
	if inits == nil {
		return nil
	}
	if !i.relaxed {
		for _, t := range inits.Tables {
			if err := i.checkTableInit(&t); err != nil {
				return err
			}
		}
		for _, m := range inits.Memories {
			if err := i.checkMemoryInit(&m); err != nil {
				return err
			}
		}
	}
	for _, t := range inits.Tables {
		if i.relaxed {
			if err := i.checkTableInit(&t); err != nil {
				return err
			}
		}
		i.applyTableInit(&t)
	}
	for _, m := range inits.Memories {
		if i.relaxed {
			if err := i.checkMemoryInit(&m); err != nil {
				return err
			}
		}
		i.applyMemoryInit(&m)
	}
	return nil
}

// segmentStart resolves an initializer's start: its constant offset
// plus, when present, the value of a base global.
func (i *Instance) segmentStart(base descriptor.GlobalIndex, hasBase bool, offset uint64) uint64 {
	if !hasBase {
		return offset
	}
	owner, d := i.resolveGlobal(base)
	return offset + owner.vmctx.GlobalBits(d)
}

func (i *Instance) checkTableInit(t *descriptor.TableInitializer) error {
	for _, f := range t.Elements {
		if f != descriptor.NullFunc && uint32(f) >= uint32(len(i.module.Functions)) {
			return errors.Link("function", uint32(f), "element segment references unknown function")
		}
	}
	start := i.segmentStart(t.Base, t.HasBase, uint64(t.Offset))
	inst, d := i.resolveTable(t.Table)
	if !rangeOK(uint64(inst.tables[d].Size()), start, uint64(len(t.Elements))) {
		return trap.Wasm(trap.Description{Code: trap.TableOutOfBounds})
	}
	return nil
}

func (i *Instance) applyTableInit(t *descriptor.TableInitializer) {
	start := i.segmentStart(t.Base, t.HasBase, uint64(t.Offset))
	inst, d := i.resolveTable(t.Table)
	refs := make([]substrate.FuncRef, len(t.Elements))
	for k, f := range t.Elements {
		refs[k] = i.FuncRef(f)
	}
	inst.tables[d].Init(uint32(start), refs)
}

func (i *Instance) checkMemoryInit(m *descriptor.MemoryInitializer) error {
	start := i.segmentStart(m.Base, m.HasBase, m.Offset)
	inst, d := i.resolveMemory(m.Memory)
	if !rangeOK(inst.memories[d].ByteSize(), start, uint64(len(m.Data))) {
		return trap.Wasm(trap.Description{Code: trap.MemoryOutOfBounds})
	}
	return nil
}

func (i *Instance) applyMemoryInit(m *descriptor.MemoryInitializer) {
	start := i.segmentStart(m.Base, m.HasBase, m.Offset)
	inst, d := i.resolveMemory(m.Memory)
	copy(inst.memories[d].Bytes()[start:], m.Data)
}
