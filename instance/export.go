package instance

import (
	"fmt"

	"github.com/wippyai/wasm-substrate/descriptor"
)

// Export is a resolved export: the context region holding the entity's
// live definition, the byte offset of that definition within it, and
// the key of the instance that owns it. For imported entities the
// context and owner are the defining instance's, so re-exports resolve
// to the original definition.
type Export interface {
	Kind() descriptor.EntityKind
}

// ExportFunction locates a function's anyfunc record.
type ExportFunction struct {
	Context   *VMContext
	Owner     uint64
	Anyfunc   uint32 // byte offset of the anyfunc record in Context
	Signature descriptor.SignatureIndex
}

func (ExportFunction) Kind() descriptor.EntityKind { return descriptor.EntityFunc }

// ExportTable locates a table's {base, current_elements} definition.
type ExportTable struct {
	Context    *VMContext
	Owner      uint64
	Definition uint32 // byte offset of the definition in Context
	Plan       descriptor.TablePlan
}

func (ExportTable) Kind() descriptor.EntityKind { return descriptor.EntityTable }

// ExportMemory locates a memory's {base, current_length} definition.
type ExportMemory struct {
	Context    *VMContext
	Owner      uint64
	Definition uint32
	Plan       descriptor.MemoryPlan
}

func (ExportMemory) Kind() descriptor.EntityKind { return descriptor.EntityMemory }

// ExportGlobal locates a global's value slot.
type ExportGlobal struct {
	Context    *VMContext
	Owner      uint64
	Definition uint32
	Global     descriptor.Global
}

func (ExportGlobal) Kind() descriptor.EntityKind { return descriptor.EntityGlobal }

// LookupByDeclaration resolves entity e to its live definition. For
// defined entities that is a slot in this instance's context region;
// for imported ones the import record is followed to the defining
// instance, so the returned Export always points at the authoritative
// definition.
func (i *Instance) LookupByDeclaration(e descriptor.EntityIndex) Export {
	switch e.Kind {
	case descriptor.EntityFunc:
		f := descriptor.FuncIndex(e.Index)
		sig := i.module.Functions[f]
		owner, fi := i, f
		if i.module.IsImportedFunction(f) {
			code, key := i.vmctx.FunctionImport(f)
			if key != i.key {
				def, ok := i.arena.get(key)
				if !ok {
					panic(fmt.Sprintf("instance: imported function %d owned by released instance %d", f, key))
				}
				// Bodies past the owner's defined functions have no
				// anyfunc record there; the importer's record stays
				// authoritative for those.
				if uint32(code) < def.module.NumDefinedFunctions() {
					owner = def
					fi = descriptor.FuncIndex(def.module.NumImportedFunctions + uint32(code))
				}
			}
		}
		return ExportFunction{
			Context:   owner.vmctx,
			Owner:     owner.key,
			Anyfunc:   owner.offsets.Anyfunc(fi),
			Signature: sig,
		}
	case descriptor.EntityTable:
		idx := descriptor.TableIndex(e.Index)
		inst, d := i.resolveTable(idx)
		return ExportTable{
			Context:    inst.vmctx,
			Owner:      inst.key,
			Definition: inst.offsets.TableDefinition(d),
			Plan:       i.module.TablePlans[idx],
		}
	case descriptor.EntityMemory:
		idx := descriptor.MemoryIndex(e.Index)
		inst, d := i.resolveMemory(idx)
		return ExportMemory{
			Context:    inst.vmctx,
			Owner:      inst.key,
			Definition: inst.offsets.MemoryDefinition(d),
			Plan:       i.module.MemoryPlans[idx],
		}
	case descriptor.EntityGlobal:
		idx := descriptor.GlobalIndex(e.Index)
		inst, d := i.resolveGlobal(idx)
		return ExportGlobal{
			Context:    inst.vmctx,
			Owner:      inst.key,
			Definition: inst.offsets.GlobalDefinition(d),
			Global:     i.module.Globals[idx],
		}
	default:
		panic(fmt.Sprintf("instance: unknown entity kind %d", e.Kind))
	}
}
