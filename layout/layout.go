package layout

import (
	"github.com/wippyai/wasm-substrate/descriptor"
)

// Record sizes inside the context region, in bytes. These are ABI
// constants: compiled code addresses fields with them and changing any
// of them is an ABI break, not a refactor.
const (
	// Magic and owner-key slots at the start of every context region.
	HeaderSize = 16

	// FunctionImportSize covers {code u64, owner u64}.
	FunctionImportSize = 16
	// TableImportSize covers {owner u64, defined index u64}.
	TableImportSize = 16
	// MemoryImportSize covers {owner u64, defined index u64}.
	MemoryImportSize = 16
	// GlobalImportSize covers {owner u64, defined index u64}.
	GlobalImportSize = 16

	// TableDefinitionSize covers {base u64, current_elements u64}.
	TableDefinitionSize = 16
	// MemoryDefinitionSize covers {base u64, current_length u64}.
	MemoryDefinitionSize = 16
	// GlobalDefinitionSize is 16 bytes so v128 globals fit.
	GlobalDefinitionSize = 16

	// AnyfuncSize covers {code u64, type id u64, owner u64}.
	AnyfuncSize = 24

	// BuiltinEntrySize is one slot of the builtin dispatch array.
	BuiltinEntrySize = 8
)

// Magic is stored in the first context-region slot so code recovering
// an instance from a raw region can sanity-check the pointer.
const Magic uint64 = 0x7762_7573_7472_7465 // "wbsustrte"

// Builtin function indices for the dispatch array exposed to compiled
// code.
const (
	BuiltinMemoryGrow uint64 = iota
	BuiltinTableGrow
	BuiltinTableCopy
	BuiltinTableInit
	BuiltinElemDrop
	BuiltinMemoryCopy
	BuiltinMemoryFill
	BuiltinMemoryInit
	BuiltinDataDrop
	NumBuiltins
)

// Offsets computes the byte offset of every field in a module's
// context region. One Offsets value is derived per Module and shared
// by all of its instances; the values are an ABI contract with
// compiled code, and a mismatch is silent corruption rather than a
// checked error.
type Offsets struct {
	NumImportedFunctions uint32
	NumImportedTables    uint32
	NumImportedMemories  uint32
	NumImportedGlobals   uint32
	NumDefinedTables     uint32
	NumDefinedMemories   uint32
	NumDefinedGlobals    uint32
	NumFunctions         uint32

	builtinsBegin          uint32
	importedFunctionsBegin uint32
	importedTablesBegin    uint32
	importedMemoriesBegin  uint32
	importedGlobalsBegin   uint32
	tablesBegin            uint32
	memoriesBegin          uint32
	globalsBegin           uint32
	anyfuncsBegin          uint32
	size                   uint32
}

// New computes the offset table for m.
func New(m *descriptor.Module) *Offsets {
	o := &Offsets{
		NumImportedFunctions: m.NumImportedFunctions,
		NumImportedTables:    m.NumImportedTables,
		NumImportedMemories:  m.NumImportedMemories,
		NumImportedGlobals:   m.NumImportedGlobals,
		NumDefinedTables:     m.NumDefinedTables(),
		NumDefinedMemories:   m.NumDefinedMemories(),
		NumDefinedGlobals:    m.NumDefinedGlobals(),
		NumFunctions:         uint32(len(m.Functions)),
	}

	next := uint32(HeaderSize)
	o.builtinsBegin = next
	next += uint32(NumBuiltins) * BuiltinEntrySize
	o.importedFunctionsBegin = next
	next += o.NumImportedFunctions * FunctionImportSize
	o.importedTablesBegin = next
	next += o.NumImportedTables * TableImportSize
	o.importedMemoriesBegin = next
	next += o.NumImportedMemories * MemoryImportSize
	o.importedGlobalsBegin = next
	next += o.NumImportedGlobals * GlobalImportSize
	o.tablesBegin = next
	next += o.NumDefinedTables * TableDefinitionSize
	o.memoriesBegin = next
	next += o.NumDefinedMemories * MemoryDefinitionSize
	o.globalsBegin = next
	next += o.NumDefinedGlobals * GlobalDefinitionSize
	o.anyfuncsBegin = next
	next += o.NumFunctions * AnyfuncSize
	o.size = next

	return o
}

// ContextSize returns the total byte size of the context region.
func (o *Offsets) ContextSize() uint32 { return o.size }

// MagicOffset returns the offset of the magic slot.
func (o *Offsets) MagicOffset() uint32 { return 0 }

// OwnerOffset returns the offset of the owning instance's arena key.
func (o *Offsets) OwnerOffset() uint32 { return 8 }

// Builtin returns the offset of slot i of the builtin dispatch array.
func (o *Offsets) Builtin(i uint64) uint32 {
	return o.builtinsBegin + uint32(i)*BuiltinEntrySize
}

// BuiltinsBegin returns the offset of the builtin dispatch array.
func (o *Offsets) BuiltinsBegin() uint32 { return o.builtinsBegin }

// FunctionImport returns the offset of imported function record i.
func (o *Offsets) FunctionImport(i descriptor.FuncIndex) uint32 {
	return o.importedFunctionsBegin + uint32(i)*FunctionImportSize
}

// TableImport returns the offset of imported table record i.
func (o *Offsets) TableImport(i descriptor.TableIndex) uint32 {
	return o.importedTablesBegin + uint32(i)*TableImportSize
}

// MemoryImport returns the offset of imported memory record i.
func (o *Offsets) MemoryImport(i descriptor.MemoryIndex) uint32 {
	return o.importedMemoriesBegin + uint32(i)*MemoryImportSize
}

// GlobalImport returns the offset of imported global record i.
func (o *Offsets) GlobalImport(i descriptor.GlobalIndex) uint32 {
	return o.importedGlobalsBegin + uint32(i)*GlobalImportSize
}

// TableDefinition returns the offset of defined table definition i.
func (o *Offsets) TableDefinition(i descriptor.DefinedTableIndex) uint32 {
	return o.tablesBegin + uint32(i)*TableDefinitionSize
}

// MemoryDefinition returns the offset of defined memory definition i.
func (o *Offsets) MemoryDefinition(i descriptor.DefinedMemoryIndex) uint32 {
	return o.memoriesBegin + uint32(i)*MemoryDefinitionSize
}

// MemoryDefinitionBase returns the offset of the base field of defined
// memory i.
func (o *Offsets) MemoryDefinitionBase(i descriptor.DefinedMemoryIndex) uint32 {
	return o.MemoryDefinition(i)
}

// MemoryDefinitionLength returns the offset of the current_length
// field of defined memory i.
func (o *Offsets) MemoryDefinitionLength(i descriptor.DefinedMemoryIndex) uint32 {
	return o.MemoryDefinition(i) + 8
}

// GlobalDefinition returns the offset of defined global i.
func (o *Offsets) GlobalDefinition(i descriptor.DefinedGlobalIndex) uint32 {
	return o.globalsBegin + uint32(i)*GlobalDefinitionSize
}

// Anyfunc returns the offset of the anyfunc record for function i.
func (o *Offsets) Anyfunc(i descriptor.FuncIndex) uint32 {
	return o.anyfuncsBegin + uint32(i)*AnyfuncSize
}

// AnyfuncsBegin returns the offset of the anyfunc array.
func (o *Offsets) AnyfuncsBegin() uint32 { return o.anyfuncsBegin }
