package descriptor

// Index spaces. Plain index types count imported entities first, then
// defined ones; Defined* types index only the entities defined by the
// module itself.
type (
	// FuncIndex indexes the combined imported+defined function space.
	FuncIndex uint32
	// TableIndex indexes the combined table space.
	TableIndex uint32
	// MemoryIndex indexes the combined linear memory space.
	MemoryIndex uint32
	// GlobalIndex indexes the combined global space.
	GlobalIndex uint32

	// DefinedTableIndex indexes tables defined by this module.
	DefinedTableIndex uint32
	// DefinedMemoryIndex indexes memories defined by this module.
	DefinedMemoryIndex uint32
	// DefinedGlobalIndex indexes globals defined by this module.
	DefinedGlobalIndex uint32

	// ElemIndex identifies an element segment.
	ElemIndex uint32
	// DataIndex identifies a data segment.
	DataIndex uint32
	// SignatureIndex identifies a function signature (type section entry).
	SignatureIndex uint32
)

// NullFunc is the reserved function index used for null entries in
// element segments.
const NullFunc FuncIndex = 0xFFFFFFFF

// ValType is a WebAssembly value type, using the binary-format
// encodings.
type ValType byte

const (
	I32       ValType = 0x7F
	I64       ValType = 0x7E
	F32       ValType = 0x7D
	F64       ValType = 0x7C
	V128      ValType = 0x7B
	FuncRef   ValType = 0x70
	ExternRef ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	case FuncRef:
		return "funcref"
	case ExternRef:
		return "externref"
	}
	return "unknown"
}

// EntityKind discriminates the members of an EntityIndex.
type EntityKind byte

const (
	EntityFunc EntityKind = iota
	EntityTable
	EntityMemory
	EntityGlobal
)

func (k EntityKind) String() string {
	switch k {
	case EntityFunc:
		return "function"
	case EntityTable:
		return "table"
	case EntityMemory:
		return "memory"
	case EntityGlobal:
		return "global"
	}
	return "unknown"
}

// EntityIndex names one importable/exportable entity in a module.
type EntityIndex struct {
	Kind  EntityKind
	Index uint32
}

// FuncEntity returns the EntityIndex for a function.
func FuncEntity(i FuncIndex) EntityIndex { return EntityIndex{EntityFunc, uint32(i)} }

// TableEntity returns the EntityIndex for a table.
func TableEntity(i TableIndex) EntityIndex { return EntityIndex{EntityTable, uint32(i)} }

// MemoryEntity returns the EntityIndex for a memory.
func MemoryEntity(i MemoryIndex) EntityIndex { return EntityIndex{EntityMemory, uint32(i)} }

// GlobalEntity returns the EntityIndex for a global.
func GlobalEntity(i GlobalIndex) EntityIndex { return EntityIndex{EntityGlobal, uint32(i)} }

// MemoryPlan is the static shape of one linear memory, in pages.
type MemoryPlan struct {
	Minimum    uint64
	Maximum    uint64
	HasMaximum bool
	Shared     bool
}

// TablePlan is the static shape of one table, in elements.
type TablePlan struct {
	ElemType   ValType
	Minimum    uint32
	Maximum    uint32
	HasMaximum bool
}

// GlobalInitKind discriminates global initializers. Only infallible
// initializers exist at this layer.
type GlobalInitKind byte

const (
	// InitConst initializes from a constant bit pattern.
	InitConst GlobalInitKind = iota
	// InitGetGlobal initializes from an imported global's value.
	InitGetGlobal
	// InitRefNull initializes a reference global to null.
	InitRefNull
	// InitRefFunc initializes a reference global to a function
	// reference.
	InitRefFunc
)

// GlobalInit is an infallible global initializer.
type GlobalInit struct {
	Kind   GlobalInitKind
	Bits   uint64
	Global GlobalIndex
	Func   FuncIndex
}

// ConstInit returns a constant-bits initializer.
func ConstInit(bits uint64) GlobalInit { return GlobalInit{Kind: InitConst, Bits: bits} }

// GetGlobalInit returns an initializer copying an imported global.
func GetGlobalInit(g GlobalIndex) GlobalInit { return GlobalInit{Kind: InitGetGlobal, Global: g} }

// Global is the static description of one global.
type Global struct {
	Type    ValType
	Mutable bool
	Init    GlobalInit
}

// Import names one import the module requires.
type Import struct {
	Module string
	Name   string
	Entity EntityIndex
}

// Module is the immutable static shape of a compiled module. It is
// consumed read-only by the instance package; one Module may back any
// number of instances.
type Module struct {
	Name string

	NumImportedFunctions uint32
	NumImportedTables    uint32
	NumImportedMemories  uint32
	NumImportedGlobals   uint32

	// Functions maps every function (imported first) to its signature.
	Functions []SignatureIndex

	// SignatureIDs holds the shared type identity for each signature
	// index, as produced by the external signature registry. Indirect
	// calls compare these ids.
	SignatureIDs []uint64

	TablePlans  []TablePlan
	MemoryPlans []MemoryPlan
	Globals     []Global

	Imports []Import

	// ExportNames preserves export order; Exports resolves names.
	ExportNames []string
	Exports     map[string]EntityIndex

	// Passive segments, applied only via table.init / memory.init.
	PassiveElements map[ElemIndex][]FuncIndex
	PassiveData     map[DataIndex][]byte
}

// NumDefinedFunctions returns the count of functions defined locally.
func (m *Module) NumDefinedFunctions() uint32 {
	return uint32(len(m.Functions)) - m.NumImportedFunctions
}

// NumDefinedTables returns the count of tables defined locally.
func (m *Module) NumDefinedTables() uint32 {
	return uint32(len(m.TablePlans)) - m.NumImportedTables
}

// NumDefinedMemories returns the count of memories defined locally.
func (m *Module) NumDefinedMemories() uint32 {
	return uint32(len(m.MemoryPlans)) - m.NumImportedMemories
}

// NumDefinedGlobals returns the count of globals defined locally.
func (m *Module) NumDefinedGlobals() uint32 {
	return uint32(len(m.Globals)) - m.NumImportedGlobals
}

// IsImportedFunction reports whether i refers to an imported function.
func (m *Module) IsImportedFunction(i FuncIndex) bool {
	return uint32(i) < m.NumImportedFunctions
}

// DefinedTableIndex translates a table index into the defined space,
// or reports ok=false for an imported table.
func (m *Module) DefinedTableIndex(i TableIndex) (DefinedTableIndex, bool) {
	if uint32(i) < m.NumImportedTables {
		return 0, false
	}
	return DefinedTableIndex(uint32(i) - m.NumImportedTables), true
}

// DefinedMemoryIndex translates a memory index into the defined space,
// or reports ok=false for an imported memory.
func (m *Module) DefinedMemoryIndex(i MemoryIndex) (DefinedMemoryIndex, bool) {
	if uint32(i) < m.NumImportedMemories {
		return 0, false
	}
	return DefinedMemoryIndex(uint32(i) - m.NumImportedMemories), true
}

// DefinedGlobalIndex translates a global index into the defined space,
// or reports ok=false for an imported global.
func (m *Module) DefinedGlobalIndex(i GlobalIndex) (DefinedGlobalIndex, bool) {
	if uint32(i) < m.NumImportedGlobals {
		return 0, false
	}
	return DefinedGlobalIndex(uint32(i) - m.NumImportedGlobals), true
}

// TableIndexOf translates back from the defined space.
func (m *Module) TableIndexOf(d DefinedTableIndex) TableIndex {
	return TableIndex(m.NumImportedTables + uint32(d))
}

// MemoryIndexOf translates back from the defined space.
func (m *Module) MemoryIndexOf(d DefinedMemoryIndex) MemoryIndex {
	return MemoryIndex(m.NumImportedMemories + uint32(d))
}

// GlobalIndexOf translates back from the defined space.
func (m *Module) GlobalIndexOf(d DefinedGlobalIndex) GlobalIndex {
	return GlobalIndex(m.NumImportedGlobals + uint32(d))
}

// SignatureID returns the shared type identity of function i, or 0 if
// signature ids were not supplied.
func (m *Module) SignatureID(i FuncIndex) uint64 {
	sig := m.Functions[i]
	if int(sig) < len(m.SignatureIDs) {
		return m.SignatureIDs[sig]
	}
	return 0
}

// AddExport appends an export, preserving declaration order.
func (m *Module) AddExport(name string, e EntityIndex) {
	if m.Exports == nil {
		m.Exports = make(map[string]EntityIndex)
	}
	if _, dup := m.Exports[name]; !dup {
		m.ExportNames = append(m.ExportNames, name)
	}
	m.Exports[name] = e
}

// TableInitializer is one active element segment.
type TableInitializer struct {
	Table TableIndex
	// Base, when HasBase, is a global whose value is added to Offset.
	Base     GlobalIndex
	HasBase  bool
	Offset   uint32
	Elements []FuncIndex
}

// MemoryInitializer is one active data segment.
type MemoryInitializer struct {
	Memory  MemoryIndex
	Base    GlobalIndex
	HasBase bool
	Offset  uint64
	Data    []byte
}

// Initializers bundles the content applied by Instance.Initialize.
type Initializers struct {
	Tables   []TableInitializer
	Memories []MemoryInitializer
}
