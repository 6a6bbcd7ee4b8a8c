package instance

import "github.com/wippyai/wasm-substrate/descriptor"

// FunctionImport supplies one imported function. Code indexes the
// owning instance's function-body table. Owner is the owning
// instance's arena key; zero means the body lives in the importing
// instance's own table, which is how host functions are wired in
// without a dedicated host instance.
type FunctionImport struct {
	Code  uint64
	Owner uint64
}

// TableImport names a defined table inside the owning instance.
type TableImport struct {
	Owner uint64
	Table descriptor.DefinedTableIndex
}

// MemoryImport names a defined memory inside the owning instance.
type MemoryImport struct {
	Owner  uint64
	Memory descriptor.DefinedMemoryIndex
}

// GlobalImport names a defined global inside the owning instance.
type GlobalImport struct {
	Owner  uint64
	Global descriptor.DefinedGlobalIndex
}

// Imports carries the resolved imports for instantiation, one slice
// per index space, ordered to match the module's import declarations.
// Owners must stay alive for as long as the importing instance does.
type Imports struct {
	Functions []FunctionImport
	Tables    []TableImport
	Memories  []MemoryImport
	Globals   []GlobalImport
}
