package substrate

// PageSize is the WebAssembly linear memory page size in bytes.
const PageSize = 65536

// MaxPages is the upper bound on 32-bit linear memory size, in pages.
const MaxPages = 1 << 16

// FunctionBody is one finished compiled function body. Bodies execute
// under the fault-protected entry point; they report failure by
// raising a trap, never by returning an error.
type FunctionBody func(args []uint64) []uint64

// Trampoline adapts raw argument words to one signature's calling
// convention. An instance carries one trampoline per signature.
type Trampoline func(body FunctionBody, args []uint64) []uint64

// FuncRef is the compiled-code representation of a function reference:
// the owning instance's arena key in the high 32 bits and a one-biased
// anyfunc index in the low 32 bits. The zero value is the null
// reference.
type FuncRef uint64

// NullFuncRef is the null function reference.
const NullFuncRef FuncRef = 0

// MakeFuncRef packs an owner key and anyfunc index into a FuncRef.
func MakeFuncRef(owner uint64, anyfunc uint32) FuncRef {
	return FuncRef(owner<<32 | uint64(anyfunc)+1)
}

// IsNull reports whether r is the null reference.
func (r FuncRef) IsNull() bool { return r == NullFuncRef }

// Owner returns the arena key of the instance owning the referenced
// anyfunc record.
func (r FuncRef) Owner() uint64 { return uint64(r) >> 32 }

// Anyfunc returns the index of the referenced anyfunc record in the
// owner's context region.
func (r FuncRef) Anyfunc() uint32 { return uint32(r) - 1 }

// LinearMemory is an opaque growable buffer backing one wasm linear
// memory. Implementations are produced by a MemoryCreator.
type LinearMemory interface {
	// ByteSize returns the number of currently accessible bytes.
	ByteSize() uint64

	// Grow extends the memory by delta pages. It returns the page
	// count before growing, or ok=false with no mutation if the
	// memory cannot grow that far.
	Grow(deltaPages uint64) (oldPages uint64, ok bool)

	// Bytes returns the currently accessible bytes. The slice is
	// invalidated by Grow.
	Bytes() []byte

	// Definition returns the base address and current byte length as
	// mirrored into the context region for compiled code.
	Definition() (base uintptr, length uint64)
}

// MemoryCreator produces linear memories from a page-count policy.
// Creators shared across instances must be safe for concurrent use.
type MemoryCreator interface {
	NewMemory(minPages, maxPages uint64, hasMax bool) (LinearMemory, error)
}
