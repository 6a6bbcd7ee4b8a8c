// Package layout computes the byte offset of every field inside a
// module's context region.
//
// The context region is the raw memory block compiled code reads and
// writes directly via pointer+offset: memory and table base/length
// pairs, global values, import records, the anyfunc array and the
// builtin dispatch array. Its layout is therefore an ABI contract
// between this runtime and the code generator — both sides must derive
// identical offsets from the same module shape, and a disagreement is
// silent memory corruption, not a detectable error.
package layout
