// Package descriptor defines the immutable static shape of a compiled
// WebAssembly module: index spaces, table and memory plans, globals,
// exports and passive segments.
//
// A Module is normally produced by the compiler front end alongside the
// finished machine code; it is consumed read-only by the instance
// package. FromWasm builds one directly from a core module binary for
// tooling and tests that have no compiler in the loop.
//
// # Index spaces
//
// Plain index types (FuncIndex, TableIndex, ...) count imported
// entities first, then locally defined ones. Defined* index types count
// only local entities. Translation between the two spaces is the basis
// of transparent import indirection in the instance package:
//
//	if d, ok := mod.DefinedMemoryIndex(idx); ok {
//	    // idx is defined by this module
//	} else {
//	    // idx resolves through an import record
//	}
package descriptor
