// Package instance creates and manages live module instances.
//
// An instance owns the entities its module defines (linear memories,
// tables, globals, passive segments) plus a context region: a raw byte
// arena, laid out by package layout, that mirrors every definition in
// the exact form compiled code consumes. The mirror discipline is
// mutate-then-mirror: the host-side object changes first and the
// context region is updated before the operation returns, so compiled
// code never observes a stale base or length after a successful grow.
//
// # Arena and handles
//
// Instances live in an Arena and are referenced by opaque uint64 keys.
// Handle is the owning reference the embedder holds; handles are
// cheap value types, clone freely, and exactly one Release retires the
// instance. Cross-instance structures (import records, anyfunc
// records, function references) carry arena keys rather than pointers,
// and resolve them through the arena on use.
//
// # Imports
//
// The memories and tables slices hold defined entities only. An
// operation addressed with a module-level index first consults the
// module descriptor; if the index is imported, the import record in
// the context region names the owning instance's key and defined
// index, and the operation is carried out on the owner, mirroring into
// the owner's context region.
//
// # Entering guest code
//
// Handle.Run wraps a call in the trap package's fault boundary with
// this instance's trap registry and fault handler; Handle.Invoke adds
// export lookup and indirect dispatch on top. Bulk operations called
// from the host (TableInit, MemoryCopy, ...) return *trap.Trap errors
// directly; the same operations reached from guest code raise instead.
package instance
