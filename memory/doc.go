// Package memory provides growable linear memories and the creator
// capability through which instances obtain them.
//
// A linear memory can only grow, never shrink. Growth reallocates the
// backing buffer, which moves the base address; the instance package
// re-mirrors {base, current_length} into the context region as a unit
// so compiled code never observes a new length with a stale base.
//
// Embedders with pooling or mmap-backed allocation strategies supply
// their own substrate.MemoryCreator; DefaultCreator is the plain
// heap-backed policy.
package memory
