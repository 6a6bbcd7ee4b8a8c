// Package table provides growable tables of typed references.
//
// Tables never shrink. Growth reallocates the element array, moving
// the base address mirrored into the context region; the instance
// package re-mirrors {base, current_elements} as a unit after every
// successful grow, matching the linear memory discipline.
package table
