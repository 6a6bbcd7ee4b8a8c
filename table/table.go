package table

import (
	"unsafe"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
)

// Table is a growable array of typed references. Elements are raw
// FuncRef words, null-initialized; for externref tables the same slots
// carry opaque reference words with the same null convention.
type Table struct {
	elems    []substrate.FuncRef
	elemType descriptor.ValType
	maxElems uint32
	hasMax   bool
}

// New allocates a table sized by plan, filled with null references.
func New(plan descriptor.TablePlan) *Table {
	return &Table{
		elems:    make([]substrate.FuncRef, plan.Minimum),
		elemType: plan.ElemType,
		maxElems: plan.Maximum,
		hasMax:   plan.HasMaximum,
	}
}

// ElemType returns the element type of the table.
func (t *Table) ElemType() descriptor.ValType { return t.elemType }

// Size returns the current element count.
func (t *Table) Size() uint32 { return uint32(len(t.elems)) }

// Grow extends the table by delta elements initialized to init,
// returning the size before growing. On failure nothing is mutated and
// ok is false.
func (t *Table) Grow(delta uint32, init substrate.FuncRef) (oldSize uint32, ok bool) {
	old := t.Size()
	newSize := uint64(old) + uint64(delta)
	if newSize > uint64(^uint32(0)) {
		return 0, false
	}
	if t.hasMax && newSize > uint64(t.maxElems) {
		return 0, false
	}
	grown := make([]substrate.FuncRef, newSize)
	copy(grown, t.elems)
	for i := old; uint64(i) < newSize; i++ {
		grown[i] = init
	}
	t.elems = grown
	return old, true
}

// Get returns element i, or ok=false when i is out of bounds.
func (t *Table) Get(i uint32) (substrate.FuncRef, bool) {
	if i >= t.Size() {
		return substrate.NullFuncRef, false
	}
	return t.elems[i], true
}

// Set stores v at element i, or reports false when i is out of bounds.
func (t *Table) Set(i uint32, v substrate.FuncRef) bool {
	if i >= t.Size() {
		return false
	}
	t.elems[i] = v
	return true
}

// Fill writes val to elements [dst, dst+n). It reports false and
// mutates nothing when the range is out of bounds.
func (t *Table) Fill(dst uint32, val substrate.FuncRef, n uint32) bool {
	if uint64(dst)+uint64(n) > uint64(t.Size()) {
		return false
	}
	for i := dst; i < dst+n; i++ {
		t.elems[i] = val
	}
	return true
}

// Init copies elems into the table starting at dst. It reports false
// and mutates nothing when the destination range is out of bounds.
func (t *Table) Init(dst uint32, elems []substrate.FuncRef) bool {
	if uint64(dst)+uint64(len(elems)) > uint64(t.Size()) {
		return false
	}
	copy(t.elems[dst:], elems)
	return true
}

// CopyWithin copies n elements from src within dst's element array,
// handling overlap. Bounds must be pre-checked by the caller against
// both tables; it reports false when they were not.
func CopyWithin(dst, src *Table, dstOff, srcOff, n uint32) bool {
	if uint64(dstOff)+uint64(n) > uint64(dst.Size()) {
		return false
	}
	if uint64(srcOff)+uint64(n) > uint64(src.Size()) {
		return false
	}
	copy(dst.elems[dstOff:dstOff+n], src.elems[srcOff:srcOff+n])
	return true
}

// Definition returns the base address and current element count pair
// mirrored into the context region.
func (t *Table) Definition() (base uintptr, length uint64) {
	if len(t.elems) == 0 {
		return 0, 0
	}
	return uintptr(unsafe.Pointer(&t.elems[0])), uint64(len(t.elems))
}
