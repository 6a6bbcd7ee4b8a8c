package instance

import (
	"encoding/binary"

	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/layout"
)

// VMContext is the context region compiled code addresses directly:
// a raw byte arena laid out by layout.Offsets. All host-side access
// goes through these accessors; every one of them is offset arithmetic
// over the same bytes the generated code uses, so the two sides cannot
// drift apart without corrupting each other — which is exactly the ABI
// contract.
//
// Multi-word records are written field-by-field in declaration order;
// within the single-thread-per-instance execution model an observer
// never sees a torn record.
type VMContext struct {
	buf []byte
	off *layout.Offsets
}

func newVMContext(off *layout.Offsets) *VMContext {
	return &VMContext{buf: make([]byte, off.ContextSize()), off: off}
}

// Bytes exposes the raw region handed to compiled code.
func (c *VMContext) Bytes() []byte { return c.buf }

// Offsets returns the layout this region was built with.
func (c *VMContext) Offsets() *layout.Offsets { return c.off }

func (c *VMContext) u64(off uint32) uint64 {
	return binary.LittleEndian.Uint64(c.buf[off:])
}

func (c *VMContext) putU64(off uint32, v uint64) {
	binary.LittleEndian.PutUint64(c.buf[off:], v)
}

func (c *VMContext) setHeader(owner uint64) {
	c.putU64(c.off.MagicOffset(), layout.Magic)
	c.putU64(c.off.OwnerOffset(), owner)
}

// Owner returns the arena key of the instance owning this region.
func (c *VMContext) Owner() uint64 {
	return c.u64(c.off.OwnerOffset())
}

func (c *VMContext) validMagic() bool {
	return c.u64(c.off.MagicOffset()) == layout.Magic
}

// SetBuiltin writes slot i of the builtin dispatch array.
func (c *VMContext) SetBuiltin(i uint64, v uint64) {
	c.putU64(c.off.Builtin(i), v)
}

// Builtin reads slot i of the builtin dispatch array.
func (c *VMContext) Builtin(i uint64) uint64 {
	return c.u64(c.off.Builtin(i))
}

// SetMemoryDefinition mirrors a linear memory's {base, current_length}
// pair for defined memory i.
func (c *VMContext) SetMemoryDefinition(i descriptor.DefinedMemoryIndex, base uintptr, length uint64) {
	c.putU64(c.off.MemoryDefinitionBase(i), uint64(base))
	c.putU64(c.off.MemoryDefinitionLength(i), length)
}

// MemoryDefinition reads the mirrored {base, current_length} pair of
// defined memory i.
func (c *VMContext) MemoryDefinition(i descriptor.DefinedMemoryIndex) (base uintptr, length uint64) {
	off := c.off.MemoryDefinition(i)
	return uintptr(c.u64(off)), c.u64(off + 8)
}

// SetTableDefinition mirrors a table's {base, current_elements} pair
// for defined table i.
func (c *VMContext) SetTableDefinition(i descriptor.DefinedTableIndex, base uintptr, length uint64) {
	off := c.off.TableDefinition(i)
	c.putU64(off, uint64(base))
	c.putU64(off+8, length)
}

// TableDefinition reads the mirrored {base, current_elements} pair of
// defined table i.
func (c *VMContext) TableDefinition(i descriptor.DefinedTableIndex) (base uintptr, length uint64) {
	off := c.off.TableDefinition(i)
	return uintptr(c.u64(off)), c.u64(off + 8)
}

// SetGlobalBits writes the low word of defined global i.
func (c *VMContext) SetGlobalBits(i descriptor.DefinedGlobalIndex, bits uint64) {
	c.putU64(c.off.GlobalDefinition(i), bits)
}

// GlobalBits reads the low word of defined global i.
func (c *VMContext) GlobalBits(i descriptor.DefinedGlobalIndex) uint64 {
	return c.u64(c.off.GlobalDefinition(i))
}

// SetAnyfunc writes the indirect-call record for function i:
// {code, type id, owning context key}.
func (c *VMContext) SetAnyfunc(i descriptor.FuncIndex, code, typeID, owner uint64) {
	off := c.off.Anyfunc(i)
	c.putU64(off, code)
	c.putU64(off+8, typeID)
	c.putU64(off+16, owner)
}

// Anyfunc reads the indirect-call record for function i.
func (c *VMContext) Anyfunc(i descriptor.FuncIndex) (code, typeID, owner uint64) {
	off := c.off.Anyfunc(i)
	return c.u64(off), c.u64(off + 8), c.u64(off + 16)
}

// SetFunctionImport writes imported function record i: {code index in
// the owner's function table, owner key}.
func (c *VMContext) SetFunctionImport(i descriptor.FuncIndex, code, owner uint64) {
	off := c.off.FunctionImport(i)
	c.putU64(off, code)
	c.putU64(off+8, owner)
}

// FunctionImport reads imported function record i.
func (c *VMContext) FunctionImport(i descriptor.FuncIndex) (code, owner uint64) {
	off := c.off.FunctionImport(i)
	return c.u64(off), c.u64(off + 8)
}

// SetTableImport writes imported table record i: {owner key, defined
// index within the owner}.
func (c *VMContext) SetTableImport(i descriptor.TableIndex, owner uint64, def descriptor.DefinedTableIndex) {
	off := c.off.TableImport(i)
	c.putU64(off, owner)
	c.putU64(off+8, uint64(def))
}

// TableImport reads imported table record i.
func (c *VMContext) TableImport(i descriptor.TableIndex) (owner uint64, def descriptor.DefinedTableIndex) {
	off := c.off.TableImport(i)
	return c.u64(off), descriptor.DefinedTableIndex(c.u64(off + 8))
}

// SetMemoryImport writes imported memory record i.
func (c *VMContext) SetMemoryImport(i descriptor.MemoryIndex, owner uint64, def descriptor.DefinedMemoryIndex) {
	off := c.off.MemoryImport(i)
	c.putU64(off, owner)
	c.putU64(off+8, uint64(def))
}

// MemoryImport reads imported memory record i.
func (c *VMContext) MemoryImport(i descriptor.MemoryIndex) (owner uint64, def descriptor.DefinedMemoryIndex) {
	off := c.off.MemoryImport(i)
	return c.u64(off), descriptor.DefinedMemoryIndex(c.u64(off + 8))
}

// SetGlobalImport writes imported global record i.
func (c *VMContext) SetGlobalImport(i descriptor.GlobalIndex, owner uint64, def descriptor.DefinedGlobalIndex) {
	off := c.off.GlobalImport(i)
	c.putU64(off, owner)
	c.putU64(off+8, uint64(def))
}

// GlobalImport reads imported global record i.
func (c *VMContext) GlobalImport(i descriptor.GlobalIndex) (owner uint64, def descriptor.DefinedGlobalIndex) {
	off := c.off.GlobalImport(i)
	return c.u64(off), descriptor.DefinedGlobalIndex(c.u64(off + 8))
}
