package layout

import (
	"testing"

	"github.com/wippyai/wasm-substrate/descriptor"
)

func testModule() *descriptor.Module {
	return &descriptor.Module{
		NumImportedFunctions: 2,
		NumImportedTables:    1,
		NumImportedMemories:  1,
		NumImportedGlobals:   1,
		Functions:            make([]descriptor.SignatureIndex, 5), // 2 imported + 3 defined
		TablePlans:           make([]descriptor.TablePlan, 3),      // 1 imported + 2 defined
		MemoryPlans:          make([]descriptor.MemoryPlan, 2),     // 1 imported + 1 defined
		Globals:              make([]descriptor.Global, 4),         // 1 imported + 3 defined
	}
}

func TestSectionOrder(t *testing.T) {
	o := New(testModule())

	if got := o.BuiltinsBegin(); got != HeaderSize {
		t.Errorf("builtins begin at %d, want %d", got, HeaderSize)
	}

	// Sections must be laid out in a fixed order with no gaps.
	wantFuncImports := uint32(HeaderSize) + uint32(NumBuiltins)*BuiltinEntrySize
	if got := o.FunctionImport(0); got != wantFuncImports {
		t.Errorf("function imports begin at %d, want %d", got, wantFuncImports)
	}
	if got := o.TableImport(0); got != o.FunctionImport(0)+2*FunctionImportSize {
		t.Errorf("table imports begin at %d", got)
	}
	if got := o.MemoryImport(0); got != o.TableImport(0)+1*TableImportSize {
		t.Errorf("memory imports begin at %d", got)
	}
	if got := o.GlobalImport(0); got != o.MemoryImport(0)+1*MemoryImportSize {
		t.Errorf("global imports begin at %d", got)
	}
	if got := o.TableDefinition(0); got != o.GlobalImport(0)+1*GlobalImportSize {
		t.Errorf("table definitions begin at %d", got)
	}
	if got := o.MemoryDefinition(0); got != o.TableDefinition(0)+2*TableDefinitionSize {
		t.Errorf("memory definitions begin at %d", got)
	}
	if got := o.GlobalDefinition(0); got != o.MemoryDefinition(0)+1*MemoryDefinitionSize {
		t.Errorf("global definitions begin at %d", got)
	}
	if got := o.AnyfuncsBegin(); got != o.GlobalDefinition(0)+3*GlobalDefinitionSize {
		t.Errorf("anyfuncs begin at %d", got)
	}
	if got := o.ContextSize(); got != o.AnyfuncsBegin()+5*AnyfuncSize {
		t.Errorf("ContextSize() = %d, want %d", got, o.AnyfuncsBegin()+5*AnyfuncSize)
	}
}

func TestRecordStride(t *testing.T) {
	o := New(testModule())

	if got := o.Anyfunc(3) - o.Anyfunc(2); got != AnyfuncSize {
		t.Errorf("anyfunc stride = %d, want %d", got, AnyfuncSize)
	}
	if got := o.TableDefinition(1) - o.TableDefinition(0); got != TableDefinitionSize {
		t.Errorf("table definition stride = %d, want %d", got, TableDefinitionSize)
	}
	if got := o.Builtin(1) - o.Builtin(0); got != BuiltinEntrySize {
		t.Errorf("builtin stride = %d, want %d", got, BuiltinEntrySize)
	}
}

func TestMemoryDefinitionFields(t *testing.T) {
	o := New(testModule())
	if got := o.MemoryDefinitionBase(0); got != o.MemoryDefinition(0) {
		t.Errorf("base field at %d, want %d", got, o.MemoryDefinition(0))
	}
	if got := o.MemoryDefinitionLength(0); got != o.MemoryDefinition(0)+8 {
		t.Errorf("length field at %d, want %d", got, o.MemoryDefinition(0)+8)
	}
}

func TestEmptyModule(t *testing.T) {
	o := New(&descriptor.Module{})
	want := uint32(HeaderSize) + uint32(NumBuiltins)*BuiltinEntrySize
	if got := o.ContextSize(); got != want {
		t.Errorf("empty module ContextSize() = %d, want %d", got, want)
	}
}

func TestHeaderSlots(t *testing.T) {
	o := New(&descriptor.Module{})
	if o.MagicOffset() != 0 {
		t.Errorf("magic at %d, want 0", o.MagicOffset())
	}
	if o.OwnerOffset() != 8 {
		t.Errorf("owner at %d, want 8", o.OwnerOffset())
	}
}
