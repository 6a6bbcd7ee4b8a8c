package instance

import (
	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/errors"
	"github.com/wippyai/wasm-substrate/layout"
	"github.com/wippyai/wasm-substrate/memory"
	"github.com/wippyai/wasm-substrate/metrics"
	"github.com/wippyai/wasm-substrate/table"
	"github.com/wippyai/wasm-substrate/trap"
)

// Config carries everything New needs beyond the arena. Module is
// required; every other field has a usable zero value.
type Config struct {
	// Module is the descriptor to instantiate.
	Module *descriptor.Module

	// Offsets is the context-region layout. Derived from Module when
	// nil; pass a shared value when instantiating the same module many
	// times.
	Offsets *layout.Offsets

	// Functions holds the bodies of the module's defined functions,
	// indexed by defined function index. Host functions imported with
	// a zero owner key are appended here past the defined ones.
	Functions []substrate.FunctionBody

	// Trampolines adapt raw argument buffers per signature.
	Trampolines map[descriptor.SignatureIndex]substrate.Trampoline

	// Imports resolves the module's import declarations.
	Imports Imports

	// MemoryCreator builds the defined linear memories.
	// memory.DefaultCreator is used when nil.
	MemoryCreator substrate.MemoryCreator

	// HostState is an opaque embedder value retrievable from the
	// handle.
	HostState any

	// TrapRegistry maps fault program counters to trap descriptions.
	TrapRegistry *trap.Registry

	// FaultHandler gets the first look at faults raised while this
	// instance is on the call stack.
	FaultHandler trap.FaultHandler

	// RelaxedBulkMemory makes segment initializers apply in order with
	// earlier segments remaining applied when a later one traps,
	// instead of pre-validating every segment up front.
	RelaxedBulkMemory bool
}

// New instantiates cfg.Module into the arena and returns an owning
// handle. Import resolution failures surface as link errors and
// memory allocation failures as resource errors; once those two
// fallible stages pass, the remaining construction cannot fail and the
// instance is registered. Initializers are not applied here; call
// Handle.Initialize separately so the embedder controls when table and
// memory contents become visible.
func New(a *Arena, cfg Config) (Handle, error) {
	m := cfg.Module
	if m == nil {
		return Handle{}, errors.InvalidInput(errors.PhaseInstantiate, "nil module descriptor")
	}
	if err := checkImports(a, m, &cfg.Imports); err != nil {
		return Handle{}, err
	}
	if uint32(len(cfg.Functions)) < m.NumDefinedFunctions() {
		return Handle{}, errors.Link("function", m.NumDefinedFunctions(),
			"fewer function bodies than defined functions")
	}
	for i, f := range cfg.Imports.Functions {
		if f.Owner == 0 && f.Code >= uint64(len(cfg.Functions)) {
			return Handle{}, errors.Link("function", uint32(i), "host code index out of range")
		}
	}

	offsets := cfg.Offsets
	if offsets == nil {
		offsets = layout.New(m)
	}
	creator := cfg.MemoryCreator
	if creator == nil {
		creator = memory.DefaultCreator{}
	}

	mems := make([]substrate.LinearMemory, 0, m.NumDefinedMemories())
	for d := uint32(0); d < m.NumDefinedMemories(); d++ {
		plan := m.MemoryPlans[m.MemoryIndexOf(descriptor.DefinedMemoryIndex(d))]
		mem, err := memory.FromPlan(creator, plan)
		if err != nil {
			return Handle{}, errors.Instantiation(err)
		}
		mems = append(mems, mem)
	}
	tabs := make([]*table.Table, 0, m.NumDefinedTables())
	for d := uint32(0); d < m.NumDefinedTables(); d++ {
		tabs = append(tabs, table.New(m.TablePlans[m.TableIndexOf(descriptor.DefinedTableIndex(d))]))
	}

	inst := &Instance{
		module:      m,
		offsets:     offsets,
		arena:       a,
		memories:    mems,
		tables:      tabs,
		functions:   cfg.Functions,
		trampolines: cfg.Trampolines,
		registry:    cfg.TrapRegistry,
		handler:     cfg.FaultHandler,
		hostState:   cfg.HostState,
		relaxed:     cfg.RelaxedBulkMemory,
	}

	// Segment maps are copied per instance: drops are instance-local
	// mutations and must not bleed into other instantiations of the
	// same descriptor.
	inst.passiveElements = make(map[descriptor.ElemIndex][]descriptor.FuncIndex, len(m.PassiveElements))
	for k, v := range m.PassiveElements {
		inst.passiveElements[k] = v
	}
	inst.passiveData = make(map[descriptor.DataIndex][]byte, len(m.PassiveData))
	for k, v := range m.PassiveData {
		inst.passiveData[k] = v
	}

	// Nothing below can fail, so the key never needs rollback.
	inst.key = a.allocate(inst)
	inst.vmctx = newVMContext(offsets)
	inst.vmctx.setHeader(inst.key)

	for b := uint64(0); b < layout.NumBuiltins; b++ {
		inst.vmctx.SetBuiltin(b, b)
	}

	writeImportRecords(inst, &cfg.Imports)
	for d := uint32(0); d < m.NumDefinedTables(); d++ {
		inst.mirrorTable(descriptor.DefinedTableIndex(d))
	}
	for d := uint32(0); d < m.NumDefinedMemories(); d++ {
		inst.mirrorMemory(descriptor.DefinedMemoryIndex(d))
	}
	initGlobals(inst)
	writeAnyfuncs(inst, &cfg.Imports)

	metrics.Instantiations.Inc()
	debugf("instantiated: key=%d context_bytes=%d memories=%d tables=%d",
		inst.key, offsets.ContextSize(), len(mems), len(tabs))

	return Handle{arena: a, key: inst.key}, nil
}

// checkImports validates counts and owner references before anything
// is allocated, so a link error leaves the arena untouched.
func checkImports(a *Arena, m *descriptor.Module, imp *Imports) error {
	if uint32(len(imp.Functions)) != m.NumImportedFunctions {
		return errors.Link("function", uint32(len(imp.Functions)), "import count mismatch")
	}
	if uint32(len(imp.Tables)) != m.NumImportedTables {
		return errors.Link("table", uint32(len(imp.Tables)), "import count mismatch")
	}
	if uint32(len(imp.Memories)) != m.NumImportedMemories {
		return errors.Link("memory", uint32(len(imp.Memories)), "import count mismatch")
	}
	if uint32(len(imp.Globals)) != m.NumImportedGlobals {
		return errors.Link("global", uint32(len(imp.Globals)), "import count mismatch")
	}

	for i, f := range imp.Functions {
		if f.Owner == 0 {
			continue
		}
		owner, ok := a.get(f.Owner)
		if !ok {
			return errors.Link("function", uint32(i), "owner instance not found")
		}
		if f.Code >= uint64(len(owner.functions)) {
			return errors.Link("function", uint32(i), "code index out of range in owner")
		}
	}
	for i, t := range imp.Tables {
		owner, ok := a.get(t.Owner)
		if !ok {
			return errors.Link("table", uint32(i), "owner instance not found")
		}
		if uint32(t.Table) >= uint32(len(owner.tables)) {
			return errors.Link("table", uint32(i), "defined index out of range in owner")
		}
		want := m.TablePlans[i].ElemType
		if got := owner.tables[t.Table].ElemType(); got != want {
			return errors.TypeMismatch(errors.PhaseLink, "table", uint32(i), "element type mismatch")
		}
	}
	for i, mm := range imp.Memories {
		owner, ok := a.get(mm.Owner)
		if !ok {
			return errors.Link("memory", uint32(i), "owner instance not found")
		}
		if uint32(mm.Memory) >= uint32(len(owner.memories)) {
			return errors.Link("memory", uint32(i), "defined index out of range in owner")
		}
	}
	for i, g := range imp.Globals {
		owner, ok := a.get(g.Owner)
		if !ok {
			return errors.Link("global", uint32(i), "owner instance not found")
		}
		if uint32(g.Global) >= owner.module.NumDefinedGlobals() {
			return errors.Link("global", uint32(i), "defined index out of range in owner")
		}
	}
	return nil
}

func writeImportRecords(inst *Instance, imp *Imports) {
	for i, f := range imp.Functions {
		owner := f.Owner
		if owner == 0 {
			owner = inst.key
		}
		inst.vmctx.SetFunctionImport(descriptor.FuncIndex(i), f.Code, owner)
	}
	for i, t := range imp.Tables {
		inst.vmctx.SetTableImport(descriptor.TableIndex(i), t.Owner, t.Table)
	}
	for i, m := range imp.Memories {
		inst.vmctx.SetMemoryImport(descriptor.MemoryIndex(i), m.Owner, m.Memory)
	}
	for i, g := range imp.Globals {
		inst.vmctx.SetGlobalImport(descriptor.GlobalIndex(i), g.Owner, g.Global)
	}
}

func initGlobals(inst *Instance) {
	m := inst.module
	for d := uint32(0); d < m.NumDefinedGlobals(); d++ {
		def := descriptor.DefinedGlobalIndex(d)
		g := m.Globals[m.GlobalIndexOf(def)]
		var bits uint64
		switch g.Init.Kind {
		case descriptor.InitConst:
			bits = g.Init.Bits
		case descriptor.InitGetGlobal:
			// Validation guarantees the source is an imported global,
			// whose value is already live in its owner.
			owner, src := inst.resolveGlobal(g.Init.Global)
			bits = owner.vmctx.GlobalBits(src)
		case descriptor.InitRefNull:
			bits = uint64(substrate.NullFuncRef)
		case descriptor.InitRefFunc:
			bits = uint64(inst.FuncRef(g.Init.Func))
		}
		inst.vmctx.SetGlobalBits(def, bits)
	}
}

// writeAnyfuncs eagerly materializes the indirect-call record of every
// function, imported ones included, so funcref production never has a
// lazy initialization step.
func writeAnyfuncs(inst *Instance, imp *Imports) {
	m := inst.module
	for f := range m.Functions {
		fi := descriptor.FuncIndex(f)
		var code, owner uint64
		if uint32(f) < m.NumImportedFunctions {
			rec := imp.Functions[f]
			code, owner = rec.Code, rec.Owner
			if owner == 0 {
				owner = inst.key
			}
		} else {
			code = uint64(uint32(f) - m.NumImportedFunctions)
			owner = inst.key
		}
		inst.vmctx.SetAnyfunc(fi, code, m.SignatureID(fi), owner)
	}
}
