package descriptor

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/wippyai/wasm-substrate/errors"
)

// Binary format constants.
const (
	wasmMagic   uint32 = 0x6D736100 // "\0asm"
	wasmVersion uint32 = 0x01
)

// Section ids.
const (
	secCustom    byte = 0
	secType      byte = 1
	secImport    byte = 2
	secFunction  byte = 3
	secTable     byte = 4
	secMemory    byte = 5
	secGlobal    byte = 6
	secExport    byte = 7
	secStart     byte = 8
	secElement   byte = 9
	secCode      byte = 10
	secData      byte = 11
	secDataCount byte = 12
)

// FromWasm extracts the static shape of a core module binary: index
// space sizes, table/memory plans, globals, exports and element/data
// segments. It does not validate or decode function bodies; it exists
// so tooling can build a Module and Initializers without a compiler
// front end in the loop.
func FromWasm(data []byte) (*Module, *Initializers, error) {
	r := &reader{data: data}

	magic, err := r.u32le()
	if err != nil {
		return nil, nil, errors.InvalidInput(errors.PhaseInstantiate, "truncated wasm header")
	}
	if magic != wasmMagic {
		return nil, nil, errors.InvalidInput(errors.PhaseInstantiate, "invalid wasm magic number")
	}
	version, err := r.u32le()
	if err != nil || version != wasmVersion {
		return nil, nil, errors.InvalidInput(errors.PhaseInstantiate, "unsupported wasm version")
	}

	m := &Module{
		Exports:         map[string]EntityIndex{},
		PassiveElements: map[ElemIndex][]FuncIndex{},
		PassiveData:     map[DataIndex][]byte{},
	}
	inits := &Initializers{}

	for !r.done() {
		id, err := r.byte()
		if err != nil {
			return nil, nil, parseErr("section id", err)
		}
		size, err := r.u32()
		if err != nil {
			return nil, nil, parseErr("section size", err)
		}
		body, err := r.take(int(size))
		if err != nil {
			return nil, nil, parseErr("section body", err)
		}

		s := &reader{data: body}
		switch id {
		case secType:
			err = parseTypes(s, m)
		case secImport:
			err = parseImports(s, m)
		case secFunction:
			err = parseFunctions(s, m)
		case secTable:
			err = parseTables(s, m)
		case secMemory:
			err = parseMemories(s, m)
		case secGlobal:
			err = parseGlobals(s, m)
		case secExport:
			err = parseExports(s, m)
		case secElement:
			err = parseElements(s, m, inits)
		case secData:
			err = parseData(s, m, inits)
		case secCustom, secStart, secCode, secDataCount:
			// Shape-irrelevant here: code feeds the compiler, the
			// start function runs through the normal call path.
		default:
			err = fmt.Errorf("unknown section id %d", id)
		}
		if err != nil {
			return nil, nil, parseErr(fmt.Sprintf("section %d", id), err)
		}
	}

	return m, inits, nil
}

func parseErr(what string, err error) error {
	return &errors.Error{
		Phase:  errors.PhaseInstantiate,
		Kind:   errors.KindInvalidInput,
		Detail: "parse " + what,
		Cause:  err,
	}
}

func parseTypes(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("unsupported type form 0x%x", form)
		}
		// Hash the raw encoding; the id only needs to agree for
		// structurally equal signatures within one process.
		h := fnv.New64a()
		h.Write([]byte{form})
		for pass := 0; pass < 2; pass++ {
			n, err := r.u32()
			if err != nil {
				return err
			}
			for j := uint32(0); j < n; j++ {
				vt, err := r.byte()
				if err != nil {
					return err
				}
				h.Write([]byte{vt})
			}
		}
		m.SignatureIDs = append(m.SignatureIDs, h.Sum64())
	}
	return nil
}

func parseImports(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		var entity EntityIndex
		switch kind {
		case 0x00:
			sig, err := r.u32()
			if err != nil {
				return err
			}
			entity = FuncEntity(FuncIndex(m.NumImportedFunctions))
			m.Functions = append(m.Functions, SignatureIndex(sig))
			m.NumImportedFunctions++
		case 0x01:
			plan, err := r.tablePlan()
			if err != nil {
				return err
			}
			entity = TableEntity(TableIndex(m.NumImportedTables))
			m.TablePlans = append(m.TablePlans, plan)
			m.NumImportedTables++
		case 0x02:
			plan, err := r.memoryPlan()
			if err != nil {
				return err
			}
			entity = MemoryEntity(MemoryIndex(m.NumImportedMemories))
			m.MemoryPlans = append(m.MemoryPlans, plan)
			m.NumImportedMemories++
		case 0x03:
			vt, err := r.byte()
			if err != nil {
				return err
			}
			mut, err := r.byte()
			if err != nil {
				return err
			}
			entity = GlobalEntity(GlobalIndex(m.NumImportedGlobals))
			m.Globals = append(m.Globals, Global{Type: ValType(vt), Mutable: mut == 1})
			m.NumImportedGlobals++
		default:
			return fmt.Errorf("unknown import kind %d", kind)
		}
		m.Imports = append(m.Imports, Import{Module: mod, Name: name, Entity: entity})
	}
	return nil
}

func parseFunctions(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		sig, err := r.u32()
		if err != nil {
			return err
		}
		m.Functions = append(m.Functions, SignatureIndex(sig))
	}
	return nil
}

func parseTables(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		plan, err := r.tablePlan()
		if err != nil {
			return err
		}
		m.TablePlans = append(m.TablePlans, plan)
	}
	return nil
}

func parseMemories(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		plan, err := r.memoryPlan()
		if err != nil {
			return err
		}
		m.MemoryPlans = append(m.MemoryPlans, plan)
	}
	return nil
}

func parseGlobals(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := r.byte()
		if err != nil {
			return err
		}
		mut, err := r.byte()
		if err != nil {
			return err
		}
		init, err := r.constExpr()
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: ValType(vt), Mutable: mut == 1, Init: init})
	}
	return nil
}

func parseExports(r *reader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}
		if kind > 0x03 {
			return fmt.Errorf("unknown export kind %d", kind)
		}
		m.AddExport(name, EntityIndex{Kind: EntityKind(kind), Index: idx})
	}
	return nil
}

func parseElements(r *reader, m *Module, inits *Initializers) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return fmt.Errorf("unsupported element segment flags %d", flags)
		}

		var (
			table       TableIndex
			init        GlobalInit
			active      = flags&0x01 == 0
			declarative = flags == 3 || flags == 7
			useExprs    = flags&0x04 != 0
		)
		if flags&0x02 != 0 && active {
			idx, err := r.u32()
			if err != nil {
				return err
			}
			table = TableIndex(idx)
		}
		if active {
			init, err = r.constExpr()
			if err != nil {
				return err
			}
		}
		// elemkind / reftype byte present for all but flags 0 and 4
		if flags != 0 && flags != 4 {
			if _, err := r.byte(); err != nil {
				return err
			}
		}

		n, err := r.u32()
		if err != nil {
			return err
		}
		elems := make([]FuncIndex, 0, n)
		for j := uint32(0); j < n; j++ {
			var f FuncIndex
			if useExprs {
				f, err = r.refExpr()
			} else {
				var v uint32
				v, err = r.u32()
				f = FuncIndex(v)
			}
			if err != nil {
				return err
			}
			elems = append(elems, f)
		}

		switch {
		case declarative:
			// Declarative segments exist only for validation; they are
			// born dropped and never addressable.
		case active:
			ti := TableInitializer{Table: table, Elements: elems}
			if init.Kind == InitGetGlobal {
				ti.Base, ti.HasBase = init.Global, true
			} else {
				ti.Offset = uint32(init.Bits)
			}
			inits.Tables = append(inits.Tables, ti)
		default:
			m.PassiveElements[ElemIndex(i)] = elems
		}
	}
	return nil
}

func parseData(r *reader, m *Module, inits *Initializers) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		var mem MemoryIndex
		var init GlobalInit
		switch flags {
		case 0, 2:
			if flags == 2 {
				idx, err := r.u32()
				if err != nil {
					return err
				}
				mem = MemoryIndex(idx)
			}
			init, err = r.constExpr()
			if err != nil {
				return err
			}
		case 1:
			// passive
		default:
			return fmt.Errorf("unsupported data segment flags %d", flags)
		}
		n, err := r.u32()
		if err != nil {
			return err
		}
		content, err := r.take(int(n))
		if err != nil {
			return err
		}
		if flags == 1 {
			m.PassiveData[DataIndex(i)] = content
			continue
		}
		mi := MemoryInitializer{Memory: mem, Data: content}
		if init.Kind == InitGetGlobal {
			mi.Base, mi.HasBase = init.Global, true
		} else {
			mi.Offset = init.Bits
		}
		inits.Memories = append(inits.Memories, mi)
	}
	return nil
}

// reader is a cursor over a byte slice with LEB128 helpers.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) done() bool { return r.pos >= len(r.data) }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("unexpected end of input at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("unexpected end of input at offset %d", r.pos)
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u32le() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// u32 reads an unsigned LEB128 value of at most 32 bits.
func (r *reader) u32() (uint32, error) {
	v, err := r.uleb(32)
	return uint32(v), err
}

func (r *reader) uleb(bits uint) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= bits+7 {
			return 0, fmt.Errorf("LEB128 value exceeds %d bits", bits)
		}
	}
}

func (r *reader) sleb(bits uint) (int64, error) {
	var v int64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		v |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			return v, nil
		}
		if shift >= bits+7 {
			return 0, fmt.Errorf("LEB128 value exceeds %d bits", bits)
		}
	}
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) tablePlan() (TablePlan, error) {
	et, err := r.byte()
	if err != nil {
		return TablePlan{}, err
	}
	min, max, hasMax, _, err := r.limits()
	if err != nil {
		return TablePlan{}, err
	}
	return TablePlan{
		ElemType:   ValType(et),
		Minimum:    uint32(min),
		Maximum:    uint32(max),
		HasMaximum: hasMax,
	}, nil
}

func (r *reader) memoryPlan() (MemoryPlan, error) {
	min, max, hasMax, shared, err := r.limits()
	if err != nil {
		return MemoryPlan{}, err
	}
	return MemoryPlan{Minimum: min, Maximum: max, HasMaximum: hasMax, Shared: shared}, nil
}

func (r *reader) limits() (min, max uint64, hasMax, shared bool, err error) {
	flags, err := r.byte()
	if err != nil {
		return
	}
	hasMax = flags&0x01 != 0
	shared = flags&0x02 != 0
	min, err = r.uleb(64)
	if err != nil {
		return
	}
	if hasMax {
		max, err = r.uleb(64)
	}
	return
}

// constExpr reads a single-instruction constant expression followed by
// the end opcode.
func (r *reader) constExpr() (GlobalInit, error) {
	op, err := r.byte()
	if err != nil {
		return GlobalInit{}, err
	}
	var init GlobalInit
	switch op {
	case 0x41: // i32.const
		v, err := r.sleb(32)
		if err != nil {
			return GlobalInit{}, err
		}
		init = ConstInit(uint64(uint32(v)))
	case 0x42: // i64.const
		v, err := r.sleb(64)
		if err != nil {
			return GlobalInit{}, err
		}
		init = ConstInit(uint64(v))
	case 0x43: // f32.const
		b, err := r.take(4)
		if err != nil {
			return GlobalInit{}, err
		}
		init = ConstInit(uint64(binary.LittleEndian.Uint32(b)))
	case 0x44: // f64.const
		b, err := r.take(8)
		if err != nil {
			return GlobalInit{}, err
		}
		init = ConstInit(binary.LittleEndian.Uint64(b))
	case 0x23: // global.get
		g, err := r.u32()
		if err != nil {
			return GlobalInit{}, err
		}
		init = GetGlobalInit(GlobalIndex(g))
	case 0xD0: // ref.null
		if _, err := r.byte(); err != nil {
			return GlobalInit{}, err
		}
		init = GlobalInit{Kind: InitRefNull}
	case 0xD2: // ref.func
		f, err := r.u32()
		if err != nil {
			return GlobalInit{}, err
		}
		init = GlobalInit{Kind: InitRefFunc, Func: FuncIndex(f)}
	default:
		return GlobalInit{}, fmt.Errorf("unsupported constant opcode 0x%x", op)
	}
	end, err := r.byte()
	if err != nil {
		return GlobalInit{}, err
	}
	if end != 0x0B {
		return GlobalInit{}, fmt.Errorf("constant expression not terminated (0x%x)", end)
	}
	return init, nil
}

// refExpr reads a ref.func or ref.null element expression.
func (r *reader) refExpr() (FuncIndex, error) {
	init, err := r.constExpr()
	if err != nil {
		return 0, err
	}
	switch init.Kind {
	case InitRefFunc:
		return init.Func, nil
	case InitRefNull:
		return NullFunc, nil
	}
	return 0, fmt.Errorf("unsupported element expression")
}

// F32Bits and F64Bits convert float constants to their bit patterns for
// ConstInit. Exposed for embedders building descriptors by hand.
func F32Bits(f float32) uint64 { return uint64(math.Float32bits(f)) }

// F64Bits converts a float64 constant to its bit pattern.
func F64Bits(f float64) uint64 { return math.Float64bits(f) }
