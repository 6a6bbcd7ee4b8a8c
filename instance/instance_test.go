package instance

import (
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/errors"
	"github.com/wippyai/wasm-substrate/layout"
	"github.com/wippyai/wasm-substrate/metrics"
	"github.com/wippyai/wasm-substrate/trap"
)

// testModule builds a self-contained module: two functions sharing one
// signature, a 5-element table, a 1-page memory growable to 3, one
// constant global, and one passive segment of each kind.
func testModule() *descriptor.Module {
	m := &descriptor.Module{
		Functions:    []descriptor.SignatureIndex{0, 0},
		SignatureIDs: []uint64{0x1111},
		TablePlans:   []descriptor.TablePlan{{ElemType: descriptor.FuncRef, Minimum: 5}},
		MemoryPlans:  []descriptor.MemoryPlan{{Minimum: 1, Maximum: 3, HasMaximum: true}},
		Globals:      []descriptor.Global{{Type: descriptor.I32, Init: descriptor.ConstInit(7)}},
		PassiveElements: map[descriptor.ElemIndex][]descriptor.FuncIndex{
			0: {0, 1, 0, 1, 0, 1, 0, 1, 0, 1},
		},
		PassiveData: map[descriptor.DataIndex][]byte{
			0: []byte("hello, segment"),
		},
	}
	m.AddExport("sum", descriptor.FuncEntity(0))
	m.AddExport("boom", descriptor.FuncEntity(1))
	m.AddExport("mem", descriptor.MemoryEntity(0))
	m.AddExport("tbl", descriptor.TableEntity(0))
	m.AddExport("g", descriptor.GlobalEntity(0))
	return m
}

func testBodies() []substrate.FunctionBody {
	return []substrate.FunctionBody{
		func(args []uint64) []uint64 {
			var total uint64
			for _, a := range args {
				total += a
			}
			return []uint64{total}
		},
		func(args []uint64) []uint64 {
			d := uint64(0)
			if len(args) > 1 {
				d = args[1]
			}
			return []uint64{args[0] / d}
		},
	}
}

func newTestHandle(t *testing.T) (*Arena, Handle) {
	t.Helper()
	a := NewArena()
	h, err := New(a, Config{Module: testModule(), Functions: testBodies()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, h
}

func TestNewMirrorsEverything(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	ctx := h.Context()
	if !ctx.validMagic() {
		t.Error("context region has no magic")
	}
	if ctx.Owner() != h.Key() {
		t.Errorf("owner slot = %d, want %d", ctx.Owner(), h.Key())
	}

	base, length := ctx.MemoryDefinition(0)
	if length != substrate.PageSize {
		t.Errorf("mirrored memory length = %d, want %d", length, substrate.PageSize)
	}
	if wantBase, _ := h.DefinedMemory(0).Definition(); base != wantBase {
		t.Errorf("mirrored memory base = 0x%x, want 0x%x", base, wantBase)
	}

	if _, elems := ctx.TableDefinition(0); elems != 5 {
		t.Errorf("mirrored table elements = %d, want 5", elems)
	}
	if bits := ctx.GlobalBits(0); bits != 7 {
		t.Errorf("global bits = %d, want 7", bits)
	}

	for b := uint64(0); b < layout.NumBuiltins; b++ {
		if got := ctx.Builtin(b); got != b {
			t.Errorf("builtin slot %d = %d", b, got)
		}
	}

	// Anyfunc records carry per-function code index, type id and owner.
	code, typeID, owner := ctx.Anyfunc(1)
	if code != 1 || typeID != 0x1111 || owner != h.Key() {
		t.Errorf("anyfunc 1 = {code %d, type 0x%x, owner %d}", code, typeID, owner)
	}
}

func TestNewValidation(t *testing.T) {
	a := NewArena()

	if _, err := New(a, Config{}); err == nil {
		t.Error("nil module accepted")
	}

	m := testModule()
	m.NumImportedFunctions = 1
	m.Functions = append([]descriptor.SignatureIndex{0}, m.Functions...)
	_, err := New(a, Config{Module: m, Functions: testBodies()})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLink, Kind: errors.KindLink}) {
		t.Errorf("missing import produced %v, want link error", err)
	}
	if a.Len() != 0 {
		t.Errorf("failed New leaked %d instances into the arena", a.Len())
	}
}

func TestMemoryGrowMirrors(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	old, ok := h.MemoryGrow(0, 1)
	if !ok || old != 1 {
		t.Fatalf("MemoryGrow = (%d, %v), want (1, true)", old, ok)
	}

	base, length := h.Context().MemoryDefinition(0)
	if length != 2*substrate.PageSize {
		t.Errorf("mirrored length = %d, want %d", length, 2*substrate.PageSize)
	}
	wantBase, _ := h.DefinedMemory(0).Definition()
	if base != wantBase {
		t.Errorf("mirrored base = 0x%x, want 0x%x (stale after realloc?)", base, wantBase)
	}
}

func TestMemoryGrowFailureMutatesNothing(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if _, ok := h.MemoryGrow(0, 1_000_000); ok {
		t.Fatal("grow past maximum succeeded")
	}
	if _, length := h.Context().MemoryDefinition(0); length != substrate.PageSize {
		t.Errorf("failed grow changed mirrored length to %d", length)
	}
	if got := h.DefinedMemory(0).ByteSize(); got != substrate.PageSize {
		t.Errorf("failed grow changed memory size to %d", got)
	}
}

func TestTableGrowMirrors(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	old, ok := h.TableGrow(0, 3, substrate.NullFuncRef)
	if !ok || old != 5 {
		t.Fatalf("TableGrow = (%d, %v), want (5, true)", old, ok)
	}
	if _, elems := h.Context().TableDefinition(0); elems != 8 {
		t.Errorf("mirrored elements = %d, want 8", elems)
	}
}

func TestTableInitOutOfBoundsWritesNothing(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	// 10-element segment into a 5-element table at offset 2.
	err := h.TableInit(0, 0, 2, 0, 10)
	tr, ok := err.(*trap.Trap)
	if !ok {
		t.Fatalf("TableInit returned %v, want *trap.Trap", err)
	}
	if code, _ := tr.Code(); code != trap.TableOutOfBounds {
		t.Errorf("trap code = %v, want TableOutOfBounds", code)
	}
	for i := uint32(0); i < 5; i++ {
		if ref, _ := h.TableGet(0, i); !ref.IsNull() {
			t.Errorf("element %d written by failed init: %v", i, ref)
		}
	}
}

func TestTableInitAndGet(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if err := h.TableInit(0, 0, 1, 2, 3); err != nil {
		t.Fatalf("TableInit: %v", err)
	}
	ref, ok := h.TableGet(0, 1)
	if !ok || ref.IsNull() {
		t.Fatalf("TableGet(1) = (%v, %v)", ref, ok)
	}
	if ref.Owner() != h.Key() {
		t.Errorf("funcref owner = %d, want %d", ref.Owner(), h.Key())
	}
	if ref.Anyfunc() != 0 {
		t.Errorf("funcref anyfunc index = %d, want 0", ref.Anyfunc())
	}
	if got, _ := h.TableGet(0, 0); !got.IsNull() {
		t.Errorf("element 0 touched by init at offset 1: %v", got)
	}
}

func TestElemDropIsIdempotent(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	h.ElemDrop(0)
	h.ElemDrop(0)
	h.ElemDrop(42)

	// Dropped segment behaves as empty: zero-length init succeeds,
	// anything else is out of bounds.
	if err := h.TableInit(0, 0, 0, 0, 0); err != nil {
		t.Errorf("zero-length init of dropped segment: %v", err)
	}
	if err := h.TableInit(0, 0, 0, 0, 1); err == nil {
		t.Error("init from dropped segment succeeded")
	}
}

func TestMemoryInitAndDataDrop(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if err := h.MemoryInit(0, 0, 100, 7, 7); err != nil {
		t.Fatalf("MemoryInit: %v", err)
	}
	got := string(h.DefinedMemory(0).Bytes()[100:107])
	if got != "segment" {
		t.Errorf("memory contents = %q, want %q", got, "segment")
	}

	h.DataDrop(0)
	h.DataDrop(0)
	if err := h.MemoryInit(0, 0, 0, 0, 1); err == nil {
		t.Error("init from dropped data segment succeeded")
	}
}

func TestMemoryInitOutOfBoundsWritesNothing(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	err := h.MemoryInit(0, 0, substrate.PageSize-3, 0, 14)
	tr, ok := err.(*trap.Trap)
	if !ok {
		t.Fatalf("MemoryInit returned %v", err)
	}
	if code, _ := tr.Code(); code != trap.MemoryOutOfBounds {
		t.Errorf("trap code = %v", code)
	}
	buf := h.DefinedMemory(0).Bytes()
	if buf[substrate.PageSize-3] != 0 {
		t.Error("failed init wrote into memory")
	}
}

func TestMemoryCopyOverlap(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	buf := h.DefinedMemory(0).Bytes()
	copy(buf[0:4], "abcd")

	if err := h.MemoryCopy(0, 2, 0, 0, 4); err != nil {
		t.Fatalf("MemoryCopy: %v", err)
	}
	if got := string(buf[0:6]); got != "ababcd" {
		t.Errorf("overlapping copy produced %q, want %q", got, "ababcd")
	}
}

func TestMemoryCopyOutOfBounds(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	err := h.MemoryCopy(0, substrate.PageSize-1, 0, 0, 2)
	if tr, ok := err.(*trap.Trap); !ok {
		t.Fatalf("MemoryCopy returned %v", err)
	} else if code, _ := tr.Code(); code != trap.MemoryOutOfBounds {
		t.Errorf("trap code = %v", code)
	}

	// Offset+size overflow must not wrap around to "in bounds".
	err = h.MemoryCopy(0, ^uint64(0), 0, 0, 2)
	if _, ok := err.(*trap.Trap); !ok {
		t.Errorf("overflowing copy returned %v", err)
	}
}

func TestMemoryFill(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if err := h.MemoryFill(0, 10, 0xCC, 4); err != nil {
		t.Fatalf("MemoryFill: %v", err)
	}
	buf := h.DefinedMemory(0).Bytes()
	if buf[9] != 0 || buf[10] != 0xCC || buf[13] != 0xCC || buf[14] != 0 {
		t.Errorf("fill wrote wrong range: % x", buf[9:15])
	}

	if err := h.MemoryFill(0, substrate.PageSize, 0xCC, 1); err == nil {
		t.Error("out-of-bounds fill succeeded")
	}
}

func TestTableCopyAcrossTables(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if err := h.TableInit(0, 0, 0, 0, 2); err != nil {
		t.Fatalf("TableInit: %v", err)
	}
	if err := h.TableCopy(0, 0, 3, 0, 2); err != nil {
		t.Fatalf("TableCopy: %v", err)
	}
	a, _ := h.TableGet(0, 0)
	b, _ := h.TableGet(0, 3)
	if a != b {
		t.Errorf("copied element differs: %v vs %v", a, b)
	}

	if err := h.TableCopy(0, 0, 4, 0, 2); err == nil {
		t.Error("out-of-bounds table copy succeeded")
	}
}

func TestTableFillTrap(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if err := h.TableFill(0, 4, substrate.NullFuncRef, 2); err == nil {
		t.Fatal("out-of-bounds table fill succeeded")
	}
	if err := h.TableFill(0, 0, h.FuncRef(0), 5); err != nil {
		t.Fatalf("TableFill: %v", err)
	}
}

func TestLookup(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	exp, ok := h.Lookup("mem")
	if !ok {
		t.Fatal(`Lookup("mem") missed`)
	}
	me, ok := exp.(ExportMemory)
	if !ok {
		t.Fatalf(`Lookup("mem") = %T`, exp)
	}
	if me.Owner != h.Key() {
		t.Errorf("export owner = %d, want %d", me.Owner, h.Key())
	}
	if me.Definition != h.Context().Offsets().MemoryDefinition(0) {
		t.Errorf("export definition offset = %d", me.Definition)
	}

	if _, ok := h.Lookup("missing"); ok {
		t.Error(`Lookup("missing") hit`)
	}

	fe, _ := h.Lookup("sum")
	if f, ok := fe.(ExportFunction); !ok || f.Signature != 0 {
		t.Errorf(`Lookup("sum") = %+v`, fe)
	}

	want := []string{"sum", "boom", "mem", "tbl", "g"}
	got := h.Exports()
	if len(got) != len(want) {
		t.Fatalf("Exports() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Exports()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFuncRefPacking(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	if !h.FuncRef(descriptor.NullFunc).IsNull() {
		t.Error("null function index did not produce a null ref")
	}
	ref := h.FuncRef(1)
	if ref.IsNull() {
		t.Fatal("real function produced a null ref")
	}
	if ref.Owner() != h.Key() || ref.Anyfunc() != 1 {
		t.Errorf("ref unpacked to owner=%d anyfunc=%d", ref.Owner(), ref.Anyfunc())
	}
}

func TestInvoke(t *testing.T) {
	trap.Install()
	_, h := newTestHandle(t)
	defer h.Release()

	results, err := h.Invoke("sum", []uint64{1, 2, 3})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(results) != 1 || results[0] != 6 {
		t.Errorf("results = %v, want [6]", results)
	}

	if _, err := h.Invoke("missing", nil); err == nil {
		t.Error("invoking a missing export succeeded")
	}
	if _, err := h.Invoke("mem", nil); err == nil {
		t.Error("invoking a memory export succeeded")
	}
}

func TestInvokeFaultBecomesTrap(t *testing.T) {
	trap.Install()
	_, h := newTestHandle(t)
	defer h.Release()

	_, err := h.Invoke("boom", []uint64{1, 0})
	tr, ok := err.(*trap.Trap)
	if !ok {
		t.Fatalf("Invoke returned %T: %v", err, err)
	}
	if code, _ := tr.Code(); code != trap.IntegerDivisionByZero {
		t.Errorf("trap code = %v, want IntegerDivisionByZero", code)
	}
	if len(tr.Backtrace()) == 0 {
		t.Error("trap has no backtrace")
	}
}

func TestCallIndirectNullAndBadSignature(t *testing.T) {
	trap.Install()
	a := NewArena()
	m := testModule()
	m.SignatureIDs = append(m.SignatureIDs, 0x2222)
	h, err := New(a, Config{Module: m, Functions: testBodies()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Release()
	inst := h.inst()

	err = h.Run(func() {
		inst.CallIndirect(substrate.NullFuncRef, 0, nil)
	})
	if tr, ok := err.(*trap.Trap); !ok {
		t.Fatalf("null call returned %v", err)
	} else if code, _ := tr.Code(); code != trap.IndirectCallToNull {
		t.Errorf("trap code = %v, want IndirectCallToNull", code)
	}

	err = h.Run(func() {
		inst.CallIndirect(inst.FuncRef(0), 1, nil)
	})
	if tr, ok := err.(*trap.Trap); !ok {
		t.Fatalf("mistyped call returned %v", err)
	} else if code, _ := tr.Code(); code != trap.BadSignature {
		t.Errorf("trap code = %v, want BadSignature", code)
	}
}

func TestInvokeWithoutSignatureIDs(t *testing.T) {
	trap.Install()
	a := NewArena()
	m := &descriptor.Module{Functions: []descriptor.SignatureIndex{0}}
	m.AddExport("f", descriptor.FuncEntity(0))

	h, err := New(a, Config{
		Module: m,
		Functions: []substrate.FunctionBody{
			func([]uint64) []uint64 { return []uint64{9} },
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Release()

	// No signature ids registered: the indirect-call type check is
	// skipped, not tripped over.
	results, err := h.Invoke("f", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(results) != 1 || results[0] != 9 {
		t.Errorf("results = %v, want [9]", results)
	}
}

func TestHostStateRoundTrip(t *testing.T) {
	a := NewArena()
	type state struct{ hits int }
	s := &state{}
	h, err := New(a, Config{Module: testModule(), Functions: testBodies(), HostState: s})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Release()

	got, ok := h.HostState().(*state)
	if !ok || got != s {
		t.Errorf("HostState() = %v", h.HostState())
	}
}

func TestMemoryGrowMetrics(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	okBefore := testutil.ToFloat64(metrics.MemoryGrows.WithLabelValues(metrics.ResultOK))
	failBefore := testutil.ToFloat64(metrics.MemoryGrows.WithLabelValues(metrics.ResultFailed))

	if _, ok := h.MemoryGrow(0, 1); !ok {
		t.Fatal("grow within maximum failed")
	}
	if _, ok := h.MemoryGrow(0, 100); ok {
		t.Fatal("grow past maximum succeeded")
	}

	if got := testutil.ToFloat64(metrics.MemoryGrows.WithLabelValues(metrics.ResultOK)); got != okBefore+1 {
		t.Errorf("ok grows = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(metrics.MemoryGrows.WithLabelValues(metrics.ResultFailed)); got != failBefore+1 {
		t.Errorf("failed grows = %v, want %v", got, failBefore+1)
	}
}

func TestDefinedEntityReverseLookup(t *testing.T) {
	_, h := newTestHandle(t)
	defer h.Release()

	mem := h.DefinedMemory(0)
	if got, ok := h.MemoryIndexFor(mem); !ok || got != 0 {
		t.Errorf("MemoryIndexFor = (%d, %v), want (0, true)", got, ok)
	}
	tab := h.DefinedTable(0)
	if got, ok := h.TableIndexFor(tab); !ok || got != 0 {
		t.Errorf("TableIndexFor = (%d, %v), want (0, true)", got, ok)
	}
	if _, ok := h.TableIndexFor(nil); ok {
		t.Error("TableIndexFor(nil) should miss")
	}
}

func TestReleaseSemantics(t *testing.T) {
	a, h := newTestHandle(t)
	if a.Len() != 1 {
		t.Fatalf("arena Len() = %d", a.Len())
	}

	alias := h.Clone()
	h.Release()
	if a.Len() != 0 {
		t.Errorf("arena Len() after release = %d", a.Len())
	}

	assertPanics(t, "double release", func() { alias.Release() })
	assertPanics(t, "use after release", func() { alias.Module() })
}

func assertPanics(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}
