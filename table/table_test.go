package table

import (
	"testing"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
)

func plan(min, max uint32, hasMax bool) descriptor.TablePlan {
	return descriptor.TablePlan{
		ElemType:   descriptor.FuncRef,
		Minimum:    min,
		Maximum:    max,
		HasMaximum: hasMax,
	}
}

func ref(owner uint64, idx uint32) substrate.FuncRef {
	return substrate.MakeFuncRef(owner, idx)
}

func TestNewIsNullFilled(t *testing.T) {
	tbl := New(plan(4, 0, false))
	if tbl.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", tbl.Size())
	}
	for i := uint32(0); i < 4; i++ {
		v, ok := tbl.Get(i)
		if !ok || !v.IsNull() {
			t.Errorf("element %d = (%v, %v), want null", i, v, ok)
		}
	}
}

func TestGrow(t *testing.T) {
	tbl := New(plan(2, 5, true))

	old, ok := tbl.Grow(2, ref(1, 7))
	if !ok || old != 2 {
		t.Fatalf("Grow(2) = (%d, %v), want (2, true)", old, ok)
	}
	if got, _ := tbl.Get(2); got != ref(1, 7) {
		t.Errorf("grown element = %v, want init value", got)
	}
	if got, _ := tbl.Get(0); !got.IsNull() {
		t.Errorf("existing element overwritten by grow: %v", got)
	}

	if _, ok := tbl.Grow(2, substrate.NullFuncRef); ok {
		t.Error("grow past declared maximum should fail")
	}
	if tbl.Size() != 4 {
		t.Errorf("failed grow mutated size: %d", tbl.Size())
	}
}

func TestGetSetBounds(t *testing.T) {
	tbl := New(plan(3, 0, false))

	if !tbl.Set(2, ref(1, 1)) {
		t.Fatal("Set(2) in bounds failed")
	}
	if v, ok := tbl.Get(2); !ok || v != ref(1, 1) {
		t.Errorf("Get(2) = (%v, %v)", v, ok)
	}
	if tbl.Set(3, ref(1, 1)) {
		t.Error("Set(3) out of bounds succeeded")
	}
	if _, ok := tbl.Get(3); ok {
		t.Error("Get(3) out of bounds succeeded")
	}
}

func TestFill(t *testing.T) {
	tbl := New(plan(5, 0, false))

	if !tbl.Fill(1, ref(1, 2), 3) {
		t.Fatal("in-bounds fill failed")
	}
	for i := uint32(0); i < 5; i++ {
		v, _ := tbl.Get(i)
		want := v.IsNull()
		if i >= 1 && i < 4 {
			want = v == ref(1, 2)
		}
		if !want {
			t.Errorf("element %d = %v after fill", i, v)
		}
	}

	// Out of bounds fills nothing, including the in-range prefix.
	if tbl.Fill(3, ref(9, 9), 3) {
		t.Fatal("out-of-bounds fill succeeded")
	}
	if v, _ := tbl.Get(3); v != ref(1, 2) {
		t.Errorf("failed fill wrote element 3: %v", v)
	}

	if !tbl.Fill(5, ref(9, 9), 0) {
		t.Error("zero-length fill at size boundary should succeed")
	}
}

func TestInit(t *testing.T) {
	tbl := New(plan(5, 0, false))
	elems := []substrate.FuncRef{ref(1, 0), ref(1, 1), ref(1, 2)}

	if !tbl.Init(2, elems) {
		t.Fatal("in-bounds init failed")
	}
	if v, _ := tbl.Get(4); v != ref(1, 2) {
		t.Errorf("element 4 = %v after init", v)
	}

	if tbl.Init(3, elems) {
		t.Error("out-of-bounds init succeeded")
	}
	if v, _ := tbl.Get(3); v != ref(1, 1) {
		t.Errorf("failed init wrote element 3: %v", v)
	}
}

func TestCopyWithinOverlap(t *testing.T) {
	tbl := New(plan(6, 0, false))
	for i := uint32(0); i < 6; i++ {
		tbl.Set(i, ref(1, i))
	}

	// Forward overlap within one table.
	if !CopyWithin(tbl, tbl, 2, 0, 4) {
		t.Fatal("overlapping copy failed")
	}
	want := []uint32{0, 1, 0, 1, 2, 3}
	for i, w := range want {
		v, _ := tbl.Get(uint32(i))
		if v != ref(1, w) {
			t.Errorf("element %d = %v, want ref(1, %d)", i, v, w)
		}
	}
}

func TestCopyWithinBounds(t *testing.T) {
	dst := New(plan(3, 0, false))
	src := New(plan(5, 0, false))

	if CopyWithin(dst, src, 1, 0, 3) {
		t.Error("copy past destination end succeeded")
	}
	if CopyWithin(dst, src, 0, 4, 2) {
		t.Error("copy past source end succeeded")
	}
	if !CopyWithin(dst, src, 0, 0, 3) {
		t.Error("exact-fit copy failed")
	}
}
